package engine

import (
	"testing"
	"time"

	"github.com/maolan-audio/engine/pkg/midi"
	"github.com/maolan-audio/engine/pkg/track"
)

func TestSchedulerRunsOneCycleImmediatelyOnStart(t *testing.T) {
	tr := track.New("t0", 2, 64, 48000)
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	s := NewScheduler([]*track.Track{tr}, 64, rx, tx, newTestLogger())
	done := make(chan struct{})
	go func() { s.Run(); close(done) }()

	select {
	case msg := <-tx:
		if msg.Kind != TracksFinished {
			t.Fatalf("expected TracksFinished on startup, got %v", msg.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial cycle")
	}

	close(rx)
	<-done
}

func TestSchedulerRunsAnotherCycleOnHwFinished(t *testing.T) {
	tr := track.New("t0", 2, 64, 48000)
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	s := NewScheduler([]*track.Track{tr}, 64, rx, tx, newTestLogger())
	done := make(chan struct{})
	go func() { s.Run(); close(done) }()

	<-tx // initial cycle's TracksFinished

	rx <- HwFinishedMessage()
	select {
	case msg := <-tx:
		if msg.Kind != TracksFinished {
			t.Fatalf("expected TracksFinished after HwFinished, got %v", msg.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second cycle")
	}

	close(rx)
	<-done
}

func TestSchedulerQuitsOnQuitMessage(t *testing.T) {
	tr := track.New("t0", 2, 64, 48000)
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	s := NewScheduler([]*track.Track{tr}, 64, rx, tx, newTestLogger())
	done := make(chan struct{})
	go func() { s.Run(); close(done) }()

	<-tx // initial cycle

	rx <- QuitMessage()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit on Quit")
	}
}

func TestSchedulerDispatchesHwMidiEventsWithDefaultBroadcastRouter(t *testing.T) {
	a := track.New("a", 1, 64, 48000)
	b := track.New("b", 1, 64, 48000)
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	s := NewScheduler([]*track.Track{a, b}, 64, rx, tx, newTestLogger())
	done := make(chan struct{})
	go func() { s.Run(); close(done) }()

	<-tx // initial cycle

	ev := midi.NewRawEvent("dev0", 5, []byte{0x90, 60, 100})
	rx <- HwMidiEventsMessage([]midi.RawEvent{ev})

	// Drive another cycle after the dispatch and check the scheduler still
	// answers with TracksFinished, i.e. processing the tracks that received
	// the queued event did not stall the cycle.
	rx <- HwFinishedMessage()
	select {
	case msg := <-tx:
		if msg.Kind != TracksFinished {
			t.Fatalf("expected TracksFinished, got %v", msg.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	close(rx)
	<-done
}

func TestSchedulerSetRouterOverridesDefault(t *testing.T) {
	a := track.New("a", 1, 64, 48000)
	b := track.New("b", 1, 64, 48000)
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	s := NewScheduler([]*track.Track{a, b}, 64, rx, tx, newTestLogger())

	var routedTo []*track.Track
	s.SetRouter(func(_ midi.RawEvent, tracks []*track.Track) []*track.Track {
		routedTo = tracks[:1]
		return routedTo
	})

	done := make(chan struct{})
	go func() { s.Run(); close(done) }()

	<-tx // initial cycle

	ev := midi.NewRawEvent("dev0", 0, []byte{0x90, 60, 100})
	rx <- HwMidiEventsMessage([]midi.RawEvent{ev})
	rx <- HwFinishedMessage()

	select {
	case <-tx:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	if len(routedTo) != 1 || routedTo[0] != a {
		t.Fatalf("expected custom router to select track a only, got %+v", routedTo)
	}

	close(rx)
	<-done
}

func TestBroadcastToAllReturnsEveryTrack(t *testing.T) {
	a := track.New("a", 1, 64, 48000)
	b := track.New("b", 1, 64, 48000)
	tracks := []*track.Track{a, b}
	got := broadcastToAll(midi.NewRawEvent("dev0", 0, nil), tracks)
	if len(got) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got))
	}
}

package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maolan-audio/engine/pkg/midi"
)

type fakeDriver struct {
	cycleSamples int64
	sampleRate   uint32

	cycles atomic.Int64
	err    error
}

func (d *fakeDriver) CycleSamples() int64 { return d.cycleSamples }
func (d *fakeDriver) SampleRate() uint32  { return d.sampleRate }
func (d *fakeDriver) RunCycleForWorker() error {
	d.cycles.Add(1)
	return d.err
}
func (d *fakeDriver) RunAssistStepForWorker() (bool, error) { return false, nil }

type fakeHub struct {
	mu      sync.Mutex
	toRead  []midi.RawEvent
	written []midi.RawEvent
}

func (h *fakeHub) ReadEventsInto(out *[]midi.RawEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*out = append((*out)[:0], h.toRead...)
	h.toRead = nil
}

func (h *fakeHub) WriteEvents(events []midi.RawEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.written = append(h.written, events...)
}

func TestWorkerRunRespondsToTracksFinishedWithHwFinished(t *testing.T) {
	driver := &fakeDriver{cycleSamples: 64, sampleRate: 48000}
	hub := &fakeHub{}
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	w := NewWorker("test", driver, hub, rx, tx, nil)
	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	rx <- TracksFinishedMessage()

	select {
	case msg := <-tx:
		if msg.Kind != HwFinished {
			t.Fatalf("expected HwFinished, got %v", msg.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for HwFinished")
	}

	if driver.cycles.Load() != 1 {
		t.Errorf("expected exactly one driver cycle, got %d", driver.cycles.Load())
	}

	close(rx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after rx closed")
	}
}

func TestWorkerRunQuitsOnQuitMessage(t *testing.T) {
	driver := &fakeDriver{cycleSamples: 64, sampleRate: 48000}
	hub := &fakeHub{}
	rx := make(chan Message, 1)
	tx := make(chan Message, 1)

	w := NewWorker("test", driver, hub, rx, tx, nil)
	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	rx <- QuitMessage()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on Quit")
	}
}

func TestWorkerForwardsCapturedMidiUpstream(t *testing.T) {
	driver := &fakeDriver{cycleSamples: 64, sampleRate: 48000}
	hub := &fakeHub{toRead: []midi.RawEvent{
		midi.NewRawEvent("dev0", 0, []byte{0x90, 60, 100}),
		midi.NewRawEvent("dev0", 0, []byte{0x80, 60, 0}),
	}}
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	w := NewWorker("test", driver, hub, rx, tx, nil)
	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	rx <- TracksFinishedMessage()

	var sawMidi, sawFinished bool
	for i := 0; i < 2; i++ {
		select {
		case msg := <-tx:
			switch msg.Kind {
			case HwMidiEvents:
				sawMidi = true
				if len(msg.MidiEvents) != 2 {
					t.Errorf("expected 2 forwarded events, got %d", len(msg.MidiEvents))
				}
			case HwFinished:
				sawFinished = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for worker messages")
		}
	}
	if !sawMidi || !sawFinished {
		t.Errorf("expected both HwMidiEvents and HwFinished, got midi=%v finished=%v", sawMidi, sawFinished)
	}

	close(rx)
	<-done
}

func TestWorkerSortsPendingMidiOutBeforeFlushing(t *testing.T) {
	driver := &fakeDriver{cycleSamples: 64, sampleRate: 48000}
	hub := &fakeHub{}
	rx := make(chan Message, 4)
	tx := make(chan Message, 4)

	w := NewWorker("test", driver, hub, rx, tx, nil)
	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	rx <- HwMidiOutEventsMessage([]midi.RawEvent{
		midi.NewRawEvent("b", 10, nil),
		midi.NewRawEvent("a", 5, nil),
	})
	rx <- TracksFinishedMessage()

	select {
	case msg := <-tx:
		if msg.Kind != HwFinished {
			t.Fatalf("expected HwFinished, got %v", msg.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.written) != 2 || hub.written[0].Frame != 5 || hub.written[1].Frame != 10 {
		t.Fatalf("expected events sorted by frame, got %+v", hub.written)
	}

	close(rx)
	<-done
}

func TestWorkerReportsCycleErrorWithoutCrashing(t *testing.T) {
	driver := &fakeDriver{cycleSamples: 64, sampleRate: 48000, err: errors.New("boom")}
	hub := &fakeHub{}
	rx := make(chan Message, 2)
	tx := make(chan Message, 2)

	w := NewWorker("test", driver, hub, rx, tx, nil)
	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	rx <- TracksFinishedMessage()
	select {
	case msg := <-tx:
		if msg.Kind != HwFinished {
			t.Fatalf("expected HwFinished even after a cycle error, got %v", msg.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	close(rx)
	<-done
}

func TestSpreadHwEventFramesDistributesAcrossCycle(t *testing.T) {
	events := make([]midi.RawEvent, 4)
	for i := range events {
		events[i] = midi.NewRawEvent("dev", 0, nil)
	}
	spreadHwEventFrames(events, 128)

	want := []uint32{0, 31, 63, 95}
	for i, w := range want {
		if events[i].Frame != w {
			t.Errorf("event %d: want frame %d, got %d", i, w, events[i].Frame)
		}
	}
}

func TestSpreadHwEventFramesNoopForSingleEvent(t *testing.T) {
	events := []midi.RawEvent{midi.NewRawEvent("dev", 99, nil)}
	spreadHwEventFrames(events, 128)
	if events[0].Frame != 99 {
		t.Error("expected a single event's frame to be left untouched")
	}
}

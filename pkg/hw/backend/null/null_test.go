package null

import "testing"

func baseOptions() Options {
	return Options{
		InputChannels:   2,
		OutputChannels:  2,
		SampleRate:      48000,
		FramesPerBuffer: 64,
		NPeriods:        2,
		SyncMode:        true,
	}
}

func TestNewOpensInNegotiatedState(t *testing.T) {
	b := New(baseOptions())
	if b.state.State().String() != "negotiated" {
		t.Fatalf("expected negotiated state, got %v", b.state.State())
	}
}

func TestStartTransitionsToRunning(t *testing.T) {
	b := New(baseOptions())
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if b.state.State().String() != "running" {
		t.Fatalf("expected running state, got %v", b.state.State())
	}
}

func TestRunCycleForWorkerInvokesProcessFn(t *testing.T) {
	b := New(baseOptions())
	called := false
	b.SetProcessFn(func() { called = true })

	if err := b.RunCycleForWorker(); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("expected process callback to run during the cycle")
	}
}

func TestSetCaptureFeedsInputPort(t *testing.T) {
	b := New(baseOptions())
	frames := []float32{0.25, 0.5, -0.25, -0.5}
	b.SetCapture(0, frames)

	ins, _ := b.Ports()
	buf := ins[0].Buffer()
	for i, want := range frames {
		if buf[i] != want {
			t.Errorf("frame %d: want %f, got %f", i, want, buf[i])
		}
	}
}

func TestRunCycleMarksCaptureFinished(t *testing.T) {
	b := New(baseOptions())
	if err := b.RunCycleForWorker(); err != nil {
		t.Fatal(err)
	}
	ins, _ := b.Ports()
	for i, p := range ins {
		if !p.Ready() {
			t.Errorf("input %d: expected Ready after cycle", i)
		}
	}
}

func TestOutputMeterDBReflectsPlaybackContent(t *testing.T) {
	b := New(baseOptions())
	_, outs := b.Ports()
	outs[0].MarkFinished()
	buf := outs[0].Buffer()
	for i := range buf {
		buf[i] = 0.5
	}

	db := b.OutputMeterDB()
	if db[0] >= 0 || db[0] < -20 {
		t.Errorf("expected a mid-range dB reading for a half-scale peak, got %f", db[0])
	}
}

func TestCloseReachesClosedState(t *testing.T) {
	b := New(baseOptions())
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if b.state.State().String() != "closed" {
		t.Fatalf("expected closed state, got %v", b.state.State())
	}
}

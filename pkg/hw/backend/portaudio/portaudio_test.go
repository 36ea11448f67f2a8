package portaudio

import (
	"testing"

	"github.com/maolan-audio/engine/pkg/port"
)

func TestFloatBitsRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, -1, 0.5, 3.14159} {
		if got := floatFromBits(floatBits(v)); got != v {
			t.Errorf("round trip of %f: got %f", v, got)
		}
	}
}

func TestIntsToPortsDecodesInterleavedChannels(t *testing.T) {
	frames := 2
	l := port.New("l", frames)
	r := port.New("r", frames)
	samples := []int32{1 << 30, -(1 << 30), 1 << 29, -(1 << 29)}

	intsToPorts([]*port.Port{l, r}, frames, samples)

	if l.Buffer()[0] <= 0 {
		t.Error("expected left channel frame 0 to decode positive")
	}
	if r.Buffer()[0] >= 0 {
		t.Error("expected right channel frame 0 to decode negative")
	}
	if !l.Ready() || !r.Ready() {
		t.Error("expected both ports marked finished after decode")
	}
}

func TestPortsToIntsAppliesGainAndBalance(t *testing.T) {
	frames := 2
	l := port.New("l", frames)
	r := port.New("r", frames)
	l.MarkFinished()
	r.MarkFinished()
	for i := 0; i < frames; i++ {
		l.Buffer()[i] = 0.5
		r.Buffer()[i] = 0.5
	}
	dst := make([]int32, 4)

	portsToInts([]*port.Port{l, r}, frames, 1.0, -1.0, dst)

	if dst[0] == 0 {
		t.Error("expected hard-left balance to leave left channel non-zero")
	}
	if dst[1] != 0 {
		t.Errorf("expected hard-left balance to zero the right channel, got %d", dst[1])
	}
}

func TestAbsf(t *testing.T) {
	if absf(-2.5) != 2.5 {
		t.Error("expected absf to negate negative input")
	}
	if absf(2.5) != 2.5 {
		t.Error("expected absf to leave positive input unchanged")
	}
}

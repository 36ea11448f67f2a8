package hw

import (
	"testing"

	"github.com/maolan-audio/engine/pkg/codec"
	"github.com/maolan-audio/engine/pkg/port"
)

func TestFillPortsFromInterleaved(t *testing.T) {
	frames := 4
	ports := []*port.Port{port.New("l", frames), port.New("r", frames)}
	samples := []int32{100 << 16, 200 << 16, 101 << 16, 201 << 16, 102 << 16, 202 << 16, 103 << 16, 203 << 16}
	src := make([]byte, len(samples)*2)
	if err := codec.Encode(codec.FormatS16LE, 2, frames, samples, src); err != nil {
		t.Fatal(err)
	}

	if err := FillPortsFromInterleaved(ports, codec.FormatS16LE, frames, src); err != nil {
		t.Fatal(err)
	}
	if ports[0].Buffer()[0] == 0 {
		t.Error("expected left channel to be decoded to a non-zero sample")
	}
	if !ports[0].Ready() {
		t.Error("expected port to be marked finished after fill")
	}
}

func TestFillPortsFromInterleavedConnectedSkipsUnconnected(t *testing.T) {
	frames := 2
	l := port.New("l", frames)
	r := port.New("r", frames)
	other := port.New("listener", frames)
	port.Connect(l, other) // only l has a connection

	ports := []*port.Port{l, r}
	r.Buffer()[0] = 7 // sentinel: must survive since r is unconnected

	src := make([]byte, frames*2*2)
	for i := range src {
		src[i] = 0xFF
	}
	if err := FillPortsFromInterleavedConnected(ports, codec.FormatS16LE, frames, src); err != nil {
		t.Fatal(err)
	}
	if r.Buffer()[0] != 7 {
		t.Errorf("expected unconnected channel buffer left untouched, got %f", r.Buffer()[0])
	}
}

func TestWriteInterleavedFromPorts(t *testing.T) {
	frames := 4
	l := port.New("l", frames)
	r := port.New("r", frames)
	for i := 0; i < frames; i++ {
		l.Buffer()[i] = 0.5
		r.Buffer()[i] = -0.5
	}
	l.MarkFinished()
	r.MarkFinished()

	dst := make([]byte, frames*2*2)
	if err := WriteInterleavedFromPorts([]*port.Port{l, r}, codec.FormatS16LE, frames, 1.0, 0.0, false, dst); err != nil {
		t.Fatal(err)
	}
	allZero := true
	for _, b := range dst {
		if b != 0 {
			allZero = false
		}
	}
	if allZero {
		t.Error("expected non-silent encoded output")
	}
}

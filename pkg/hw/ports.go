package hw

import (
	"github.com/maolan-audio/engine/pkg/codec"
	"github.com/maolan-audio/engine/pkg/port"
)

// FillPortsFromInterleaved decodes an interleaved hardware capture
// buffer into one audio port per channel, writing every port.
// FillPortsFromInterleavedConnected is the variant that leaves a channel
// with no graph connections untouched (marked finished, buffer
// unmodified).
func FillPortsFromInterleaved(ports []*port.Port, format codec.Format, frames int, src []byte) error {
	channels := len(ports)
	samples := make([]int32, channels*frames)
	if err := codec.Decode(format, channels, frames, src, samples); err != nil {
		return err
	}
	writeSamplesToPorts(ports, frames, samples)
	return nil
}

// FillPortsFromInterleavedConnected is FillPortsFromInterleaved
// restricted to ports with at least one connection.
func FillPortsFromInterleavedConnected(ports []*port.Port, format codec.Format, frames int, src []byte) error {
	channels := len(ports)
	connected := make([]bool, channels)
	anyConnected := false
	for i, p := range ports {
		connected[i] = p.HasConnections()
		anyConnected = anyConnected || connected[i]
	}
	if !anyConnected {
		for _, p := range ports {
			p.MarkFinished()
		}
		return nil
	}

	samples := make([]int32, channels*frames)
	if err := codec.DecodeConnected(format, channels, frames, src, samples, connected); err != nil {
		return err
	}
	for ch, p := range ports {
		if !connected[ch] {
			p.MarkFinished()
			continue
		}
		buf := p.Buffer()
		for frame := 0; frame < frames && frame < len(buf); frame++ {
			buf[frame] = codec.Int32ToNormalized(samples[frame*channels+ch])
		}
		p.MarkFinished()
	}
	return nil
}

func writeSamplesToPorts(ports []*port.Port, frames int, samples []int32) {
	channels := len(ports)
	for ch, p := range ports {
		buf := p.Buffer()
		for frame := 0; frame < frames && frame < len(buf); frame++ {
			buf[frame] = codec.Int32ToNormalized(samples[frame*channels+ch])
		}
		p.MarkFinished()
	}
}

// WriteInterleavedFromPorts runs each port's Process, applies output
// gain and per-channel balance, then encodes the result into an
// interleaved hardware playback buffer. Ports with no connections are
// skipped (left at silence in dst) when connectedOnly is true.
func WriteInterleavedFromPorts(ports []*port.Port, format codec.Format, frames int, gain, balance float64, connectedOnly bool, dst []byte) error {
	channels := len(ports)
	samples := make([]int32, channels*frames)
	for ch, p := range ports {
		if connectedOnly && !p.HasConnections() {
			continue
		}
		p.Process()
		bg := ChannelBalanceGain(channels, ch, balance)
		buf := p.Buffer()
		for frame := 0; frame < frames && frame < len(buf); frame++ {
			sample := float32(float64(buf[frame]) * gain * bg)
			samples[frame*channels+ch] = codec.NormalizedToInt32(sample)
		}
	}
	return codec.Encode(format, channels, frames, samples, dst)
}

// Package gain implements a reference plugin.Instance: a simple
// channel-agnostic gain stage with soft clipping, used to exercise the track scheduler
// and plugin chain in tests without pulling in a real external
// processor.
package gain

import (
	"fmt"
	"math"

	"github.com/maolan-audio/engine/pkg/midi"
)

// MinDB is the floor below which gain is treated as silence.
const MinDB = -200.0

// LinearToDb converts a linear amplitude to decibels, flooring at MinDB.
func LinearToDb(linear float64) float64 {
	if linear <= 0 {
		return MinDB
	}
	return 20.0 * math.Log10(linear)
}

// DbToLinear converts decibels to a linear amplitude, returning 0 at or
// below MinDB.
func DbToLinear(db float64) float64 {
	if db <= MinDB {
		return 0
	}
	return math.Pow(10.0, db/20.0)
}

// Plugin is a channel-agnostic gain stage: it passes every input channel
// through to the matching output channel, scaled by GainDb and soft
// clipped to avoid hard digital overs.
type Plugin struct {
	name     string
	channels int
	GainDb   float64
}

// New creates a gain plugin with the given channel count (applied
// identically to inputs and outputs) and an initial gain in decibels.
func New(name string, channels int, gainDb float64) *Plugin {
	return &Plugin{name: name, channels: channels, GainDb: gainDb}
}

func (p *Plugin) Name() string         { return p.name }
func (p *Plugin) AudioInputs() int     { return p.channels }
func (p *Plugin) AudioOutputs() int    { return p.channels }
func (p *Plugin) MidiInputCount() int  { return 0 }
func (p *Plugin) MidiOutputCount() int { return 0 }

func (p *Plugin) Process(frames int, audioIn, audioOut [][]float32, midiIn []midi.RawEvent) ([]midi.RawEvent, error) {
	if len(audioIn) != p.channels || len(audioOut) != p.channels {
		return nil, fmt.Errorf("gain %q: expected %d channels, got in=%d out=%d", p.name, p.channels, len(audioIn), len(audioOut))
	}
	linear := float32(DbToLinear(p.GainDb))
	for ch := 0; ch < p.channels; ch++ {
		in := audioIn[ch]
		out := audioOut[ch]
		n := frames
		if len(in) < n {
			n = len(in)
		}
		if len(out) < n {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			out[i] = softClip(in[i] * linear)
		}
	}
	return nil, nil
}

func (p *Plugin) Reset() {}

// softClip is a tanh-based saturator: it behaves as identity near zero
// and flattens toward +/-1 beyond it, instead of hard-clipping.
func softClip(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

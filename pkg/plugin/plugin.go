// Package plugin defines the contract the core engine uses to drive an
// external audio/MIDI processor. The engine never inspects a plugin's
// internals; it only calls Instance methods in the track scheduler's
// per-cycle readiness loop.
package plugin

import "github.com/maolan-audio/engine/pkg/midi"

// Instance is an opaque collaborator owned by a Track. The engine calls
// AudioInputs/AudioOutputs to learn how many audio ports to create for
// the plugin when it is loaded, and calls Process once per cycle when
// the plugin's declared inputs are ready.
type Instance interface {
	// Name identifies the instance for logging and error messages.
	Name() string

	// AudioInputs and AudioOutputs report the plugin's channel counts.
	AudioInputs() int
	AudioOutputs() int

	// MidiInputCount and MidiOutputCount report how many MIDI ports the
	// plugin exposes; most plugins have at most one of each.
	MidiInputCount() int
	MidiOutputCount() int

	// Process runs frames samples of audio (one []float32 per input/output
	// channel, outer index is channel) and any queued MIDI
	// input events, producing output audio and MIDI events.
	Process(frames int, audioIn, audioOut [][]float32, midiIn []midi.RawEvent) ([]midi.RawEvent, error)

	// Reset clears any internal state (filter memory, envelope phase) so
	// the plugin behaves as if freshly loaded.
	Reset()
}

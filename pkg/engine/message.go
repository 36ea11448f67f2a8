// Package engine coordinates the hardware worker and the track scheduler:
// a worker goroutine owns the duplex cycle's control flow and talks to an
// assist goroutine that actually drives the device, while a scheduler
// goroutine runs the track graph once per cycle and exchanges MIDI and
// completion messages with the worker over channels.
package engine

import "github.com/maolan-audio/engine/pkg/midi"

// Message is the engine<->worker channel protocol. Exactly one of the
// typed fields is meaningful, selected by Kind.
type Message struct {
	Kind MessageKind

	// HwMidiOutEvents / HwMidiEvents payload.
	MidiEvents []midi.RawEvent
}

type MessageKind int

const (
	// Quit begins orderly shutdown; valid in either direction.
	Quit MessageKind = iota
	// TracksFinished: engine -> worker. The graph is done for this
	// cycle; complete the hardware cycle.
	TracksFinished
	// HwMidiOutEvents: engine -> worker. MIDI bytes to deliver this or
	// next cycle.
	HwMidiOutEvents
	// HwMidiEvents: worker -> engine. MIDI bytes captured this cycle.
	HwMidiEvents
	// HwFinished: worker -> engine. Hardware cycle complete.
	HwFinished
)

func QuitMessage() Message { return Message{Kind: Quit} }

func TracksFinishedMessage() Message { return Message{Kind: TracksFinished} }

func HwMidiOutEventsMessage(events []midi.RawEvent) Message {
	return Message{Kind: HwMidiOutEvents, MidiEvents: events}
}

func HwMidiEventsMessage(events []midi.RawEvent) Message {
	return Message{Kind: HwMidiEvents, MidiEvents: events}
}

func HwFinishedMessage() Message { return Message{Kind: HwFinished} }

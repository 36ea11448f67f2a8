package engine

import (
	"testing"

	"github.com/maolan-audio/engine/pkg/midi"
)

func TestHwMidiOutEventsMessageCarriesEvents(t *testing.T) {
	events := []midi.RawEvent{midi.NewRawEvent("dev0", 0, []byte{0x90, 60, 100})}
	msg := HwMidiOutEventsMessage(events)
	if msg.Kind != HwMidiOutEvents {
		t.Errorf("expected kind HwMidiOutEvents, got %v", msg.Kind)
	}
	if len(msg.MidiEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(msg.MidiEvents))
	}
}

func TestQuitMessageHasNoPayload(t *testing.T) {
	msg := QuitMessage()
	if msg.Kind != Quit {
		t.Errorf("expected kind Quit, got %v", msg.Kind)
	}
	if msg.MidiEvents != nil {
		t.Error("expected no MIDI payload on Quit")
	}
}

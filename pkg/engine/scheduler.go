package engine

import (
	"github.com/charmbracelet/log"

	"github.com/maolan-audio/engine/pkg/midi"
	"github.com/maolan-audio/engine/pkg/track"
)

// Router decides which tracks should receive a captured MIDI event. Until
// SetRouter installs one, every event is broadcast to every track, which
// is the sensible default for a single-device setup.
type Router func(event midi.RawEvent, tracks []*track.Track) []*track.Track

// Scheduler is the engine-side half of the worker/engine pair: it runs
// the track graph once per cycle, forwards captured MIDI to whichever
// tracks the Router selects, and drives the cycle rhythm by replying to
// the worker's HwFinished with TracksFinished.
type Scheduler struct {
	tracks []*track.Track
	frames int

	rx  <-chan Message
	tx  chan<- Message
	log *log.Logger

	route Router
}

func NewScheduler(tracks []*track.Track, frames int, rx <-chan Message, tx chan<- Message, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		tracks: tracks,
		frames: frames,
		rx:     rx,
		tx:     tx,
		log:    logger.With("component", "engine.scheduler"),
		route:  broadcastToAll,
	}
}

// SetRouter overrides the default broadcast-to-all MIDI routing policy.
func (s *Scheduler) SetRouter(r Router) {
	if r != nil {
		s.route = r
	}
}

// Run drives the first cycle immediately (there is no prior HwFinished to
// wait for at startup) and then alternates: wait for a worker message,
// react, repeat, until Quit or rx closes.
func (s *Scheduler) Run() {
	s.runCycle()

	for msg := range s.rx {
		switch msg.Kind {
		case Quit:
			return
		case HwFinished:
			s.runCycle()
		case HwMidiEvents:
			s.dispatchMidi(msg.MidiEvents)
		}
	}
}

func (s *Scheduler) runCycle() {
	var midiOut []midi.RawEvent
	for _, t := range s.tracks {
		out, err := t.Process(s.frames)
		if err != nil {
			s.log.Error("track process failed", "track", t.Name, "err", err)
		}
		if len(out) > 0 {
			midiOut = append(midiOut, out...)
		}
	}
	if len(midiOut) > 0 {
		s.tx <- HwMidiOutEventsMessage(midiOut)
	}
	s.tx <- TracksFinishedMessage()
}

func (s *Scheduler) dispatchMidi(events []midi.RawEvent) {
	for _, ev := range events {
		targets := s.route(ev, s.tracks)
		for _, t := range targets {
			t.QueueMidiIn([]midi.RawEvent{ev})
		}
	}
}

func broadcastToAll(_ midi.RawEvent, tracks []*track.Track) []*track.Track {
	return tracks
}

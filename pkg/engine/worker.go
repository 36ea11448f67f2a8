package engine

import (
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/maolan-audio/engine/internal/config"
	"github.com/maolan-audio/engine/pkg/midi"
	"github.com/maolan-audio/engine/pkg/rtpriority"
)

const (
	rtPriorityWorker = 18
	rtPriorityAssist = 12
)

// MidiHub is the subset of pkg/midi.Hub the worker needs: drain captured
// events, flush pending output events. Abstracted so tests can substitute
// a fake without touching real devices.
type MidiHub interface {
	ReadEventsInto(out *[]midi.RawEvent)
	WriteEvents(events []midi.RawEvent)
}

// Worker owns one backend's cycle control flow: it receives
// engine-originated messages over rx, drives the assist goroutine once
// per TracksFinished, and reports completion and captured MIDI back over
// tx. Label and the two thread names are used only for logging and the
// backend-specific autonomous-assist environment variable.
type Worker struct {
	driver  WorkerDriver
	midiHub MidiHub
	rx      <-chan Message
	tx      chan<- Message
	log     *log.Logger

	label             string
	workerThreadName  string
	assistThreadName  string
	cycleFrames       uint32

	pendingMidiOut       []midi.RawEvent
	pendingMidiOutSorted bool
	midiInEvents         []midi.RawEvent
}

func NewWorker(label string, driver WorkerDriver, hub MidiHub, rx <-chan Message, tx chan<- Message, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		driver:               driver,
		midiHub:              hub,
		rx:                   rx,
		tx:                   tx,
		log:                  logger.With("component", "engine.worker", "backend", label),
		label:                label,
		workerThreadName:     label + "-worker",
		assistThreadName:     label + "-assist",
		cycleFrames:          uint32(driver.CycleSamples()),
		pendingMidiOutSorted: true,
		midiInEvents:         make([]midi.RawEvent, 0, 64),
	}
}

// Run blocks processing messages until it receives Quit or rx is closed.
// It owns the assist goroutine's lifetime: Run always stops it before
// returning.
func (w *Worker) Run() {
	if err := rtpriority.LockMemory(); err != nil {
		w.log.Warn("worker memory lock not enabled", "err", err)
	}
	if err := rtpriority.Apply(w.workerThreadName, rtPriorityWorker); err != nil {
		w.log.Warn("worker realtime priority not enabled", "err", err)
	}

	state := newAssistState()
	assistDone := make(chan struct{})
	go w.runAssist(state, assistDone)
	defer func() {
		state.stop()
		<-assistDone
	}()

	for msg := range w.rx {
		switch msg.Kind {
		case Quit:
			return
		case TracksFinished:
			w.handleTracksFinished(state)
		case HwMidiOutEvents:
			w.pendingMidiOut = append(w.pendingMidiOut, msg.MidiEvents...)
			w.pendingMidiOutSorted = false
		}
	}
}

func (w *Worker) handleTracksFinished(state *assistState) {
	w.midiHub.ReadEventsInto(&w.midiInEvents)
	spreadHwEventFrames(w.midiInEvents, w.cycleFrames)
	if len(w.midiInEvents) > 0 {
		out := w.midiInEvents
		w.midiInEvents = make([]midi.RawEvent, 0, cap(out))
		w.tx <- HwMidiEventsMessage(out)
	}

	if len(w.pendingMidiOut) > 0 {
		if !w.pendingMidiOutSorted {
			sort.SliceStable(w.pendingMidiOut, func(i, j int) bool {
				a, b := w.pendingMidiOut[i], w.pendingMidiOut[j]
				if a.Frame != b.Frame {
					return a.Frame < b.Frame
				}
				return a.Device < b.Device
			})
			w.pendingMidiOutSorted = true
		}
		w.midiHub.WriteEvents(w.pendingMidiOut)
		w.pendingMidiOut = w.pendingMidiOut[:0]
	}

	if err := state.requestCycle(); err != nil {
		w.log.Error("assist cycle error", "err", err)
	}
	w.tx <- HwFinishedMessage()
}

func (w *Worker) runAssist(state *assistState, done chan<- struct{}) {
	defer close(done)

	if err := rtpriority.Apply(w.assistThreadName, rtPriorityAssist); err != nil {
		w.log.Warn("assist realtime priority not enabled", "err", err)
	}

	profile := config.EnvFlag(config.HwProfileEnv)
	autonomous := config.EnvFlag(config.AssistAutonomousEnv(w.label))

	var profiler *assistProfiler
	if profile {
		profiler = newAssistProfiler()
		w.log.Error("profile enabled", "cycle_samples", w.driver.CycleSamples(), "sample_rate", w.driver.SampleRate())
	}

	for {
		state.mu.Lock()
		shutdown := state.shutdown
		hasRequest := state.requestSeq > state.doneSeq
		target := state.requestSeq
		state.mu.Unlock()

		if shutdown {
			return
		}

		if hasRequest {
			started := time.Now()
			err := w.driver.RunCycleForWorker()
			if profiler != nil {
				profiler.cycleCount++
				if err != nil {
					profiler.cycleErrCount++
				}
				profiler.cycleTime += time.Since(started)
				profiler.maybeReport(w.log, w.driver.CycleSamples(), w.driver.SampleRate(), w.label)
			}
			state.mu.Lock()
			if target > state.doneSeq {
				state.doneSeq = target
			}
			state.lastErr = err
			state.cond.Broadcast()
			state.mu.Unlock()
			continue
		}

		if !autonomous {
			state.mu.Lock()
			if state.shutdown {
				state.mu.Unlock()
				return
			}
			waitStarted := time.Now()
			state.cond.Wait()
			state.mu.Unlock()
			if profiler != nil {
				profiler.waitCount++
				profiler.waitTime += time.Since(waitStarted)
			}
			continue
		}

		started := time.Now()
		didWork, err := w.driver.RunAssistStepForWorker()
		if err != nil {
			if profiler != nil {
				profiler.stepErrCount++
			}
			state.mu.Lock()
			state.lastErr = err
			state.cond.Broadcast()
			state.mu.Unlock()
		}
		if profiler != nil {
			profiler.stepCount++
			if didWork {
				profiler.stepWorkCount++
			}
			profiler.stepTime += time.Since(started)
			profiler.maybeReport(w.log, w.driver.CycleSamples(), w.driver.SampleRate(), w.label)
		}
		if !didWork {
			state.mu.Lock()
			if state.shutdown {
				state.mu.Unlock()
				return
			}
			waitStarted := time.Now()
			state.cond.Wait()
			state.mu.Unlock()
			if profiler != nil {
				profiler.waitCount++
				profiler.waitTime += time.Since(waitStarted)
			}
		}
	}
}

// spreadHwEventFrames rewrites each event's frame offset to spread them
// uniformly within [0, frames-1]: event i of n lands on frame
// i*(frames-1)/n, so the first event is at 0 and the last falls short of
// frames-1. This is done because the hub only knows arrival order
// within the cycle, not the exact sub-frame timing.
func spreadHwEventFrames(events []midi.RawEvent, frames uint32) {
	n := uint32(len(events))
	if n <= 1 || frames <= 1 {
		return
	}
	for i := range events {
		pos := uint32(i)
		events[i].Frame = (pos * (frames - 1)) / n
	}
}

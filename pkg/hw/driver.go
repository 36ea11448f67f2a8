package hw

import (
	"fmt"
	"sync"
)

// State is the duplex driver's lifecycle state machine.
type State int

const (
	StateOpening State = iota
	StateNegotiated
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateNegotiated:
		return "negotiated"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transitions lists every state each state may legally move to.
var transitions = map[State][]State{
	StateOpening:    {StateNegotiated, StateClosed},
	StateNegotiated: {StateRunning, StateClosed},
	StateRunning:    {StateDraining, StateClosed},
	StateDraining:   {StateClosed},
	StateClosed:     {},
}

// ErrInvalidTransition is returned when a driver state change isn't one
// of the states listed in transitions.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("hw: invalid state transition %s -> %s", e.From, e.To)
}

// StateMachine guards a Driver's lifecycle transitions with a mutex so
// concurrent callers (the RT worker thread and a control-plane command)
// never race on the current state.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateOpening}
}

func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to `to`, returning ErrInvalidTransition if that's not
// a legal next state from the current one.
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return &ErrInvalidTransition{From: m.state, To: to}
}

// WorkerDriver is what pkg/engine's worker drives once per cycle and,
// between cycles, drives in small non-blocking steps on the assist
// thread.
type WorkerDriver interface {
	CycleSamples() int64
	SampleRate() uint32
	RunCycleForWorker() error
	RunAssistStepForWorker() (didWork bool, err error)
}

// Device exposes the channel/port-level surface of a duplex device: its
// channel counts, the audio ports the track graph connects to, output
// gain/balance control, metering and reported latency.
type Device interface {
	InputChannels() int
	OutputChannels() int
	SampleRate() uint32
	CycleSamples() int64
	SetOutputGainBalance(gain, balance float64)
	OutputMeterDB() []float64
	LatencyRanges() (input, output LatencyRange)
}

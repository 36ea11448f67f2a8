// Package null provides a headless duplex backend for tests and CI: it
// implements the same hw.WorkerDriver and hw.Device surface as a real
// sound card but never blocks on hardware I/O: RunCycleForWorker runs
// one cycle and returns at once, with no pacing against the frame clock,
// so cycles run as fast as the caller drives them. Its capture input is
// whatever a test installs via SetCapture rather than a live microphone.
package null

import (
	"sync"

	"github.com/maolan-audio/engine/pkg/clock"
	"github.com/maolan-audio/engine/pkg/hw"
	"github.com/maolan-audio/engine/pkg/port"
)

// Options configures a Backend's channel layout and timing.
type Options struct {
	InputChannels   int
	OutputChannels  int
	SampleRate      uint32
	FramesPerBuffer int
	NPeriods        int
	SyncMode        bool
}

// Backend is a silent duplex device: capture ports read whatever was
// last installed with SetCapture (silence by default), playback ports
// are summed and discarded, and OutputMeterDB still reports real peaks
// so metering logic can be exercised without hardware.
type Backend struct {
	opts Options

	state *hw.StateMachine
	clock *clock.FrameClock
	sync  *hw.DuplexSync

	ins  []*port.Port
	outs []*port.Port

	mu        sync.Mutex
	gain      float64
	balance   float64
	processFn func()
}

// New builds an unopened Backend. Call Start to move it to Running.
func New(opts Options) *Backend {
	b := &Backend{
		opts:  opts,
		state: hw.NewStateMachine(),
		clock: clock.New(opts.SampleRate),
		gain:  1.0,
	}
	b.sync = hw.NewDuplexSync(opts.SampleRate, opts.FramesPerBuffer)
	b.sync.PlaybackPrefillFrames = hw.PlaybackPrefillFrames(int64(opts.FramesPerBuffer), opts.NPeriods, opts.SyncMode)

	b.ins = make([]*port.Port, opts.InputChannels)
	for i := range b.ins {
		b.ins[i] = port.New("in", opts.FramesPerBuffer)
	}
	b.outs = make([]*port.Port, opts.OutputChannels)
	for i := range b.outs {
		b.outs[i] = port.New("out", opts.FramesPerBuffer)
	}
	_ = b.state.Transition(hw.StateNegotiated)
	return b
}

// SetProcessFn registers the callback the engine's scheduler runs once
// per cycle, between capture becoming available and playback being read.
func (b *Backend) SetProcessFn(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processFn = fn
}

// SetCapture writes frames of silence-replacement data into the given
// input channel's port ahead of the next RunCycleForWorker call, letting
// a test drive the engine with deterministic input instead of silence.
func (b *Backend) SetCapture(channel int, frames []float32) {
	if channel < 0 || channel >= len(b.ins) {
		return
	}
	buf := b.ins[channel].Buffer()
	n := len(frames)
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, frames[:n])
}

// Start transitions to Running.
func (b *Backend) Start() error {
	return b.state.Transition(hw.StateRunning)
}

// Close drains and transitions to Closed.
func (b *Backend) Close() error {
	_ = b.state.Transition(hw.StateDraining)
	return b.state.Transition(hw.StateClosed)
}

// Ports returns the capture and playback port sets.
func (b *Backend) Ports() (ins, outs []*port.Port) {
	return b.ins, b.outs
}

func (b *Backend) CycleSamples() int64 { return int64(b.opts.FramesPerBuffer) }
func (b *Backend) SampleRate() uint32  { return b.opts.SampleRate }
func (b *Backend) InputChannels() int  { return b.opts.InputChannels }
func (b *Backend) OutputChannels() int { return b.opts.OutputChannels }

// RunCycleForWorker marks every capture port finished (so downstream
// readiness checks pass on whatever SetCapture last wrote, or silence),
// runs the process callback, then runs every playback port's Process so
// its buffer reflects the cycle's output for OutputMeterDB or assertions.
func (b *Backend) RunCycleForWorker() error {
	for _, p := range b.ins {
		p.MarkFinished()
	}
	b.mu.Lock()
	fn := b.processFn
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
	for _, p := range b.outs {
		p.Process()
	}
	return nil
}

// RunAssistStepForWorker never has idle work: there is no hardware to
// poll between cycles.
func (b *Backend) RunAssistStepForWorker() (bool, error) {
	return false, nil
}

// SetOutputGainBalance implements hw.Device.
func (b *Backend) SetOutputGainBalance(gain, balance float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gain, b.balance = gain, balance
}

// OutputMeterDB implements hw.Device, reporting each output port's
// current peak scaled by the last-set gain.
func (b *Backend) OutputMeterDB() []float64 {
	b.mu.Lock()
	gain := b.gain
	b.mu.Unlock()

	peaks := make([]float64, len(b.outs))
	for i, p := range b.outs {
		var peak float32
		for _, s := range p.Buffer() {
			if v := s; v < 0 {
				v = -v
				if v > peak {
					peak = v
				}
			} else if v > peak {
				peak = v
			}
		}
		peaks[i] = float64(peak)
	}
	return hw.OutputMeterDB(peaks, gain)
}

// LatencyRanges implements hw.Device.
func (b *Backend) LatencyRanges() (input, output hw.LatencyRange) {
	return hw.LatencyRanges(b.CycleSamples(), b.opts.NPeriods, b.opts.SyncMode, 0, 0)
}

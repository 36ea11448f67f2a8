// Package portaudio wires a real duplex sound card into the engine using
// github.com/gordonklaus/portaudio's blocking Read/Write stream API: one
// combined input+output stream, driven by a dedicated goroutine that calls
// Read then Write once per cycle and folds the result into a
// hw.DuplexChannel for drift correction.
package portaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/maolan-audio/engine/pkg/clock"
	"github.com/maolan-audio/engine/pkg/codec"
	"github.com/maolan-audio/engine/pkg/hw"
	"github.com/maolan-audio/engine/pkg/port"
)

// Options configures which devices and format a Backend opens.
type Options struct {
	InputDeviceIndex  int // -1 selects the host default
	OutputDeviceIndex int
	InputChannels     int
	OutputChannels    int
	SampleRate        float64
	FramesPerBuffer   int
	Format            codec.Format
	NPeriods          int
	SyncMode          bool
}

// Backend is a hw.WorkerDriver and hw.Device backed by a live PortAudio
// duplex stream.
type Backend struct {
	opts Options
	log  *log.Logger

	stream *portaudio.Stream
	inBuf  []int32
	outBuf []int32

	state *hw.StateMachine

	ins  []*port.Port
	outs []*port.Port

	sync    *hw.DuplexSync
	channel *hw.DuplexChannel
	clock   *clock.FrameClock

	gain    atomic.Uint64 // math.Float64bits
	balance atomic.Uint64

	processFn func()

	mu      sync.Mutex
	running bool
}

// SetProcessFn registers the callback that runs the track graph for one
// cycle. It fires between decode and encode, once capture has been
// written into the input ports and before the output ports are read back
// for playback, mirroring a single real-time duplex pass: capture in,
// process, playback out.
func (b *Backend) SetProcessFn(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processFn = fn
}

// Open negotiates and opens (but does not start) a duplex stream matching
// opts, registering it in the process-wide DuplexSync registry keyed by
// device path so multiple Backends on the same hardware share drift state.
func Open(path string, opts Options, logger *log.Logger) (*Backend, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("portaudio: FramesPerBuffer must be positive")
	}
	if !codec.Supported(opts.Format) {
		return nil, fmt.Errorf("portaudio: unsupported sample format %v", opts.Format)
	}

	b := &Backend{opts: opts, log: logger, state: hw.NewStateMachine()}

	inputDev, err := resolveInput(opts.InputDeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("portaudio: resolve input device: %w", err)
	}
	outputDev, err := resolveOutput(opts.OutputDeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("portaudio: resolve output device: %w", err)
	}

	b.inBuf = make([]int32, opts.FramesPerBuffer*opts.InputChannels)
	b.outBuf = make([]int32, opts.FramesPerBuffer*opts.OutputChannels)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDev,
			Channels: opts.InputChannels,
			Latency:  inputDev.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: opts.OutputChannels,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      opts.SampleRate,
		FramesPerBuffer: opts.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, b.inBuf, b.outBuf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	b.stream = stream

	if err := b.state.Transition(hw.StateNegotiated); err != nil {
		stream.Close()
		return nil, err
	}

	sampleRate := uint32(opts.SampleRate)
	b.clock = clock.New(sampleRate)
	b.sync = hw.GetOrCreateDuplexSync(path, sampleRate, opts.FramesPerBuffer)
	b.sync.Correction.SetDriftLimits(-64, 64)
	b.sync.Correction.SetLossLimits(-4096, 4096)
	b.sync.PlaybackPrefillFrames = hw.PlaybackPrefillFrames(int64(opts.FramesPerBuffer), opts.NPeriods, opts.SyncMode)

	bytesPerSample, _ := codec.BytesPerSample(opts.Format)
	captureBuf := hw.NewDoubleBuffer(hw.DirectionCapture, opts.FramesPerBuffer, opts.InputChannels*bytesPerSample)
	playbackBuf := hw.NewDoubleBuffer(hw.DirectionPlayback, opts.FramesPerBuffer, opts.OutputChannels*bytesPerSample)

	b.ins = make([]*port.Port, opts.InputChannels)
	for i := range b.ins {
		b.ins[i] = port.New(fmt.Sprintf("in%d", i), opts.FramesPerBuffer)
	}
	b.outs = make([]*port.Port, opts.OutputChannels)
	for i := range b.outs {
		b.outs[i] = port.New(fmt.Sprintf("out%d", i), opts.FramesPerBuffer)
	}

	b.gain.Store(floatBits(1.0))

	// HwAvailable and EnhancedXrunGap are left unset: a blocking
	// Read/Write stream has no ring-buffer position to poll and
	// portaudio-go surfaces no host-time discontinuity, so both read as
	// zero.
	b.channel = hw.NewDuplexChannel(b.clock, b.sync, captureBuf, playbackBuf, hw.CycleFuncs{
		DecodeCapture:  b.decodeCapture,
		EncodePlayback: b.encodePlayback,
	})

	return b, nil
}

func resolveInput(idx int) (*portaudio.DeviceInfo, error) {
	if idx < 0 {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if idx >= len(devices) {
		return nil, fmt.Errorf("input device index %d out of range", idx)
	}
	return devices[idx], nil
}

func resolveOutput(idx int) (*portaudio.DeviceInfo, error) {
	if idx < 0 {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if idx >= len(devices) {
		return nil, fmt.Errorf("output device index %d out of range", idx)
	}
	return devices[idx], nil
}

// Start transitions the backend to Running and starts the PortAudio
// stream. RunCycleForWorker drives it from there.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.state.Transition(hw.StateRunning); err != nil {
		return err
	}
	if err := b.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	b.running = true
	return nil
}

// Close drains and closes the stream, releasing the PortAudio handle.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		_ = b.state.Transition(hw.StateDraining)
		if err := b.stream.Stop(); err != nil {
			b.log.Warn("portaudio: stop failed", "err", err)
		}
		b.running = false
	}
	_ = b.state.Transition(hw.StateClosed)
	return b.stream.Close()
}

// Ports returns the audio ports the engine's track graph connects capture
// (ins) and playback (outs) to.
func (b *Backend) Ports() (ins, outs []*port.Port) {
	return b.ins, b.outs
}

// CycleSamples implements hw.WorkerDriver.
func (b *Backend) CycleSamples() int64 { return int64(b.opts.FramesPerBuffer) }

// SampleRate implements hw.WorkerDriver and hw.Device.
func (b *Backend) SampleRate() uint32 { return uint32(b.opts.SampleRate) }

// InputChannels implements hw.Device.
func (b *Backend) InputChannels() int { return b.opts.InputChannels }

// OutputChannels implements hw.Device.
func (b *Backend) OutputChannels() int { return b.opts.OutputChannels }

// RunCycleForWorker reads one buffer of input, writes one buffer of
// output, and runs the duplex channel's drift-corrected cycle bookkeeping
// around that I/O.
func (b *Backend) RunCycleForWorker() error {
	if err := b.stream.Read(); err != nil {
		return fmt.Errorf("portaudio: read: %w", err)
	}
	b.channel.RunCycle(b.CycleSamples())
	if err := b.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: write: %w", err)
	}
	return nil
}

// RunAssistStepForWorker has nothing useful to do between cycles for a
// blocking-stream backend: Read already blocks until the card is ready,
// so there is no idle time to fill with non-blocking progress.
func (b *Backend) RunAssistStepForWorker() (bool, error) {
	return false, nil
}

// decodeCapture ignores the DoubleBuffer's byte scratch space (PortAudio
// already delivered native int32 samples into b.inBuf via stream.Read)
// and runs the registered process callback once capture has landed in
// the input ports, so track processing sees this cycle's audio before
// encodePlayback reads the result back out. On an xrun cycle, silence
// is true and the real capture samples are dropped in favor of silence,
// per the duplex channel's recovery contract.
func (b *Backend) decodeCapture(_ []byte, silence bool) {
	if silence {
		silencePorts(b.ins)
	} else {
		intsToPorts(b.ins, b.opts.FramesPerBuffer, b.inBuf)
	}
	if b.processFn != nil {
		b.processFn()
	}
}

// silencePorts zeroes every port's buffer and marks it finished, used in
// place of intsToPorts when a detected xrun means this cycle's capture
// must not reach the track graph.
func silencePorts(ports []*port.Port) {
	for _, p := range ports {
		buf := p.Buffer()
		for i := range buf {
			buf[i] = 0
		}
		p.MarkFinished()
	}
}

func (b *Backend) encodePlayback(_ []byte) {
	gain := floatFromBits(b.gain.Load())
	balance := floatFromBits(b.balance.Load())
	portsToInts(b.outs, b.opts.FramesPerBuffer, gain, balance, b.outBuf)
}

// intsToPorts decodes an interleaved native int32 capture buffer straight
// into per-channel ports, skipping the byte-oriented codec entirely since
// PortAudio already handed over full-scale int32 samples.
func intsToPorts(ports []*port.Port, frames int, samples []int32) {
	channels := len(ports)
	for ch, p := range ports {
		buf := p.Buffer()
		for frame := 0; frame < frames && frame < len(buf); frame++ {
			buf[frame] = codec.Int32ToNormalized(samples[frame*channels+ch])
		}
		p.MarkFinished()
	}
}

// portsToInts runs each port's Process, applies gain/balance, and packs
// the result back into an interleaved native int32 playback buffer.
func portsToInts(ports []*port.Port, frames int, gain, balance float64, dst []int32) {
	channels := len(ports)
	for ch, p := range ports {
		p.Process()
		bg := hw.ChannelBalanceGain(channels, ch, balance)
		buf := p.Buffer()
		for frame := 0; frame < frames && frame < len(buf); frame++ {
			sample := float32(float64(buf[frame]) * gain * bg)
			dst[frame*channels+ch] = codec.NormalizedToInt32(sample)
		}
	}
}

// SetOutputGainBalance implements hw.Device.
func (b *Backend) SetOutputGainBalance(gain, balance float64) {
	b.gain.Store(floatBits(gain))
	b.balance.Store(floatBits(balance))
}

// OutputMeterDB implements hw.Device, reporting each output port's peak
// from the last completed cycle.
func (b *Backend) OutputMeterDB() []float64 {
	peaks := make([]float64, len(b.outs))
	for i, p := range b.outs {
		var peak float32
		for _, s := range p.Buffer() {
			if abs := absf(s); abs > peak {
				peak = abs
			}
		}
		peaks[i] = float64(peak)
	}
	return hw.OutputMeterDB(peaks, floatFromBits(b.gain.Load()))
}

// LatencyRanges implements hw.Device.
func (b *Backend) LatencyRanges() (input, output hw.LatencyRange) {
	return hw.LatencyRanges(b.CycleSamples(), b.opts.NPeriods, b.opts.SyncMode, 0, 0)
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

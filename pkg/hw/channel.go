package hw

import (
	"sync"

	"github.com/maolan-audio/engine/pkg/clock"
)

// CycleFuncs are the backend-specific halves of one duplex cycle: decode
// whatever the hardware captured this cycle, and encode whatever the
// engine produced for playback. DuplexChannel owns the timing and drift
// correction around these; the backend owns the actual device I/O.
type CycleFuncs struct {
	// DecodeCapture receives the capture double-buffer's active slot.
	// silence is true on an xrun cycle, when the caller must treat this
	// cycle's capture as lost rather than real hardware input.
	DecodeCapture func(buf []byte, silence bool)

	EncodePlayback func(buf []byte)

	// HwAvailable reports how many frames the hardware currently holds
	// buffered, feeding the safe-wakeup cap below. Backends with no
	// ring-buffer position to poll (a blocking read/write stream, or a
	// headless backend) may leave this nil; it then reads as 0, which
	// leaves SafeWakeup's ceiling at its latest possible frame.
	HwAvailable func() int64

	// EnhancedXrunGap reports a device-reported host-time or
	// sample-time discontinuity, in frames, independent of the
	// buffer-position detector xrunGap also runs. Backends with no
	// such telemetry may leave this nil.
	EnhancedXrunGap func() int64
}

// DuplexChannel runs one capture+playback cycle at a time, tracking each
// direction's sync state and folding drift into the shared DuplexSync so
// playback timing follows capture instead of free-running independently.
type DuplexChannel struct {
	mu sync.Mutex

	Clock          *clock.FrameClock
	Sync           *DuplexSync
	CaptureState   *ChannelState
	PlaybackState  *ChannelState
	CaptureBuffer  *DoubleBuffer
	PlaybackBuffer *DoubleBuffer
	CycleEnd       int64

	// BufferFrames is the device ring-buffer size used by the
	// safe-wakeup cap; defaults to the playback buffer's capacity.
	BufferFrames int64
	// XrunCount is the running count of detected gaps, surfaced as
	// telemetry rather than to a user.
	XrunCount int64
	// CaptureDropout/PlaybackDropout hold the most recent
	// EstimatedDropout reading for each direction: telemetry for
	// whoever services this channel's worker loop.
	CaptureDropout  int64
	PlaybackDropout int64

	funcs CycleFuncs
}

func NewDuplexChannel(clk *clock.FrameClock, ds *DuplexSync, captureBuf, playbackBuf *DoubleBuffer, funcs CycleFuncs) *DuplexChannel {
	return &DuplexChannel{
		Clock:          clk,
		Sync:           ds,
		CaptureState:   NewChannelState(),
		PlaybackState:  NewChannelState(),
		CaptureBuffer:  captureBuf,
		PlaybackBuffer: playbackBuf,
		BufferFrames:   playbackBuf.Capacity(),
		funcs:          funcs,
	}
}

// RunCycle advances the cycle by `frames`, running the full duplex
// contract: detect and recover from an xrun (the hardware having moved
// further than either buffer's last known end), drain and decode
// capture, drain and encode playback with the current drift correction
// and prefill applied, and record progress on both channel states.
func (c *DuplexChannel) RunCycle(frames int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stepping := c.Clock.Stepping()
	now := c.Clock.Now()
	c.CycleEnd += frames

	silence := false
	if gap := c.xrunGap(now); gap > 0 {
		silence = true
		c.XrunCount++
		c.CycleEnd += gap
		c.CaptureState.MarkLoss(gap)
		c.PlaybackState.MarkLoss(gap)
		c.CaptureBuffer.ResetBuffers(c.CycleEnd)
		c.PlaybackBuffer.ResetBuffers(c.CycleEnd)
	} else {
		c.CaptureBuffer.MarkFinished(c.CycleEnd)
	}

	c.drainCapture()
	c.funcs.DecodeCapture(c.CaptureBuffer.Bytes(), silence)
	now = c.Clock.Now()
	c.CaptureState.MarkProgress(frames, now, stepping)
	c.CaptureDropout = c.CaptureState.EstimatedDropout(c.hwAvailable(), c.BufferFrames)
	c.Sync.PublishBalance(true, c.CaptureState.Balance)

	target := c.CycleEnd + c.Sync.PlaybackPrefillFrames
	correction := c.Sync.Correction.Correct(c.CaptureState.Balance, c.PlaybackState.Balance)
	if !silence {
		c.PlaybackBuffer.MarkFinished(target + correction)
	}

	c.drainPlayback(target)
	c.funcs.EncodePlayback(c.PlaybackBuffer.Bytes())
	now = c.Clock.Now()
	c.PlaybackState.MarkProgress(frames, now, stepping)
	c.PlaybackDropout = c.PlaybackState.EstimatedDropout(c.hwAvailable(), c.BufferFrames)
	c.Sync.PublishBalance(false, c.PlaybackState.Balance)
}

// drainCapture loops clock.now -> sleep_until next wakeup until the
// capture buffer's active slot is due, per the cycle's drain contract.
func (c *DuplexChannel) drainCapture() {
	stepping := c.Clock.Stepping()
	for !c.CaptureBuffer.Finished(c.Clock.Now()) {
		wake := c.CaptureState.WakeupTime(c.CycleEnd, c.hwAvailable(), c.BufferFrames, stepping)
		c.Clock.SleepUntil(wake)
	}
}

// drainPlayback is the same loop against the playback buffer and its
// own sync target (cycle end plus prefill and correction).
func (c *DuplexChannel) drainPlayback(target int64) {
	stepping := c.Clock.Stepping()
	for !c.PlaybackBuffer.Finished(c.Clock.Now()) {
		wake := c.PlaybackState.WakeupTime(target, c.hwAvailable(), c.BufferFrames, stepping)
		c.Clock.SleepUntil(wake)
	}
}

func (c *DuplexChannel) hwAvailable() int64 {
	if c.funcs.HwAvailable != nil {
		return c.funcs.HwAvailable()
	}
	return 0
}

func (c *DuplexChannel) enhancedXrunGap() int64 {
	if c.funcs.EnhancedXrunGap != nil {
		if g := c.funcs.EnhancedXrunGap(); g > 0 {
			return g
		}
	}
	return 0
}

// xrunGap reports how many frames were silently dropped because the RT
// thread didn't run in time. Two detectors run independently and the
// larger gap wins: an enhanced, device-reported host-time or
// sample-time discontinuity, and the buffer-position gap between the
// clock and whichever buffer (capture or playback) last reported its
// end.
func (c *DuplexChannel) xrunGap(now int64) int64 {
	maxEnd := c.CaptureBuffer.TotalEnd()
	if pe := c.PlaybackBuffer.TotalEnd(); pe > maxEnd {
		maxEnd = pe
	}
	bufferGap := now - maxEnd
	if bufferGap < 0 {
		bufferGap = 0
	}

	if enhanced := c.enhancedXrunGap(); enhanced > bufferGap {
		return enhanced
	}
	return bufferGap
}

// Xruns returns the running count of detected xrun gaps, for telemetry.
func (c *DuplexChannel) Xruns() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.XrunCount
}

// TotalLoss returns the cumulative frames lost to xruns across both
// directions, for metering/diagnostics.
func (c *DuplexChannel) TotalLoss() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CaptureState.TotalLoss + c.PlaybackState.TotalLoss
}

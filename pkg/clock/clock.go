// Package clock tracks a monotonic frame counter derived from wall-clock
// time, the timebase every hardware cycle and MIDI event offset is
// measured against.
package clock

import (
	"time"
)

// FrameClock converts elapsed wall time since its zero point into sample
// frames at a fixed sample rate.
type FrameClock struct {
	zero       time.Time
	sampleRate uint32
}

// New captures the current instant as frame zero.
func New(sampleRate uint32) *FrameClock {
	return &FrameClock{zero: time.Now(), sampleRate: sampleRate}
}

// Now returns the number of frames elapsed since the clock was created.
func (c *FrameClock) Now() int64 {
	elapsed := time.Since(c.zero)
	return elapsed.Nanoseconds() * int64(c.sampleRate) / int64(time.Second)
}

// FramesToDuration converts a frame count to a time.Duration at this
// clock's sample rate.
func (c *FrameClock) FramesToDuration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(c.sampleRate)
}

// SleepUntil blocks until the clock reaches the given frame. It returns
// immediately if that frame has already passed.
func (c *FrameClock) SleepUntil(frame int64) {
	target := c.zero.Add(c.FramesToDuration(frame))
	d := time.Until(target)
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// SampleRate returns the clock's fixed sample rate.
func (c *FrameClock) SampleRate() uint32 {
	return c.sampleRate
}

// Stepping returns the granularity, in frames, used for sync-level
// bookkeeping: coarser at higher sample rates, matching the analogous
// quantization used for timer resolution.
func (c *FrameClock) Stepping() int64 {
	return 16 * (1 + int64(c.sampleRate)/50000)
}

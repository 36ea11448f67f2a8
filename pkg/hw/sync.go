// Package hw implements the duplex hardware I/O layer: clock-driven
// capture/playback cycles, drift correction between the two directions,
// double-buffered channels, and the driver state machine that owns a
// physical or virtual audio device.
package hw

import "sync"

// Correction tracks the running drift-correction value applied to keep
// a playback stream's balance within a tolerance band of a capture
// stream's: it moves one frame at a time inside the loss band and jumps
// in one step only when the balance falls outside it.
type Correction struct {
	LossMin, LossMax   int64
	DriftMin, DriftMax int64
	correction         int64
}

// NewCorrection returns a Correction with symmetric loss/drift limits.
func NewCorrection(driftLimit, lossLimit int64) Correction {
	c := Correction{}
	c.SetDriftLimits(-driftLimit, driftLimit)
	c.SetLossLimits(-lossLimit, lossLimit)
	return c
}

func (c *Correction) SetDriftLimits(min, max int64) {
	c.DriftMin, c.DriftMax = min, max
}

func (c *Correction) SetLossLimits(min, max int64) {
	c.LossMin, c.LossMax = min, max
}

func (c *Correction) Clear() {
	c.correction = 0
}

func (c *Correction) Value() int64 {
	return c.correction
}

// Correct nudges the running correction toward keeping balance-target
// within the drift band, snapping immediately if it falls outside the
// wider loss band, and returns the updated correction.
func (c *Correction) Correct(balance, target int64) int64 {
	corrected := balance - target + c.correction
	switch {
	case corrected > c.LossMax:
		c.correction -= corrected - c.LossMax
	case corrected < c.LossMin:
		c.correction += c.LossMin - corrected
	case corrected > c.DriftMax:
		c.correction--
	case corrected < c.DriftMin:
		c.correction++
	}
	return c.correction
}

// SyncLevel tracks how far out of sync a duplex channel has drifted,
// from 0 (perfectly in sync) upward; higher values progressively
// relax timing requirements so the channel can catch back up instead
// of repeatedly under/overrunning.
type SyncLevel int

const (
	SyncLevelExact SyncLevel = 0
	defaultSyncLevel SyncLevel = 8
)

func (l SyncLevel) Resync() bool     { return l > 0 }
func (l SyncLevel) FullResync() bool { return l > 2 }
func (l SyncLevel) Freewheel() bool  { return l > 4 }

// ChannelState tracks one direction's (capture or playback) progress
// against the frame clock: how many frames it has produced/consumed,
// how far that lags or leads the expected position, and a running
// total of frames lost to xruns.
type ChannelState struct {
	mu sync.Mutex

	LastProcessing int64
	LastSync       int64
	LastProgress   int64
	Balance        int64
	MinProgress    int64
	MaxProgress    int64
	TotalLoss      int64
	Level          SyncLevel
}

// NewChannelState returns a ChannelState starting at the default sync
// level 8 (freewheel, the most relaxed timing, since nothing has run
// yet).
func NewChannelState() *ChannelState {
	return &ChannelState{Level: defaultSyncLevel}
}

// MarkProgress records that `progress` frames were produced or consumed
// at clock time `now`, adjusting the sync level based on how far that
// falls from the expected window (`stepping` frames wide).
func (s *ChannelState) MarkProgress(progress, now, stepping int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if progress > 0 {
		switch {
		case s.Level.Freewheel():
			s.LastProgress = now - progress - s.Balance
			if now-s.LastProcessing <= stepping && s.Level > 0 {
				s.Level--
			}
		case now-s.LastProcessing <= stepping:
			s.Balance = now - s.LastProgress - progress
			s.LastSync = now
			if s.Level > 0 {
				s.Level--
			}
			if progress < s.MinProgress || s.MinProgress == 0 {
				s.MinProgress = progress
			}
			if progress > s.MaxProgress {
				s.MaxProgress = progress
			}
		default:
			s.Level++
		}
		s.LastProgress += progress
	}
	s.LastProcessing = now
}

// MarkLossFrom computes the frame loss implied by producing/consuming
// `progress` frames at time `now`, given the channel's current balance
// and last known progress, and folds it into TotalLoss.
func (s *ChannelState) MarkLossFrom(progress, now int64) int64 {
	s.mu.Lock()
	loss := (now - s.Balance) - (s.LastProgress + progress)
	s.mu.Unlock()
	return s.MarkLoss(loss)
}

// MarkLoss folds a directly-computed loss value into TotalLoss and, if
// positive, forces the sync level back up so the channel resyncs.
func (s *ChannelState) MarkLoss(loss int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loss > 0 {
		s.TotalLoss += loss
		if s.Level < 6 {
			s.Level = 6
		}
		return loss
	}
	return 0
}

// NextMinProgress returns the earliest frame position this channel is
// expected to reach next.
func (s *ChannelState) NextMinProgress() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastProgress + s.MinProgress + s.Balance
}

// SafeWakeup returns the latest clock frame at which this channel can
// still wake up without risking an xrun, given the hardware's currently
// available frame count and the cycle's buffer size.
func (s *ChannelState) SafeWakeup(hwAvailable, bufferFrames int64) int64 {
	return s.NextMinProgress() + bufferFrames - hwAvailable - s.maxProgress()
}

// EstimatedDropout returns the frame position at which this channel is
// projected to run out of buffered headroom.
func (s *ChannelState) EstimatedDropout(hwAvailable, bufferFrames int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastProgress + s.Balance + bufferFrames - hwAvailable
}

func (s *ChannelState) maxProgress() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MaxProgress
}

// WakeupTime computes the clock frame this channel should next be
// serviced at, given a desired sync target, the hardware's currently
// available frames, the cycle's buffer size and the clock's stepping
// granularity. It never returns later than SafeWakeup allows.
func (s *ChannelState) WakeupTime(syncTarget, hwAvailable, bufferFrames, stepping int64) int64 {
	s.mu.Lock()
	level := s.Level
	lastProcessing := s.LastProcessing
	s.mu.Unlock()

	var wake int64
	switch {
	case level.Freewheel(), level.FullResync():
		wake = lastProcessing + stepping
	case level.Resync():
		wake = s.NextMinProgress()
	default:
		wake = syncTarget - s.maxProgress()
	}
	if wake > syncTarget {
		wake = syncTarget
	}
	// safe is a ceiling, not a floor: never sleep past the point where a
	// dropout becomes unavoidable, even if the policy above would.
	if safe := s.SafeWakeup(hwAvailable, bufferFrames); safe < wake {
		wake = safe
	}
	return wake
}

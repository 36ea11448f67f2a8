package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// WorkerDriver is the minimal surface the assist loop needs from a
// hardware backend: run one duplex cycle, or one opportunistic
// non-blocking step, plus the parameters profiling reports against.
type WorkerDriver interface {
	CycleSamples() int64
	SampleRate() uint32
	RunCycleForWorker() error
	RunAssistStepForWorker() (didWork bool, err error)
}

// assistState is the condition-variable-protected handoff between the
// worker and the assist goroutine: a monotonic request sequence number,
// the sequence number last completed, a shutdown flag and the most
// recent cycle error.
type assistState struct {
	mu         sync.Mutex
	cond       *sync.Cond
	shutdown   bool
	requestSeq uint64
	doneSeq    uint64
	lastErr    error
}

func newAssistState() *assistState {
	s := &assistState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// requestCycle bumps the request sequence, wakes the assist goroutine,
// and blocks until it reports done_seq >= the new target (or shutdown),
// returning the cycle's error if any.
func (s *assistState) requestCycle() error {
	s.mu.Lock()
	s.requestSeq++
	target := s.requestSeq
	s.cond.Broadcast()
	for s.doneSeq < target && !s.shutdown {
		s.cond.Wait()
	}
	err := s.lastErr
	s.lastErr = nil
	s.mu.Unlock()
	return err
}

func (s *assistState) stop() {
	s.mu.Lock()
	s.shutdown = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

const profileInterval = time.Second

// assistProfiler accumulates per-interval statistics on the assist
// goroutine's cycle and step work, reported at most once per
// profileInterval.
type assistProfiler struct {
	reportAt time.Time

	cycleCount    uint64
	cycleErrCount uint64
	cycleTime     time.Duration

	stepCount     uint64
	stepWorkCount uint64
	stepErrCount  uint64
	stepTime      time.Duration

	waitCount uint64
	waitTime  time.Duration
}

func newAssistProfiler() *assistProfiler {
	return &assistProfiler{reportAt: time.Now().Add(profileInterval)}
}

func (p *assistProfiler) maybeReport(logger *log.Logger, cycleSamples int64, sampleRate uint32, label string) {
	now := time.Now()
	if now.Before(p.reportAt) {
		return
	}
	cycleAvg := avgMicros(p.cycleTime, p.cycleCount)
	stepAvg := avgMicros(p.stepTime, p.stepCount)
	waitAvg := avgMicros(p.waitTime, p.waitCount)
	expectedCps := 0.0
	if cycleSamples > 0 && sampleRate > 0 {
		expectedCps = float64(sampleRate) / float64(cycleSamples)
	}
	logger.Error(fmt.Sprintf("%s profile", label),
		"expected_cps", fmt.Sprintf("%.1f", expectedCps),
		"cycles", p.cycleCount, "cycle_err", p.cycleErrCount, "cycle_avg_us", fmt.Sprintf("%.1f", cycleAvg),
		"steps", p.stepCount, "steps_work", p.stepWorkCount, "step_err", p.stepErrCount, "step_avg_us", fmt.Sprintf("%.1f", stepAvg),
		"waits", p.waitCount, "wait_avg_us", fmt.Sprintf("%.1f", waitAvg),
	)
	*p = assistProfiler{reportAt: now.Add(profileInterval)}
}

func avgMicros(total time.Duration, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Microseconds()) / float64(count)
}

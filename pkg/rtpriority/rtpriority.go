// Package rtpriority pins the calling goroutine to its OS thread and asks
// the kernel for realtime scheduling and locked memory, best-effort: a
// missing capability is returned as an error that callers log and
// otherwise ignore rather than treat as fatal, since the engine runs correctly
// (just with worse worst-case latency) without either.
package rtpriority

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Apply pins the current goroutine to its OS thread (required before any
// scheduling call can affect it) and raises that thread to SCHED_FIFO at
// the given priority. The caller must keep running on this goroutine for
// as long as the elevated priority should apply; it is never undone
// automatically.
func Apply(threadLabel string, priority int) error {
	runtime.LockOSThread()

	tid := unix.Gettid()
	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(tid, unix.SCHED_FIFO, param); err != nil {
		return fmt.Errorf("rtpriority: SCHED_FIFO for %s at priority %d: %w", threadLabel, priority, err)
	}

	gotPolicy, err := unix.SchedGetscheduler(tid)
	if err != nil {
		return fmt.Errorf("rtpriority: verify scheduler for %s: %w", threadLabel, err)
	}
	if gotPolicy != unix.SCHED_FIFO {
		return fmt.Errorf("rtpriority: %s ended up with scheduler policy %d, not SCHED_FIFO", threadLabel, gotPolicy)
	}
	return nil
}

// LockMemory locks all of the process's current and future pages into
// RAM so a page fault never stalls the realtime thread. It affects the
// whole process, not just the calling thread, so it only needs calling
// once regardless of how many threads call Apply.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("rtpriority: mlockall: %w", err)
	}
	return nil
}

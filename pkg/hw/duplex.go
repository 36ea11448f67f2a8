package hw

import (
	"runtime"
	"sync"
	"weak"
)

// DuplexSync is the shared drift-correction state between a device's
// capture and playback directions: there is exactly one per device path,
// process-wide, so two independently-opened handles to the same device
// stay coordinated.
type DuplexSync struct {
	mu                    sync.Mutex
	Correction            Correction
	CaptureBalance        *int64
	PlaybackBalance       *int64
	CycleEnd              int64
	PlaybackPrefillFrames int64
}

// NewDuplexSync builds the correction limits from the device's sample
// rate and cycle size: drift tolerance is about a millisecond, loss
// tolerance is the larger of that and half a cycle.
func NewDuplexSync(sampleRate uint32, bufferFrames int) *DuplexSync {
	driftLimit := int64(sampleRate) / 1000
	if driftLimit < 1 {
		driftLimit = 1
	}
	lossLimit := driftLimit
	if half := int64(bufferFrames) / 2; half > lossLimit {
		lossLimit = half
	}
	return &DuplexSync{Correction: NewCorrection(driftLimit, lossLimit)}
}

// PublishBalance records the current balance for a direction so the
// other direction's correction computation can read it.
func (d *DuplexSync) PublishBalance(capture bool, balance int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if capture {
		d.CaptureBalance = &balance
	} else {
		d.PlaybackBalance = &balance
	}
}

// registry is the process-wide table of live DuplexSync instances keyed
// by device path. Entries are held weakly: once every handle referencing
// a device's DuplexSync is garbage collected, the entry is removed by a
// cleanup registered at creation time, mirroring a Weak<Mutex<_>> table
// in a refcounted runtime without requiring callers to explicitly close
// anything.
var registry = struct {
	mu sync.Mutex
	m  map[string]weak.Pointer[DuplexSync]
}{m: make(map[string]weak.Pointer[DuplexSync])}

// GetOrCreateDuplexSync returns the shared DuplexSync for path, creating
// it on first use for the given sample rate and buffer size. Later calls
// for the same still-live path ignore their sampleRate/bufferFrames
// arguments and return the existing instance, matching how two handles
// opening the same device must share one correction state regardless of
// which one asked first.
func GetOrCreateDuplexSync(path string, sampleRate uint32, bufferFrames int) *DuplexSync {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if wp, ok := registry.m[path]; ok {
		if ds := wp.Value(); ds != nil {
			return ds
		}
	}

	ds := NewDuplexSync(sampleRate, bufferFrames)
	registry.m[path] = weak.Make(ds)
	runtime.AddCleanup(ds, func(p string) {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		if wp, ok := registry.m[p]; ok && wp.Value() == nil {
			delete(registry.m, p)
		}
	}, path)
	return ds
}

// registrySize reports how many device paths currently have a live
// DuplexSync entry; exposed for tests.
func registrySize() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.m)
}

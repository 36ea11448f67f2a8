package portaudio

import "math"

// gain and balance are stored as atomic uint64s so RunCycleForWorker's
// encode callback (called from the stream's own goroutine) never races
// with a control-plane SetOutputGainBalance call.
func floatBits(v float64) uint64    { return math.Float64bits(v) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// Package config parses command-line flags into the settings the engine
// needs to open a device and stand up the track graph, and reads the
// handful of environment variables the hardware worker consults at
// startup.
package config

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// HwProfileEnv, when set to a truthy value, enables interval profiling
// reports from the assist thread.
const HwProfileEnv = "HW_PROFILE"

// AssistAutonomousEnv returns the env var name a backend's assist thread
// checks to decide whether to run run_assist_step_for_worker opportunistically
// instead of parking on the condition variable between requests.
func AssistAutonomousEnv(backendLabel string) string {
	return strings.ToUpper(backendLabel) + "_ASSIST_AUTONOMOUS"
}

// EnvFlag reports whether the named environment variable is set to a
// recognized truthy value ("1", "true", "yes", "on", case-insensitive).
func EnvFlag(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// DeviceOptions mirrors the device-open option table: exclusive access,
// desired period size, buffer depth, and latency/sync trade-offs.
type DeviceOptions struct {
	Exclusive           bool
	PeriodFrames        int
	NPeriods            int
	IgnoreHwBuf         bool
	SyncMode            bool
	InputLatencyFrames  int64
	OutputLatencyFrames int64
}

// Config is the full set of settings accepted on the command line.
type Config struct {
	Backend string
	Path    string

	SampleRate     float64
	InputChannels  int
	OutputChannels int

	MidiInputs  []string
	MidiOutputs []string

	Device DeviceOptions

	LogLevel string

	Help bool
}

// Parse builds a Config from args (pass os.Args[1:]) using a dedicated
// FlagSet so repeated calls in tests don't collide with the package-level
// pflag.CommandLine.
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("engine", pflag.ContinueOnError)

	cfg := &Config{Device: DeviceOptions{NPeriods: 2, PeriodFrames: 256}}

	fs.StringVarP(&cfg.Backend, "backend", "b", "null", "hardware backend: portaudio or null")
	fs.StringVarP(&cfg.Path, "device", "d", "default", "device path or name to open")
	fs.Float64VarP(&cfg.SampleRate, "sample-rate", "r", 48000, "sample rate in Hz")
	fs.IntVar(&cfg.InputChannels, "input-channels", 2, "number of capture channels")
	fs.IntVar(&cfg.OutputChannels, "output-channels", 2, "number of playback channels")
	fs.StringSliceVar(&cfg.MidiInputs, "midi-in", nil, "MIDI input device paths")
	fs.StringSliceVar(&cfg.MidiOutputs, "midi-out", nil, "MIDI output device paths")

	fs.BoolVar(&cfg.Device.Exclusive, "exclusive", false, "request exclusive device access where supported")
	fs.IntVar(&cfg.Device.PeriodFrames, "period-frames", cfg.Device.PeriodFrames, "desired period size in frames")
	fs.IntVar(&cfg.Device.NPeriods, "nperiods", cfg.Device.NPeriods, "number of periods in the device buffer")
	fs.BoolVar(&cfg.Device.IgnoreHwBuf, "ignore-hwbuf", false, "ignore the device-reported buffer size")
	fs.BoolVar(&cfg.Device.SyncMode, "sync-mode", false, "omit the extra-period playback prefill for tighter latency")
	fs.Int64Var(&cfg.Device.InputLatencyFrames, "input-latency-frames", 0, "additional input latency compensation")
	fs.Int64Var(&cfg.Device.OutputLatencyFrames, "output-latency-frames", 0, "additional output latency compensation")

	fs.StringVarP(&cfg.LogLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "show usage and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

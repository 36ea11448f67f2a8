// Command engine is the standalone entrypoint: it parses device and
// track options from the command line, opens a hardware backend, and
// runs the worker/scheduler pair until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/maolan-audio/engine/internal/config"
	"github.com/maolan-audio/engine/pkg/codec"
	"github.com/maolan-audio/engine/pkg/engine"
	"github.com/maolan-audio/engine/pkg/hw/backend/null"
	"github.com/maolan-audio/engine/pkg/hw/backend/portaudio"
	"github.com/maolan-audio/engine/pkg/midi"
	"github.com/maolan-audio/engine/pkg/port"
	"github.com/maolan-audio/engine/pkg/track"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Help {
		return
	}

	logger := log.New(os.Stderr)
	if level, err := log.ParseLevel(cfg.LogLevel); err != nil {
		logger.Warn("unrecognized log level, defaulting to info", "level", cfg.LogLevel)
	} else {
		logger.SetLevel(level)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine exited with error", "err", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	hub := midi.NewHub(logger)
	for _, path := range cfg.MidiInputs {
		if err := hub.OpenInput(path); err != nil {
			return fmt.Errorf("open midi input %q: %w", path, err)
		}
	}
	for _, path := range cfg.MidiOutputs {
		if err := hub.OpenOutput(path); err != nil {
			return fmt.Errorf("open midi output %q: %w", path, err)
		}
	}

	backend, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	tr := track.New("main", cfg.OutputChannels, cfg.Device.PeriodFrames, uint32(cfg.SampleRate))
	wireTrackToBackend(backend, tr)

	workerToScheduler := make(chan engine.Message, 8)
	schedulerToWorker := make(chan engine.Message, 8)

	worker := engine.NewWorker(cfg.Backend, backend, hub, schedulerToWorker, workerToScheduler, logger)
	scheduler := engine.NewScheduler([]*track.Track{tr}, cfg.Device.PeriodFrames, workerToScheduler, schedulerToWorker, logger)

	workerDone := make(chan struct{})
	schedulerDone := make(chan struct{})
	go func() { worker.Run(); close(workerDone) }()
	go func() { scheduler.Run(); close(schedulerDone) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	workerToScheduler <- engine.QuitMessage()
	schedulerToWorker <- engine.QuitMessage()
	<-workerDone
	<-schedulerDone
	return nil
}

// backendHandle is the minimal surface main drives directly: Start,
// Close, Ports to wire the default track into the capture/playback
// graph, and whatever engine.WorkerDriver needs, which both concrete
// backends already satisfy structurally.
type backendHandle interface {
	engine.WorkerDriver
	Ports() (ins, outs []*port.Port)
	Start() error
	Close() error
}

// wireTrackToBackend connects the backend's capture ports as upstream
// sources for the track's inputs, and the track's outputs as upstream
// sources for the backend's playback ports. The assist goroutine's
// RunCycleForWorker decodes capture into the backend's ins before the
// scheduler runs the track (reading those same port instances) and
// encodes playback from the backend's outs after, so no data ever needs
// copying across the worker/scheduler boundary.
func wireTrackToBackend(b backendHandle, tr *track.Track) {
	ins, outs := b.Ports()
	for i := 0; i < len(ins) && i < len(tr.AudioIns); i++ {
		port.Connect(ins[i], tr.AudioIns[i])
	}
	for i := 0; i < len(outs) && i < len(tr.AudioOuts); i++ {
		port.Connect(tr.AudioOuts[i], outs[i])
	}
}

func openBackend(cfg *config.Config, logger *log.Logger) (backendHandle, func(), error) {
	switch cfg.Backend {
	case "null":
		b := null.New(null.Options{
			InputChannels:   cfg.InputChannels,
			OutputChannels:  cfg.OutputChannels,
			SampleRate:      uint32(cfg.SampleRate),
			FramesPerBuffer: cfg.Device.PeriodFrames,
			NPeriods:        cfg.Device.NPeriods,
			SyncMode:        cfg.Device.SyncMode,
		})
		if err := b.Start(); err != nil {
			return nil, nil, fmt.Errorf("start null backend: %w", err)
		}
		return b, func() { _ = b.Close() }, nil

	case "portaudio":
		idx, err := devicePathIndex(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		b, err := portaudio.Open(cfg.Path, portaudio.Options{
			InputDeviceIndex:  idx,
			OutputDeviceIndex: idx,
			InputChannels:     cfg.InputChannels,
			OutputChannels:    cfg.OutputChannels,
			SampleRate:        cfg.SampleRate,
			FramesPerBuffer:   cfg.Device.PeriodFrames,
			Format:            codec.FormatS32LE,
			NPeriods:          cfg.Device.NPeriods,
			SyncMode:          cfg.Device.SyncMode,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open portaudio device %q: %w", cfg.Path, err)
		}
		if err := b.Start(); err != nil {
			return nil, nil, fmt.Errorf("start portaudio backend: %w", err)
		}
		return b, func() { _ = b.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// devicePathIndex turns "default" into -1 (host default device) and any
// other value into a numeric PortAudio device index; named lookup by
// device string isn't supported by this entrypoint.
func devicePathIndex(path string) (int, error) {
	if path == "" || path == "default" {
		return -1, nil
	}
	idx, err := strconv.Atoi(path)
	if err != nil {
		return 0, fmt.Errorf("device %q: expected \"default\" or a numeric PortAudio device index", path)
	}
	return idx, nil
}

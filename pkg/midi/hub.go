package midi

import (
	"errors"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Hub owns a set of MIDI input and output device streams and turns the
// byte-oriented, non-blocking streams into parsed RawEvent batches. It
// never blocks: a device with nothing to read is simply skipped until
// the next call.
type Hub struct {
	log     *log.Logger
	inputs  []*inputDevice
	outputs []*outputDevice
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{log: logger.With("component", "midi.hub")}
}

// OpenInput is idempotent: re-opening an already-open path is a no-op.
func (h *Hub) OpenInput(path string) error {
	for _, in := range h.inputs {
		if in.path == path {
			return nil
		}
	}
	f, err := openNonBlocking(path, unix.O_RDONLY)
	if err != nil {
		return err
	}
	h.inputs = append(h.inputs, &inputDevice{path: path, file: f})
	return nil
}

// OpenOutput is idempotent: re-opening an already-open path is a no-op.
func (h *Hub) OpenOutput(path string) error {
	for _, out := range h.outputs {
		if out.path == path {
			return nil
		}
	}
	f, err := openNonBlocking(path, unix.O_WRONLY)
	if err != nil {
		return err
	}
	h.outputs = append(h.outputs, &outputDevice{path: path, file: f})
	return nil
}

// ReadEventsInto drains every input device's available bytes into out,
// clearing out first. A device with a transient read error (anything but
// EOF or would-block) is logged and left open; per-cycle hardware I/O
// errors are not fatal to the hub.
func (h *Hub) ReadEventsInto(out *[]RawEvent) {
	*out = (*out)[:0]
	for _, in := range h.inputs {
		in.readEventsInto(out, h.log)
	}
}

// WriteEvents dispatches events to whichever output device matches
// event.Device. Events are not sorted here; callers that need frame
// ordering across devices should sort before calling.
func (h *Hub) WriteEvents(events []RawEvent) {
	if len(events) == 0 {
		return
	}
	for _, out := range h.outputs {
		out.writeEvents(events, h.log)
	}
}

// SortByFrame orders events by frame, then by device path, matching the
// ordering the worker applies to outbound events before a cycle flush.
func SortByFrame(events []RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Frame != events[j].Frame {
			return events[i].Frame < events[j].Frame
		}
		return events[i].Device < events[j].Device
	})
}

type inputDevice struct {
	path   string
	file   *os.File
	parser parser
}

func (in *inputDevice) readEventsInto(out *[]RawEvent, logger *log.Logger) {
	var buf [256]byte
	for {
		n, err := in.file.Read(buf[:])
		if n > 0 {
			for _, b := range buf[:n] {
				if msg, ok := in.parser.feed(b); ok {
					*out = append(*out, NewRawEvent(in.path, 0, msg))
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			logger.Error("midi input read failed", "path", in.path, "err", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

type outputDevice struct {
	path string
	file *os.File
}

func (out *outputDevice) writeEvents(events []RawEvent, logger *log.Logger) {
	for _, ev := range events {
		if ev.Device != out.path || len(ev.Data) == 0 {
			continue
		}
		if _, err := out.file.Write(ev.Data); err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			logger.Error("midi output write failed", "path", out.path, "err", err)
			return
		}
	}
}

func openNonBlocking(path string, flag int) (*os.File, error) {
	fd, err := unix.Open(path, flag|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}

// parser implements the running-status MIDI byte stream decoder: realtime
// bytes (0xF8-0xFF) are emitted immediately without disturbing running
// status; SysEx-class bytes (>=0xF0) clear running status once their
// message completes; everything else latches status and accumulates data
// bytes until the status's required count is reached.
type parser struct {
	status byte
	hasStatus bool
	needed int
	data   [2]byte
	len    int
}

func (p *parser) feed(b byte) ([]byte, bool) {
	if b&0x80 != 0 {
		if b >= 0xF8 {
			return []byte{b}, true
		}
		p.status = b
		p.hasStatus = true
		p.len = 0
		p.needed = statusDataLen(b)
		if p.needed == 0 {
			p.hasStatus = false
			return []byte{b}, true
		}
		return nil, false
	}

	if !p.hasStatus {
		return nil, false
	}
	if p.len < len(p.data) {
		p.data[p.len] = b
	}
	p.len++
	if p.len < p.needed {
		return nil, false
	}

	msg := make([]byte, 0, 1+p.needed)
	msg = append(msg, p.status)
	msg = append(msg, p.data[:p.needed]...)
	p.len = 0
	if p.status >= 0xF0 {
		p.hasStatus = false
		p.needed = 0
	}
	return msg, true
}

func statusDataLen(status byte) int {
	switch {
	case status >= 0x80 && status <= 0xBF:
		return 2
	case status >= 0xC0 && status <= 0xDF:
		return 1
	case status >= 0xE0 && status <= 0xEF:
		return 2
	case status == 0xF1, status == 0xF3:
		return 1
	case status == 0xF2:
		return 2
	default:
		return 0
	}
}

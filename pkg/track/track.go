// Package track implements a single mixer track: a bank of audio input
// and output ports, a chain of external plugin instances, and the
// per-cycle scheduling that decides in what order those plugins run.
package track

import (
	"fmt"
	"sync"

	"github.com/maolan-audio/engine/pkg/midi"
	"github.com/maolan-audio/engine/pkg/plugin"
	"github.com/maolan-audio/engine/pkg/port"
)

// pluginSlot pairs a loaded plugin instance with the ports it reads from
// and writes to.
type pluginSlot struct {
	instance  plugin.Instance
	audioIns  []*port.Port
	audioOuts []*port.Port
	processed bool
}

// Track owns a set of audio input and output ports (any channel count)
// and a chain of plugins.
type Track struct {
	mu sync.Mutex

	Name   string
	Level  float32
	armed  bool
	muted  bool
	soloed bool

	AudioIns  []*port.Port
	AudioOuts []*port.Port

	plugins []*pluginSlot

	frames         int
	pendingMidiIn  []midi.RawEvent
	sampleRate     uint32
}

// New creates a track with the given channel count and frame size, and
// wires a default 1:1 pass-through from inputs to outputs.
func New(name string, channels, frames int, sampleRate uint32) *Track {
	t := &Track{
		Name:       name,
		Level:      1.0,
		frames:     frames,
		sampleRate: sampleRate,
	}
	for i := 0; i < channels; i++ {
		t.AudioIns = append(t.AudioIns, port.New(fmt.Sprintf("%s.in%d", name, i), frames))
		t.AudioOuts = append(t.AudioOuts, port.New(fmt.Sprintf("%s.out%d", name, i), frames))
	}
	t.ensureDefaultAudioPassthrough()
	return t
}

// ensureDefaultAudioPassthrough connects ins[i] to outs[i] for every
// channel not already connected, so a freshly-created track with no
// plugins is audible immediately.
func (t *Track) ensureDefaultAudioPassthrough() {
	n := len(t.AudioIns)
	if len(t.AudioOuts) < n {
		n = len(t.AudioOuts)
	}
	for i := 0; i < n; i++ {
		if !connected(t.AudioIns[i], t.AudioOuts[i]) {
			port.Connect(t.AudioIns[i], t.AudioOuts[i])
		}
	}
}

func connected(a, b *port.Port) bool {
	for _, c := range a.Connections() {
		if c == b {
			return true
		}
	}
	return false
}

// Arm, Mute and Solo toggle the track's transport/mixer state. They
// return the new value.
func (t *Track) Arm(on bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = on
	return t.armed
}

func (t *Track) Mute(on bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = on
	return t.muted
}

func (t *Track) Solo(on bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.soloed = on
	return t.soloed
}

func (t *Track) Armed() bool  { t.mu.Lock(); defer t.mu.Unlock(); return t.armed }
func (t *Track) Muted() bool  { t.mu.Lock(); defer t.mu.Unlock(); return t.muted }
func (t *Track) Soloed() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.soloed }

// LoadPlugin appends instance to the plugin chain, unconnected. Use
// ConnectPluginAudio to wire its ports into the graph.
func (t *Track) LoadPlugin(instance plugin.Instance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &pluginSlot{instance: instance}
	for i := 0; i < instance.AudioInputs(); i++ {
		slot.audioIns = append(slot.audioIns, port.New(fmt.Sprintf("%s.%s.in%d", t.Name, instance.Name(), i), t.frames))
	}
	for i := 0; i < instance.AudioOutputs(); i++ {
		slot.audioOuts = append(slot.audioOuts, port.New(fmt.Sprintf("%s.%s.out%d", t.Name, instance.Name(), i), t.frames))
	}
	t.plugins = append(t.plugins, slot)
}

// UnloadPlugin removes instance from the chain, disconnecting every port
// it owns from the rest of the graph so no dangling edges remain.
func (t *Track) UnloadPlugin(instance plugin.Instance) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, slot := range t.plugins {
		if slot.instance != instance {
			continue
		}
		for _, p := range append(append([]*port.Port{}, slot.audioIns...), slot.audioOuts...) {
			for _, other := range p.Connections() {
				_ = port.Disconnect(p, other)
			}
		}
		t.plugins = append(t.plugins[:i], t.plugins[i+1:]...)
		return nil
	}
	return fmt.Errorf("track %q: plugin %q not loaded", t.Name, instance.Name())
}

func (t *Track) findSlot(instance plugin.Instance) *pluginSlot {
	for _, slot := range t.plugins {
		if slot.instance == instance {
			return slot
		}
	}
	return nil
}

// ConnectPluginAudio connects port srcCh of one plugin (or the track
// itself, via nil) to port dstCh of another. Passing nil for src or dst
// means "the track's own audio ports" rather than a loaded plugin's.
func (t *Track) ConnectPluginAudio(src plugin.Instance, srcCh int, dst plugin.Instance, dstCh int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	srcPort, err := t.resolveOutput(src, srcCh)
	if err != nil {
		return err
	}
	dstPort, err := t.resolveInput(dst, dstCh)
	if err != nil {
		return err
	}
	port.Connect(srcPort, dstPort)
	return nil
}

// DisconnectPluginAudio is the inverse of ConnectPluginAudio.
func (t *Track) DisconnectPluginAudio(src plugin.Instance, srcCh int, dst plugin.Instance, dstCh int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	srcPort, err := t.resolveOutput(src, srcCh)
	if err != nil {
		return err
	}
	dstPort, err := t.resolveInput(dst, dstCh)
	if err != nil {
		return err
	}
	return port.Disconnect(srcPort, dstPort)
}

// resolveOutput finds the port that *supplies* signal for a connection's
// source side: a plugin's audio output, or — when instance is nil — the
// track's own input port, since that's how outside signal enters the
// track's internal chain.
func (t *Track) resolveOutput(instance plugin.Instance, ch int) (*port.Port, error) {
	if instance == nil {
		if ch < 0 || ch >= len(t.AudioIns) {
			return nil, fmt.Errorf("track %q: input channel %d out of range", t.Name, ch)
		}
		return t.AudioIns[ch], nil
	}
	slot := t.findSlot(instance)
	if slot == nil {
		return nil, fmt.Errorf("track %q: plugin %q not loaded", t.Name, instance.Name())
	}
	if ch < 0 || ch >= len(slot.audioOuts) {
		return nil, fmt.Errorf("track %q: plugin %q output channel %d out of range", t.Name, instance.Name(), ch)
	}
	return slot.audioOuts[ch], nil
}

// resolveInput finds the port that *consumes* signal for a connection's
// destination side: a plugin's audio input, or — when instance is nil —
// the track's own output port, since that's how the internal chain's
// result reaches the outside world.
func (t *Track) resolveInput(instance plugin.Instance, ch int) (*port.Port, error) {
	if instance == nil {
		if ch < 0 || ch >= len(t.AudioOuts) {
			return nil, fmt.Errorf("track %q: output channel %d out of range", t.Name, ch)
		}
		return t.AudioOuts[ch], nil
	}
	slot := t.findSlot(instance)
	if slot == nil {
		return nil, fmt.Errorf("track %q: plugin %q not loaded", t.Name, instance.Name())
	}
	if ch < 0 || ch >= len(slot.audioIns) {
		return nil, fmt.Errorf("track %q: plugin %q input channel %d out of range", t.Name, instance.Name(), ch)
	}
	return slot.audioIns[ch], nil
}

// QueueMidiIn appends events to be delivered to every loaded plugin on
// the next Process call.
func (t *Track) QueueMidiIn(events []midi.RawEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingMidiIn = append(t.pendingMidiIn, events...)
}

// Process runs one cycle: drains queued MIDI, schedules the plugin chain
// by input readiness (falling back to insertion order if a full scan
// makes no progress), and sums each output port from its internal
// sources only — a track's own inputs and its plugins' outputs, never
// whatever happens to be listening downstream of that output.
func (t *Track) Process(frames int) ([]midi.RawEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	midiIn := t.pendingMidiIn
	t.pendingMidiIn = nil

	downstream := t.pluginAudioInputSet()
	for _, out := range t.AudioOuts {
		downstream[out] = true
	}
	for _, in := range t.AudioIns {
		in.Setup()
		sources := externalOnly(in.Connections(), downstream)
		if len(sources) == 0 {
			// No external upstream: the buffer is already complete, either
			// written directly (hardware capture, test harness) or left at
			// silence. Summing here would zero it.
			in.MarkFinished()
			continue
		}
		in.SumFrom(sources)
	}

	var midiOut []midi.RawEvent
	if err := t.processPlugins(frames, midiIn, &midiOut); err != nil {
		return midiOut, err
	}

	internal := t.internalSourceSet()
	for _, out := range t.AudioOuts {
		out.Setup()
		out.SumFrom(keepOnly(out.Connections(), internal))
	}
	return midiOut, nil
}

// processPlugins runs every plugin slot exactly once, in an order
// determined by input readiness: on each scan, the first not-yet-
// processed slot whose every audio input is ready runs next. If a full
// scan over the remaining slots makes no progress (a cycle, or inputs
// that will never become ready), the rest run in their original
// insertion order so the cycle still completes.
func (t *Track) processPlugins(frames int, midiIn []midi.RawEvent, midiOut *[]midi.RawEvent) error {
	for _, slot := range t.plugins {
		slot.processed = false
		for _, p := range slot.audioIns {
			p.Setup()
		}
		for _, p := range slot.audioOuts {
			p.Setup()
		}
	}

	remaining := len(t.plugins)
	for remaining > 0 {
		progressed := false
		for _, slot := range t.plugins {
			if slot.processed {
				continue
			}
			if !allReady(slot.audioIns) {
				continue
			}
			if err := t.runSlot(slot, frames, midiIn, midiOut); err != nil {
				return err
			}
			slot.processed = true
			remaining--
			progressed = true
		}
		if progressed {
			continue
		}
		for _, slot := range t.plugins {
			if slot.processed {
				continue
			}
			if err := t.runSlot(slot, frames, midiIn, midiOut); err != nil {
				return err
			}
			slot.processed = true
			remaining--
		}
	}
	return nil
}

func (t *Track) runSlot(slot *pluginSlot, frames int, midiIn []midi.RawEvent, midiOut *[]midi.RawEvent) error {
	for _, p := range slot.audioIns {
		p.Process()
	}
	in := buffersOf(slot.audioIns)
	out := buffersOf(slot.audioOuts)
	events, err := slot.instance.Process(frames, in, out, midiIn)
	if err != nil {
		return fmt.Errorf("track %q: plugin %q: %w", t.Name, slot.instance.Name(), err)
	}
	for _, p := range slot.audioOuts {
		p.MarkFinished()
	}
	*midiOut = append(*midiOut, events...)
	return nil
}

func allReady(ports []*port.Port) bool {
	for _, p := range ports {
		if !p.Ready() {
			return false
		}
	}
	return true
}

func buffersOf(ports []*port.Port) [][]float32 {
	out := make([][]float32, len(ports))
	for i, p := range ports {
		out[i] = p.Buffer()
	}
	return out
}

// pluginAudioInputSet returns the set of ports owned by this track's
// plugin chain as audio inputs, used to tell a track input port's true
// upstream sources apart from its own downstream plugin consumers (the
// two live in the same symmetric connection list).
func (t *Track) pluginAudioInputSet() map[*port.Port]bool {
	set := make(map[*port.Port]bool)
	for _, slot := range t.plugins {
		for _, p := range slot.audioIns {
			set[p] = true
		}
	}
	return set
}

// externalOnly keeps the connections not present in exclude.
func externalOnly(connections []*port.Port, exclude map[*port.Port]bool) []*port.Port {
	out := make([]*port.Port, 0, len(connections))
	for _, c := range connections {
		if !exclude[c] {
			out = append(out, c)
		}
	}
	return out
}

// keepOnly keeps the connections present in include.
func keepOnly(connections []*port.Port, include map[*port.Port]bool) []*port.Port {
	out := make([]*port.Port, 0, len(connections))
	for _, c := range connections {
		if include[c] {
			out = append(out, c)
		}
	}
	return out
}

// internalSourceSet returns this track's own inputs plus every plugin's
// outputs: the set an output port should sum from, as opposed to the
// full symmetric connection list a Port tracks for graph traversal
// (which may also include another track's input port listening to this
// same output for its own routing).
func (t *Track) internalSourceSet() map[*port.Port]bool {
	set := make(map[*port.Port]bool, len(t.AudioIns)+len(t.plugins))
	for _, p := range t.AudioIns {
		set[p] = true
	}
	for _, slot := range t.plugins {
		for _, p := range slot.audioOuts {
			set[p] = true
		}
	}
	return set
}

// Setup resets every port owned directly by the track (not plugin
// ports, which Process resets itself) for a new cycle.
func (t *Track) Setup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.AudioIns {
		p.Setup()
	}
	for _, p := range t.AudioOuts {
		p.Setup()
	}
}

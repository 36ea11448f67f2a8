// Package port implements the audio port graph node: a small buffer that
// sums whatever is connected to it once per cycle, and can itself be
// connected as a source to other ports.
package port

import (
	"fmt"
	"sync"
)

// Port is a single-channel audio mixing node. Connecting port A to port B
// makes A a source that contributes to B's buffer on every Process call.
// A port may have any number of sources and any number of destinations;
// the same connection is recorded symmetrically on both sides so Ready
// and connection-count queries never need to walk the whole graph.
type Port struct {
	mu          sync.Mutex
	name        string
	buffer      []float32
	connections []*Port
	finished    bool
}

// New creates a port with a zeroed buffer of the given frame count.
func New(name string, frames int) *Port {
	return &Port{name: name, buffer: make([]float32, frames)}
}

func (p *Port) Name() string {
	return p.name
}

// Connect makes p a source for dst, and dst a source for p, recording
// the edge on both ends.
func Connect(p, dst *Port) {
	p.mu.Lock()
	p.connections = append(p.connections, dst)
	p.mu.Unlock()

	dst.mu.Lock()
	dst.connections = append(dst.connections, p)
	dst.mu.Unlock()
}

// ErrNotConnected is returned by Disconnect when the two ports share no
// connection to remove.
var ErrNotConnected = fmt.Errorf("port: connection not found")

// Disconnect removes the edge between p and dst in both directions. It
// returns ErrNotConnected if no such edge existed.
func Disconnect(p, dst *Port) error {
	removed := p.removeConnection(dst)
	dst.removeConnection(p)
	if !removed {
		return ErrNotConnected
	}
	return nil
}

func (p *Port) removeConnection(other *Port) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.connections {
		if c == other {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			return true
		}
	}
	return false
}

// Connections returns a snapshot of the ports currently connected to p.
func (p *Port) Connections() []*Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Port, len(p.connections))
	copy(out, p.connections)
	return out
}

// ConnectionCount returns the number of ports connected to p.
func (p *Port) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}

// HasConnections reports whether any port is connected to p.
func (p *Port) HasConnections() bool {
	return p.ConnectionCount() > 0
}

// Setup resets p for a new processing cycle: marks it unfinished so the
// next Process call recomputes the buffer.
func (p *Port) Setup() {
	p.mu.Lock()
	p.finished = false
	p.mu.Unlock()
}

// Process sums every connected source's buffer into p's own buffer and
// marks p finished. Safe to call more than once per cycle: only the
// first call after Setup does any work.
func (p *Port) Process() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	for i := range p.buffer {
		p.buffer[i] = 0
	}
	for _, src := range p.connections {
		src.sumInto(p.buffer)
	}
	p.finished = true
}

// MarkFinished marks p complete for this cycle without touching its
// buffer: used for ports that are filled by something other than their
// own connection list (a direct hardware write, an external upstream
// track not yet wired) and so must not be zeroed by a summing pass.
func (p *Port) MarkFinished() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
}

// SumFrom zeroes p's buffer and sums only the given sources into it,
// ignoring p's own connection list, then marks p finished. Used by nodes
// that distinguish "internal" contributors (e.g. a track's own inputs
// and plugin chain) from external listeners that happen to share the
// same connection list, since Connect records edges symmetrically.
func (p *Port) SumFrom(sources []*Port) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	for i := range p.buffer {
		p.buffer[i] = 0
	}
	for _, src := range sources {
		src.sumInto(p.buffer)
	}
	p.finished = true
}

func (p *Port) sumInto(dst []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(dst)
	if len(p.buffer) < n {
		n = len(p.buffer)
	}
	for i := 0; i < n; i++ {
		dst[i] += p.buffer[i]
	}
}

// Ready reports whether p has no unfinished dependency: true if p itself
// already finished this cycle, or it has no connections, or every
// connected source has already finished.
func (p *Port) Ready() bool {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return true
	}
	conns := p.connections
	p.mu.Unlock()
	if len(conns) == 0 {
		return true
	}
	for _, c := range conns {
		if !c.isFinished() {
			return false
		}
	}
	return true
}

func (p *Port) isFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Buffer returns the port's current sample buffer. Callers must not
// retain the slice across a Setup/Process cycle boundary.
func (p *Port) Buffer() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer
}

// Resize replaces the buffer with a zeroed one of the given length,
// used when the cycle's frame count changes.
func (p *Port) Resize(frames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) != frames {
		p.buffer = make([]float32, frames)
	}
}

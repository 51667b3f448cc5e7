// Package stream implements the Protocol's streaming channel bindings
// (spec.md §3, §4.7): a bijective channel<->port table enforcing "at
// most one port per channel, at most one channel per port", and the
// bypass that forwards bound-channel traffic straight to the port's data
// handler instead of the protocol dispatcher.
//
// Grounded on the teacher's capability-index map pattern
// (core/loop.go's capIndex map[capKey]string), narrowed here from
// (domain,kind,name)->devID to channel<->portID, with the same
// "reject-if-already-present" invariant core/registry.go uses for
// duplicate builder registration.
package stream

import (
	"strings"
	"sync"

	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/protoerr"
)

// Table is the live channel<->port binding set for one session. Bindings
// are cleared on every new session (spec.md §4.8).
type Table struct {
	mu        sync.Mutex
	byChannel map[uint16]port.Port
	byPortID  map[string]uint16
}

// New returns an empty binding table.
func New() *Table {
	return &Table{byChannel: make(map[uint16]port.Port), byPortID: make(map[string]uint16)}
}

// streamer is the subset of *port.StreamingPort stream needs; declared
// narrowly so this package doesn't need the concrete type's full surface.
type streamer interface {
	port.Port
	Deliver(payload string) error
	BindTo(channel uint16)
	ClearBinding()
}

// Bind associates channel with p (spec.md §4.6 tag bSP). Channel 0 is
// reserved for control traffic (CHANNEL_INVALID); a channel or port
// already bound is TOO_MANY_BINDINGS.
func (t *Table) Bind(channel uint16, p port.Port) error {
	if channel == 0 {
		return protoerr.New(protoerr.ChannelInvalid, "channel 0 is reserved for control traffic")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.byChannel[channel]; taken {
		return protoerr.New(protoerr.TooManyBindings, "channel already bound", p.ID())
	}
	if _, bound := t.byPortID[p.ID()]; bound {
		return protoerr.New(protoerr.TooManyBindings, "port already bound to a channel", p.ID())
	}
	sp, ok := p.(streamer)
	if !ok {
		return protoerr.New(protoerr.WrongPortType, "port is not streaming-capable", p.ID())
	}
	t.byChannel[channel] = sp
	t.byPortID[p.ID()] = channel
	sp.BindTo(channel)
	return nil
}

// Unbind releases the binding for the port with id (spec.md §4.6 tag
// uSP). Unbinding a port that isn't bound is CHANNEL_INVALID.
func (t *Table) Unbind(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	channel, bound := t.byPortID[id]
	if !bound {
		return protoerr.New(protoerr.ChannelInvalid, "port is not bound", id)
	}
	p := t.byChannel[channel]
	delete(t.byChannel, channel)
	delete(t.byPortID, id)
	if sp, ok := p.(streamer); ok {
		sp.ClearBinding()
	}
	return nil
}

// Clear releases all bindings; session.Run calls it when its session
// ends.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byChannel = make(map[uint16]port.Port)
	t.byPortID = make(map[string]uint16)
}

// Dispatch forwards payload to the port bound to channel, reporting
// whether the channel was bound at all (spec.md §4.7: "the dispatcher
// first asks the streaming table whether the channel is currently
// bound"). Channel 0 is never bound (control channel), so Dispatch
// always reports false for it without needing a caller-side check.
func (t *Table) Dispatch(channel uint16, payload string) (bound bool, err error) {
	t.mu.Lock()
	p, ok := t.byChannel[channel]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}
	sp := p.(streamer)
	return true, sp.Deliver(payload)
}

// IDsOf is a small helper for diagnostics/tests: the bound port IDs in
// arbitrary order, comma-joined.
func (t *Table) IDsOf() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.byPortID))
	for id := range t.byPortID {
		ids = append(ids, id)
	}
	return strings.Join(ids, ",")
}

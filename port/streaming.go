package port

import (
	"context"
	"strconv"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// Unbound is the sentinel "no channel" binding value (spec.md §3).
const Unbound int32 = -1

// DataHandler receives a streaming payload forwarded by package stream
// once the port's channel binding is active (spec.md §4.7). It returns a
// port-local error (e.g. protoerr.PortError) to report back to the
// master, or nil on success.
type DataHandler func(payload string) error

// StreamingPort is the STREAMING port type (spec.md §3): a driver
// identifier, a flag word, a single channel binding, and a handler for
// inbound data once bound. Binding itself is enforced by package stream's
// registry (at most one port per channel and vice versa); this type only
// tracks its own current binding for Info() and DoWork().
type StreamingPort struct {
	Base
	driverID string
	bound    int32
	onData   DataHandler
}

// NewStreamingPort constructs an unbound STREAMING port.
func NewStreamingPort(base Base, driverID string, onData DataHandler) *StreamingPort {
	return &StreamingPort{Base: base, driverID: driverID, bound: Unbound, onData: onData}
}

func (p *StreamingPort) Type() Type { return Streaming }

func (p *StreamingPort) DriverID() string { return p.driverID }

// BoundChannel returns the currently bound channel, or Unbound.
func (p *StreamingPort) BoundChannel() int32 { return p.bound }

// BindTo and ClearBinding are called exclusively by package stream, which
// owns the channel<->port bijection invariant; StreamingPort itself just
// records the result.
func (p *StreamingPort) BindTo(channel uint16) { p.bound = int32(channel) }
func (p *StreamingPort) ClearBinding()         { p.bound = Unbound }

// Deliver forwards an inbound streaming payload to the handler (spec.md
// §4.7). Called by package stream once it has resolved the channel to
// this port.
func (p *StreamingPort) Deliver(payload string) error {
	if p.onData == nil {
		return nil
	}
	if err := p.onData(payload); err != nil {
		return protoerr.Wrap(protoerr.PortError, "stream-deliver", err)
	}
	return nil
}

// Info renders "<driver-id>:<bound-channel-or--1>".
func (p *StreamingPort) Info() string {
	return p.driverID + ":" + strconv.FormatInt(int64(p.bound), 10)
}

func (p *StreamingPort) DoWork(ctx context.Context) error { return nil }

// Package transport is the Protocol's pluggable link layer (spec.md
// §4.1's C1): CORE only ever talks to a Conn, a byte-at-a-time,
// context-bounded reader/writer pair that frame.Reader/frame.Writer are
// built directly on top of. Concrete transports (nettransport,
// serialtransport, ...) register a Factory under a name; a host picks one
// by name in its own configuration, the same split the teacher's
// services/bridge/bridge.go draws between its Transport interface and the
// registered uartTransport/tcpTransport factories behind RegisterTransport.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Conn is what a session needs from a connected link: single-byte reads
// bounded by ctx (standing in for the spec's idle/read timeout), whole
// writes, and a Close. Any frame.ByteReader/frame.ByteWriter works the
// same way session's own tests stand one up with a net.Pipe: a real
// transport just has to translate its underlying timeout error into
// ctx.Err() so callers can rely on errors.Is(err, context.DeadlineExceeded)
// regardless of what's underneath.
type Conn interface {
	ReadByte(ctx context.Context) (byte, error)
	Write(p []byte) (int, error)
	Close() error
}

// Dialer opens a fresh Conn to one named transport's configured target,
// mirroring the teacher's bridge.Transport.Open.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// Config names a transport type and carries its free-form parameters
// (e.g. network/address for nettransport, device for serialtransport). spec.md leaves dial configuration entirely to the
// host, outside CORE's own wire format, so a flat string map is enough
// for any Factory to interpret; there's no call to pull in a JSON/struct
// layer the way the teacher's services/hal/config.go does for its own,
// CORE-internal, bus/pin configuration.
type Config struct {
	Type   string
	Params map[string]string
}

// Factory builds a Dialer from a Config whose Type it recognises.
type Factory func(Config) (Dialer, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a named transport factory. Transports register
// themselves from an init(), the same open registration point as the
// teacher's bridge.RegisterTransport.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// New looks up cfg.Type's registered factory and builds a Dialer from it.
func New(cfg Config) (Dialer, error) {
	mu.RLock()
	f, ok := factories[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, errors.New("transport: unknown type " + cfg.Type)
	}
	return f(cfg)
}

// DialWithBackoff calls d.Dial until it succeeds or ctx is cancelled,
// doubling the retry delay from min towards max on each failure and
// reporting each failed attempt through onRetry (which may be nil).
// Grounded on the teacher's bridge.go dial loop (its runLink, backed by
// backoffSeq and sleep), generalized from one hard-coded UART dial to any
// registered Dialer.
func DialWithBackoff(ctx context.Context, d Dialer, min, max time.Duration, onRetry func(err error, delay time.Duration)) (Conn, error) {
	next := backoffSeq(min, max)
	for {
		conn, err := d.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		delay := next()
		if onRetry != nil {
			onRetry(err, delay)
		}
		if !sleep(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

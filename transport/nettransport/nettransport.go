// Package nettransport adapts a net.Conn (TCP, Unix socket, ...) to
// transport.Conn, the link a host uses for any network-reachable slave.
// Grounded on the teacher's services/bridge/bridge.go framed I/O, which
// likewise sits directly on a net.Conn; generalized here from the
// teacher's single injected UART link to a registry entry any host config
// can select by network name.
package nettransport

import (
	"context"
	"net"
	"time"

	"github.com/jangala-dev/opdi-go/transport"
)

func init() {
	transport.Register("net", func(cfg transport.Config) (transport.Dialer, error) {
		return &dialer{
			network: cfg.Params["network"],
			address: cfg.Params["address"],
		}, nil
	})
}

type dialer struct{ network, address string }

func (d *dialer) String() string { return "net:" + d.network + ":" + d.address }

func (d *dialer) Dial(ctx context.Context) (transport.Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, d.network, d.address)
	if err != nil {
		return nil, err
	}
	return &conn{c}, nil
}

// conn adapts a net.Conn's deadline-based Read to the context-bounded,
// byte-at-a-time ReadByte frame.Reader expects; Write and Close are
// promoted straight from the embedded net.Conn.
type conn struct {
	net.Conn
}

func (c *conn) ReadByte(ctx context.Context) (byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.Conn.SetReadDeadline(dl)
	} else {
		c.Conn.SetReadDeadline(time.Time{})
	}
	var b [1]byte
	if _, err := c.Conn.Read(b[:]); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	return b[0], nil
}

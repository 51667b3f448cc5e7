//go:build linux

// Package serialtransport adapts a real serial line, via
// github.com/daedaluz/goserial, to transport.Conn, so a serial-attached
// slave gets a concrete transport the same way a networked one gets from
// nettransport. Grounded on the teacher's services/bridge/bridge.go
// uartTransport, which opens and frames a UART the same way; goserial's
// own *Port.ReadTimeout stands in for the teacher's termios-configured
// read deadline.
package serialtransport

import (
	"context"
	"errors"
	"os"
	"time"

	serial "github.com/daedaluz/goserial"
	"github.com/jangala-dev/opdi-go/transport"
)

func init() {
	transport.Register("serial", func(cfg transport.Config) (transport.Dialer, error) {
		return &dialer{device: cfg.Params["device"]}, nil
	})
}

// pollInterval bounds each individual ReadTimeout call so ReadByte can
// notice ctx's own deadline (or cancellation) promptly instead of
// blocking for the device's full configured timeout.
const pollInterval = 100 * time.Millisecond

type dialer struct{ device string }

func (d *dialer) String() string { return "serial:" + d.device }

func (d *dialer) Dial(ctx context.Context) (transport.Conn, error) {
	opts := serial.NewOptions().SetReadTimeout(pollInterval)
	p, err := serial.Open(d.device, opts)
	if err != nil {
		return nil, err
	}
	return &conn{Port: p}, nil
}

type conn struct{ *serial.Port }

// ReadByte polls the line in pollInterval-sized slices until a byte
// arrives, ctx is done, or the line reports a real error. *serial.Port's
// ReadTimeout is a fixed per-call duration rather than a deadline, so
// unlike nettransport's SetReadDeadline this has to loop by hand.
func (c *conn) ReadByte(ctx context.Context) (byte, error) {
	var b [1]byte
	for {
		timeout := pollInterval
		if dl, ok := ctx.Deadline(); ok {
			remaining := time.Until(dl)
			if remaining <= 0 {
				return 0, context.DeadlineExceeded
			}
			if remaining < timeout {
				timeout = remaining
			}
		}
		n, err := c.Port.ReadTimeout(b[:], timeout)
		if n == 1 {
			return b[0], nil
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
}

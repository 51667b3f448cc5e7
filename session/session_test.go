package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jangala-dev/opdi-go/dispatch"
	"github.com/jangala-dev/opdi-go/frame"
	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/protoerr"
	"github.com/jangala-dev/opdi-go/registry"
	"github.com/jangala-dev/opdi-go/stream"
)

// pipeAdapter wraps a net.Conn half to satisfy frame.ByteReader/ByteWriter,
// the same small shim handshake_test.go and the real transport package use.
type pipeAdapter struct{ net.Conn }

func (p pipeAdapter) ReadByte(ctx context.Context) (byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		p.Conn.SetReadDeadline(dl)
	} else {
		p.Conn.SetReadDeadline(time.Time{})
	}
	var b [1]byte
	if _, err := p.Conn.Read(b[:]); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	return b[0], nil
}

type harness struct {
	master *frame.Reader
	mw     *frame.Writer
	sess   *Session
	reg    *registry.Registry
	done   chan protoerr.Code
}

// newHarness registers ports before building the session, since New
// schedules periodic refreshes only for ports already registered.
func newHarness(t *testing.T, idle time.Duration, ports ...port.Port) *harness {
	t.Helper()
	master, slave := net.Pipe()
	t.Cleanup(func() { master.Close(); slave.Close() })

	reg := registry.New()
	for _, p := range ports {
		reg.AddPort(p)
	}
	streams := stream.New()
	disp := dispatch.New(reg, streams)

	sr := frame.NewReader(pipeAdapter{slave}, 0)
	sw := frame.NewWriter(pipeAdapter{slave}, 0)
	sess := New(reg, disp, streams, sr, sw, Config{IdleTimeout: idle})

	return &harness{
		master: frame.NewReader(pipeAdapter{master}, 0),
		mw:     frame.NewWriter(pipeAdapter{master}, 0),
		sess:   sess,
		reg:    reg,
		done:   make(chan protoerr.Code, 1),
	}
}

func (h *harness) run() {
	go func() { h.done <- h.sess.Run(context.Background()) }()
}

func (h *harness) expectCode(t *testing.T, want protoerr.Code) {
	t.Helper()
	select {
	case got := <-h.done:
		if got != want {
			t.Fatalf("expected code %v, got %v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session to end")
	}
}

func (h *harness) readMessage(t *testing.T) frame.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := h.master.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("reading from session: %v", err)
	}
	return msg
}

func TestDisconnectRequestEndsSessionImmediately(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.sess.Disconnect()
	h.run()

	msg := h.readMessage(t)
	if msg.Channel != 0 || msg.Payload != "Dis" {
		t.Fatalf("expected control Dis, got %+v", msg)
	}
	h.expectCode(t, protoerr.Disconnected)
}

func TestShutdownRequestClearsRegistryAndEndsSession(t *testing.T) {
	h := newHarness(t, time.Minute)
	closed := false
	h.reg.AddPort(closingPort{digitalPort("D1"), func() { closed = true }})
	h.sess.Shutdown()
	h.run()

	h.expectCode(t, protoerr.Shutdown)
	if !closed {
		t.Fatal("expected registry.Clear() to close ports on shutdown")
	}
	if len(h.reg.IteratePorts()) != 0 {
		t.Fatal("expected registry to be empty after shutdown")
	}
}

func TestReconfigureEmitsControlMessageThenContinues(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.sess.Reconfigure()
	h.run()

	msg := h.readMessage(t)
	if msg.Channel != 0 || msg.Payload != "Reconf" {
		t.Fatalf("expected control Reconf, got %+v", msg)
	}

	if err := h.mw.WriteMessage(0, "Dis"); err != nil {
		t.Fatal(err)
	}
	h.expectCode(t, protoerr.Disconnected)
}

func TestPeerDisconnectEndsSession(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.run()
	if err := h.mw.WriteMessage(0, "Dis"); err != nil {
		t.Fatal(err)
	}
	h.expectCode(t, protoerr.Disconnected)
}

func TestIdleTimeoutEmitsDebugThenDisconnects(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond)
	h.run()

	msg := h.readMessage(t)
	if msg.Channel != 0 || msg.Payload != "Debug:Idle timeout!" {
		t.Fatalf("expected Debug:Idle timeout!, got %+v", msg)
	}
	msg = h.readMessage(t)
	if msg.Channel != 0 || msg.Payload != "Dis" {
		t.Fatalf("expected Dis, got %+v", msg)
	}
	h.expectCode(t, protoerr.Disconnected)
}

func TestDigitalSetGetRoundTripThroughSession(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.reg.AddPort(digitalPort("D1"))
	h.run()

	if err := h.mw.WriteMessage(20, "sDL:D1:1"); err != nil {
		t.Fatal(err)
	}
	reply := h.readMessage(t)
	if reply.Channel != 20 || reply.Payload != "DS:D1:3:1" {
		t.Fatalf("expected DS:D1:3:1 on channel 20, got %+v", reply)
	}

	if err := h.mw.WriteMessage(21, "gDS:D1"); err != nil {
		t.Fatal(err)
	}
	reply = h.readMessage(t)
	if reply.Channel != 21 || reply.Payload != "DS:D1:3:1" {
		t.Fatalf("expected DS:D1:3:1 on channel 21, got %+v", reply)
	}

	if err := h.mw.WriteMessage(0, "Dis"); err != nil {
		t.Fatal(err)
	}
	h.expectCode(t, protoerr.Disconnected)
}

func TestStreamingBypassDeliversRawPayload(t *testing.T) {
	h := newHarness(t, time.Minute)
	received := make(chan string, 1)
	h.reg.AddPort(port.NewStreamingPort(port.NewBase("ST1", "ST1", port.Input), "uart0", func(payload string) error {
		received <- payload
		return nil
	}))
	h.run()

	if err := h.mw.WriteMessage(20, "bSP:ST1:7"); err != nil {
		t.Fatal(err)
	}
	reply := h.readMessage(t)
	if reply.Payload != "OK" {
		t.Fatalf("expected bind OK, got %+v", reply)
	}

	if err := h.mw.WriteMessage(7, "raw-telemetry"); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-received:
		if got != "raw-telemetry" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamed payload")
	}

	if err := h.mw.WriteMessage(0, "Dis"); err != nil {
		t.Fatal(err)
	}
	h.expectCode(t, protoerr.Disconnected)
}

func TestPeriodicRefreshEmitsRefreshMessage(t *testing.T) {
	h := newHarness(t, time.Minute, port.NewDigitalPort(port.NewBase("D1", "D1", port.Output,
		port.WithRefresh(port.RefreshMode{Kind: port.RefreshPeriodic, PeriodMs: 20})),
		port.OutputMode, port.Low))
	h.run()

	msg := h.readMessage(t)
	if msg.Channel != 0 || msg.Payload != "Refresh:D1" {
		t.Fatalf("expected Refresh:D1, got %+v", msg)
	}
}

func digitalPort(id string) *port.DigitalPort {
	return port.NewDigitalPort(port.NewBase(id, id, port.Bidi), port.OutputMode, port.Low)
}

// closingPort wraps a *port.DigitalPort to additionally satisfy the
// optional Close() error registry.Clear() looks for.
type closingPort struct {
	*port.DigitalPort
	onClose func()
}

func (c closingPort) Close() error {
	c.onClose()
	return nil
}

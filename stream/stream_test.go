package stream

import (
	"testing"

	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/protoerr"
)

func newStreamPort(id string, onData port.DataHandler) *port.StreamingPort {
	return port.NewStreamingPort(port.NewBase(id, id, port.Input), "uart0", onData)
}

func TestBindRejectsControlChannel(t *testing.T) {
	table := New()
	err := table.Bind(0, newStreamPort("s1", nil))
	if protoerr.Of(err) != protoerr.ChannelInvalid {
		t.Fatalf("expected ChannelInvalid, got %v", err)
	}
}

func TestBindAtMostOnePortPerChannel(t *testing.T) {
	table := New()
	p1 := newStreamPort("s1", nil)
	p2 := newStreamPort("s2", nil)
	if err := table.Bind(5, p1); err != nil {
		t.Fatal(err)
	}
	if err := table.Bind(5, p2); protoerr.Of(err) != protoerr.TooManyBindings {
		t.Fatalf("expected TooManyBindings, got %v", err)
	}
}

func TestBindAtMostOneChannelPerPort(t *testing.T) {
	table := New()
	p := newStreamPort("s1", nil)
	if err := table.Bind(5, p); err != nil {
		t.Fatal(err)
	}
	if err := table.Bind(6, p); protoerr.Of(err) != protoerr.TooManyBindings {
		t.Fatalf("expected TooManyBindings on second channel for same port, got %v", err)
	}
}

func TestDispatchBypassesProtocol(t *testing.T) {
	var got string
	p := newStreamPort("s1", func(payload string) error {
		got = payload
		return nil
	})
	table := New()
	if err := table.Bind(7, p); err != nil {
		t.Fatal(err)
	}
	bound, err := table.Dispatch(7, "raw-data")
	if !bound || err != nil {
		t.Fatalf("bound=%v err=%v", bound, err)
	}
	if got != "raw-data" {
		t.Fatalf("got %q", got)
	}
	if p.BoundChannel() != 7 {
		t.Fatalf("expected port to record its own binding, got %d", p.BoundChannel())
	}
}

func TestDispatchUnboundChannelReportsFalse(t *testing.T) {
	table := New()
	bound, err := table.Dispatch(3, "x")
	if bound || err != nil {
		t.Fatalf("expected (false, nil) for unbound channel, got (%v, %v)", bound, err)
	}
}

func TestUnbindThenRebind(t *testing.T) {
	table := New()
	p := newStreamPort("s1", nil)
	if err := table.Bind(5, p); err != nil {
		t.Fatal(err)
	}
	if err := table.Unbind("s1"); err != nil {
		t.Fatal(err)
	}
	if p.BoundChannel() != port.Unbound {
		t.Fatalf("expected port to clear its own binding, got %d", p.BoundChannel())
	}
	if err := table.Bind(6, p); err != nil {
		t.Fatalf("rebind after unbind should succeed: %v", err)
	}
}

func TestUnbindUnknownPort(t *testing.T) {
	table := New()
	if err := table.Unbind("nope"); protoerr.Of(err) != protoerr.ChannelInvalid {
		t.Fatalf("expected ChannelInvalid, got %v", err)
	}
}

func TestClearRemovesAllBindings(t *testing.T) {
	table := New()
	table.Bind(1, newStreamPort("s1", nil))
	table.Bind(2, newStreamPort("s2", nil))
	table.Clear()
	bound, _ := table.Dispatch(1, "x")
	if bound {
		t.Fatal("expected no bindings after Clear")
	}
}

package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeConn struct{}

func (fakeConn) ReadByte(ctx context.Context) (byte, error) { return 0, nil }
func (fakeConn) Write(p []byte) (int, error)                { return len(p), nil }
func (fakeConn) Close() error                               { return nil }

type fakeDialer struct {
	failures int
	dialed   int
}

func (d *fakeDialer) String() string { return "fake" }

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.dialed++
	if d.dialed <= d.failures {
		return nil, errors.New("dial failed")
	}
	return fakeConn{}, nil
}

func TestNewUnknownTypeFails(t *testing.T) {
	if _, err := New(Config{Type: "does-not-exist"}); err == nil {
		t.Fatal("expected an error for an unregistered transport type")
	}
}

func TestRegisterAndNewRoundTrip(t *testing.T) {
	Register("test-echo", func(cfg Config) (Dialer, error) {
		return &fakeDialer{}, nil
	})
	d, err := New(Config{Type: "test-echo"})
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "fake" {
		t.Fatalf("unexpected dialer: %v", d)
	}
}

func TestDialWithBackoffRetriesThenSucceeds(t *testing.T) {
	d := &fakeDialer{failures: 2}
	var retries int
	conn, err := DialWithBackoff(context.Background(), d, time.Millisecond, 5*time.Millisecond, func(err error, delay time.Duration) {
		retries++
	})
	if err != nil {
		t.Fatal(err)
	}
	if conn == nil {
		t.Fatal("expected a connection")
	}
	if retries != 2 {
		t.Fatalf("expected 2 retries, got %d", retries)
	}
}

func TestDialWithBackoffStopsOnCancellation(t *testing.T) {
	d := &fakeDialer{failures: 1000}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := DialWithBackoff(ctx, d, time.Millisecond, 2*time.Millisecond, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffSeqDoublesUpToMax(t *testing.T) {
	next := backoffSeq(time.Millisecond, 4*time.Millisecond)
	got := []time.Duration{next(), next(), next(), next()}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %v want %v", i, got[i], want[i])
		}
	}
}

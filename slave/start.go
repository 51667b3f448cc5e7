package slave

import (
	"context"

	"github.com/jangala-dev/opdi-go/dispatch"
	"github.com/jangala-dev/opdi-go/frame"
	"github.com/jangala-dev/opdi-go/handshake"
	"github.com/jangala-dev/opdi-go/protoerr"
	"github.com/jangala-dev/opdi-go/session"
	"github.com/jangala-dev/opdi-go/stream"
)

// Start runs one session over conn from the handshake through to
// disconnect, returning the terminating status code (spec.md §6.2's
// start(initial_message): "runs one session from the first received
// control message to disconnect; returns the terminating status code").
// The handshake's own first received line is conn's first framed
// message, read inside handshake.Run, so there is no separate
// initial_message parameter to thread through here.
//
// A Shutdown requested before Start was ever called (or between two
// sessions) is honored immediately, without running a handshake at all,
// the same way OPDI::waiting checks shutdownRequested before anything
// else.
func (s *Slave) Start(ctx context.Context, conn Conn) protoerr.Code {
	if s.takePendingShutdown() {
		s.reg.Clear()
		return protoerr.Shutdown
	}

	r := frame.NewReader(conn, 0)
	w := frame.NewWriter(conn, 0)

	hsCfg := handshake.Config{
		SlaveName:          s.slaveName,
		Encoding:           s.encoding,
		Ciphers:            s.ciphers,
		SupportedProtocols: s.protocols,
		Username:           s.username,
		Password:           s.password,
		AuthTimeout:        s.authTimeout,
	}

	if _, err := handshake.Run(ctx, r, w, hsCfg); err != nil {
		return protoerr.Of(err)
	}

	streams := stream.New()
	disp := dispatch.New(s.reg, streams)
	if s.hooks.Persist != nil {
		disp.SetPersistHook(s.hooks.Persist)
	}

	sess := session.New(s.reg, disp, streams, r, w, session.Config{
		IdleTimeout: s.idleTimeout,
		Hooks:       session.Hooks{Debug: s.hooks.Debug},
	})

	s.setCurrent(sess)
	defer s.setCurrent(nil)

	return sess.Run(ctx)
}

// Shutdown requests that the active session (if any) end with SHUTDOWN
// and release the registry; if no session is currently running, the
// request is honored at the start of the next Start call instead
// (spec.md §6.2, mirroring OPDI::shutdown's deferred flag).
func (s *Slave) Shutdown() {
	s.mu.Lock()
	cur := s.cur
	if cur == nil {
		s.pendingShutdown = true
	}
	s.mu.Unlock()
	if cur != nil {
		cur.Shutdown()
	}
}

// Disconnect requests an ordered, non-error exit of the active session.
// It is a no-op if no session is currently running (spec.md §6.2; the
// original OPDI::disconnect likewise returns DISCONNECTED immediately
// when not connected).
func (s *Slave) Disconnect() {
	if cur := s.current(); cur != nil {
		cur.Disconnect()
	}
}

// Reconfigure asks the connected peer to re-fetch the port list. A no-op
// with no active session.
func (s *Slave) Reconfigure() {
	if cur := s.current(); cur != nil {
		cur.Reconfigure()
	}
}

// Refresh marks the named ports (or every port, if ids is empty) dirty
// for the active session. A no-op with no active session.
func (s *Slave) Refresh(ids []string) {
	if cur := s.current(); cur != nil {
		cur.Refresh(ids)
	}
}

// SendDebug writes a Debug control message to the connected peer at
// once. A no-op with no active session.
func (s *Slave) SendDebug(text string) error {
	if cur := s.current(); cur != nil {
		return cur.SendDebug(text)
	}
	return nil
}

func (s *Slave) setCurrent(sess *session.Session) {
	s.mu.Lock()
	s.cur = sess
	s.mu.Unlock()
}

func (s *Slave) current() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Slave) takePendingShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.pendingShutdown
	s.pendingShutdown = false
	return v
}

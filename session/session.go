// Package session drives one connected Protocol session's straight-line
// message loop (spec.md §4.9, §5): receive, dispatch, work-tick, repeat,
// until a terminal condition ends the session with a code the host can log.
//
// Grounded directly on the teacher's services/hal/internal/core/loop.go
// HAL.Run: a single `for { ... }` pass that re-arms a reusable timer from
// the next scheduler wake before every blocking wait, with the scheduler
// itself (core/poller.go's Poller) inlined rather than run as its own
// goroutine, exactly as HAL does with pollWake/pollTimer. Where the teacher
// polls a capability, this loop instead raises a port's refresh-required
// flag and emits Refresh:<id> on the control channel (spec.md §4.5).
//
// Unlike the teacher, this loop never spawns a reader goroutine: the
// Protocol's single suspension point is the next framed read, so the
// session simply bounds frame.Reader.ReadMessage with a context deadline
// computed from whichever is sooner, the idle timeout or the next due
// refresh — a context.Context deadline standing in for HAL's pollTimer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jangala-dev/opdi-go/codec"
	"github.com/jangala-dev/opdi-go/dispatch"
	"github.com/jangala-dev/opdi-go/frame"
	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/protoerr"
	"github.com/jangala-dev/opdi-go/registry"
	"github.com/jangala-dev/opdi-go/stream"
)

// activityFloor is the lowest channel number whose traffic counts as real
// activity for idle-timeout purposes (spec.md §4.9): channels 1-19 carry
// low-numbered protocol traffic that must not by itself keep a session
// alive forever; channels >= 20 are ordinary request/streaming channels
// and do reset the idle clock.
const activityFloor = 20

// defaultRefreshJitterFrac is this driver's own choice of how much jitter to
// spread a periodic refresh's re-arm over, expressed as a fraction of the
// period. spec.md leaves the jitter magnitude unspecified; 10% mirrors the
// teacher's config-driven jitter/interval ratios seen in practice without
// requiring a new host-facing knob.
const defaultRefreshJitterFrac = 10

// Hooks are the host callbacks a session drives while it runs (spec.md
// §6.2). Debug receives the text of every Debug control message the peer
// sends; messages sent via Session.SendDebug do not reach it.
type Hooks struct {
	Debug func(text string)
}

// Config configures one session run.
type Config struct {
	IdleTimeout time.Duration
	Hooks       Hooks
}

// Session owns one connection's registry, dispatcher and streaming table
// for the lifetime of one handshake-to-disconnect run. A Session must not
// be used from more than one goroutine at a time except through Shutdown/
// Disconnect/Reconfigure/Refresh/SendDebug, which merely flag a request the
// loop goroutine picks up at the top of its next pass (spec.md §5: "the
// host is responsible for serializing its own calls into CORE").
type Session struct {
	reg     *registry.Registry
	disp    *dispatch.Dispatcher
	streams *stream.Table
	reader  *frame.Reader
	writer  *frame.Writer
	cfg     Config
	sched   *scheduler

	mu                   sync.Mutex
	shutdownRequested    bool
	disconnectRequested  bool
	reconfigureRequested bool
	refreshAll           bool
	refreshIDs           map[string]bool
}

// New constructs a session ready to Run over an already-negotiated
// connection (handshake has already completed; reader/writer already carry
// any negotiated cipher). Ports with a RefreshPeriodic mode are scheduled
// immediately so their first Refresh:<id> lands on time.
func New(reg *registry.Registry, disp *dispatch.Dispatcher, streams *stream.Table, r *frame.Reader, w *frame.Writer, cfg Config) *Session {
	s := &Session{
		reg: reg, disp: disp, streams: streams,
		reader: r, writer: w, cfg: cfg,
		sched:      newScheduler(),
		refreshIDs: make(map[string]bool),
	}
	for _, p := range reg.IteratePorts() {
		if mode := p.RefreshMode(); mode.Kind == port.RefreshPeriodic && mode.PeriodMs > 0 {
			period := time.Duration(mode.PeriodMs) * time.Millisecond
			s.sched.upsert(p.ID(), period, period/defaultRefreshJitterFrac)
		}
	}
	return s
}

// Run executes the session loop until a terminal condition (spec.md §4.9):
// an ordered Disconnect, a host Shutdown, a peer Err, an idle timeout, or a
// malformed frame/I/O error. It returns the terminating code; Fatal()/
// Terminal() on protoerr.Code tell the caller which kind it was.
func (s *Session) Run(ctx context.Context) protoerr.Code {
	lastActivity := time.Now()
	defer s.streams.Clear()

	for {
		if s.takeShutdownRequested() {
			s.reg.Clear()
			return protoerr.Shutdown
		}
		if s.takeDisconnectRequested() {
			_ = s.writer.WriteMessage(0, "Dis")
			return protoerr.Disconnected
		}
		if s.takeReconfigureRequested() {
			_ = s.writer.WriteMessage(0, "Reconf")
		}

		idleDeadline := lastActivity.Add(s.cfg.IdleTimeout)
		waitUntil := idleDeadline
		if w := s.sched.nextWait(); w >= 0 {
			if cand := time.Now().Add(w); cand.Before(waitUntil) {
				waitUntil = cand
			}
		}

		rctx, cancel := context.WithDeadline(ctx, waitUntil)
		msg, err := s.reader.ReadMessage(rctx)
		cancel()

		switch {
		case err == nil:
			if msg.Channel >= activityFloor {
				lastActivity = time.Now()
			}
			if code, done := s.handleMessage(msg); done {
				return code
			}

		case errors.Is(err, context.DeadlineExceeded):
			if !time.Now().Before(idleDeadline) {
				_ = s.writer.WriteMessage(0, "Debug:Idle timeout!")
				_ = s.writer.WriteMessage(0, "Dis")
				return protoerr.Disconnected
			}
			// Just the refresh scheduler's wake; fall through to the
			// per-pass tick below and loop again.

		case ctx.Err() != nil:
			// Caller (host) cancelled the run context directly.
			return protoerr.Shutdown

		default:
			return protoerr.IOError
		}

		if code := s.tick(ctx); code != protoerr.OK {
			return code
		}
	}
}

// tick runs once per loop pass regardless of whether a message arrived or
// the wait simply expired (spec.md §4.9's "drive each port's work-tick",
// generalized from the teacher's "fire at most one due poll per wake"):
// mark due-scheduled and host-forced ports dirty, drive every port's
// DoWork, then flush any resulting Refresh:<id> control messages.
func (s *Session) tick(ctx context.Context) protoerr.Code {
	for _, id := range s.sched.popDue() {
		if p, ok := s.reg.FindByID(id, true); ok {
			p.RequestRefresh()
		}
	}
	s.applyPendingRefresh()

	for _, p := range s.reg.IteratePorts() {
		if err := p.DoWork(ctx); err != nil {
			code := protoerr.Of(err)
			_ = s.writer.WriteMessage(0, "Err:"+code.String())
			return code
		}
	}

	for _, p := range s.reg.IteratePorts() {
		if p.RefreshRequired() {
			_ = s.writer.WriteMessage(0, "Refresh:"+p.ID())
			p.ClearRefreshRequired()
		}
	}
	return protoerr.OK
}

// handleMessage routes one received message: channel 0 is control traffic,
// any other channel is first offered to the streaming table (spec.md §4.7)
// and falls through to the protocol dispatcher only if it isn't bound.
// done reports whether the session should end, with code as its result.
func (s *Session) handleMessage(msg frame.Message) (code protoerr.Code, done bool) {
	if msg.Channel == 0 {
		return s.handleControl(msg.Payload)
	}

	bound, err := s.streams.Dispatch(msg.Channel, msg.Payload)
	if err != nil {
		// A streaming port's data handler failed; PORT_ERROR is
		// request-local, so report it and keep the session alive.
		_ = s.writer.WriteMessage(msg.Channel, "NOK:"+protoerr.Of(err).String())
		return protoerr.OK, false
	}
	if bound {
		return protoerr.OK, false
	}

	res, err := s.disp.Dispatch(msg.Payload)
	if err != nil {
		c := protoerr.Of(err)
		if c.Fatal() {
			_ = s.writer.WriteMessage(0, "Err:"+c.String())
			return c, true
		}
		_ = s.writer.WriteMessage(msg.Channel, "NOK:"+c.String())
		return protoerr.OK, false
	}
	if !res.Silent {
		_ = s.writer.WriteMessage(msg.Channel, res.Payload)
	}
	return protoerr.OK, false
}

// handleControl interprets a channel-0 message (spec.md §4.9): Dis/Err end
// the session, Debug reaches the host hook, a bare OK is accepted as this
// driver's idle ping (spec.md §6.1 names no dedicated idle-ping tag; the
// master never otherwise sends OK unprompted), and anything else
// unrecognized is silently ignored the same way dispatch ignores unknown
// request tags. Like all traffic below activityFloor, a ping does not
// reset the idle clock.
func (s *Session) handleControl(payload string) (protoerr.Code, bool) {
	parts, err := codec.Split(payload, 2, false)
	if err != nil || len(parts) == 0 {
		return protoerr.OK, false
	}
	switch parts[0] {
	case "Dis", "Disconnect":
		return protoerr.Disconnected, true
	case "Err":
		return protoerr.ProtocolError, true
	case "Debug":
		if len(parts) > 1 {
			s.debug(parts[1])
		}
		return protoerr.OK, false
	case "OK":
		return protoerr.OK, false
	default:
		return protoerr.OK, false
	}
}

func (s *Session) debug(text string) {
	if s.cfg.Hooks.Debug != nil {
		s.cfg.Hooks.Debug(text)
	}
}

// SendDebug writes a Debug control message to the peer at once (spec.md
// §6.2's send_debug). Per this package's concurrency contract the caller is
// expected to serialize this against Run the same way it would any other
// embedding call.
func (s *Session) SendDebug(text string) error {
	return s.writer.WriteMessage(0, "Debug:"+text)
}

// Shutdown requests that the next loop pass end the session with SHUTDOWN
// and release the registry (spec.md §6.2).
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
}

// Disconnect requests an ordered, non-error exit (spec.md §6.2).
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.disconnectRequested = true
	s.mu.Unlock()
}

// Reconfigure asks the peer to re-fetch the port list, e.g. after the host
// adds or removes ports at runtime (spec.md §6.2).
func (s *Session) Reconfigure() {
	s.mu.Lock()
	s.reconfigureRequested = true
	s.mu.Unlock()
}

// Refresh marks the named ports (or every port, if ids is empty) dirty so
// the next loop pass emits a Refresh:<id> for each (spec.md §6.2).
func (s *Session) Refresh(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		s.refreshAll = true
		return
	}
	for _, id := range ids {
		s.refreshIDs[id] = true
	}
}

func (s *Session) applyPendingRefresh() {
	s.mu.Lock()
	all := s.refreshAll
	s.refreshAll = false
	ids := s.refreshIDs
	s.refreshIDs = make(map[string]bool)
	s.mu.Unlock()

	if all {
		for _, p := range s.reg.IteratePorts() {
			p.RequestRefresh()
		}
		return
	}
	for id := range ids {
		if p, ok := s.reg.FindByID(id, true); ok {
			p.RequestRefresh()
		}
	}
}

func (s *Session) takeShutdownRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.shutdownRequested
	s.shutdownRequested = false
	return v
}

func (s *Session) takeDisconnectRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.disconnectRequested
	s.disconnectRequested = false
	return v
}

func (s *Session) takeReconfigureRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.reconfigureRequested
	s.reconfigureRequested = false
	return v
}

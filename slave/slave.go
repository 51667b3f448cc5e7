// Package slave is the embedding facade a host program builds against
// (spec.md §6.2): configure a slave identity, add ports and groups, then
// run sessions against connections the host supplies. It wires together
// registry, dispatch, stream, handshake and session the same way the
// teacher's services/hal package wires its Resources into a single
// top-level HAL, and the way the original OPDI C++ wrapper's OPDI class
// (_examples/original_source/code/c/common/cppwrapper/OPDI.cpp) wires
// opdi_slave_protocol.c's free functions behind one object.
package slave

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/opdi-go/cipher"
	"github.com/jangala-dev/opdi-go/persist"
	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/registry"
	"github.com/jangala-dev/opdi-go/session"
)

// Conn is the minimal connection a host hands to Start: a byte-at-a-time,
// context-bounded reader/writer pair, the same shape transport.Conn
// satisfies. Declared independently here (rather than importing
// transport) so a host can also drive a Slave directly over a bare
// net.Pipe or test double without pulling in the transport registry.
type Conn interface {
	ReadByte(ctx context.Context) (byte, error)
	Write(p []byte) (int, error)
}

// Hooks are the host callbacks a Slave drives (spec.md §6.2's send_debug
// plumbing, §6.3's persist plumbing).
type Hooks struct {
	// Debug receives every Debug control message's text.
	Debug func(text string)
	// Persist, if set, is called after a value change on a port marked
	// Persistent (spec.md §6.3). The host is responsible for turning
	// this into a persist.Fields write against its own store.
	Persist func(p port.Port)
}

// Slave holds one slave identity's configuration and port registry across
// however many sessions it serves (spec.md §6.2). It is not itself
// safe for concurrent Start calls: the Protocol is one session at a time
// per registry, the same single-threaded assumption spec.md §5 states
// explicitly.
type Slave struct {
	reg *registry.Registry

	slaveName   string
	encoding    string
	languages   string
	username    string
	password    string
	idleTimeout time.Duration
	ciphers     map[string]cipher.Named
	protocols   []string
	authTimeout time.Duration
	hooks       Hooks

	mu              sync.Mutex
	cur             *session.Session
	pendingShutdown bool
}

// New returns a Slave with no identity configured yet; call Setup before
// adding ports.
func New() *Slave {
	return &Slave{reg: registry.New(), encoding: "utf-8", protocols: []string{"BP"}}
}

// Setup configures the slave's name and idle timeout (spec.md §6.2). It
// resets any pending shutdown flag, mirroring the original OPDI::setup's
// "this->shutdownRequested = false".
func (s *Slave) Setup(slaveName string, idleTimeout time.Duration) {
	s.slaveName = slaveName
	s.idleTimeout = idleTimeout
	s.mu.Lock()
	s.pendingShutdown = false
	s.mu.Unlock()
}

// SetEncoding sets the negotiated rendering charset name (spec.md §6.1);
// default is "utf-8".
func (s *Slave) SetEncoding(encoding string) { s.encoding = encoding }

// SetLanguages records a host-chosen locale list. The Protocol's own wire
// format has no slot for it (spec.md never gives it wire effect beyond
// the embedding call itself); a host that cares about it surfaces it
// through its own extended info, not through CORE.
func (s *Slave) SetLanguages(languages string) { s.languages = languages }

// SetUsername/SetPassword configure the optional Auth credential checked
// during handshake (spec.md §4.8). A non-empty password turns the Auth
// step on; with an empty password no Auth step runs, whatever the
// username.
func (s *Slave) SetUsername(username string) { s.username = username }
func (s *Slave) SetPassword(password string) { s.password = password }

// SetCiphers offers these named block ciphers during handshake (spec.md
// §4.2, §4.8), keyed by the name negotiated on the wire.
func (s *Slave) SetCiphers(ciphers map[string]cipher.Named) { s.ciphers = ciphers }

// SetProtocols sets the protocol variants this slave offers, in
// preference order; "BP" is implied even if omitted, since spec.md §4.8
// requires a basic fallback.
func (s *Slave) SetProtocols(protocols []string) {
	hasBP := false
	for _, p := range protocols {
		if p == "BP" {
			hasBP = true
		}
	}
	if !hasBP {
		protocols = append(append([]string{}, protocols...), "BP")
	}
	s.protocols = protocols
}

// SetAuthTimeout bounds how long the handshake waits for an Auth reply
// once required (spec.md §4.8).
func (s *Slave) SetAuthTimeout(d time.Duration) { s.authTimeout = d }

// SetHooks installs the host callbacks this Slave drives.
func (s *Slave) SetHooks(h Hooks) { s.hooks = h }

// AddPort registers a port (spec.md §6.2, §4.4). Panics on a duplicate
// ID, same as registry.AddPort: a host programming error caught at setup
// time, before any session runs.
func (s *Slave) AddPort(p port.Port) { s.reg.AddPort(p) }

// AddGroup registers a display group (spec.md §6.2).
func (s *Slave) AddGroup(g registry.Group) { s.reg.AddGroup(g) }

// FindPortByID looks a port up by ID (spec.md §6.2, §4.4).
func (s *Slave) FindPortByID(id string, caseSensitive bool) (port.Port, bool) {
	return s.reg.FindByID(id, caseSensitive)
}

// SortPorts returns the registry's ports in display order (spec.md §6.2).
func (s *Slave) SortPorts() []port.Port { return s.reg.SortPorts() }

// Prepare finalizes the port set before the first session: it computes
// display order and, if store is non-nil, re-applies each port's
// previously persisted fields (spec.md §6.3: "the host re-applies it
// during prepare()"). Call it once after every AddPort/AddGroup call.
func (s *Slave) Prepare(store persist.Store) []port.Port {
	ordered := s.reg.SortPorts()
	if store != nil {
		for _, p := range ordered {
			if fields, ok := store[p.ID()]; ok {
				_ = persist.Apply(p, fields)
			}
		}
	}
	return ordered
}

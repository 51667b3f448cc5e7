// Package port implements the Protocol's typed port model (spec.md §3,
// §4.5, §6.1): a closed family of DIGITAL/ANALOG/SELECT/DIAL/STREAMING
// endpoints sharing a uniform introspection surface, plus type-specific
// get/set operations enforcing each type's invariants.
//
// The Port interface and the embedded Base struct are grounded on the
// teacher's services/hal/internal/core/types.go Device interface
// (ID/Capabilities/Control/Close generalized here to ID/Type/Info/DoWork)
// and on services/hal/internal/halcore/types.go's per-domain typed value
// structs (GPIOPin/Pull, Edge) for the shape of small bounded enums.
package port

import (
	"context"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// Type is the closed set of port kinds (spec.md §3), sent as the first
// token of a gPI reply using the wire codes in spec.md §6.1.
type Type uint8

const (
	Digital Type = iota
	Analog
	Select
	Dial
	Streaming
)

// WireCode returns the port-type constant spec.md §6.1 puts on the wire.
func (t Type) WireCode() string {
	switch t {
	case Digital:
		return "0"
	case Analog:
		return "1"
	case Select:
		return "2"
	case Dial:
		return "3"
	case Streaming:
		return "4"
	default:
		return "?"
	}
}

func (t Type) String() string {
	switch t {
	case Digital:
		return "DIGITAL"
	case Analog:
		return "ANALOG"
	case Select:
		return "SELECT"
	case Dial:
		return "DIAL"
	case Streaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

// Direction is the port's data-flow capability (spec.md §3, §6.1).
type Direction uint8

const (
	Input Direction = iota
	Output
	Bidi
)

func (d Direction) WireCode() string {
	switch d {
	case Input:
		return "0"
	case Output:
		return "1"
	default:
		return "2"
	}
}

// ErrorState is a port's retained health (spec.md §3).
type ErrorState uint8

const (
	StateOK ErrorState = iota
	StateValueExpired
	StateValueNotAvailable
	StatePortError
	StateAccessDenied
)

// RefreshKind selects how a port's refresh-required flag gets raised
// (spec.md §3's "refresh mode").
type RefreshKind uint8

const (
	RefreshOff RefreshKind = iota
	RefreshPeriodic
	RefreshOnChange
)

// RefreshMode pairs a RefreshKind with its period, for RefreshPeriodic.
type RefreshMode struct {
	Kind     RefreshKind
	PeriodMs uint32
}

// Port is the uniform surface every port type implements (spec.md §4.5):
// identity/introspection plus a work-tick hook. Type-specific get/set
// operations live on the concrete types (DigitalPort, AnalogPort, ...);
// package dispatch type-asserts to reach them, reporting WRONG_PORT_TYPE
// when the assertion fails.
type Port interface {
	ID() string
	Label() string
	Type() Type
	Direction() Direction
	GroupID() string
	OrderID() int
	Flags() uint32
	Readonly() bool
	Hidden() bool
	Persistent() bool
	ErrorState() ErrorState
	SetErrorState(ErrorState)

	// RefreshRequired reports whether the port wants a Refresh:<id>
	// control message emitted on the next session pass (spec.md §4.5).
	RefreshRequired() bool
	ClearRefreshRequired()
	RefreshMode() RefreshMode
	// RequestRefresh marks the port dirty, used both by a port's own
	// DoWork and by the host's explicit refresh(port_ids|all) call
	// (spec.md §6.2).
	RequestRefresh()

	// Info renders the port's type-specific fields as a colon-separated
	// string. Package dispatch builds its gPI replies from the typed
	// getters instead; of the Info methods it uses only DigitalPort's, as
	// the "<mode>:<line>" tail of the DS state reply.
	Info() string

	// DoWork runs the port's per-tick cooperative logic (spec.md §4.9,
	// §5): periodic refresh timers, streaming producers, and so on. A
	// non-nil return aborts the owning session with that error's code.
	DoWork(ctx context.Context) error
}

// Base is embedded by every concrete port type and supplies the uniform
// bookkeeping fields common to all of them (spec.md §3's descriptive and
// bookkeeping fields, distinct from each type's functional state).
type Base struct {
	id         string
	label      string
	groupID    string
	icon       string
	unit       string
	tag        string
	direction  Direction
	flags      uint32
	readonly   bool
	hidden     bool
	persistent bool
	orderID    int

	errState ErrorState
	refresh  RefreshMode
	dirty    bool
}

// NewBase constructs the common fields shared by every port type. orderID
// starts unset (-1); package registry assigns it from insertion order
// unless WithOrderID supplies an explicit value (spec.md §4.4).
func NewBase(id, label string, dir Direction, opts ...BaseOption) Base {
	b := Base{id: id, label: label, direction: dir, orderID: -1}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// BaseOption configures optional Base fields at construction time.
type BaseOption func(*Base)

func WithGroup(groupID string) BaseOption      { return func(b *Base) { b.groupID = groupID } }
func WithIcon(icon string) BaseOption          { return func(b *Base) { b.icon = icon } }
func WithUnit(unit string) BaseOption          { return func(b *Base) { b.unit = unit } }
func WithTag(tag string) BaseOption            { return func(b *Base) { b.tag = tag } }
func WithFlags(flags uint32) BaseOption        { return func(b *Base) { b.flags = flags } }
func WithOrderID(orderID int) BaseOption       { return func(b *Base) { b.orderID = orderID } }
func WithReadonly(readonly bool) BaseOption    { return func(b *Base) { b.readonly = readonly } }
func WithHidden(hidden bool) BaseOption        { return func(b *Base) { b.hidden = hidden } }
func WithPersistent(persistent bool) BaseOption { return func(b *Base) { b.persistent = persistent } }
func WithRefresh(mode RefreshMode) BaseOption  { return func(b *Base) { b.refresh = mode } }

func (b *Base) ID() string             { return b.id }
func (b *Base) Label() string          { return b.label }
func (b *Base) GroupID() string        { return b.groupID }
func (b *Base) Icon() string           { return b.icon }
func (b *Base) Unit() string           { return b.unit }
func (b *Base) Tag() string            { return b.tag }
func (b *Base) Direction() Direction   { return b.direction }
func (b *Base) OrderID() int           { return b.orderID }

// SetOrderID assigns the display-order tie-break value (spec.md §4.4);
// called by package registry on add when the port didn't set one
// explicitly via WithOrderID.
func (b *Base) SetOrderID(orderID int) { b.orderID = orderID }
func (b *Base) Flags() uint32          { return b.flags }
func (b *Base) Readonly() bool         { return b.readonly }
func (b *Base) Hidden() bool           { return b.hidden }
func (b *Base) Persistent() bool       { return b.persistent }
func (b *Base) ErrorState() ErrorState { return b.errState }
func (b *Base) SetErrorState(s ErrorState) { b.errState = s }
func (b *Base) RefreshMode() RefreshMode   { return b.refresh }

// RequestRefresh marks the port dirty; the session loop clears it after
// emitting Refresh:<id> (spec.md §4.5).
func (b *Base) RequestRefresh() { b.dirty = true }

func (b *Base) RefreshRequired() bool   { return b.dirty }
func (b *Base) ClearRefreshRequired()   { b.dirty = false }

// checkWritable is the common PORT_ACCESS_DENIED guard every mutating
// operation runs first (spec.md §4.5).
func (b *Base) checkWritable() error {
	if b.readonly {
		return protoerr.New(protoerr.PortAccessDenied, "port is readonly", b.id)
	}
	return nil
}

// Package dispatch implements the Protocol's request dispatcher (spec.md
// §4.6): parses the first payload part as an operation tag against the
// fixed tag table, routes to the addressed port's type-specific
// operation, and formats the reply.
//
// Grounded on the teacher's services/hal/internal/core/loop.go
// handleControl (parseCapCtrl -> capability lookup -> dev.Control ->
// replyOK/replyErr) and replies.go's unified reply helper, generalized
// from one topic-routed verb call to the Protocol's closed tag table; the
// exact reply tags and field orders below follow
// original_source/.../opdi_slave_protocol.c's send_*_port_state/
// send_*_port_info functions one for one, not a uniform B-prefixed scheme.
package dispatch

import (
	"strconv"
	"strings"

	"github.com/jangala-dev/opdi-go/codec"
	"github.com/jangala-dev/opdi-go/port"
	"github.com/jangala-dev/opdi-go/protoerr"
	"github.com/jangala-dev/opdi-go/registry"
)

// Binder is the subset of package stream's binding table dispatch needs
// to serve bSP/uSP (spec.md §4.7). Kept as a narrow interface here, the
// way the teacher narrows halcore.GPIOPin/I2C to just what core needs,
// so dispatch never imports stream directly.
type Binder interface {
	Bind(channel uint16, p port.Port) error
	Unbind(id string) error
}

// MaxReplyLength bounds a gAPS aggregate reply (spec.md §4.6: "subject to
// the payload length limit").
const MaxReplyLength = 512

// Result is a formatted reply awaiting framing. Silent means the tag was
// recognized-but-inert or unknown and no reply should be sent at all
// (spec.md §4.6: "Unknown tags are silently ignored").
type Result struct {
	Payload string
	Silent  bool
}

// Dispatcher routes protocol requests against a port registry.
type Dispatcher struct {
	reg     *registry.Registry
	binder  Binder
	persist func(port.Port)
}

// New constructs a Dispatcher over reg, using binder to serve bSP/uSP.
func New(reg *registry.Registry, binder Binder) *Dispatcher {
	return &Dispatcher{reg: reg, binder: binder}
}

// SetPersistHook arms fn to be called, once per successful mutation, with
// any port marked Persistent whose state a request just changed (spec.md
// §6.3: "the core calls the host's persist(port) after a value change on
// a port marked Persistent"). Passing nil disables it.
func (d *Dispatcher) SetPersistHook(fn func(port.Port)) {
	d.persist = fn
}

// Dispatch handles one non-streaming-bound payload (spec.md §4.6, §4.7).
// The returned error, when non-nil, is always a *protoerr.E; the caller
// decides Err: vs NOK: framing from its Fatal() classification.
func (d *Dispatcher) Dispatch(payload string) (Result, error) {
	parts, err := codec.Split(payload, 0, false)
	if err != nil {
		return Result{}, err
	}
	if len(parts) == 0 || parts[0] == "" {
		return Result{}, protoerr.New(protoerr.ProtocolError, "empty payload")
	}
	tag := parts[0]
	args := parts[1:]

	res, err := d.dispatchTag(tag, args)
	if err == nil && d.persist != nil && len(args) > 0 && strings.HasPrefix(tag, "s") {
		if p, ok := d.reg.FindByID(args[0], true); ok && p.Persistent() {
			d.persist(p)
		}
	}
	return res, err
}

func (d *Dispatcher) dispatchTag(tag string, args []string) (Result, error) {
	switch tag {
	case "gDC":
		return d.handleGDC()
	case "gPI":
		return d.handleGPI(args)
	case "gDS":
		return d.handleGetDigitalState(args)
	case "sDL":
		return d.handleSetDigitalLine(args)
	case "sDM":
		return d.handleSetDigitalMode(args)
	case "gAS":
		return d.handleGetAnalogState(args)
	case "sAV":
		return d.handleSetAnalogValue(args)
	case "sAM":
		return d.handleSetAnalogMode(args)
	case "sAR":
		return d.handleSetAnalogResolution(args)
	case "sARF":
		return d.handleSetAnalogReference(args)
	case "gSS":
		return d.handleGetSelectState(args)
	case "gSL":
		return d.handleGetSelectLabel(args)
	case "sSP":
		return d.handleSetSelectPosition(args)
	case "gDLS":
		return d.handleGetDialState(args)
	case "sDLP":
		return d.handleSetDialPosition(args)
	case "bSP":
		return d.handleBind(args)
	case "uSP":
		return d.handleUnbind(args)
	case "gAPS":
		return d.handleGAPS()
	default:
		return Result{Silent: true}, nil
	}
}

func (d *Dispatcher) findPort(id string) (port.Port, error) {
	p, ok := d.reg.FindByID(id, true)
	if !ok {
		return nil, protoerr.New(protoerr.PortUnknown, "unknown port", id)
	}
	return p, nil
}

func wrongType(id string) error {
	return protoerr.New(protoerr.WrongPortType, "operation does not match port type", id)
}

func (d *Dispatcher) handleGDC() (Result, error) {
	ports := d.reg.SortPorts()
	ids := make([]string, len(ports))
	for i, p := range ports {
		ids[i] = p.ID()
	}
	return Result{Payload: "BDC:" + strings.Join(ids, ",")}, nil
}

// handleGPI renders the per-type port-info reply (spec.md §4.5/§4.6):
// DP/AP share a common id/name/direction/flags header, while SLP/DL/SP
// each carry their own type-specific fields, following
// send_digital_port_info/send_analog_port_info/send_select_port_info/
// send_dial_port_info/send_streaming_port_info.
func (d *Dispatcher) handleGPI(args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "gPI requires exactly one argument")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	switch tp := p.(type) {
	case *port.DigitalPort:
		return Result{Payload: "DP:" + portInfoHeader(tp)}, nil
	case *port.AnalogPort:
		return Result{Payload: "AP:" + portInfoHeader(tp)}, nil
	case *port.SelectPort:
		return Result{Payload: "SLP:" + tp.ID() + ":" + tp.Label() + ":" +
			strconv.Itoa(len(tp.Labels())) + ":0"}, nil
	case *port.DialPort:
		return Result{Payload: "DL:" + tp.ID() + ":" + tp.Label() + ":" +
			strconv.FormatInt(int64(tp.Min()), 10) + ":" +
			strconv.FormatInt(int64(tp.Max()), 10) + ":" +
			strconv.FormatInt(int64(tp.Step()), 10) + ":0"}, nil
	case *port.StreamingPort:
		return Result{Payload: "SP:" + tp.ID() + ":" + tp.Label() + ":" +
			tp.DriverID() + ":" + strconv.FormatUint(uint64(tp.Flags()), 10)}, nil
	default:
		return Result{}, wrongType(args[0])
	}
}

// portInfoHeader renders "<id>:<name>:<direction>:<flags>", the shape
// DP/AP's gPI reply share (port->id/port->name/port->caps/flags in the
// original).
func portInfoHeader(p port.Port) string {
	return p.ID() + ":" + p.Label() + ":" + p.Direction().WireCode() + ":" +
		strconv.FormatUint(uint64(p.Flags()), 10)
}

// handleGAPS concatenates every DIGITAL/ANALOG/SELECT/DIAL port's own
// state reply, each already carrying its own tag, separated by \r
// (spec.md §4.6; send_all_port_states). STREAMING ports have no state
// reply of their own and are skipped, the same way the original's
// send_all_port_states loop never touches them.
func (d *Dispatcher) handleGAPS() (Result, error) {
	ports := d.reg.SortPorts()
	var b strings.Builder
	first := true
	for _, p := range ports {
		var state string
		switch tp := p.(type) {
		case *port.DigitalPort:
			state = digitalStateReply(tp)
		case *port.AnalogPort:
			state = analogStateReply(tp)
		case *port.SelectPort:
			state = selectStateReply(tp)
		case *port.DialPort:
			state = dialStateReply(tp)
		default:
			continue
		}
		if !first {
			b.WriteByte('\r')
		}
		first = false
		b.WriteString(state)
		if b.Len() > MaxReplyLength {
			return Result{}, protoerr.New(protoerr.MalformedMessage, "gAPS reply exceeds payload limit")
		}
	}
	return Result{Payload: b.String()}, nil
}

// digitalStateReply renders "DS:<id>:<mode>:<line>" (get_digital_port_state).
// dp.Info() already yields "<mode>:<line>" in that order.
func digitalStateReply(dp *port.DigitalPort) string {
	return "DS:" + dp.ID() + ":" + dp.Info()
}

// analogStateReply renders "AS:<id>:<mode>:<ref>:<res>:<value>"
// (get_analog_port_state).
func analogStateReply(ap *port.AnalogPort) string {
	return "AS:" + ap.ID() + ":" + analogModeWire(ap.Mode()) + ":" + referenceWire(ap.Reference()) + ":" +
		strconv.FormatUint(uint64(ap.Resolution()), 10) + ":" + strconv.FormatUint(uint64(ap.Value()), 10)
}

// selectStateReply renders "SS:<id>:<position>" (get_select_port_state).
func selectStateReply(sp *port.SelectPort) string {
	return "SS:" + sp.ID() + ":" + strconv.Itoa(sp.State())
}

// dialStateReply renders "DLS:<id>:<position>" (get_dial_port_state).
func dialStateReply(dp *port.DialPort) string {
	return "DLS:" + dp.ID() + ":" + strconv.FormatInt(int64(dp.State()), 10)
}

func analogModeWire(m port.AnalogMode) string {
	if m == port.AnalogOutput {
		return "1"
	}
	return "0"
}

func referenceWire(r port.Reference) string {
	if r == port.ReferenceExternal {
		return "1"
	}
	return "0"
}

func (d *Dispatcher) handleGetDigitalState(args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "gDS requires exactly one argument")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	dp, ok := p.(*port.DigitalPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	return Result{Payload: digitalStateReply(dp)}, nil
}

func (d *Dispatcher) handleSetDigitalLine(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sDL requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	dp, ok := p.(*port.DigitalPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseUint8(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := dp.SetLine(port.Line(v)); err != nil {
		return Result{}, err
	}
	return Result{Payload: digitalStateReply(dp)}, nil
}

func (d *Dispatcher) handleSetDigitalMode(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sDM requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	dp, ok := p.(*port.DigitalPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseUint8(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := dp.SetMode(port.DigitalMode(v)); err != nil {
		return Result{}, err
	}
	return Result{Payload: digitalStateReply(dp)}, nil
}

func (d *Dispatcher) handleGetAnalogState(args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "gAS requires exactly one argument")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	ap, ok := p.(*port.AnalogPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	return Result{Payload: analogStateReply(ap)}, nil
}

func (d *Dispatcher) handleSetAnalogValue(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sAV requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	ap, ok := p.(*port.AnalogPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseUint64(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := ap.SetValue(uint32(v)); err != nil {
		return Result{}, err
	}
	return Result{Payload: analogStateReply(ap)}, nil
}

func (d *Dispatcher) handleSetAnalogMode(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sAM requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	ap, ok := p.(*port.AnalogPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseUint8(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := ap.SetMode(port.AnalogMode(v)); err != nil {
		return Result{}, err
	}
	return Result{Payload: analogStateReply(ap)}, nil
}

func (d *Dispatcher) handleSetAnalogResolution(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sAR requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	ap, ok := p.(*port.AnalogPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseUint8(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := ap.SetResolution(v); err != nil {
		return Result{}, err
	}
	return Result{Payload: analogStateReply(ap)}, nil
}

func (d *Dispatcher) handleSetAnalogReference(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sARF requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	ap, ok := p.(*port.AnalogPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseUint8(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := ap.SetReference(port.Reference(v)); err != nil {
		return Result{}, err
	}
	return Result{Payload: analogStateReply(ap)}, nil
}

func (d *Dispatcher) handleGetSelectState(args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "gSS requires exactly one argument")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	sp, ok := p.(*port.SelectPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	return Result{Payload: selectStateReply(sp)}, nil
}

func (d *Dispatcher) handleGetSelectLabel(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "gSL requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	sp, ok := p.(*port.SelectPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	pos, err := codec.ParseUint16(args[1])
	if err != nil {
		return Result{}, err
	}
	label, err := sp.Label(int(pos))
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: "SL:" + sp.ID() + ":" + strconv.FormatUint(uint64(pos), 10) + ":" + label}, nil
}

func (d *Dispatcher) handleSetSelectPosition(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sSP requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	sp, ok := p.(*port.SelectPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	pos, err := codec.ParseUint16(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := sp.SetPosition(int(pos)); err != nil {
		return Result{}, err
	}
	return Result{Payload: selectStateReply(sp)}, nil
}

func (d *Dispatcher) handleGetDialState(args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "gDLS requires exactly one argument")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	dp, ok := p.(*port.DialPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	return Result{Payload: dialStateReply(dp)}, nil
}

func (d *Dispatcher) handleSetDialPosition(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "sDLP requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	dp, ok := p.(*port.DialPort)
	if !ok {
		return Result{}, wrongType(args[0])
	}
	v, err := codec.ParseInt32(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := dp.SetPosition(v); err != nil {
		return Result{}, err
	}
	return Result{Payload: dialStateReply(dp)}, nil
}

func (d *Dispatcher) handleBind(args []string) (Result, error) {
	if len(args) != 2 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "bSP requires exactly two arguments")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	if _, ok := p.(*port.StreamingPort); !ok {
		return Result{}, wrongType(args[0])
	}
	ch, err := codec.ParseUint16(args[1])
	if err != nil {
		return Result{}, err
	}
	if err := d.binder.Bind(ch, p); err != nil {
		return Result{}, err
	}
	return Result{Payload: "OK"}, nil
}

func (d *Dispatcher) handleUnbind(args []string) (Result, error) {
	if len(args) < 1 {
		return Result{}, protoerr.New(protoerr.ProtocolError, "uSP requires at least one argument")
	}
	p, err := d.findPort(args[0])
	if err != nil {
		return Result{}, err
	}
	if _, ok := p.(*port.StreamingPort); !ok {
		return Result{}, wrongType(args[0])
	}
	if err := d.binder.Unbind(p.ID()); err != nil {
		return Result{}, err
	}
	return Result{Payload: "OK"}, nil
}

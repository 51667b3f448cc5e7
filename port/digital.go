package port

import (
	"context"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// DigitalMode is a DIGITAL port's configured pin mode (spec.md §6.1).
type DigitalMode uint8

const (
	InputFloating DigitalMode = iota
	InputPullup
	InputPulldown
	OutputMode
)

// Line is a DIGITAL port's current logic level (spec.md §6.1).
type Line uint8

const (
	Low Line = iota
	High
)

// DigitalPort is the DIGITAL port type (spec.md §3): a mode plus a current
// line level, with set operations for either.
type DigitalPort struct {
	Base
	mode DigitalMode
	line Line
}

// NewDigitalPort constructs a DIGITAL port with an initial mode and line.
func NewDigitalPort(base Base, mode DigitalMode, line Line) *DigitalPort {
	return &DigitalPort{Base: base, mode: mode, line: line}
}

func (p *DigitalPort) Type() Type { return Digital }

// State returns the current line level (gDS).
func (p *DigitalPort) State() Line { return p.line }

// Mode returns the current pin mode.
func (p *DigitalPort) Mode() DigitalMode { return p.mode }

// SetLine sets the current line level (sDL). Only meaningful for an
// output-mode port, but per spec.md §4.5 the only hard requirement is
// that a readonly port reject the mutation; mode/line coherence is left
// to the host driving the real pin.
func (p *DigitalPort) SetLine(l Line) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	p.line = l
	p.RequestRefresh()
	return nil
}

// SetMode sets the pin mode (sDM).
func (p *DigitalPort) SetMode(m DigitalMode) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if m > OutputMode {
		return protoerr.New(protoerr.InvalidPayload, "unknown digital mode", p.ID())
	}
	p.mode = m
	p.RequestRefresh()
	return nil
}

// Info renders "<mode>:<line>", the tail of the DS state reply package
// dispatch sends for gDS/sDL/sDM.
func (p *DigitalPort) Info() string {
	return digitalCode(p.mode) + ":" + lineCode(p.line)
}

func (p *DigitalPort) DoWork(ctx context.Context) error { return nil }

func digitalCode(m DigitalMode) string {
	switch m {
	case InputFloating:
		return "0"
	case InputPullup:
		return "1"
	case InputPulldown:
		return "2"
	default:
		return "3"
	}
}

func lineCode(l Line) string {
	if l == High {
		return "1"
	}
	return "0"
}

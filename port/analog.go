package port

import (
	"context"
	"strconv"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// AnalogMode is an ANALOG port's configured direction (spec.md §6.1).
type AnalogMode uint8

const (
	AnalogInput AnalogMode = iota
	AnalogOutput
)

// Reference is an ANALOG port's voltage reference source (spec.md §6.1).
type Reference uint8

const (
	ReferenceInternal Reference = iota
	ReferenceExternal
)

// AnalogPort is the ANALOG port type (spec.md §3): a mode, a resolution
// in [0,4] meaning 8-12 bits, a reference, and a value bounded by the
// resolution.
type AnalogPort struct {
	Base
	mode       AnalogMode
	resolution uint8
	reference  Reference
	value      uint32
}

// NewAnalogPort constructs an ANALOG port. resolution must be in [0,4];
// an out-of-range value is clamped to 4 (12-bit), matching the closed
// wire enum of spec.md §6.1.
func NewAnalogPort(base Base, mode AnalogMode, resolution uint8, ref Reference) *AnalogPort {
	if resolution > 4 {
		resolution = 4
	}
	return &AnalogPort{Base: base, mode: mode, resolution: resolution, reference: ref}
}

func (p *AnalogPort) Type() Type { return Analog }

func (p *AnalogPort) Mode() AnalogMode     { return p.mode }
func (p *AnalogPort) Resolution() uint8    { return p.resolution }
func (p *AnalogPort) Reference() Reference { return p.reference }
func (p *AnalogPort) Value() uint32        { return p.value }

// maxValue returns 2^resolution+8 - 1, the inclusive upper bound of
// spec.md §3's "[0, 2^resolution − 1]" where resolution 0..4 means 8..12
// bits.
func (p *AnalogPort) maxValue() uint32 {
	bits := uint32(p.resolution) + 8
	return (uint32(1) << bits) - 1
}

// SetValue sets the analog value (sAV), rejecting anything outside the
// resolution-determined range with POSITION_INVALID (spec.md §4.5; the
// code is reused from SELECT/DIAL since the protocol has no separate
// "value out of range" code).
func (p *AnalogPort) SetValue(v uint32) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if !inRange(v, 0, p.maxValue()) {
		return protoerr.New(protoerr.PositionInvalid, "analog value out of range", p.ID(), strconv.FormatUint(uint64(v), 10))
	}
	p.value = v
	p.RequestRefresh()
	return nil
}

// SetMode sets the analog direction (sAM).
func (p *AnalogPort) SetMode(m AnalogMode) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	p.mode = m
	p.RequestRefresh()
	return nil
}

// SetResolution sets the resolution (sAR), resetting value to 0 per
// spec.md §3's invariant ("changing resolution resets value to 0 unless
// the host takes explicit action").
func (p *AnalogPort) SetResolution(r uint8) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if r > 4 {
		return protoerr.New(protoerr.InvalidPayload, "unknown analog resolution", p.ID())
	}
	p.resolution = r
	p.value = 0
	p.RequestRefresh()
	return nil
}

// SetReference sets the voltage reference (sARF).
func (p *AnalogPort) SetReference(r Reference) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	p.reference = r
	p.RequestRefresh()
	return nil
}

// Info renders "<mode>:<resolution>:<reference>:<value>".
func (p *AnalogPort) Info() string {
	mode := "0"
	if p.mode == AnalogOutput {
		mode = "1"
	}
	ref := "0"
	if p.reference == ReferenceExternal {
		ref = "1"
	}
	return mode + ":" + strconv.FormatUint(uint64(p.resolution), 10) + ":" + ref + ":" + strconv.FormatUint(uint64(p.value), 10)
}

func (p *AnalogPort) DoWork(ctx context.Context) error { return nil }

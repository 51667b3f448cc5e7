package port

import (
	"context"
	"strconv"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// DialPort is the DIAL port type (spec.md §3): an integer range [Min,Max]
// with a positive Step, and a current Position required to satisfy
// (position - min) mod step == 0.
type DialPort struct {
	Base
	min, max, step int32
	position       int32
}

// NewDialPort constructs a DIAL port. A step <= 0 is replaced by 1;
// position is clamped into [min,max], and a position that is then not
// step-aligned is reset to min.
func NewDialPort(base Base, min, max, step, position int32) *DialPort {
	if step <= 0 {
		step = 1
	}
	if position < min {
		position = min
	}
	if position > max {
		position = max
	}
	if !stepAligned(position, min, step) {
		position = min
	}
	return &DialPort{Base: base, min: min, max: max, step: step, position: position}
}

func (p *DialPort) Type() Type { return Dial }

func (p *DialPort) Min() int32  { return p.min }
func (p *DialPort) Max() int32  { return p.max }
func (p *DialPort) Step() int32 { return p.step }

// State returns the current position (gDLS).
func (p *DialPort) State() int32 { return p.position }

// SetPosition sets the current position (sDLP), rejecting anything out
// of [min,max] or not step-aligned with POSITION_INVALID (spec.md §3,
// §4.5).
func (p *DialPort) SetPosition(position int32) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if !inRange(position, p.min, p.max) || !stepAligned(position, p.min, p.step) {
		return protoerr.New(protoerr.PositionInvalid, "dial position out of range or misaligned", p.ID(), strconv.FormatInt(int64(position), 10))
	}
	p.position = position
	p.RequestRefresh()
	return nil
}

// Info renders "<min>:<max>:<step>:<position>".
func (p *DialPort) Info() string {
	return strconv.FormatInt(int64(p.min), 10) + ":" +
		strconv.FormatInt(int64(p.max), 10) + ":" +
		strconv.FormatInt(int64(p.step), 10) + ":" +
		strconv.FormatInt(int64(p.position), 10)
}

func (p *DialPort) DoWork(ctx context.Context) error { return nil }

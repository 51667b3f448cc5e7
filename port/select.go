package port

import (
	"context"
	"strconv"

	"github.com/jangala-dev/opdi-go/protoerr"
)

// SelectPort is the SELECT port type (spec.md §3): an ordered, fixed list
// of position labels with a current position index.
type SelectPort struct {
	Base
	labels   []string
	position int
}

// NewSelectPort constructs a SELECT port. labels must be non-empty;
// position is clamped into range.
func NewSelectPort(base Base, labels []string, position int) *SelectPort {
	labels = append([]string(nil), labels...)
	if position < 0 {
		position = 0
	}
	if position >= len(labels) {
		position = len(labels) - 1
	}
	return &SelectPort{Base: base, labels: labels, position: position}
}

func (p *SelectPort) Type() Type { return Select }

// State returns the current position (gSS).
func (p *SelectPort) State() int { return p.position }

// Label returns the label at position (gSL).
func (p *SelectPort) Label(position int) (string, error) {
	if !inRange(position, 0, len(p.labels)-1) {
		return "", protoerr.New(protoerr.PositionInvalid, "select position out of range", p.ID(), strconv.Itoa(position))
	}
	return p.labels[position], nil
}

// Labels returns the full ordered label list.
func (p *SelectPort) Labels() []string { return append([]string(nil), p.labels...) }

// SetPosition sets the current position (sSP), rejecting an out-of-range
// index with POSITION_INVALID (spec.md §4.5, §3).
func (p *SelectPort) SetPosition(position int) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if !inRange(position, 0, len(p.labels)-1) {
		return protoerr.New(protoerr.PositionInvalid, "select position out of range", p.ID(), strconv.Itoa(position))
	}
	p.position = position
	p.RequestRefresh()
	return nil
}

// Info renders "<position>:<count>"; the label list itself is fetched
// position-by-position via gSL to keep a single reply bounded.
func (p *SelectPort) Info() string {
	return strconv.Itoa(p.position) + ":" + strconv.Itoa(len(p.labels))
}

func (p *SelectPort) DoWork(ctx context.Context) error { return nil }

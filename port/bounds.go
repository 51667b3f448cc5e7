package port

import (
	"github.com/jangala-dev/opdi-go/x/mathx"
	"golang.org/x/exp/constraints"
)

// inRange and stepAligned generalize the DIAL/ANALOG/SELECT bounds checks
// of spec.md §3's invariants, reusing the teacher's x/mathx bounds helper
// directly rather than re-deriving it, since the pattern is identical.
func inRange[T constraints.Integer](v, lo, hi T) bool {
	return mathx.Between(v, lo, hi)
}

// stepAligned reports whether (v - lo) is an exact multiple of step, the
// DIAL position invariant from spec.md §3: "(position - min) mod step == 0".
func stepAligned[T constraints.Signed](v, lo, step T) bool {
	if step <= 0 {
		return v == lo
	}
	d := v - lo
	if d < 0 {
		d = -d
	}
	return d%step == 0
}

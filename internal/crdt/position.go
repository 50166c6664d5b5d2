package crdt

import (
	"fmt"

	"github.com/google/uuid"
)

// Position is a rational-number list key plus a unique tie-break id,
// enabling concurrent insertion at the same logical index without
// coordination. Grounded in
// _examples/original_source/crates/lib/src/crdt/doc/list.rs.
type Position struct {
	Num, Den int64
	UniqueID string
}

// NewPosition builds a Position with an explicit numerator/denominator,
// generating a fresh tie-break UUID.
func NewPosition(num, den int64) Position {
	return Position{Num: num, Den: den, UniqueID: uuid.NewString()}
}

// Beginning returns a Position ordering before any Beginning/Between-
// generated Position, used to insert at the head of a List.
func Beginning() Position { return NewPosition(0, 1) }

// End returns a Position ordering after any default-generated Position,
// used to append to a List.
func End() Position { return NewPosition(1, 1) }

// Between returns a Position strictly ordered between p and q (p must
// compare less than q). The arithmetic mean (pn*qd + qn*pd) / (2*pd*qd) is
// always strictly between two distinct rationals; precision is doubled
// when p and q are numerically equal (a pure tie-break collision) so the
// result still lands strictly between them.
func Between(p, q Position) Position {
	pn, pd := p.Num, p.Den
	qn, qd := q.Num, q.Den
	for pn*qd == qn*pd {
		// p and q are the same rational value; widen precision so the
		// midpoint doesn't collapse onto it.
		pn *= 2
		pd *= 2
		qn *= 2
		qd *= 2
		qn++
	}
	num := pn*qd + qn*pd
	den := 2 * pd * qd
	return NewPosition(num, den)
}

// Compare totally orders Positions: rational value first, then UniqueID
// lexicographically to break exact ties.
func (p Position) Compare(other Position) int {
	lhs := p.Num * other.Den
	rhs := other.Num * p.Den
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	}
	switch {
	case p.UniqueID < other.UniqueID:
		return -1
	case p.UniqueID > other.UniqueID:
		return 1
	default:
		return 0
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d#%s", p.Num, p.Den, p.UniqueID)
}

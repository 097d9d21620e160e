package dbsp

import (
	"fmt"
)

// JoinFunc combines two matching entries of a join. It returns the output record and its diff,
// or false to drop the match. The diff it returns must distribute over Plus of both inputs, e.g.,
// multiplication of counts or "distance plus length" of min-sum distances.
type JoinFunc[K, V1, D1, V2, D2, U, D3 any] func(key K, left Weighted[V1, D1], right Weighted[V2, D2]) (Weighted[U, D3], bool)

// JoinOp implements an incremental equi-join of two keyed collections. Both inputs are kept in
// arrangements.
//
// The output delta follows the bilinear expansion Δ(L⋈R) = ΔL⋈R + L⋈ΔR + ΔL⋈ΔR, computed as
// ΔL⋈R_old + L_new⋈ΔR. No subtraction is needed, so the operator works over monoid diffs.
type JoinOp[K comparable, V1 comparable, D1 Monoid[D1], V2 comparable, D2 Monoid[D2], U comparable, D3 Monoid[D3]] struct {
	BaseOp
	left  *Trace[K, V1, D1]
	right *Trace[K, V2, D2]
	fn    JoinFunc[K, V1, D1, V2, D2, U, D3]
}

// NewJoin creates a new incremental binary join.
func NewJoin[K comparable, V1 comparable, D1 Monoid[D1], V2 comparable, D2 Monoid[D2], U comparable, D3 Monoid[D3]](
	name string, cmpK func(K, K) int, cmpV1 func(V1, V1) int, cmpV2 func(V2, V2) int,
	fn JoinFunc[K, V1, D1, V2, D2, U, D3]) *JoinOp[K, V1, D1, V2, D2, U, D3] {
	return &JoinOp[K, V1, D1, V2, D2, U, D3]{
		BaseOp: NewBaseOp(fmt.Sprintf("⋈:%s", name)),
		left:   NewTrace[K, V1, D1](cmpK, cmpV1),
		right:  NewTrace[K, V2, D2](cmpK, cmpV2),
		fn:     fn,
	}
}

func (op *JoinOp[K, V1, D1, V2, D2, U, D3]) OpType() OperatorType { return OpTypeBilinear }

// Process evaluates the op on a pair of input deltas. Either delta may be nil.
func (op *JoinOp[K, V1, D1, V2, D2, U, D3]) Process(dLeft *Collection[Pair[K, V1], D1], dRight *Collection[Pair[K, V2], D2]) *Collection[U, D3] {
	result := NewCollection[U, D3]()

	if !dLeft.IsZero() {
		// ΔL⋈R_old
		HalfJoinInto(result, dLeft, op.right.Current(), op.fn)
		op.left.Update(dLeft)
	}

	if !dRight.IsZero() {
		// L_new⋈ΔR
		flipped := JoinFunc[K, V2, D2, V1, D1, U, D3](func(key K, r Weighted[V2, D2], l Weighted[V1, D1]) (Weighted[U, D3], bool) {
			return op.fn(key, l, r)
		})
		HalfJoinInto(result, dRight, op.left.Current(), flipped)
		op.right.Update(dRight)
	}

	return result
}

// Left returns the trace of the left input.
func (op *JoinOp[K, V1, D1, V2, D2, U, D3]) Left() *Trace[K, V1, D1] { return op.left }

// Right returns the trace of the right input.
func (op *JoinOp[K, V1, D1, V2, D2, U, D3]) Right() *Trace[K, V2, D2] { return op.right }

// Reset drops both input traces.
func (op *JoinOp[K, V1, D1, V2, D2, U, D3]) Reset() {
	cur := op.left.Current()
	op.left = NewTrace[K, V1, D1](cur.cmpK, cur.cmpV)
	rcur := op.right.Current()
	op.right = NewTrace[K, V2, D2](rcur.cmpK, rcur.cmpV)
}

// HalfJoinInto looks up every entry of a delta in a read-only arrangement and adds the matches to
// result. The arrangement is not modified, so it may be shared with other readers.
func HalfJoinInto[K comparable, V1 comparable, D1 Monoid[D1], V2 comparable, D2 Monoid[D2], U comparable, D3 Monoid[D3]](
	result *Collection[U, D3], delta *Collection[Pair[K, V1], D1], arr *Arrangement[K, V2, D2],
	fn JoinFunc[K, V1, D1, V2, D2, U, D3]) {
	delta.Range(func(p Pair[K, V1], d1 D1) bool {
		for _, other := range arr.Lookup(p.Key) {
			if out, ok := fn(p.Key, Weighted[V1, D1]{Value: p.Val, Diff: d1}, other); ok {
				result.Insert(out.Value, out.Diff)
			}
		}
		return true
	})
}

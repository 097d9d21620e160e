package dbsp

import (
	"slices"
)

// ReduceLogic is the per-key logic of a Reduce-Core operator. It receives the accumulated input
// of a key sorted by the value order, and the output it has emitted so far for the key (also
// accumulated and sorted), and returns only the updates needed to correct the output. Returning
// nothing asserts that the output is unchanged.
//
// The logic must be a pure function of its arguments. Logic that violates its own invariant,
// e.g., emits a larger value into a minimum, silently produces wrong results.
type ReduceLogic[K, V, D, V2, D2 any] func(key K, input []Weighted[V, D], output []Weighted[V2, D2]) []Weighted[V2, D2]

// ReduceCoreOp is a per-key reduction that emits marginal output corrections relative to its own
// previous output. Since the operator never subtracts the old output from the new one, the input
// and the output diffs only need to be monoids.
type ReduceCoreOp[K comparable, V comparable, D Monoid[D], V2 comparable, D2 Monoid[D2]] struct {
	BaseOp
	cmpK    func(K, K) int
	cmpV    func(V, V) int
	cmpV2   func(V2, V2) int
	input   *Trace[K, V, D]
	output  *Trace[K, V2, D2]
	logic   ReduceLogic[K, V, D, V2, D2]
	emitted int
}

// NewReduceCore creates a new Reduce-Core op.
func NewReduceCore[K comparable, V comparable, D Monoid[D], V2 comparable, D2 Monoid[D2]](name string,
	cmpK func(K, K) int, cmpV func(V, V) int, cmpV2 func(V2, V2) int,
	logic ReduceLogic[K, V, D, V2, D2]) *ReduceCoreOp[K, V, D, V2, D2] {
	return &ReduceCoreOp[K, V, D, V2, D2]{
		BaseOp: NewBaseOp("reduce:" + name),
		cmpK:   cmpK,
		cmpV:   cmpV,
		cmpV2:  cmpV2,
		input:  NewTrace[K, V, D](cmpK, cmpV),
		output: NewTrace[K, V2, D2](cmpK, cmpV2),
		logic:  logic,
	}
}

func (op *ReduceCoreOp[K, V, D, V2, D2]) OpType() OperatorType { return OpTypeNonLinear }

// Process folds an input delta into the operator and returns the output delta.
func (op *ReduceCoreOp[K, V, D, V2, D2]) Process(delta *Collection[Pair[K, V], D]) *Collection[Pair[K, V2], D2] {
	result := NewCollection[Pair[K, V2], D2]()
	if delta.IsZero() {
		return result
	}

	// keys are visited in order so that the result does not depend on map iteration
	keySet := make(map[K]struct{})
	delta.Range(func(p Pair[K, V], _ D) bool {
		keySet[p.Key] = struct{}{}
		return true
	})
	keys := make([]K, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, op.cmpK)

	input := op.input.Update(delta)
	output := op.output.Current()
	for _, k := range keys {
		updates := op.logic(k, input.Lookup(k), output.Lookup(k))
		for _, u := range updates {
			if u.Diff.IsZero() {
				continue
			}
			result.Insert(Pair[K, V2]{Key: k, Val: u.Value}, u.Diff)
			op.emitted++
		}
	}

	op.output.Update(result)
	return result
}

// Input returns the arrangement of the accumulated input.
func (op *ReduceCoreOp[K, V, D, V2, D2]) Input() *Arrangement[K, V, D] { return op.input.Current() }

// Output returns the arrangement of the accumulated output.
func (op *ReduceCoreOp[K, V, D, V2, D2]) Output() *Arrangement[K, V2, D2] { return op.output.Current() }

// Emitted returns the number of (key, value) updates emitted so far.
func (op *ReduceCoreOp[K, V, D, V2, D2]) Emitted() int { return op.emitted }

// Reset drops the accumulated input and output.
func (op *ReduceCoreOp[K, V, D, V2, D2]) Reset() {
	op.input = NewTrace[K, V, D](op.cmpK, op.cmpV)
	op.output = NewTrace[K, V2, D2](op.cmpK, op.cmpV2)
	op.emitted = 0
}

// NewReduce creates the classical reduction: the logic returns the full output of a key and the
// operator emits the difference to the previous output. Computing the difference requires the
// output diff to be a Group.
func NewReduce[K comparable, V comparable, D Monoid[D], V2 comparable, D2 Group[D2]](name string,
	cmpK func(K, K) int, cmpV func(V, V) int, cmpV2 func(V2, V2) int,
	full func(key K, input []Weighted[V, D]) []Weighted[V2, D2]) *ReduceCoreOp[K, V, D, V2, D2] {
	logic := func(key K, input []Weighted[V, D], output []Weighted[V2, D2]) []Weighted[V2, D2] {
		var desired []Weighted[V2, D2]
		if len(input) > 0 {
			desired = full(key, input)
		}
		diff := FromEntries(desired...)
		for _, o := range output {
			diff.Insert(o.Value, o.Diff.Negate())
		}
		return diff.Entries(cmpV2)
	}
	return NewReduceCore[K, V, D, V2, D2](name, cmpK, cmpV, cmpV2, logic)
}

// KeepBest returns a Reduce-Core logic that maintains, for every value of a key, the best diff
// seen in the input. A correction is emitted iff the accumulated input improves on the kept
// output; since the correction is combined into the output by Plus, the diff must be a monoid
// whose Plus selects the better of two values (min, max, or logical or).
func KeepBest[K any, V comparable, D Monoid[D]](improves func(candidate, kept D) bool) ReduceLogic[K, V, D, V, D] {
	return func(_ K, input []Weighted[V, D], output []Weighted[V, D]) []Weighted[V, D] {
		kept := make(map[V]D, len(output))
		for _, o := range output {
			kept[o.Value] = o.Diff
		}

		var updates []Weighted[V, D]
		for _, in := range input {
			cur, ok := kept[in.Value]
			if !ok {
				cur = Zero[D]()
			}
			if improves(in.Diff, cur) {
				updates = append(updates, in)
			}
		}
		return updates
	}
}

package intern

import (
	"cmp"
	"context"
	"fmt"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// Correction is one half of a promotion. Promoting (r, e) to (r+1, e) is recorded as a pair of
// corrections: the retraction of (r, e) and the assertion of (r+1, e). The halves are kept
// apart, so that the entries an element passed through can be recovered from the assertions.
type Correction[T cmp.Ordered] struct {
	Position Position[T]
	Retract  bool
}

func (c Correction[T]) String() string {
	if c.Retract {
		return "-" + c.Position.String()
	}
	return "+" + c.Position.String()
}

// DiffRelative maintains the corrections that transform the round-0 assignment (every element in
// the bucket of (0, element)) into the converged assignment. The round-0 assignment is never
// iterated; only the corrections are, and they are updated incrementally across epochs.
//
// Buckets are the keys of a reduction over the entries elements pass through. Removing the winner
// of a bucket re-evaluates the bucket from the remaining entries, so losers of the bucket are
// demoted back without being tracked on their own.
type DiffRelative[T cmp.Ordered] struct {
	base[T]
	reduce *dbsp.ReduceCoreOp[uint64, Position[T], dbsp.Count, Position[T], dbsp.Count]
	iter   *dbsp.IterateFromEmpty[Correction[T], dbsp.Count]
}

var _ Interner[string] = &DiffRelative[string]{}

// NewDiffRelative creates a diff-relative interner.
func NewDiffRelative[T cmp.Ordered](name string, opts ...Option) *DiffRelative[T] {
	o := newOptions(opts)
	return &DiffRelative[T]{
		base: newBase[T](name, o),
		reduce: dbsp.NewReduce[uint64, Position[T], dbsp.Count, Position[T], dbsp.Count](name,
			cmp.Compare[uint64], ComparePositions[T], ComparePositions[T], losers[T]),
		iter: dbsp.NewIterateFromEmpty[Correction[T], dbsp.Count](name,
			dbsp.WithIterateLogger(o.log), dbsp.WithObserver(o.observer)),
	}
}

// losers lists every entry of a bucket but the smallest.
func losers[T cmp.Ordered](_ uint64, entries []dbsp.Weighted[Position[T], dbsp.Count]) []dbsp.Weighted[Position[T], dbsp.Count] {
	var result []dbsp.Weighted[Position[T], dbsp.Count]
	won := false
	for _, e := range entries {
		if e.Diff <= 0 {
			continue
		}
		if !won {
			won = true
			continue
		}
		result = append(result, dbsp.Weighted[Position[T], dbsp.Count]{Value: e.Value, Diff: 1})
	}
	return result
}

// Process implements Interner.
func (d *DiffRelative[T]) Process(ctx context.Context, elems *dbsp.Collection[T, dbsp.Count]) (*dbsp.Collection[Assignment[T], dbsp.Count], error) {
	changes := d.fold(elems)
	if changes.IsZero() {
		return dbsp.NewCollection[Assignment[T], dbsp.Count](), nil
	}
	initial := roundZero(changes)

	step := func(round uint64, delta *dbsp.Collection[Correction[T], dbsp.Count]) (*dbsp.Collection[Correction[T], dbsp.Count], error) {
		entries := initial
		if round > 0 {
			entries = asserted(delta)
		}
		keyed := dbsp.KeyBy(entries, func(e Position[T]) (uint64, Position[T]) { return d.bucket(e), e })
		return promote(d.reduce.Process(keyed)), nil
	}

	corrections, err := d.iter.Run(ctx, step)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", d.name, err)
	}

	// positions change by the new round-0 entries and the net corrections
	positions := dbsp.Concat(initial, dbsp.NewProjection[Correction[T], Position[T], dbsp.Count](func(c Correction[T]) Position[T] {
		return c.Position
	}).Process(corrections))
	delta := d.assign(positions)
	d.publish(delta)

	d.log.V(2).Info("epoch processed", "name", d.name, "rounds", d.iter.Rounds(),
		"corrections", d.iter.Value().Len(), "changes", delta.Len())

	return delta, nil
}

// Corrections returns the accumulated corrections. Callers must not modify it.
func (d *DiffRelative[T]) Corrections() *dbsp.Collection[Correction[T], dbsp.Count] {
	return d.iter.Value()
}

// Rounds implements Interner.
func (d *DiffRelative[T]) Rounds() uint64 { return d.iter.Rounds() }

// promote turns a change of the loser set into corrections.
func promote[T cmp.Ordered](changes *dbsp.Collection[dbsp.Pair[uint64, Position[T]], dbsp.Count]) *dbsp.Collection[Correction[T], dbsp.Count] {
	result := dbsp.NewCollection[Correction[T], dbsp.Count]()
	changes.Range(func(p dbsp.Pair[uint64, Position[T]], diff dbsp.Count) bool {
		result.Insert(Correction[T]{Position: p.Val, Retract: true}, diff.Negate())
		result.Insert(Correction[T]{Position: Position[T]{Round: p.Val.Round + 1, Elem: p.Val.Elem}}, diff)
		return true
	})
	return result
}

// asserted returns the entries asserted by corrections.
func asserted[T cmp.Ordered](c *dbsp.Collection[Correction[T], dbsp.Count]) *dbsp.Collection[Position[T], dbsp.Count] {
	result := dbsp.NewCollection[Position[T], dbsp.Count]()
	c.Range(func(corr Correction[T], diff dbsp.Count) bool {
		if !corr.Retract {
			result.Insert(corr.Position, diff)
		}
		return true
	})
	return result
}

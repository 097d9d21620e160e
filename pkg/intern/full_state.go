package intern

import (
	"cmp"
	"context"
	"fmt"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// FullState recomputes the assignment of the whole element set in every epoch: the iteration runs
// over the complete (round, element) working set, starting from round 0 for every element, and
// the result is differentiated against the previous assignment.
type FullState[T cmp.Ordered] struct {
	base[T]
	iter *dbsp.IterateFromCollection[Position[T], dbsp.Count]
	diff *dbsp.DifferentiatorOp[Assignment[T], dbsp.Count]
}

var _ Interner[string] = &FullState[string]{}

// NewFullState creates a full-state interner.
func NewFullState[T cmp.Ordered](name string, opts ...Option) *FullState[T] {
	o := newOptions(opts)
	return &FullState[T]{
		base: newBase[T](name, o),
		iter: dbsp.NewIterateFromCollection[Position[T], dbsp.Count](name,
			dbsp.WithIterateLogger(o.log), dbsp.WithObserver(o.observer)),
		diff: dbsp.NewDifferentiator[Assignment[T], dbsp.Count](),
	}
}

// Process implements Interner.
func (f *FullState[T]) Process(ctx context.Context, elems *dbsp.Collection[T, dbsp.Count]) (*dbsp.Collection[Assignment[T], dbsp.Count], error) {
	if f.fold(elems).IsZero() {
		return dbsp.NewCollection[Assignment[T], dbsp.Count](), nil
	}

	present := dbsp.Distinct(f.elems.State())

	positions, err := f.iter.Run(ctx, roundZero(present), f.step)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", f.name, err)
	}

	delta := f.diff.Process(f.assign(positions))
	f.publish(delta)

	f.log.V(2).Info("epoch processed", "name", f.name, "elements", present.Len(),
		"rounds", f.iter.Rounds(), "changes", delta.Len())

	return delta, nil
}

// step keeps the smallest entry of each bucket and promotes the rest.
func (f *FullState[T]) step(_ uint64, x *dbsp.Collection[Position[T], dbsp.Count]) (*dbsp.Collection[Position[T], dbsp.Count], error) {
	byBucket := dbsp.NewArrangement[uint64, Position[T], dbsp.Count](cmp.Compare[uint64], ComparePositions[T]).
		Apply(dbsp.KeyBy(x, func(e Position[T]) (uint64, Position[T]) { return f.bucket(e), e }))
	defer byBucket.Release()

	next := dbsp.NewCollection[Position[T], dbsp.Count]()
	for c := byBucket.Cursor(); c.Valid(); c.Next() {
		won := false
		for _, w := range c.Values() {
			if w.Diff <= 0 {
				continue
			}
			if !won {
				won = true
				next.Insert(w.Value, w.Diff)
				continue
			}
			next.Insert(Position[T]{Round: w.Value.Round + 1, Elem: w.Value.Elem}, w.Diff)
		}
	}
	return next, nil
}

// Rounds implements Interner.
func (f *FullState[T]) Rounds() uint64 { return f.iter.Rounds() }

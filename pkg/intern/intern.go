// Package intern assigns unique, stable integer identifiers to the elements of a collection
// without a shared lookup table.
//
// Every element starts at round 0. In each round the pair (round, element) is hashed into a
// bucket; the smallest pair of a bucket wins it and the other pairs are promoted to the next
// round. At the fixed point every bucket holds exactly one element and the identifier of an
// element is the bucket it won.
//
// The entries an element passes through form a set P with the defining property
//
//	(r+1, e) ∈ P  ⇔  (r, e) ∈ P and (r, e) is not the smallest entry of P in its bucket
//
// Since membership of an entry only depends on strictly smaller entries, P (and hence the
// assignment) is unique and does not depend on the order in which elements arrive.
//
// Two realizations are provided. FullState recomputes the assignment from the accumulated element
// set in every epoch and differentiates it against the previous one. DiffRelative keeps only the
// corrections that turn the immutable round-0 assignment into the converged one, and updates them
// incrementally.
package intern

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// Position is the state of an element: the round it has been promoted to.
type Position[T cmp.Ordered] struct {
	Round uint64
	Elem  T
}

func (e Position[T]) String() string { return fmt.Sprintf("(%d,%v)", e.Round, e.Elem) }

// ComparePositions orders positions by round and then by element.
func ComparePositions[T cmp.Ordered](a, b Position[T]) int {
	if c := cmp.Compare(a.Round, b.Round); c != 0 {
		return c
	}
	return cmp.Compare(a.Elem, b.Elem)
}

// Assignment maps an element to its identifier.
type Assignment[T cmp.Ordered] struct {
	Elem T
	ID   uint64
}

func (a Assignment[T]) String() string { return fmt.Sprintf("%v=%d", a.Elem, a.ID) }

// CompareAssignments orders assignments by element and then by identifier.
func CompareAssignments[T cmp.Ordered](a, b Assignment[T]) int {
	if c := cmp.Compare(a.Elem, b.Elem); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Hasher computes the bucket of an encoded element at a round.
type Hasher func(round uint64, data []byte) uint64

// XXHash is the default hasher.
func XXHash(round uint64, data []byte) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], round)
	_, _ = d.Write(buf[:])
	_, _ = d.Write(data)
	return d.Sum64()
}

func encode[T cmp.Ordered](elem T) []byte {
	if s, ok := any(elem).(string); ok {
		return []byte(s)
	}
	return fmt.Appendf(nil, "%v", elem)
}

// Interner is the common interface of the two realizations.
type Interner[T cmp.Ordered] interface {
	// Process folds a change of the element collection into the assignment and returns the
	// change of the assignment. Elements have set semantics: an element is present while its
	// accumulated count is positive.
	Process(ctx context.Context, elems *dbsp.Collection[T, dbsp.Count]) (*dbsp.Collection[Assignment[T], dbsp.Count], error)
	// Lookup returns the identifier of an element.
	Lookup(elem T) (uint64, bool)
	// Assignments returns the current assignment.
	Assignments() *dbsp.Collection[Assignment[T], dbsp.Count]
	// Rounds returns the number of rounds the last epoch took to converge.
	Rounds() uint64
}

// Option configures an interner.
type Option func(*options)

type options struct {
	hasher   Hasher
	log      logr.Logger
	observer dbsp.Observer
}

// WithHasher replaces the default xxhash hasher.
func WithHasher(h Hasher) Option { return func(o *options) { o.hasher = h } }

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option { return func(o *options) { o.log = log } }

// WithObserver sets the observer notified about the rounds of the iteration.
func WithObserver(obs dbsp.Observer) Option { return func(o *options) { o.observer = obs } }

func newOptions(opts []Option) options {
	o := options{hasher: XXHash, log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base is the state shared by both realizations: the accumulated element set and the assignment
// arranged by element.
type base[T cmp.Ordered] struct {
	name   string
	hasher Hasher
	elems  *dbsp.IntegratorOp[T, dbsp.Count]
	trace  *dbsp.Trace[T, uint64, dbsp.Count]
	log    logr.Logger
}

func newBase[T cmp.Ordered](name string, o options) base[T] {
	return base[T]{
		name:   name,
		hasher: o.hasher,
		elems:  dbsp.NewIntegrator[T, dbsp.Count](),
		trace:  dbsp.NewTrace[T, uint64, dbsp.Count](cmp.Compare[T], cmp.Compare[uint64]),
		log:    o.log,
	}
}

func (b *base[T]) bucket(e Position[T]) uint64 { return b.hasher(e.Round, encode(e.Elem)) }

// fold adds a change of the element collection to the accumulated set and returns the change of
// the set of present elements.
func (b *base[T]) fold(delta *dbsp.Collection[T, dbsp.Count]) *dbsp.Collection[T, dbsp.Count] {
	state := b.elems.State()
	was := make(map[T]bool, delta.Len())
	delta.Range(func(elem T, _ dbsp.Count) bool {
		was[elem] = state.Get(elem) > 0
		return true
	})
	b.elems.Update(delta)

	changes := dbsp.NewCollection[T, dbsp.Count]()
	for elem, before := range was {
		after := state.Get(elem) > 0
		switch {
		case !before && after:
			changes.Insert(elem, 1)
		case before && !after:
			changes.Insert(elem, -1)
		}
	}
	return changes
}

// publish records an assignment change.
func (b *base[T]) publish(delta *dbsp.Collection[Assignment[T], dbsp.Count]) {
	b.trace.Update(dbsp.KeyBy(delta, func(a Assignment[T]) (T, uint64) { return a.Elem, a.ID }))
}

// Lookup returns the identifier of an element.
func (b *base[T]) Lookup(elem T) (uint64, bool) {
	for _, id := range b.trace.Current().Lookup(elem) {
		if id.Diff > 0 {
			return id.Value, true
		}
	}
	return 0, false
}

// Assignments returns the current assignment.
func (b *base[T]) Assignments() *dbsp.Collection[Assignment[T], dbsp.Count] {
	return dbsp.NewProjection[dbsp.Pair[T, uint64], Assignment[T], dbsp.Count](func(p dbsp.Pair[T, uint64]) Assignment[T] {
		return Assignment[T]{Elem: p.Key, ID: p.Val}
	}).Process(b.trace.Current().Collection())
}

// Arrangement returns the current assignment arranged by element, pinned for the caller. Release
// it when done.
func (b *base[T]) Arrangement() *dbsp.Arrangement[T, uint64, dbsp.Count] { return b.trace.Acquire() }

// assign turns positions into assignments.
func (b *base[T]) assign(positions *dbsp.Collection[Position[T], dbsp.Count]) *dbsp.Collection[Assignment[T], dbsp.Count] {
	return dbsp.NewProjection[Position[T], Assignment[T], dbsp.Count](func(e Position[T]) Assignment[T] {
		return Assignment[T]{Elem: e.Elem, ID: b.bucket(e)}
	}).Process(positions)
}

func roundZero[T cmp.Ordered](elems *dbsp.Collection[T, dbsp.Count]) *dbsp.Collection[Position[T], dbsp.Count] {
	return dbsp.NewProjection[T, Position[T], dbsp.Count](func(e T) Position[T] { return Position[T]{Elem: e} }).Process(elems)
}

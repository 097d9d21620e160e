package dbsp

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// IterationState is the state of a fixed-point iteration.
type IterationState int

const (
	// Seeding is the state before the first round of an epoch.
	Seeding IterationState = iota
	// RoundActive means a round is being computed.
	RoundActive
	// Converged means the last round contributed no change.
	Converged
)

func (s IterationState) String() string {
	switch s {
	case Seeding:
		return "seeding"
	case RoundActive:
		return "round-active"
	case Converged:
		return "converged"
	default:
		return "unknown"
	}
}

// Observer is notified about the progress of iterations.
type Observer interface {
	// RoundCompleted is called after each round with the number of changed records.
	RoundCompleted(name string, t Time, changes int)
	// Converged is called when an iteration reaches its fixed point at time t.
	Converged(name string, t Time)
}

type nopObserver struct{}

func (nopObserver) RoundCompleted(string, Time, int) {}
func (nopObserver) Converged(string, Time)           {}

// IterateOption configures an iteration.
type IterateOption func(*iterateConfig)

type iterateConfig struct {
	log      logr.Logger
	observer Observer
}

// WithIterateLogger sets the logger of an iteration.
func WithIterateLogger(log logr.Logger) IterateOption {
	return func(c *iterateConfig) { c.log = log }
}

// WithObserver sets an observer for round and convergence events.
func WithObserver(o Observer) IterateOption {
	return func(c *iterateConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

// iteration is the state machine shared by both iterate variants: rounds are a second time
// dimension appended to the epoch, and an epoch converges at the first round that contributes no
// change.
type iteration struct {
	BaseOp
	state    IterationState
	epoch    uint64
	round    uint64
	log      logr.Logger
	observer Observer
}

func newIteration(name string, opts []IterateOption) iteration {
	c := iterateConfig{log: logr.Discard(), observer: nopObserver{}}
	for _, o := range opts {
		o(&c)
	}
	return iteration{
		BaseOp:   NewBaseOp("iterate:" + name),
		state:    Seeding,
		log:      c.log,
		observer: c.observer,
	}
}

func (it *iteration) OpType() OperatorType { return OpTypeIterative }

// State returns the state of the iteration.
func (it *iteration) State() IterationState { return it.state }

// Rounds returns the round at which the last epoch converged, or the current round.
func (it *iteration) Rounds() uint64 { return it.round }

// Epoch returns the number of epochs processed so far.
func (it *iteration) Epoch() uint64 { return it.epoch }

func (it *iteration) seed() {
	it.state = Seeding
	it.round = 0
}

func (it *iteration) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewOpError(it.Name(), fmt.Sprintf("interrupted at round %d", it.round), err)
	}
	it.state = RoundActive
	return nil
}

// end records a round and reports whether the iteration converged.
func (it *iteration) end(changes int) bool {
	t := Time{Epoch: it.epoch, Round: it.round}
	it.log.V(4).Info("round completed", "name", it.Name(), "time", t.String(), "changes", changes)
	it.observer.RoundCompleted(it.Name(), t, changes)

	if changes == 0 {
		it.state = Converged
		it.log.V(2).Info("fixed point reached", "name", it.Name(), "time", t.String())
		it.observer.Converged(it.Name(), t)
		it.epoch++
		return true
	}

	it.round++
	return false
}

// IterateFromCollection computes the fixed point of a step function starting from an explicit
// initial collection. Every round applies the step to the full collection and subtracts the
// current collection to obtain the round's delta, which requires a Group.
type IterateFromCollection[T comparable, D Group[D]] struct {
	iteration
}

// NewIterateFromCollection creates a new iteration seeded from a collection.
func NewIterateFromCollection[T comparable, D Group[D]](name string, opts ...IterateOption) *IterateFromCollection[T, D] {
	return &IterateFromCollection[T, D]{iteration: newIteration(name, opts)}
}

// Run iterates step from the initial collection until a round contributes no change and returns
// the fixed point. There is no bound on the number of rounds: a step that is not monotone may
// iterate forever, unless ctx is canceled.
func (it *IterateFromCollection[T, D]) Run(ctx context.Context, initial *Collection[T, D],
	step func(round uint64, x *Collection[T, D]) (*Collection[T, D], error)) (*Collection[T, D], error) {
	it.seed()
	x := initial.Clone()

	for {
		if err := it.begin(ctx); err != nil {
			return nil, err
		}

		y, err := step(it.round, x)
		if err != nil {
			return nil, NewOpError(it.Name(), fmt.Sprintf("step failed at round %d", it.round), err)
		}

		delta := Subtract(y, x)
		if it.end(delta.Len()) {
			return x, nil
		}
		x.AddMutate(delta)
	}
}

// Reset restarts the epoch count.
func (it *IterateFromCollection[T, D]) Reset() {
	it.seed()
	it.epoch = 0
}

// IterateFromEmpty computes a fixed point starting from the empty collection. The step receives
// the delta of the previous round (empty in round 0) and returns marginal updates, which are
// accumulated forward. Nothing is ever subtracted, so a Monoid suffices.
//
// The accumulated variable persists across epochs: each Run continues from the fixed point of
// the previous one, with the step injecting the new epoch's input in round 0.
type IterateFromEmpty[T comparable, D Monoid[D]] struct {
	iteration
	value *Collection[T, D]
}

// NewIterateFromEmpty creates a new iteration seeded with the zero collection.
func NewIterateFromEmpty[T comparable, D Monoid[D]](name string, opts ...IterateOption) *IterateFromEmpty[T, D] {
	return &IterateFromEmpty[T, D]{iteration: newIteration(name, opts), value: NewCollection[T, D]()}
}

// Run iterates step until a round contributes no change and returns the sum of the round deltas
// of this epoch. There is no bound on the number of rounds unless ctx is canceled.
func (it *IterateFromEmpty[T, D]) Run(ctx context.Context,
	step func(round uint64, delta *Collection[T, D]) (*Collection[T, D], error)) (*Collection[T, D], error) {
	it.seed()
	acc := NewCollection[T, D]()
	delta := NewCollection[T, D]()

	for {
		if err := it.begin(ctx); err != nil {
			return nil, err
		}

		next, err := step(it.round, delta)
		if err != nil {
			return nil, NewOpError(it.Name(), fmt.Sprintf("step failed at round %d", it.round), err)
		}
		if next == nil {
			next = NewCollection[T, D]()
		}

		if it.end(next.Len()) {
			return acc, nil
		}
		acc.AddMutate(next)
		it.value.AddMutate(next)
		delta = next
	}
}

// Value returns the accumulated variable. Callers must not modify it.
func (it *IterateFromEmpty[T, D]) Value() *Collection[T, D] { return it.value }

// Reset drops the accumulated variable.
func (it *IterateFromEmpty[T, D]) Reset() {
	it.seed()
	it.epoch = 0
	it.value = NewCollection[T, D]()
}

// Package graph implements convergent graph algorithms on monoid-valued collections:
// reachability, shortest paths, widest paths and label-propagation connectivity.
//
// All algorithms share one skeleton. A per-node value is kept in a collection whose diffs form a
// monoid; every round crosses the outgoing edges of the nodes that changed in the previous round,
// extending the node value with the value of the edge, and a Reduce-Core operator keeps the best
// candidate per node. The computation stops when the reduction emits no update for any node.
//
// Inputs may only move in the improving direction of the chosen monoid: edges can be added (and,
// for weighted edges, shortened or widened), never retracted.
package graph

import (
	"cmp"
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// Edge is a directed edge. The value of the edge (presence, length, width) is the diff of the
// edge in the edge collection.
type Edge[N cmp.Ordered] struct {
	Src, Dst N
}

func (e Edge[N]) String() string { return fmt.Sprintf("%v->%v", e.Src, e.Dst) }

// Option configures a propagation.
type Option func(*options)

type options struct {
	log      logr.Logger
	observer dbsp.Observer
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option { return func(o *options) { o.log = log } }

// WithObserver sets the observer notified about the rounds of the iteration.
func WithObserver(obs dbsp.Observer) Option { return func(o *options) { o.observer = obs } }

// Propagation maintains a per-node monoid value over a growing edge relation.
type Propagation[N cmp.Ordered, E dbsp.Monoid[E], D dbsp.Monoid[D]] struct {
	name   string
	seed   func(edges *dbsp.Collection[Edge[N], E]) *dbsp.Collection[N, D]
	join   *dbsp.JoinOp[N, dbsp.Unit, D, N, E, N, D]
	reduce *dbsp.ReduceCoreOp[N, dbsp.Unit, D, dbsp.Unit, D]
	iter   *dbsp.IterateFromEmpty[N, D]
	log    logr.Logger
}

// NewPropagation creates the generic skeleton. extend computes the candidate value at the
// destination of an edge from the edge value and the source value; improves is the keep rule of
// the reduction. The optional seed function derives extra seeds from new edges.
func NewPropagation[N cmp.Ordered, E dbsp.Monoid[E], D dbsp.Monoid[D]](name string,
	extend func(edge E, value D) D, improves func(candidate, kept D) bool,
	seed func(edges *dbsp.Collection[Edge[N], E]) *dbsp.Collection[N, D], opts ...Option) *Propagation[N, E, D] {
	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	cross := func(_ N, node dbsp.Weighted[dbsp.Unit, D], edge dbsp.Weighted[N, E]) (dbsp.Weighted[N, D], bool) {
		value := extend(edge.Diff, node.Diff)
		return dbsp.Weighted[N, D]{Value: edge.Value, Diff: value}, !value.IsZero()
	}

	return &Propagation[N, E, D]{
		name: name,
		seed: seed,
		join: dbsp.NewJoin[N, dbsp.Unit, D, N, E, N, D](name, cmp.Compare[N], dbsp.CompareUnit, cmp.Compare[N], cross),
		reduce: dbsp.NewReduceCore[N, dbsp.Unit, D, dbsp.Unit, D](name, cmp.Compare[N], dbsp.CompareUnit, dbsp.CompareUnit,
			dbsp.KeepBest[N, dbsp.Unit, D](improves)),
		iter: dbsp.NewIterateFromEmpty[N, D](name, dbsp.WithIterateLogger(o.log),
			dbsp.WithObserver(o.observer)),
		log: o.log,
	}
}

// Name returns the name of the computation.
func (p *Propagation[N, E, D]) Name() string { return p.name }

// Process runs one epoch: it folds in new edges and new seed values and iterates to the fixed
// point. It returns the per-node changes of the epoch; since values only improve, each change is
// the new value of the node.
func (p *Propagation[N, E, D]) Process(ctx context.Context, edges *dbsp.Collection[Edge[N], E], seeds *dbsp.Collection[N, D]) (*dbsp.Collection[N, D], error) {
	if edges == nil {
		edges = dbsp.NewCollection[Edge[N], E]()
	}
	if seeds == nil {
		seeds = dbsp.NewCollection[N, D]()
	}
	if p.seed != nil {
		seeds = seeds.Add(p.seed(edges))
	}
	bySrc := dbsp.KeyBy(edges, func(e Edge[N]) (N, N) { return e.Src, e.Dst })

	step := func(round uint64, delta *dbsp.Collection[N, D]) (*dbsp.Collection[N, D], error) {
		var candidates *dbsp.Collection[N, D]
		if round == 0 {
			// the current node values meet the new edges
			candidates = p.join.Process(nil, bySrc)
			candidates.AddMutate(seeds)
		} else {
			// the nodes changed in the previous round meet all edges
			candidates = p.join.Process(keyed(delta), nil)
		}
		return unkeyed(p.reduce.Process(keyed(candidates))), nil
	}

	out, err := p.iter.Run(ctx, step)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	p.log.V(2).Info("epoch processed", "name", p.name, "epoch", p.iter.Epoch()-1,
		"rounds", p.iter.Rounds(), "changes", out.Len())

	return out, nil
}

// Values returns the current value of every reached node. Callers must not modify it.
func (p *Propagation[N, E, D]) Values() *dbsp.Collection[N, D] { return p.iter.Value() }

// Value returns the current value of a node, zero if it was not reached.
func (p *Propagation[N, E, D]) Value(n N) D { return p.iter.Value().Get(n) }

// Edges returns the arrangement of the edges, keyed by source.
func (p *Propagation[N, E, D]) Edges() *dbsp.Arrangement[N, N, E] { return p.join.Right().Current() }

// Rounds returns the round at which the last epoch converged.
func (p *Propagation[N, E, D]) Rounds() uint64 { return p.iter.Rounds() }

// Emitted returns the number of node updates emitted by the reduction so far.
func (p *Propagation[N, E, D]) Emitted() int { return p.reduce.Emitted() }

// Reset drops all state.
func (p *Propagation[N, E, D]) Reset() {
	p.join.Reset()
	p.reduce.Reset()
	p.iter.Reset()
}

func keyed[N cmp.Ordered, D dbsp.Monoid[D]](c *dbsp.Collection[N, D]) *dbsp.Collection[dbsp.Pair[N, dbsp.Unit], D] {
	return dbsp.KeyBy(c, func(n N) (N, dbsp.Unit) { return n, dbsp.Unit{} })
}

func unkeyed[N cmp.Ordered, D dbsp.Monoid[D]](c *dbsp.Collection[dbsp.Pair[N, dbsp.Unit], D]) *dbsp.Collection[N, D] {
	return dbsp.NewProjection[dbsp.Pair[N, dbsp.Unit], N, D](func(p dbsp.Pair[N, dbsp.Unit]) N { return p.Key }).Process(c)
}

package graph

import (
	"cmp"
	"math"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// Reachability maintains the set of nodes reachable from the seed nodes.
type Reachability[N cmp.Ordered] struct {
	*Propagation[N, dbsp.Present, dbsp.Present]
}

// NewReachability creates a reachability computation. Edges are Present diffs, seeds are
// Present(true).
func NewReachability[N cmp.Ordered](opts ...Option) *Reachability[N] {
	extend := func(edge, value dbsp.Present) dbsp.Present { return edge && value }
	absent := func(candidate, kept dbsp.Present) bool { return bool(candidate) && !bool(kept) }
	return &Reachability[N]{
		Propagation: NewPropagation[N, dbsp.Present, dbsp.Present]("reachability", extend, absent, nil, opts...),
	}
}

// ShortestPath maintains single- or multi-source shortest path distances. Edge diffs are MinSum
// lengths; adding an edge again with a smaller length shortens it.
type ShortestPath[N cmp.Ordered] struct {
	*Propagation[N, dbsp.MinSum, dbsp.MinSum]
}

// NewShortestPath creates a shortest path computation.
func NewShortestPath[N cmp.Ordered](opts ...Option) *ShortestPath[N] {
	extend := func(edge, value dbsp.MinSum) dbsp.MinSum { return value.Extend(edge.Value) }
	shorter := func(candidate, kept dbsp.MinSum) bool { return candidate.Value < kept.Value }
	return &ShortestPath[N]{
		Propagation: NewPropagation[N, dbsp.MinSum, dbsp.MinSum]("shortest-path", extend, shorter, nil, opts...),
	}
}

// Sources returns the seed collection placing the given nodes at distance 0.
func (*ShortestPath[N]) Sources(nodes ...N) *dbsp.Collection[N, dbsp.MinSum] {
	seeds := dbsp.NewCollection[N, dbsp.MinSum]()
	for _, n := range nodes {
		seeds.Insert(n, dbsp.NewMinSum(0))
	}
	return seeds
}

// WidestPath maintains the maximum bottleneck capacity from the seed nodes. Edge diffs are MaxMin
// widths; adding an edge again with a larger width widens it.
type WidestPath[N cmp.Ordered] struct {
	*Propagation[N, dbsp.MaxMin, dbsp.MaxMin]
}

// NewWidestPath creates a widest path computation.
func NewWidestPath[N cmp.Ordered](opts ...Option) *WidestPath[N] {
	extend := func(edge, value dbsp.MaxMin) dbsp.MaxMin { return value.Extend(edge.Value) }
	wider := func(candidate, kept dbsp.MaxMin) bool { return candidate.Value > kept.Value }
	return &WidestPath[N]{
		Propagation: NewPropagation[N, dbsp.MaxMin, dbsp.MaxMin]("widest-path", extend, wider, nil, opts...),
	}
}

// Sources returns the seed collection giving the given nodes unbounded capacity.
func (*WidestPath[N]) Sources(nodes ...N) *dbsp.Collection[N, dbsp.MaxMin] {
	seeds := dbsp.NewCollection[N, dbsp.MaxMin]()
	for _, n := range nodes {
		seeds.Insert(n, dbsp.NewMaxMin(math.MaxUint64))
	}
	return seeds
}

// Connectivity labels every node with the smallest label in its connected component. Edges must
// be supplied in both directions; the computation does not symmetrize them. Every endpoint of a
// new edge is seeded with its own label.
type Connectivity[N cmp.Ordered] struct {
	*Propagation[N, dbsp.Present, dbsp.MinLabel]
}

// NewConnectivity creates a connectivity computation. label maps a node to its initial label.
func NewConnectivity[N cmp.Ordered](label func(N) uint64, opts ...Option) *Connectivity[N] {
	extend := func(edge dbsp.Present, value dbsp.MinLabel) dbsp.MinLabel {
		if !edge {
			return dbsp.NoLabel
		}
		return value
	}
	smaller := func(candidate, kept dbsp.MinLabel) bool { return candidate.Label < kept.Label }
	seed := func(edges *dbsp.Collection[Edge[N], dbsp.Present]) *dbsp.Collection[N, dbsp.MinLabel] {
		seeds := dbsp.NewCollection[N, dbsp.MinLabel]()
		edges.Range(func(e Edge[N], _ dbsp.Present) bool {
			seeds.Insert(e.Src, dbsp.NewMinLabel(label(e.Src)))
			seeds.Insert(e.Dst, dbsp.NewMinLabel(label(e.Dst)))
			return true
		})
		return seeds
	}
	return &Connectivity[N]{
		Propagation: NewPropagation[N, dbsp.Present, dbsp.MinLabel]("connectivity", extend, smaller, seed, opts...),
	}
}

// Symmetric returns the edge collection with every edge present in both directions.
func Symmetric[N cmp.Ordered](edges ...Edge[N]) *dbsp.Collection[Edge[N], dbsp.Present] {
	result := dbsp.NewCollection[Edge[N], dbsp.Present]()
	for _, e := range edges {
		result.Insert(e, true)
		result.Insert(Edge[N]{Src: e.Dst, Dst: e.Src}, true)
	}
	return result
}

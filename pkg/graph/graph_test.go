package graph

import (
	"context"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/internal/testutils"
	"github.com/l7mp/dflow/pkg/dbsp"
)

func lengthsOf(es []testutils.WeightedEdge) *dbsp.Collection[Edge[string], dbsp.MinSum] {
	c := dbsp.NewCollection[Edge[string], dbsp.MinSum]()
	for _, e := range es {
		c.Insert(Edge[string]{Src: e.Src, Dst: e.Dst}, dbsp.NewMinSum(e.Weight))
	}
	return c
}

func widthsOf(es []testutils.WeightedEdge) *dbsp.Collection[Edge[string], dbsp.MaxMin] {
	c := dbsp.NewCollection[Edge[string], dbsp.MaxMin]()
	for _, e := range es {
		c.Insert(Edge[string]{Src: e.Src, Dst: e.Dst}, dbsp.NewMaxMin(e.Weight))
	}
	return c
}

func lengths(es map[Edge[string]]uint64) *dbsp.Collection[Edge[string], dbsp.MinSum] {
	c := dbsp.NewCollection[Edge[string], dbsp.MinSum]()
	for e, l := range es {
		c.Insert(e, dbsp.NewMinSum(l))
	}
	return c
}

func widths(es map[Edge[string]]uint64) *dbsp.Collection[Edge[string], dbsp.MaxMin] {
	c := dbsp.NewCollection[Edge[string], dbsp.MaxMin]()
	for e, w := range es {
		c.Insert(e, dbsp.NewMaxMin(w))
	}
	return c
}

func distances(sp *ShortestPath[string]) map[string]uint64 {
	result := map[string]uint64{}
	sp.Values().Range(func(n string, d dbsp.MinSum) bool {
		result[n] = d.Value
		return true
	})
	return result
}

var _ = Describe("Shortest path", func() {
	var (
		ctx context.Context
		sp  *ShortestPath[string]
	)

	BeforeEach(func() {
		ctx = context.Background()
		sp = NewShortestPath[string]()
	})

	It("should prefer the shorter multi-hop path", func() {
		out, err := sp.Process(ctx, lengthsOf(testutils.PathEdges), sp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())
		testutils.MatchCollection(out, map[string]dbsp.MinSum{
			"A": dbsp.NewMinSum(0), "B": dbsp.NewMinSum(5), "C": dbsp.NewMinSum(8),
		})
		Expect(distances(sp)).To(Equal(testutils.ShortestDistances(testutils.PathEdges, "A")))
	})

	It("should match Bellman-Ford on random graphs fed in batches", func() {
		rnd := rand.New(rand.NewSource(1))
		for i := 0; i < 10; i++ {
			edges := testutils.RandomEdges(rnd, 12, 30, 20)
			s := NewShortestPath[string]()
			_, err := s.Process(ctx, nil, s.Sources("n0"))
			Expect(err).NotTo(HaveOccurred())
			for b := 0; b < len(edges); b += 7 {
				_, err := s.Process(ctx, lengthsOf(edges[b:min(b+7, len(edges))]), nil)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(distances(s)).To(Equal(testutils.ShortestDistances(edges, "n0")), "graph %d", i)
		}
	})

	It("should update a distance when a shorter edge is added", func() {
		_, err := sp.Process(ctx, lengths(map[Edge[string]]uint64{
			{"A", "B"}: 5, {"B", "C"}: 3, {"A", "C"}: 10,
		}), sp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())

		emitted := sp.Emitted()
		out, err := sp.Process(ctx, lengths(map[Edge[string]]uint64{{"A", "C"}: 1}), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Map()).To(Equal(map[string]dbsp.MinSum{"C": dbsp.NewMinSum(1)}))
		Expect(sp.Value("C")).To(Equal(dbsp.NewMinSum(1)))
		Expect(sp.Value("B")).To(Equal(dbsp.NewMinSum(5)))
		Expect(sp.Emitted() - emitted).To(Equal(1))
	})

	It("should leave unreachable nodes at infinity", func() {
		_, err := sp.Process(ctx, lengths(map[Edge[string]]uint64{{"A", "B"}: 1, {"X", "Y"}: 1}), sp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sp.Value("Y")).To(Equal(dbsp.Infinity))
		Expect(sp.Values().Contains("X")).To(BeFalse())
	})

	It("should pick up new sources in a later epoch", func() {
		_, err := sp.Process(ctx, lengths(map[Edge[string]]uint64{{"A", "B"}: 4, {"X", "B"}: 1}), sp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sp.Value("B")).To(Equal(dbsp.NewMinSum(4)))

		_, err = sp.Process(ctx, nil, sp.Sources("X"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sp.Value("B")).To(Equal(dbsp.NewMinSum(1)))
	})

	It("should handle cycles", func() {
		_, err := sp.Process(ctx, lengths(map[Edge[string]]uint64{
			{"A", "B"}: 1, {"B", "C"}: 1, {"C", "A"}: 1,
		}), sp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())
		Expect(distances(sp)).To(Equal(map[string]uint64{"A": 0, "B": 1, "C": 2}))
	})

	It("should not depend on the order of epochs", func() {
		batches := []map[Edge[string]]uint64{
			{{"A", "B"}: 5},
			{{"B", "C"}: 3, {"C", "D"}: 1},
			{{"A", "C"}: 10},
			{{"A", "C"}: 2},
			{{"B", "D"}: 1},
		}

		var reference map[string]uint64
		for _, perm := range [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}, {3, 1, 0, 4, 2}} {
			s := NewShortestPath[string]()
			_, err := s.Process(ctx, nil, s.Sources("A"))
			Expect(err).NotTo(HaveOccurred())
			for _, i := range perm {
				_, err := s.Process(ctx, lengths(batches[i]), nil)
				Expect(err).NotTo(HaveOccurred())
			}
			if reference == nil {
				reference = distances(s)
				continue
			}
			Expect(distances(s)).To(Equal(reference))
		}
		Expect(reference).To(Equal(map[string]uint64{"A": 0, "B": 5, "C": 2, "D": 3}))
	})

	It("should stop on a canceled context", func() {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := sp.Process(canceled, lengths(map[Edge[string]]uint64{{"A", "B"}: 1}), sp.Sources("A"))
		Expect(err).To(HaveOccurred())
		Expect(dbsp.IsOpError(err)).To(BeTrue())
	})

	It("should arrange edges by source", func() {
		_, err := sp.Process(ctx, lengths(map[Edge[string]]uint64{{"A", "B"}: 5, {"A", "C"}: 1}), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sp.Edges().Lookup("A")).To(Equal([]dbsp.Weighted[string, dbsp.MinSum]{
			{Value: "B", Diff: dbsp.NewMinSum(5)},
			{Value: "C", Diff: dbsp.NewMinSum(1)},
		}))
	})
})

var _ = Describe("Widest path", func() {
	It("should find the maximum bottleneck", func() {
		wp := NewWidestPath[string]()
		_, err := wp.Process(context.Background(), widthsOf(testutils.CapacityEdges), wp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())
		Expect(wp.Value("A")).To(Equal(dbsp.NewMaxMin(math.MaxUint64)))
		Expect(wp.Value("B")).To(Equal(dbsp.NewMaxMin(10)))
		Expect(wp.Value("C")).To(Equal(dbsp.NewMaxMin(4)))
	})

	It("should match the reference on random graphs", func() {
		rnd := rand.New(rand.NewSource(2))
		for i := 0; i < 10; i++ {
			edges := testutils.RandomEdges(rnd, 10, 25, 50)
			wp := NewWidestPath[string]()
			_, err := wp.Process(context.Background(), widthsOf(edges), wp.Sources("n0"))
			Expect(err).NotTo(HaveOccurred())

			got := map[string]uint64{}
			wp.Values().Range(func(n string, w dbsp.MaxMin) bool {
				got[n] = w.Value
				return true
			})
			Expect(got).To(Equal(testutils.WidestCapacities(edges, "n0")), "graph %d", i)
		}
	})

	It("should widen when an edge is widened", func() {
		wp := NewWidestPath[string]()
		_, err := wp.Process(context.Background(), widths(map[Edge[string]]uint64{
			{"A", "B"}: 10, {"B", "C"}: 4, {"A", "C"}: 2,
		}), wp.Sources("A"))
		Expect(err).NotTo(HaveOccurred())

		out, err := wp.Process(context.Background(), widths(map[Edge[string]]uint64{{"A", "C"}: 7}), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Map()).To(Equal(map[string]dbsp.MaxMin{"C": dbsp.NewMaxMin(7)}))
	})
})

var _ = Describe("Reachability", func() {
	It("should reach nodes transitively", func() {
		r := NewReachability[int]()
		edges := dbsp.FromEntries(
			dbsp.Weighted[Edge[int], dbsp.Present]{Value: Edge[int]{1, 2}, Diff: true},
			dbsp.Weighted[Edge[int], dbsp.Present]{Value: Edge[int]{2, 3}, Diff: true},
			dbsp.Weighted[Edge[int], dbsp.Present]{Value: Edge[int]{4, 5}, Diff: true},
		)
		_, err := r.Process(context.Background(), edges, dbsp.Singleton(1, dbsp.Present(true)))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Values().Map()).To(Equal(map[int]dbsp.Present{1: true, 2: true, 3: true}))

		out, err := r.Process(context.Background(),
			dbsp.Singleton(Edge[int]{3, 4}, dbsp.Present(true)), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Map()).To(Equal(map[int]dbsp.Present{4: true, 5: true}))
	})
})

var _ = Describe("Connectivity", func() {
	label := func(n int) uint64 { return uint64(n) }

	It("should label a component with its smallest label", func() {
		cc := NewConnectivity(label)
		_, err := cc.Process(context.Background(), Symmetric(Edge[int]{1, 2}, Edge[int]{2, 3}), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cc.Values().Map()).To(Equal(map[int]dbsp.MinLabel{
			1: dbsp.NewMinLabel(1), 2: dbsp.NewMinLabel(1), 3: dbsp.NewMinLabel(1),
		}))
	})

	It("should merge components", func() {
		cc := NewConnectivity(label)
		_, err := cc.Process(context.Background(), Symmetric(Edge[int]{5, 6}, Edge[int]{2, 3}), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cc.Value(6)).To(Equal(dbsp.NewMinLabel(5)))

		out, err := cc.Process(context.Background(), Symmetric(Edge[int]{3, 6}), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Map()).To(Equal(map[int]dbsp.MinLabel{5: dbsp.NewMinLabel(2), 6: dbsp.NewMinLabel(2)}))
		Expect(cc.Value(3)).To(Equal(dbsp.NewMinLabel(2)))
	})
})

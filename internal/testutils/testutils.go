package testutils

import (
	"fmt"
	"math"
	"math/rand"

	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/dbsp"
)

// WeightedEdge is an edge def used for testing.
type WeightedEdge struct {
	Src, Dst string
	Weight   uint64
}

var (
	// PathEdges is the graph of the shortest path example: the two-hop path from A to C is
	// shorter than the direct edge.
	PathEdges = []WeightedEdge{{"A", "B", 5}, {"B", "C", 3}, {"A", "C", 10}}

	// CapacityEdges is the graph of the widest path example: the two-hop path from A to C is
	// wider than the direct edge.
	CapacityEdges = []WeightedEdge{{"A", "B", 10}, {"B", "C", 4}, {"A", "C", 2}}
)

// RandomEdges generates a random directed graph on the given number of nodes, named n0, n1, ...
// Weights are drawn from [1, maxWeight].
func RandomEdges(rnd *rand.Rand, nodes, edges int, maxWeight uint64) []WeightedEdge {
	result := make([]WeightedEdge, 0, edges)
	for i := 0; i < edges; i++ {
		result = append(result, WeightedEdge{
			Src:    fmt.Sprintf("n%d", rnd.Intn(nodes)),
			Dst:    fmt.Sprintf("n%d", rnd.Intn(nodes)),
			Weight: uint64(rnd.Int63n(int64(maxWeight))) + 1,
		})
	}
	return result
}

// ShortestDistances computes single-source shortest distances with Bellman-Ford. Parallel edges
// count with their smallest weight.
func ShortestDistances(edges []WeightedEdge, source string) map[string]uint64 {
	dist := map[string]uint64{source: 0}
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			d, ok := dist[e.Src]
			if !ok {
				continue
			}
			if old, ok := dist[e.Dst]; !ok || d+e.Weight < old {
				dist[e.Dst] = d + e.Weight
				changed = true
			}
		}
	}
	return dist
}

// WidestCapacities computes single-source maximum bottleneck capacities. The source has unbounded
// capacity.
func WidestCapacities(edges []WeightedEdge, source string) map[string]uint64 {
	width := map[string]uint64{source: math.MaxUint64}
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			w, ok := width[e.Src]
			if !ok {
				continue
			}
			if c := min(w, e.Weight); c > width[e.Dst] {
				width[e.Dst] = c
				changed = true
			}
		}
	}
	return width
}

// MatchCollection validates that a collection holds exactly the expected entries.
func MatchCollection[T comparable, D dbsp.Monoid[D]](c *dbsp.Collection[T, D], expected map[T]D) {
	ExpectWithOffset(1, c).NotTo(BeNil())
	ExpectWithOffset(1, c.Map()).To(Equal(expected), "collection %s", c.String())
}

package dbsp

import (
	"fmt"
	"slices"
	"strings"
)

// Weighted is a value together with its diff. A grouped batch is a sorted slice of Weighted
// entries.
type Weighted[V any, D any] struct {
	Value V
	Diff  D
}

func (w Weighted[V, D]) String() string { return fmt.Sprintf("%v×%v", w.Value, w.Diff) }

// Collection is the accumulated content of a stream of updates: a finite map from data to a
// non-zero diff. Entries whose diff sums to zero are dropped.
type Collection[T comparable, D Monoid[D]] struct {
	diffs map[T]D
}

// NewCollection creates an empty collection.
func NewCollection[T comparable, D Monoid[D]]() *Collection[T, D] {
	return &Collection[T, D]{diffs: make(map[T]D)}
}

// FromEntries creates a collection from weighted entries, combining duplicates.
func FromEntries[T comparable, D Monoid[D]](entries ...Weighted[T, D]) *Collection[T, D] {
	c := NewCollection[T, D]()
	for _, e := range entries {
		c.Insert(e.Value, e.Diff)
	}
	return c
}

// Singleton creates a collection holding a single entry.
func Singleton[T comparable, D Monoid[D]](data T, diff D) *Collection[T, D] {
	c := NewCollection[T, D]()
	c.Insert(data, diff)
	return c
}

// Insert combines diff into the entry for data in place.
func (c *Collection[T, D]) Insert(data T, diff D) {
	if diff.IsZero() {
		return
	}

	if old, ok := c.diffs[data]; ok {
		diff = old.Plus(diff)
	}

	if diff.IsZero() {
		delete(c.diffs, data)
		return
	}
	c.diffs[data] = diff
}

// Add returns the sum of two collections without modifying either.
func (c *Collection[T, D]) Add(other *Collection[T, D]) *Collection[T, D] {
	result := c.Clone()
	result.AddMutate(other)
	return result
}

// AddMutate adds other to the collection in place.
func (c *Collection[T, D]) AddMutate(other *Collection[T, D]) {
	if other == nil {
		return
	}
	for data, diff := range other.diffs {
		c.Insert(data, diff)
	}
}

// Clone creates a copy of the collection. Data and diffs are values and are not deep-copied.
func (c *Collection[T, D]) Clone() *Collection[T, D] {
	result := &Collection[T, D]{diffs: make(map[T]D, len(c.diffs))}
	for data, diff := range c.diffs {
		result.diffs[data] = diff
	}
	return result
}

// Get returns the diff of data, or zero.
func (c *Collection[T, D]) Get(data T) D {
	if diff, ok := c.diffs[data]; ok {
		return diff
	}
	return Zero[D]()
}

// Contains reports whether data has a non-zero diff.
func (c *Collection[T, D]) Contains(data T) bool {
	_, ok := c.diffs[data]
	return ok
}

// Len returns the number of distinct data with a non-zero diff.
func (c *Collection[T, D]) Len() int { return len(c.diffs) }

// IsZero checks if the collection is empty.
func (c *Collection[T, D]) IsZero() bool { return c == nil || len(c.diffs) == 0 }

// Range calls fn for each entry in unspecified order until fn returns false.
func (c *Collection[T, D]) Range(fn func(T, D) bool) {
	for data, diff := range c.diffs {
		if !fn(data, diff) {
			return
		}
	}
}

// Map returns a copy of the underlying map.
func (c *Collection[T, D]) Map() map[T]D {
	result := make(map[T]D, len(c.diffs))
	for data, diff := range c.diffs {
		result[data] = diff
	}
	return result
}

// Entries lists the collection sorted by the given order on data.
func (c *Collection[T, D]) Entries(cmp func(T, T) int) []Weighted[T, D] {
	result := make([]Weighted[T, D], 0, len(c.diffs))
	for data, diff := range c.diffs {
		result = append(result, Weighted[T, D]{Value: data, Diff: diff})
	}
	slices.SortFunc(result, func(a, b Weighted[T, D]) int { return cmp(a.Value, b.Value) })
	return result
}

// String returns a string representation for debugging. Order is unspecified.
func (c *Collection[T, D]) String() string {
	if c.IsZero() {
		return "∅"
	}

	parts := make([]string, 0, len(c.diffs))
	for data, diff := range c.diffs {
		parts = append(parts, fmt.Sprintf("%v×%v", data, diff))
	}
	slices.Sort(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}

// Negate returns the additive inverse of a collection over a Group.
func Negate[T comparable, D Group[D]](c *Collection[T, D]) *Collection[T, D] {
	result := NewCollection[T, D]()
	for data, diff := range c.diffs {
		result.diffs[data] = diff.Negate()
	}
	return result
}

// Subtract returns a - b over a Group.
func Subtract[T comparable, D Group[D]](a, b *Collection[T, D]) *Collection[T, D] {
	result := a.Clone()
	if b == nil {
		return result
	}
	for data, diff := range b.diffs {
		result.Insert(data, diff.Negate())
	}
	return result
}

// Distinct converts a Z-set to set semantics: every positive count becomes 1, the rest is dropped.
func Distinct[T comparable](c *Collection[T, Count]) *Collection[T, Count] {
	result := NewCollection[T, Count]()
	for data, count := range c.diffs {
		if count > 0 {
			result.diffs[data] = 1
		}
	}
	return result
}

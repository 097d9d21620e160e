package dbsp

import (
	"fmt"
	"sync/atomic"

	"github.com/google/btree"
)

// Pair is a keyed record as stored in an arrangement.
type Pair[K comparable, V comparable] struct {
	Key K
	Val V
}

func (p Pair[K, V]) String() string { return fmt.Sprintf("%v→%v", p.Key, p.Val) }

// bounds for seek pivots: a pivot with bound -1 sorts before every value of its key, +1 after.
type arranged[K comparable, V comparable, D any] struct {
	key   K
	val   V
	diff  D
	bound int8
}

const arrangementDegree = 32

// Arrangement is an immutable, sorted and indexed version of a collection of (key, value) pairs,
// offering ordered seeks by key. New batches produce new versions that share structure with the
// old one; a version is never modified after it has been published, so it may be read
// concurrently without locking.
//
// Versions are reference counted: the creator holds the first reference, readers that outlive
// the creator pin a version with Acquire and unpin it with Release. The index is dropped when
// the last reference goes away.
type Arrangement[K comparable, V comparable, D Monoid[D]] struct {
	tree    *btree.BTreeG[arranged[K, V, D]]
	cmpK    func(K, K) int
	cmpV    func(V, V) int
	version uint64
	refs    atomic.Int64
}

// NewArrangement creates an empty arrangement ordered by the given key and value orders.
func NewArrangement[K comparable, V comparable, D Monoid[D]](cmpK func(K, K) int, cmpV func(V, V) int) *Arrangement[K, V, D] {
	a := &Arrangement[K, V, D]{cmpK: cmpK, cmpV: cmpV}
	a.tree = btree.NewG(arrangementDegree, a.less)
	a.refs.Store(1)
	return a
}

func (a *Arrangement[K, V, D]) less(x, y arranged[K, V, D]) bool {
	if c := a.cmpK(x.key, y.key); c != 0 {
		return c < 0
	}
	if x.bound != y.bound {
		return x.bound < y.bound
	}
	if x.bound != 0 {
		return false
	}
	return a.cmpV(x.val, y.val) < 0
}

// Apply returns a new version with the batch folded in. The receiver is not modified.
func (a *Arrangement[K, V, D]) Apply(batch *Collection[Pair[K, V], D]) *Arrangement[K, V, D] {
	next := &Arrangement[K, V, D]{cmpK: a.cmpK, cmpV: a.cmpV, version: a.version + 1}
	if a.tree != nil {
		next.tree = a.tree.Clone()
	} else {
		next.tree = btree.NewG(arrangementDegree, next.less)
	}
	next.refs.Store(1)

	batch.Range(func(p Pair[K, V], diff D) bool {
		item := arranged[K, V, D]{key: p.Key, val: p.Val}
		if old, ok := next.tree.Get(item); ok {
			diff = old.diff.Plus(diff)
		}
		if diff.IsZero() {
			next.tree.Delete(item)
		} else {
			item.diff = diff
			next.tree.ReplaceOrInsert(item)
		}
		return true
	})

	return next
}

// Version returns the number of batches applied to produce this version.
func (a *Arrangement[K, V, D]) Version() uint64 { return a.version }

// Acquire pins the version and returns it.
func (a *Arrangement[K, V, D]) Acquire() *Arrangement[K, V, D] {
	a.refs.Add(1)
	return a
}

// Release drops a reference. The last release frees the index.
func (a *Arrangement[K, V, D]) Release() {
	if a.refs.Add(-1) == 0 {
		a.tree = nil
	}
}

// Refs returns the current reference count.
func (a *Arrangement[K, V, D]) Refs() int64 { return a.refs.Load() }

// Len returns the number of (key, value) entries.
func (a *Arrangement[K, V, D]) Len() int {
	if a.tree == nil {
		return 0
	}
	return a.tree.Len()
}

// Lookup returns the values of a key sorted by the value order.
func (a *Arrangement[K, V, D]) Lookup(key K) []Weighted[V, D] {
	if a.tree == nil {
		return nil
	}

	var result []Weighted[V, D]
	a.tree.AscendGreaterOrEqual(arranged[K, V, D]{key: key, bound: -1}, func(item arranged[K, V, D]) bool {
		if a.cmpK(item.key, key) != 0 {
			return false
		}
		result = append(result, Weighted[V, D]{Value: item.val, Diff: item.diff})
		return true
	})
	return result
}

// Range calls fn for each entry in (key, value) order until fn returns false.
func (a *Arrangement[K, V, D]) Range(fn func(K, V, D) bool) {
	if a.tree == nil {
		return
	}
	a.tree.Ascend(func(item arranged[K, V, D]) bool { return fn(item.key, item.val, item.diff) })
}

// Collection materializes the arrangement.
func (a *Arrangement[K, V, D]) Collection() *Collection[Pair[K, V], D] {
	result := NewCollection[Pair[K, V], D]()
	a.Range(func(k K, v V, d D) bool {
		result.Insert(Pair[K, V]{Key: k, Val: v}, d)
		return true
	})
	return result
}

// Cursor returns a forward cursor positioned at the first key.
func (a *Arrangement[K, V, D]) Cursor() *Cursor[K, V, D] {
	c := &Cursor[K, V, D]{arr: a}
	if a.tree != nil {
		if first, ok := a.tree.Min(); ok {
			c.load(first.key)
		}
	}
	return c
}

// Cursor walks the keys of an arrangement in order. Seeks only move forward.
type Cursor[K comparable, V comparable, D Monoid[D]] struct {
	arr    *Arrangement[K, V, D]
	key    K
	values []Weighted[V, D]
	valid  bool
}

func (c *Cursor[K, V, D]) load(key K) {
	c.key = key
	c.values = c.arr.Lookup(key)
	c.valid = len(c.values) > 0
}

// Valid reports whether the cursor points to a key.
func (c *Cursor[K, V, D]) Valid() bool { return c.valid }

// Key returns the current key.
func (c *Cursor[K, V, D]) Key() K { return c.key }

// Values returns the values of the current key.
func (c *Cursor[K, V, D]) Values() []Weighted[V, D] { return c.values }

// Seek moves the cursor to the first key greater than or equal to key. Seeking backwards is a
// no-op.
func (c *Cursor[K, V, D]) Seek(key K) bool {
	if !c.valid {
		return false
	}
	if c.arr.cmpK(key, c.key) <= 0 {
		return true
	}
	c.seekFrom(arranged[K, V, D]{key: key, bound: -1})
	return c.valid
}

// Next moves the cursor to the next key.
func (c *Cursor[K, V, D]) Next() bool {
	if !c.valid {
		return false
	}
	c.seekFrom(arranged[K, V, D]{key: c.key, bound: 1})
	return c.valid
}

func (c *Cursor[K, V, D]) seekFrom(pivot arranged[K, V, D]) {
	c.valid = false
	if c.arr.tree == nil {
		return
	}
	var next K
	found := false
	c.arr.tree.AscendGreaterOrEqual(pivot, func(item arranged[K, V, D]) bool {
		next, found = item.key, true
		return false
	})
	if found {
		c.load(next)
	}
}

// Trace owns the current version of an arrangement and publishes new versions as batches
// arrive. Readers obtain a pinned version with Acquire.
type Trace[K comparable, V comparable, D Monoid[D]] struct {
	current *Arrangement[K, V, D]
}

// NewTrace creates a trace holding an empty arrangement.
func NewTrace[K comparable, V comparable, D Monoid[D]](cmpK func(K, K) int, cmpV func(V, V) int) *Trace[K, V, D] {
	return &Trace[K, V, D]{current: NewArrangement[K, V, D](cmpK, cmpV)}
}

// Update publishes a new version and drops the trace's reference to the old one.
func (t *Trace[K, V, D]) Update(batch *Collection[Pair[K, V], D]) *Arrangement[K, V, D] {
	if batch.IsZero() {
		return t.current
	}
	next := t.current.Apply(batch)
	old := t.current
	t.current = next
	old.Release()
	return next
}

// Current returns the current version without pinning it.
func (t *Trace[K, V, D]) Current() *Arrangement[K, V, D] { return t.current }

// Acquire returns the current version pinned for the caller.
func (t *Trace[K, V, D]) Acquire() *Arrangement[K, V, D] { return t.current.Acquire() }

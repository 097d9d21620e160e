package dbsp

import (
	"cmp"
	"fmt"
	"slices"
)

// Time is a logical timestamp: the epoch delivered by the driver, extended with the round of an
// enclosing iteration. Times are partially ordered by the product order.
type Time struct {
	Epoch uint64
	Round uint64
}

// LessEqual is the product partial order.
func (t Time) LessEqual(o Time) bool { return t.Epoch <= o.Epoch && t.Round <= o.Round }

// Join returns the least upper bound of two times.
func (t Time) Join(o Time) Time {
	return Time{Epoch: max(t.Epoch, o.Epoch), Round: max(t.Round, o.Round)}
}

// Compare is a lexicographic total order that extends the product order, used for sorting.
func (t Time) Compare(o Time) int {
	if c := cmp.Compare(t.Epoch, o.Epoch); c != 0 {
		return c
	}
	return cmp.Compare(t.Round, o.Round)
}

func (t Time) String() string { return fmt.Sprintf("(%d,%d)", t.Epoch, t.Round) }

// Update is an update triple: data changed by diff at time.
type Update[T any, D any] struct {
	Data T
	Time Time
	Diff D
}

func (u Update[T, D]) String() string { return fmt.Sprintf("(%v, %s, %v)", u.Data, u.Time, u.Diff) }

type dataTime[T comparable] struct {
	data T
	time Time
}

// Consolidate sums the diffs of updates sharing the same (data, time) and drops zero diffs. The
// result is sorted by time and then by data, so it does not depend on the input order.
func Consolidate[T comparable, D Monoid[D]](updates []Update[T, D], cmpData func(T, T) int) []Update[T, D] {
	acc := make(map[dataTime[T]]D, len(updates))
	for _, u := range updates {
		k := dataTime[T]{data: u.Data, time: u.Time}
		if old, ok := acc[k]; ok {
			acc[k] = old.Plus(u.Diff)
		} else {
			acc[k] = u.Diff
		}
	}

	result := make([]Update[T, D], 0, len(acc))
	for k, diff := range acc {
		if diff.IsZero() {
			continue
		}
		result = append(result, Update[T, D]{Data: k.data, Time: k.time, Diff: diff})
	}

	slices.SortFunc(result, func(a, b Update[T, D]) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		return cmpData(a.Data, b.Data)
	})
	return result
}

// Log is an append-only log of update triples. The collection it describes at time t is the sum
// of all updates at times less than or equal to t.
type Log[T comparable, D Monoid[D]] struct {
	updates  []Update[T, D]
	cmp      func(T, T) int
	frontier Time
}

// NewLog creates an empty update log. The order on data is used for consolidation.
func NewLog[T comparable, D Monoid[D]](cmpData func(T, T) int) *Log[T, D] {
	return &Log[T, D]{cmp: cmpData}
}

// Append adds updates to the log.
func (l *Log[T, D]) Append(updates ...Update[T, D]) {
	l.updates = append(l.updates, updates...)
}

// AppendCollection adds the content of a collection at the given time.
func (l *Log[T, D]) AppendCollection(t Time, c *Collection[T, D]) {
	c.Range(func(data T, diff D) bool {
		l.updates = append(l.updates, Update[T, D]{Data: data, Time: t, Diff: diff})
		return true
	})
}

// At returns the collection as of time t.
func (l *Log[T, D]) At(t Time) *Collection[T, D] {
	result := NewCollection[T, D]()
	for _, u := range l.updates {
		if u.Time.LessEqual(t) {
			result.Insert(u.Data, u.Diff)
		}
	}
	return result
}

// Between returns the sum of the updates at times t with from < t <= to, that is, the change of
// the collection between the two times when from <= to.
func (l *Log[T, D]) Between(from, to Time) *Collection[T, D] {
	result := NewCollection[T, D]()
	for _, u := range l.updates {
		if u.Time.LessEqual(to) && !u.Time.LessEqual(from) {
			result.Insert(u.Data, u.Diff)
		}
	}
	return result
}

// Compact advances every time in the log to its join with the frontier and consolidates. The
// collection at any time beyond the frontier is unchanged; times not beyond it can no longer be
// distinguished.
func (l *Log[T, D]) Compact(frontier Time) {
	for i := range l.updates {
		l.updates[i].Time = l.updates[i].Time.Join(frontier)
	}
	l.updates = Consolidate(l.updates, l.cmp)
	l.frontier = l.frontier.Join(frontier)
}

// Frontier returns the compaction frontier.
func (l *Log[T, D]) Frontier() Time { return l.frontier }

// Len returns the number of stored updates.
func (l *Log[T, D]) Len() int { return len(l.updates) }

// Updates returns a consolidated copy of the log content.
func (l *Log[T, D]) Updates() []Update[T, D] {
	return Consolidate(slices.Clone(l.updates), l.cmp)
}

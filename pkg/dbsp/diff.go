package dbsp

import (
	"fmt"
	"math"
)

// Semigroup is a diff type with an associative and commutative combine.
type Semigroup[D any] interface {
	// Plus combines two diffs. Must be associative and commutative.
	Plus(D) D
}

// Monoid is a Semigroup with an identity element. Operators that only ever accumulate forward
// declare this bound.
type Monoid[D any] interface {
	Semigroup[D]
	// Zero returns the identity of Plus. The receiver value is ignored.
	Zero() D
	// IsZero reports whether the diff carries no information.
	IsZero() bool
}

// Group is a Monoid with inverses. Operators that must compute "new minus old" declare this
// bound.
type Group[D any] interface {
	Monoid[D]
	// Negate returns the inverse so that x.Plus(x.Negate()) is zero.
	Negate() D
}

// Zero returns the identity element of a Monoid diff type.
func Zero[D Monoid[D]]() D {
	var d D
	return d.Zero()
}

// Sum combines a slice of diffs, returning zero for an empty slice.
func Sum[D Monoid[D]](ds ...D) D {
	acc := Zero[D]()
	for _, d := range ds {
		acc = acc.Plus(d)
	}
	return acc
}

// Count is the classical signed multiplicity of Z-sets.
type Count int64

func (c Count) Plus(o Count) Count { return c + o }
func (c Count) Zero() Count        { return 0 }
func (c Count) IsZero() bool       { return c == 0 }
func (c Count) Negate() Count      { return -c }
func (c Count) String() string     { return fmt.Sprintf("%+d", int64(c)) }

// Present is an idempotent presence marker. Zero means absent.
type Present bool

func (p Present) Plus(o Present) Present { return p || o }
func (p Present) Zero() Present          { return false }
func (p Present) IsZero() bool           { return !bool(p) }

// MinSum keeps the minimum of the values seen. The zero value of the Go type is NOT the monoid
// zero; use Zero or Infinity.
type MinSum struct {
	Value uint64
}

// Infinity is the identity of MinSum.
var Infinity = MinSum{Value: math.MaxUint64}

// NewMinSum wraps a distance.
func NewMinSum(v uint64) MinSum { return MinSum{Value: v} }

func (m MinSum) Plus(o MinSum) MinSum { return MinSum{Value: min(m.Value, o.Value)} }
func (m MinSum) Zero() MinSum         { return Infinity }
func (m MinSum) IsZero() bool         { return m.Value == math.MaxUint64 }

// Extend adds a length to the distance, saturating at infinity.
func (m MinSum) Extend(length uint64) MinSum {
	if m.IsZero() || length >= math.MaxUint64-m.Value {
		return Infinity
	}
	return MinSum{Value: m.Value + length}
}

func (m MinSum) String() string {
	if m.IsZero() {
		return "∞"
	}
	return fmt.Sprintf("%d", m.Value)
}

// MaxMin keeps the maximum of the capacities seen. Zero capacity is the identity.
type MaxMin struct {
	Value uint64
}

// NewMaxMin wraps a capacity.
func NewMaxMin(v uint64) MaxMin { return MaxMin{Value: v} }

func (m MaxMin) Plus(o MaxMin) MaxMin { return MaxMin{Value: max(m.Value, o.Value)} }
func (m MaxMin) Zero() MaxMin         { return MaxMin{} }
func (m MaxMin) IsZero() bool         { return m.Value == 0 }

// Extend narrows the capacity to the width of a link.
func (m MaxMin) Extend(width uint64) MaxMin { return MaxMin{Value: min(m.Value, width)} }

func (m MaxMin) String() string { return fmt.Sprintf("%d", m.Value) }

// MinLabel keeps the smallest label seen. The identity is an unreachable sentinel label.
type MinLabel struct {
	Label uint64
}

// NoLabel is the identity of MinLabel.
var NoLabel = MinLabel{Label: math.MaxUint64}

// NewMinLabel wraps a label.
func NewMinLabel(l uint64) MinLabel { return MinLabel{Label: l} }

func (m MinLabel) Plus(o MinLabel) MinLabel { return MinLabel{Label: min(m.Label, o.Label)} }
func (m MinLabel) Zero() MinLabel           { return NoLabel }
func (m MinLabel) IsZero() bool             { return m.Label == math.MaxUint64 }

func (m MinLabel) String() string {
	if m.IsZero() {
		return "⊤"
	}
	return fmt.Sprintf("#%d", m.Label)
}

var (
	_ Group[Count]     = Count(0)
	_ Monoid[Present]  = Present(false)
	_ Monoid[MinSum]   = MinSum{}
	_ Monoid[MaxMin]   = MaxMin{}
	_ Monoid[MinLabel] = MinLabel{}
)

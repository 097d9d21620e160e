// Package dbsp implements incremental operators over collections whose changes are described by
// elements of a commutative monoid rather than by signed integer multiplicities. See the DBSP
// paper for the Z-set special case: https://mihaibudiu.github.io/work/dbsp-spec.pdf.
//
// A collection is the accumulation of a stream of update triples (data, time, diff). The diff
// type decides which operators can maintain the collection:
//   - Semigroup: an associative, commutative Plus.
//   - Monoid: a Semigroup with a Zero. Enough for operators that only accumulate forward.
//   - Group: a Monoid with Negate. Needed by operators that compute "new minus old".
//
// The bounds are type parameter constraints, so handing a monoid-only diff type (e.g., MinSum)
// to an operator that subtracts (e.g., IterateFromCollection) does not compile.
//
// Key components:
//   - Collection, Update, Log: the data model and the accumulation rule.
//   - Arrangement, Trace: shared, immutable, sorted versions of keyed collections.
//   - ProjectionOp, UnwindOp, Concat, KeyBy: linear operators.
//   - IntegratorOp, DifferentiatorOp: the I and D operators lifting snapshot computations.
//   - JoinOp: incremental join over monoid diffs.
//   - ReduceCoreOp: per-key reduction emitting marginal corrections; NewReduce builds the
//     classical Group-based reduction on top of it.
//   - IterateFromCollection, IterateFromEmpty: fixed-point iteration in two variants.
//
// Operators are synchronous: the driver calls Process once per batch of a committed epoch.
//
// Example usage:
//
//	reduce := dbsp.NewReduceCore("min", cmp.Compare[string], dbsp.CompareUnit, dbsp.CompareUnit,
//		dbsp.KeepBest[string, dbsp.Unit](func(c, k dbsp.MinSum) bool { return c.Value < k.Value }))
//	out := reduce.Process(delta)
package dbsp

// Unit is the value type of keyed collections that carry all information in the diff.
type Unit struct{}

// CompareUnit is the (trivial) total order on Unit.
func CompareUnit(Unit, Unit) int { return 0 }

package dbsp

// ProjectionOp maps every record to a new record, keeping its diff.
type ProjectionOp[T comparable, U comparable, D Monoid[D]] struct {
	BaseOp
	fn func(T) U
}

// NewProjection creates a new projection op.
func NewProjection[T comparable, U comparable, D Monoid[D]](fn func(T) U) *ProjectionOp[T, U, D] {
	return &ProjectionOp[T, U, D]{BaseOp: NewBaseOp("π"), fn: fn}
}

func (n *ProjectionOp[T, U, D]) OpType() OperatorType { return OpTypeLinear }

// Process evaluates the op.
func (n *ProjectionOp[T, U, D]) Process(input *Collection[T, D]) *Collection[U, D] {
	result := NewCollection[U, D]()
	input.Range(func(data T, diff D) bool {
		result.Insert(n.fn(data), diff)
		return true
	})
	return result
}

// UnwindOp maps every record to zero or more records, each inheriting the diff of the source.
type UnwindOp[T comparable, U comparable, D Monoid[D]] struct {
	BaseOp
	fn func(T) []U
}

// NewUnwind creates a new unwind op.
func NewUnwind[T comparable, U comparable, D Monoid[D]](fn func(T) []U) *UnwindOp[T, U, D] {
	return &UnwindOp[T, U, D]{BaseOp: NewBaseOp("unwind"), fn: fn}
}

func (n *UnwindOp[T, U, D]) OpType() OperatorType { return OpTypeLinear }

// Process evaluates the op.
func (n *UnwindOp[T, U, D]) Process(input *Collection[T, D]) *Collection[U, D] {
	result := NewCollection[U, D]()
	input.Range(func(data T, diff D) bool {
		for _, u := range n.fn(data) {
			result.Insert(u, diff)
		}
		return true
	})
	return result
}

// Concat adds any number of collections.
func Concat[T comparable, D Monoid[D]](inputs ...*Collection[T, D]) *Collection[T, D] {
	result := NewCollection[T, D]()
	for _, in := range inputs {
		result.AddMutate(in)
	}
	return result
}

// KeyBy turns a collection into keyed pairs ready to be arranged.
func KeyBy[T comparable, K comparable, V comparable, D Monoid[D]](input *Collection[T, D], fn func(T) (K, V)) *Collection[Pair[K, V], D] {
	result := NewCollection[Pair[K, V], D]()
	input.Range(func(data T, diff D) bool {
		k, v := fn(data)
		result.Insert(Pair[K, V]{Key: k, Val: v}, diff)
		return true
	})
	return result
}

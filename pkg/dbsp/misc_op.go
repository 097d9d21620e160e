package dbsp

// IntegratorOp implements the I operator: converts deltas to snapshots.
// I(s)[t] = Σ(i=0 to t) s[i]
type IntegratorOp[T comparable, D Monoid[D]] struct {
	BaseOp
	state *Collection[T, D]
}

// NewIntegrator creates a new integrator.
func NewIntegrator[T comparable, D Monoid[D]]() *IntegratorOp[T, D] {
	return &IntegratorOp[T, D]{BaseOp: NewBaseOp("I"), state: NewCollection[T, D]()}
}

func (n *IntegratorOp[T, D]) OpType() OperatorType { return OpTypeLinear }

// Process folds the delta into the state and returns the new snapshot.
func (n *IntegratorOp[T, D]) Process(delta *Collection[T, D]) *Collection[T, D] {
	n.Update(delta)
	return n.state.Clone()
}

// Update folds the delta into the state without taking a snapshot.
func (n *IntegratorOp[T, D]) Update(delta *Collection[T, D]) {
	// state[t+1] = state[t] + delta[t]
	n.state.AddMutate(delta)
}

// State returns the current snapshot without copying. Callers must not modify it.
func (n *IntegratorOp[T, D]) State() *Collection[T, D] { return n.state }

// Reset state.
func (n *IntegratorOp[T, D]) Reset() { n.state = NewCollection[T, D]() }

// DifferentiatorOp implements the D operator: converts snapshots to deltas. Requires a Group.
// D(s)[t] = s[t] - s[t-1]
type DifferentiatorOp[T comparable, D Group[D]] struct {
	BaseOp
	prevState *Collection[T, D]
}

// NewDifferentiator creates a new differentiator.
func NewDifferentiator[T comparable, D Group[D]]() *DifferentiatorOp[T, D] {
	return &DifferentiatorOp[T, D]{BaseOp: NewBaseOp("D"), prevState: NewCollection[T, D]()}
}

func (n *DifferentiatorOp[T, D]) OpType() OperatorType { return OpTypeLinear }

// Process returns the change since the previous snapshot.
func (n *DifferentiatorOp[T, D]) Process(snapshot *Collection[T, D]) *Collection[T, D] {
	delta := Subtract(snapshot, n.prevState)
	n.prevState = snapshot.Clone()
	return delta
}

// Reset state.
func (n *DifferentiatorOp[T, D]) Reset() { n.prevState = NewCollection[T, D]() }

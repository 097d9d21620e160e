package dbsp

import (
	"errors"
	"fmt"
)

// OperatorType classifies operators.
type OperatorType int

const (
	OpTypeLinear    OperatorType = iota // Op^Δ = Op
	OpTypeBilinear                      // Op^Δ needs expansion (like joins)
	OpTypeNonLinear                     // Op^Δ needs state (like reductions)
	OpTypeIterative                     // fixed-point loops
)

func (t OperatorType) String() string {
	switch t {
	case OpTypeLinear:
		return "Linear"
	case OpTypeBilinear:
		return "Bilinear"
	case OpTypeNonLinear:
		return "NonLinear"
	case OpTypeIterative:
		return "Iterative"
	default:
		return "Unknown"
	}
}

// Operator is the type-independent view of a computation node. Processing is typed and lives on
// the concrete operators.
type Operator interface {
	// Name returns the node name for debugging.
	Name() string
	// OpType classifies the operator.
	OpType() OperatorType
	// Reset drops all state accumulated by a stateful operator.
	Reset()
}

// BaseOp carries the name of an operator.
type BaseOp struct {
	name string
}

// NewBaseOp creates a named base op.
func NewBaseOp(name string) BaseOp { return BaseOp{name: name} }

func (n *BaseOp) Name() string { return n.name }

// Reset is a no-op for stateless operators.
func (n *BaseOp) Reset() {}

// OpError reports a failure of a named operator.
type OpError struct {
	Op      string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the cause.
func (e *OpError) Unwrap() error { return e.Cause }

// NewOpError creates a new operator error.
func NewOpError(op, message string, cause error) error {
	return &OpError{Op: op, Message: message, Cause: cause}
}

// IsOpError reports whether err was raised by an operator.
func IsOpError(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr)
}

package ir

import "errors"

var (
	// ErrOutputIndex reports an output index outside [0, NumOutputs).
	ErrOutputIndex = errors.New("ir: output index out of range")
	// ErrLowerNotImplemented is returned by operators without a lowering.
	ErrLowerNotImplemented = errors.New("ir: lowering not implemented")
	// ErrCloneNotImplemented is returned by operators that cannot be cloned.
	ErrCloneNotImplemented = errors.New("ir: cloning not implemented")
	// ErrCycle reports a cycle found while traversing a graph.
	ErrCycle = errors.New("ir: graph contains a cycle")
	// ErrInvalidOperand reports a nil operand or an operand index out of range.
	ErrInvalidOperand = errors.New("ir: invalid operand")
	// ErrShapeArity reports a shape that disagrees with the number of outputs.
	ErrShapeArity = errors.New("ir: shape does not match output count")
	// ErrOperandCount reports a Clone or constructor call with the wrong number of operands.
	ErrOperandCount = errors.New("ir: wrong number of operands")
	// ErrOutputCount reports a lowering that produced the wrong number of results.
	ErrOutputCount = errors.New("ir: wrong number of lowered outputs")
)

package ir

import (
	"fmt"

	"graphir/internal/hlo"
	"graphir/internal/shape"
)

// LoweringContext is what a node sees while lowering itself. It resolves
// operand handles emitted earlier and records the handles the node emits.
type LoweringContext interface {
	Builder() *hlo.Builder
	// GetOutputOp returns the backend op recorded for out.
	GetOutputOp(out Output) (hlo.Op, error)
	AssignOutputOp(out Output, op hlo.Op)
	// AddParameter declares the next computation parameter.
	AddParameter(s shape.Shape, name string) hlo.Op
}

// OperandOp resolves the i-th operand of n.
func OperandOp(loctx LoweringContext, n Node, i int) (hlo.Op, error) {
	if i < 0 || i >= len(n.Operands()) {
		return hlo.Op{}, fmt.Errorf("%w: %s has %d operands, asked for %d", ErrInvalidOperand, n.Op(), len(n.Operands()), i)
	}
	return loctx.GetOutputOp(n.Operand(i))
}

// OperandOps resolves every operand of n in order.
func OperandOps(loctx LoweringContext, n Node) ([]hlo.Op, error) {
	ops := make([]hlo.Op, len(n.Operands()))
	for i, out := range n.Operands() {
		op, err := loctx.GetOutputOp(out)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

// ReturnOp registers op as the single output of n.
func ReturnOp(n Node, op hlo.Op, loctx LoweringContext) ([]hlo.Op, error) {
	if n.NumOutputs() != 1 {
		return nil, fmt.Errorf("%w: %s has %d outputs, got 1 op", ErrOutputCount, n.Op(), n.NumOutputs())
	}
	if err := checkOp(loctx, n, op); err != nil {
		return nil, err
	}
	loctx.AssignOutputOp(Output{Node: n}, op)
	return []hlo.Op{op}, nil
}

// ReturnOps registers ops[i] as output i of n.
func ReturnOps(n Node, ops []hlo.Op, loctx LoweringContext) ([]hlo.Op, error) {
	if len(ops) != n.NumOutputs() {
		return nil, fmt.Errorf("%w: %s has %d outputs, got %d ops", ErrOutputCount, n.Op(), n.NumOutputs(), len(ops))
	}
	for _, op := range ops {
		if err := checkOp(loctx, n, op); err != nil {
			return nil, err
		}
	}
	for i, op := range ops {
		loctx.AssignOutputOp(Output{Node: n, Index: i}, op)
	}
	return ops, nil
}

func checkOp(loctx LoweringContext, n Node, op hlo.Op) error {
	if op.Valid() {
		return nil
	}
	if err := loctx.Builder().Err(); err != nil {
		return fmt.Errorf("lower %s: %w", n.Op(), err)
	}
	return fmt.Errorf("lower %s: %w", n.Op(), hlo.ErrInvalidOp)
}

package ops

import (
	"fmt"
	"strings"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

// Unary is an elementwise unary operator.
type Unary struct {
	ir.Base
	Code hlo.Opcode
}

// NewUnary applies the named operator (neg, exp, log, tanh, abs, sqrt) to x.
func NewUnary(name string, x ir.Value) (ir.Node, error) {
	code, ok := unaryOps[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown unary operator %q", ErrInvalidArgument, name)
	}
	s, err := arrayOperand(name, x)
	if err != nil {
		return nil, err
	}
	return ir.MakeNode(&Unary{Base: ir.NewBase(kindFor(name), []ir.Value{x}, s), Code: code}), nil
}

// Clone applies the same operator to operands[0].
func (u *Unary) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(u, operands, 1); err != nil {
		return nil, err
	}
	return NewUnary(opName(u), operands[0])
}

// Lower emits the unary instruction.
func (u *Unary) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	x, err := ir.OperandOp(loctx, u, 0)
	if err != nil {
		return nil, err
	}
	return ir.ReturnOp(u, loctx.Builder().Unary(u.Code, x), loctx)
}

// Binary is an elementwise binary operator. A scalar operand is broadcast
// to the shape of the other one.
type Binary struct {
	ir.Base
	Code hlo.Opcode
}

// NewBinary applies the named operator (add, sub, mul, div, max, min).
// The result shape is computed on first use.
func NewBinary(name string, x, y ir.Value) (ir.Node, error) {
	code, ok := binaryOps[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown binary operator %q", ErrInvalidArgument, name)
	}
	xs, err := arrayOperand(name, x)
	if err != nil {
		return nil, err
	}
	ys, err := arrayOperand(name, y)
	if err != nil {
		return nil, err
	}
	if _, err := binaryShape(xs, ys); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fn := func() shape.Shape {
		s, _ := binaryShape(x.Shape(), y.Shape())
		return s
	}
	return ir.MakeNode(&Binary{Base: ir.NewBaseFn(kindFor(name), []ir.Value{x, y}, fn), Code: code}), nil
}

func binaryShape(x, y shape.Shape) (shape.Shape, error) {
	if x.DType != y.DType {
		return shape.Shape{}, fmt.Errorf("%w: element types %s and %s", ErrInvalidArgument, x.DType, y.DType)
	}
	switch {
	case x.Equal(y):
		return x.Clone(), nil
	case x.IsScalar():
		return y.Clone(), nil
	case y.IsScalar():
		return x.Clone(), nil
	}
	return shape.Shape{}, fmt.Errorf("%w: incompatible shapes %s and %s", ErrInvalidArgument, x, y)
}

// Clone applies the same operator to the new operands.
func (b *Binary) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(b, operands, 2); err != nil {
		return nil, err
	}
	return NewBinary(opName(b), operands[0], operands[1])
}

// Lower broadcasts a scalar operand if needed and emits the instruction.
func (b *Binary) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	ops, err := ir.OperandOps(loctx, b)
	if err != nil {
		return nil, err
	}
	out := b.Shape()
	bld := loctx.Builder()
	for i, o := range b.Operands() {
		if s := o.Shape(); s.IsScalar() && !out.IsScalar() {
			ops[i] = bld.Broadcast(ops[i], out.Dims...)
		}
	}
	return ir.ReturnOp(b, bld.Binary(b.Code, ops[0], ops[1]), loctx)
}

// opName strips the "xla::" prefix of the node's kind.
func opName(n ir.Node) string {
	name, _ := strings.CutPrefix(n.Op().String(), "xla::")
	return name
}

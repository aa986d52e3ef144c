// Package ops implements the operators traced into ir graphs and their
// lowering to hlo instructions.
package ops

import (
	"errors"
	"fmt"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

// ErrInvalidArgument reports a constructor argument the operator cannot accept.
var ErrInvalidArgument = errors.New("ops: invalid argument")

func init() {
	ir.RegisterFramePrefix("graphir/internal/ops.")
}

var (
	ParameterKind = ir.GetOpKind("xla::device_data")
	ConstantKind  = ir.GetOpKind("xla::constant")
	ReshapeKind   = ir.GetOpKind("xla::reshape")
	BroadcastKind = ir.GetOpKind("xla::broadcast")
	SplitKind     = ir.GetOpKind("xla::split")
)

var unaryOps = map[string]hlo.Opcode{
	"neg":  hlo.OpNegate,
	"exp":  hlo.OpExp,
	"log":  hlo.OpLog,
	"tanh": hlo.OpTanh,
	"abs":  hlo.OpAbs,
	"sqrt": hlo.OpSqrt,
}

var binaryOps = map[string]hlo.Opcode{
	"add": hlo.OpAdd,
	"sub": hlo.OpSubtract,
	"mul": hlo.OpMultiply,
	"div": hlo.OpDivide,
	"max": hlo.OpMaximum,
	"min": hlo.OpMinimum,
}

var reduceOps = map[string]hlo.Opcode{
	"sum":  hlo.OpAdd,
	"prod": hlo.OpMultiply,
	"max":  hlo.OpMaximum,
	"min":  hlo.OpMinimum,
}

// IsUnary reports whether name is a unary operator accepted by NewUnary.
func IsUnary(name string) bool {
	_, ok := unaryOps[name]
	return ok
}

// IsBinary reports whether name is a binary operator accepted by NewBinary.
func IsBinary(name string) bool {
	_, ok := binaryOps[name]
	return ok
}

// IsReduce reports whether name is a reduction accepted by NewReduce.
func IsReduce(name string) bool {
	_, ok := reduceOps[name]
	return ok
}

func kindFor(name string) ir.OpKind {
	return ir.GetOpKind("xla::" + name)
}

func arrayOperand(what string, v ir.Value) (shape.Shape, error) {
	if !v.Valid() {
		return shape.Shape{}, fmt.Errorf("%w: %s: missing operand", ErrInvalidArgument, what)
	}
	if v.Index < 0 || v.Index >= v.Node.NumOutputs() {
		return shape.Shape{}, fmt.Errorf("%w: %s: output %d of %s", ErrInvalidArgument, what, v.Index, v.Node.Op())
	}
	s := v.Shape()
	if !s.DType.IsArray() {
		return shape.Shape{}, fmt.Errorf("%w: %s: operand shape %s is not an array", ErrInvalidArgument, what, s)
	}
	return s, nil
}

// seeded folds attribute hashes into the default seed.
func seeded(hs ...ir.Hash) ir.Option {
	return ir.WithHashSeed(ir.HashValues(ir.DefaultHashSeed, hs...))
}

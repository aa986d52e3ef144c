package ops

import (
	"fmt"
	"math"
	"strconv"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

// Parameter is a computation input.
type Parameter struct {
	ir.Base
	Name string
}

// NewParameter declares an input. Parameters with different names never hash
// equal, so they are not merged by deduplication.
func NewParameter(s shape.Shape, name string) (ir.Node, error) {
	if !s.Valid() || s.IsTuple() {
		return nil, fmt.Errorf("%w: parameter %q: shape %s", ErrInvalidArgument, name, s)
	}
	return newParameter(s, name), nil
}

func newParameter(s shape.Shape, name string) ir.Node {
	return ir.MakeNode(&Parameter{
		Base: ir.NewLeafBase(ParameterKind, s, seeded(ir.HashString(name))),
		Name: name,
	})
}

// Clone returns a parameter with the same name and shape.
func (p *Parameter) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(p, operands, 0); err != nil {
		return nil, err
	}
	return newParameter(p.Shape(), p.Name), nil
}

// Lower declares the next computation parameter.
func (p *Parameter) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	return ir.ReturnOp(p, loctx.AddParameter(p.Shape(), p.Name), loctx)
}

func (p *Parameter) String() string {
	return p.Base.String() + ", name=" + p.Name
}

// Constant is a literal filled with one value.
type Constant struct {
	ir.Base
	Value float64
}

// NewConstant returns an array of shape s with every element set to v.
func NewConstant(s shape.Shape, v float64) (ir.Node, error) {
	if !s.DType.IsArray() {
		return nil, fmt.Errorf("%w: constant: shape %s", ErrInvalidArgument, s)
	}
	return newConstant(s, v), nil
}

func newConstant(s shape.Shape, v float64) ir.Node {
	return ir.MakeNode(&Constant{
		Base:  ir.NewLeafBase(ConstantKind, s, seeded(ir.HashUint(math.Float64bits(v)))),
		Value: v,
	})
}

// Clone returns a constant with the same value and shape.
func (c *Constant) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(c, operands, 0); err != nil {
		return nil, err
	}
	return newConstant(c.Shape(), c.Value), nil
}

// Lower emits a splatted literal.
func (c *Constant) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	return ir.ReturnOp(c, loctx.Builder().Constant(c.Shape(), c.Value), loctx)
}

func (c *Constant) String() string {
	return c.Base.String() + ", value=" + strconv.FormatFloat(c.Value, 'g', -1, 64)
}

package ops

import (
	"fmt"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

// LowerFn emits the instructions of a Generic node. operands holds the
// already lowered operand ops in order; the returned slice has one op per
// output.
type LowerFn func(b *hlo.Builder, operands []hlo.Op) ([]hlo.Op, error)

// Generic is an operator whose lowering is a closure, for callers that do
// not want a dedicated node type.
type Generic struct {
	ir.Base
	lower LowerFn
	seed  ir.Hash
}

// NewGeneric builds a node of kind with the given shape. seed must reflect
// whatever the closure captures that changes its output, otherwise
// structurally different nodes hash equal.
func NewGeneric(kind ir.OpKind, operands []ir.Value, s shape.Shape, fn LowerFn, seed ir.Hash, opts ...ir.Option) (ir.Node, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: generic %s: nil lowering", ErrInvalidArgument, kind)
	}
	for i, v := range operands {
		if !v.Valid() || v.Index < 0 || v.Index >= v.Node.NumOutputs() {
			return nil, fmt.Errorf("%w: generic %s: bad operand %d", ErrInvalidArgument, kind, i)
		}
	}
	if !s.Valid() || (s.IsTuple() && s.TupleSize() < 2) {
		return nil, fmt.Errorf("%w: generic %s: shape %s", ErrInvalidArgument, kind, s)
	}
	n := max(1, s.TupleSize())
	opts = append([]ir.Option{ir.WithNumOutputs(n), ir.WithHashSeed(seed)}, opts...)
	return ir.MakeNode(&Generic{
		Base:  ir.NewBase(kind, operands, s, opts...),
		lower: fn,
		seed:  seed,
	}), nil
}

// Clone keeps the closure and replaces the operands.
func (g *Generic) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(g, operands, len(g.Operands())); err != nil {
		return nil, err
	}
	opts := []ir.Option{}
	if md := g.Metadata(); md.User != nil {
		opts = append(opts, ir.WithUserMetaData(md.User))
	}
	return NewGeneric(g.Op(), operands, g.Shape(), g.lower, g.seed, opts...)
}

// Lower resolves the operands and runs the closure.
func (g *Generic) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	operands, err := ir.OperandOps(loctx, g)
	if err != nil {
		return nil, err
	}
	outs, err := g.lower(loctx.Builder(), operands)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.Op(), err)
	}
	return ir.ReturnOps(g, outs, loctx)
}

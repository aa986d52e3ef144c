package ir_test

import (
	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

var (
	kindParam = ir.GetOpKind("test::param")
	kindAdd   = ir.GetOpKind("test::add")
	kindMul   = ir.GetOpKind("test::mul")
	kindSplit = ir.GetOpKind("test::split")
)

type leaf struct{ ir.Base }

func newLeaf(s shape.Shape, opts ...ir.Option) ir.Node {
	return ir.MakeNode(&leaf{Base: ir.NewLeafBase(kindParam, s, opts...)})
}

func (n *leaf) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(n, operands, 0); err != nil {
		return nil, err
	}
	return newLeaf(n.Shape(), ir.WithHashSeed(n.HashSeed())), nil
}

func (n *leaf) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	return ir.ReturnOp(n, loctx.AddParameter(n.Shape(), "p"), loctx)
}

type binary struct{ ir.Base }

func newBinary(kind ir.OpKind, x, y ir.Value, opts ...ir.Option) ir.Node {
	return ir.MakeNode(&binary{Base: ir.NewBase(kind, []ir.Value{x, y}, x.Shape(), opts...)})
}

func newBinaryFn(kind ir.OpKind, x, y ir.Value, fn ir.ShapeFn, opts ...ir.Option) ir.Node {
	return ir.MakeNode(&binary{Base: ir.NewBaseFn(kind, []ir.Value{x, y}, fn, opts...)})
}

func (n *binary) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(n, operands, 2); err != nil {
		return nil, err
	}
	return newBinary(n.Op(), operands[0], operands[1], ir.WithHashSeed(n.HashSeed())), nil
}

// split is a two-output node without a lowering.
type split struct{ ir.Base }

func newSplit(x ir.Value) ir.Node {
	half := x.Shape()
	half.Dims = []int64{half.Dims[0] / 2}
	return ir.MakeNode(&split{Base: ir.NewBase(kindSplit, []ir.Value{x},
		shape.MakeTuple(half, half), ir.WithNumOutputs(2))})
}

// fakeContext is a minimal LoweringContext over an hlo.Builder.
type fakeContext struct {
	b      *hlo.Builder
	ops    map[ir.Output]hlo.Op
	params int
}

func newFakeContext() *fakeContext {
	return &fakeContext{b: hlo.NewBuilder("test"), ops: make(map[ir.Output]hlo.Op)}
}

func (c *fakeContext) Builder() *hlo.Builder { return c.b }

func (c *fakeContext) GetOutputOp(out ir.Output) (hlo.Op, error) {
	op, ok := c.ops[out]
	if !ok {
		return hlo.Op{}, ir.ErrInvalidOperand
	}
	return op, nil
}

func (c *fakeContext) AssignOutputOp(out ir.Output, op hlo.Op) { c.ops[out] = op }

func (c *fakeContext) AddParameter(s shape.Shape, name string) hlo.Op {
	op := c.b.Parameter(c.params, s, name)
	c.params++
	return op
}

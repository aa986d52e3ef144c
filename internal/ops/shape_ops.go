package ops

import (
	"fmt"
	"slices"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

// Reshape changes the dimensions of x, keeping its element count.
type Reshape struct {
	ir.Base
	Dims []int64
}

// NewReshape reshapes x to dims.
func NewReshape(x ir.Value, dims ...int64) (ir.Node, error) {
	xs, err := arrayOperand("reshape", x)
	if err != nil {
		return nil, err
	}
	out := shape.Make(xs.DType, dims...)
	if slices.ContainsFunc(dims, func(d int64) bool { return d < 0 }) || out.Size() != xs.Size() {
		return nil, fmt.Errorf("%w: reshape %s to %v", ErrInvalidArgument, xs, dims)
	}
	return ir.MakeNode(&Reshape{
		Base: ir.NewBase(ReshapeKind, []ir.Value{x}, out, seeded(ir.HashInts(dims))),
		Dims: slices.Clone(dims),
	}), nil
}

// Clone reshapes operands[0] to the same dims.
func (r *Reshape) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(r, operands, 1); err != nil {
		return nil, err
	}
	return NewReshape(operands[0], r.Dims...)
}

// Lower emits a reshape instruction.
func (r *Reshape) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	x, err := ir.OperandOp(loctx, r, 0)
	if err != nil {
		return nil, err
	}
	return ir.ReturnOp(r, loctx.Builder().Reshape(x, r.Dims...), loctx)
}

// Broadcast prepends dimensions to x.
type Broadcast struct {
	ir.Base
	Dims []int64
}

// NewBroadcast returns x repeated over the leading dims.
func NewBroadcast(x ir.Value, dims ...int64) (ir.Node, error) {
	xs, err := arrayOperand("broadcast", x)
	if err != nil {
		return nil, err
	}
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("%w: broadcast: negative dimension %d", ErrInvalidArgument, d)
		}
	}
	out := shape.Make(xs.DType, append(slices.Clone(dims), xs.Dims...)...)
	return ir.MakeNode(&Broadcast{
		Base: ir.NewBase(BroadcastKind, []ir.Value{x}, out, seeded(ir.HashInts(dims))),
		Dims: slices.Clone(dims),
	}), nil
}

// Clone broadcasts operands[0] over the same dims.
func (b *Broadcast) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(b, operands, 1); err != nil {
		return nil, err
	}
	return NewBroadcast(operands[0], b.Dims...)
}

// Lower emits a broadcast instruction.
func (b *Broadcast) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	x, err := ir.OperandOp(loctx, b, 0)
	if err != nil {
		return nil, err
	}
	return ir.ReturnOp(b, loctx.Builder().Broadcast(x, b.Dims...), loctx)
}

// Reduce folds axes of x with a combiner.
type Reduce struct {
	ir.Base
	Combiner hlo.Opcode
	Axes     []int
}

// NewReduce applies the named reduction (sum, prod, max, min) over axes.
// The result shape is computed on first use.
func NewReduce(name string, x ir.Value, axes ...int) (ir.Node, error) {
	code, ok := reduceOps[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reduction %q", ErrInvalidArgument, name)
	}
	xs, err := arrayOperand("reduce_"+name, x)
	if err != nil {
		return nil, err
	}
	sorted := slices.Clone(axes)
	slices.Sort(sorted)
	for i, a := range sorted {
		if a < 0 || a >= xs.Rank() || (i > 0 && sorted[i-1] == a) {
			return nil, fmt.Errorf("%w: reduce_%s: bad axis %d for %s", ErrInvalidArgument, name, a, xs)
		}
	}
	fn := func() shape.Shape { return reducedShape(x.Shape(), sorted) }
	return ir.MakeNode(&Reduce{
		Base:     ir.NewBaseFn(kindFor("reduce_"+name), []ir.Value{x}, fn, seeded(ir.HashInts(sorted))),
		Combiner: code,
		Axes:     sorted,
	}), nil
}

func reducedShape(s shape.Shape, axes []int) shape.Shape {
	dims := make([]int64, 0, s.Rank())
	for i, d := range s.Dims {
		if !slices.Contains(axes, i) {
			dims = append(dims, d)
		}
	}
	return shape.Make(s.DType, dims...)
}

// Clone reduces operands[0] over the same axes.
func (r *Reduce) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(r, operands, 1); err != nil {
		return nil, err
	}
	name, _ := reduceName(r.Combiner)
	return NewReduce(name, operands[0], r.Axes...)
}

func reduceName(code hlo.Opcode) (string, bool) {
	for name, c := range reduceOps {
		if c == code {
			return name, true
		}
	}
	return "", false
}

// Lower emits a reduce instruction.
func (r *Reduce) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	x, err := ir.OperandOp(loctx, r, 0)
	if err != nil {
		return nil, err
	}
	return ir.ReturnOp(r, loctx.Builder().Reduce(x, r.Combiner, r.Axes...), loctx)
}

// Split cuts dimension 0 of x into equal parts, one output per part.
type Split struct {
	ir.Base
	Parts int
}

// NewSplit splits x into parts outputs along dimension 0.
func NewSplit(x ir.Value, parts int) (ir.Node, error) {
	xs, err := arrayOperand("split", x)
	if err != nil {
		return nil, err
	}
	if parts < 2 || xs.Rank() == 0 || xs.Dims[0]%int64(parts) != 0 {
		return nil, fmt.Errorf("%w: split %s into %d parts", ErrInvalidArgument, xs, parts)
	}
	part := xs.Clone()
	part.Dims[0] /= int64(parts)
	elems := make([]shape.Shape, parts)
	for i := range elems {
		elems[i] = part
	}
	return ir.MakeNode(&Split{
		Base:  ir.NewBase(SplitKind, []ir.Value{x}, shape.MakeTuple(elems...), ir.WithNumOutputs(parts)),
		Parts: parts,
	}), nil
}

// Clone splits operands[0] into the same number of parts.
func (s *Split) Clone(operands []ir.Value) (ir.Node, error) {
	if err := ir.CheckOperandCount(s, operands, 1); err != nil {
		return nil, err
	}
	return NewSplit(operands[0], s.Parts)
}

// Lower emits one slice per output.
func (s *Split) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	x, err := ir.OperandOp(loctx, s, 0)
	if err != nil {
		return nil, err
	}
	in := s.Operand(0).Shape()
	step := in.Dims[0] / int64(s.Parts)
	b := loctx.Builder()
	outs := make([]hlo.Op, s.Parts)
	for i := range outs {
		start := make([]int64, in.Rank())
		limit := slices.Clone(in.Dims)
		start[0] = int64(i) * step
		limit[0] = start[0] + step
		outs[i] = b.Slice(x, start, limit)
	}
	return ir.ReturnOps(s, outs, loctx)
}

// Package hlo is a small XLA-style backend: a Builder records typed
// instructions and hands out Op handles, Build seals them into a
// Computation that renders as HLO text or serializes with msgpack.
//
// The builder keeps the first error it encounters; every later call
// returns an invalid Op, so callers check Err (or the error of Build)
// once after emitting a whole graph.
package hlo

import (
	"errors"
	"fmt"
	"slices"

	"fortio.org/safecast"

	"graphir/internal/shape"
)

var (
	// ErrInvalidOp is returned when an Op handle is zero or belongs to another builder.
	ErrInvalidOp = errors.New("hlo: invalid op")
	// ErrShapeMismatch is returned when operand shapes are incompatible.
	ErrShapeMismatch = errors.New("hlo: shape mismatch")
)

// Op is a handle to an instruction inside a Builder.
type Op struct {
	id int
	b  *Builder
}

// Valid reports whether the handle refers to an instruction.
func (o Op) Valid() bool {
	return o.b != nil
}

// ID returns the instruction id, -1 for invalid handles.
func (o Op) ID() int {
	if o.b == nil {
		return -1
	}
	return o.id
}

// String returns the instruction reference as printed in HLO text.
func (o Op) String() string {
	if o.b == nil {
		return "<invalid>"
	}
	return o.b.instrs[o.id].Ref()
}

// OpMetadata annotates emitted instructions with their IR origin.
type OpMetadata struct {
	OpType     string `msgpack:"type,omitempty"`
	OpName     string `msgpack:"name,omitempty"`
	SourceFile string `msgpack:"file,omitempty"`
	SourceLine int    `msgpack:"line,omitempty"`
}

// Empty reports whether no field is set.
func (m OpMetadata) Empty() bool {
	return m == OpMetadata{}
}

// Attr is an ordered instruction attribute.
type Attr struct {
	Key   string `msgpack:"k"`
	Value string `msgpack:"v"`
}

// Instruction is a single recorded backend operation.
type Instruction struct {
	ID       int         `msgpack:"id"`
	Opcode   Opcode      `msgpack:"op"`
	Operands []int       `msgpack:"args,omitempty"`
	Shape    shape.Shape `msgpack:"shape"`
	Attrs    []Attr      `msgpack:"attrs,omitempty"`
	Literal  []float64   `msgpack:"lit,omitempty"`
	Metadata OpMetadata  `msgpack:"meta"`
}

// Ref returns the %name used to reference the instruction.
func (in *Instruction) Ref() string {
	return fmt.Sprintf("%%%s.%d", in.Opcode, in.ID)
}

// Builder records instructions for one computation.
type Builder struct {
	name     string
	instrs   []Instruction
	params   map[int]int
	metadata OpMetadata
	err      error
}

// NewBuilder creates a builder for a computation with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		params: make(map[int]int),
	}
}

// Name returns the computation name.
func (b *Builder) Name() string {
	return b.name
}

// Err returns the first error encountered while building.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) setErr(err error) Op {
	if b.err == nil {
		b.err = err
	}
	return Op{}
}

// Len returns the number of recorded instructions.
func (b *Builder) Len() int {
	return len(b.instrs)
}

// SetOpMetadata sets the metadata attached to every following instruction.
func (b *Builder) SetOpMetadata(md OpMetadata) {
	b.metadata = md
}

// ClearOpMetadata stops attaching metadata.
func (b *Builder) ClearOpMetadata() {
	b.metadata = OpMetadata{}
}

// Shape returns the shape of an instruction produced by this builder.
func (b *Builder) Shape(op Op) (shape.Shape, error) {
	if err := b.check(op); err != nil {
		return shape.Shape{}, err
	}
	return b.instrs[op.id].Shape, nil
}

// Instruction returns the recorded instruction for op.
func (b *Builder) Instruction(op Op) (*Instruction, error) {
	if err := b.check(op); err != nil {
		return nil, err
	}
	return &b.instrs[op.id], nil
}

func (b *Builder) check(op Op) error {
	if op.b == nil {
		return ErrInvalidOp
	}
	if op.b != b {
		return fmt.Errorf("%w: %s belongs to builder %q", ErrInvalidOp, op, op.b.name)
	}
	return nil
}

func (b *Builder) add(in Instruction, operands ...Op) Op {
	if b.err != nil {
		return Op{}
	}
	for _, o := range operands {
		if err := b.check(o); err != nil {
			return b.setErr(fmt.Errorf("%s: %w", in.Opcode, err))
		}
		in.Operands = append(in.Operands, o.id)
	}
	in.ID = len(b.instrs)
	in.Metadata = b.metadata
	b.instrs = append(b.instrs, in)
	return Op{id: in.ID, b: b}
}

func (b *Builder) operandShape(code Opcode, op Op) (shape.Shape, bool) {
	if b.err != nil {
		return shape.Shape{}, false
	}
	if err := b.check(op); err != nil {
		b.setErr(fmt.Errorf("%s: %w", code, err))
		return shape.Shape{}, false
	}
	return b.instrs[op.id].Shape, true
}

// Parameter declares computation input number with the given shape.
func (b *Builder) Parameter(number int, s shape.Shape, name string) Op {
	if b.err != nil {
		return Op{}
	}
	if number < 0 {
		return b.setErr(fmt.Errorf("parameter: negative number %d", number))
	}
	if _, dup := b.params[number]; dup {
		return b.setErr(fmt.Errorf("parameter: number %d declared twice", number))
	}
	if !s.Valid() {
		return b.setErr(fmt.Errorf("parameter %d: %w: invalid shape", number, ErrShapeMismatch))
	}
	attrs := []Attr{{Key: "number", Value: fmt.Sprint(number)}}
	if name != "" {
		attrs = append(attrs, Attr{Key: "name", Value: name})
	}
	op := b.add(Instruction{Opcode: OpParameter, Shape: s.Clone(), Attrs: attrs})
	if op.Valid() {
		b.params[number] = op.id
	}
	return op
}

// Constant records a literal. A single value is splatted over the shape,
// otherwise the number of values must match the element count.
func (b *Builder) Constant(s shape.Shape, values ...float64) Op {
	if b.err != nil {
		return Op{}
	}
	if !s.DType.IsArray() {
		return b.setErr(fmt.Errorf("constant: %w: %s is not an array shape", ErrShapeMismatch, s))
	}
	if len(values) != 1 {
		size, err := safecast.Conv[int](s.Size())
		if err != nil {
			return b.setErr(fmt.Errorf("constant: %w", err))
		}
		if len(values) != size {
			return b.setErr(fmt.Errorf("constant: %w: %d values for %s", ErrShapeMismatch, len(values), s))
		}
	}
	return b.add(Instruction{Opcode: OpConstant, Shape: s.Clone(), Literal: slices.Clone(values)})
}

// Unary records an elementwise unary operation.
func (b *Builder) Unary(code Opcode, x Op) Op {
	if !code.IsUnary() {
		return b.setErr(fmt.Errorf("unary: unsupported opcode %q", code))
	}
	xs, ok := b.operandShape(code, x)
	if !ok {
		return Op{}
	}
	if !xs.DType.IsArray() {
		return b.setErr(fmt.Errorf("%s: %w: operand %s", code, ErrShapeMismatch, xs))
	}
	return b.add(Instruction{Opcode: code, Shape: xs.Clone()}, x)
}

// Binary records an elementwise binary operation on equally shaped operands.
func (b *Builder) Binary(code Opcode, x, y Op) Op {
	if !code.IsBinary() {
		return b.setErr(fmt.Errorf("binary: unsupported opcode %q", code))
	}
	xs, ok := b.operandShape(code, x)
	if !ok {
		return Op{}
	}
	ys, ok := b.operandShape(code, y)
	if !ok {
		return Op{}
	}
	if !xs.Equal(ys) || !xs.DType.IsArray() {
		return b.setErr(fmt.Errorf("%s: %w: %s vs %s", code, ErrShapeMismatch, xs, ys))
	}
	return b.add(Instruction{Opcode: code, Shape: xs.Clone()}, x, y)
}

// Reshape records a reshape preserving the element count.
func (b *Builder) Reshape(x Op, dims ...int64) Op {
	xs, ok := b.operandShape(OpReshape, x)
	if !ok {
		return Op{}
	}
	out := shape.Make(xs.DType, dims...)
	if !xs.DType.IsArray() || out.Size() != xs.Size() {
		return b.setErr(fmt.Errorf("reshape: %w: %s to %s", ErrShapeMismatch, xs, out))
	}
	return b.add(Instruction{Opcode: OpReshape, Shape: out}, x)
}

// Broadcast prepends dims to the operand dimensions.
func (b *Builder) Broadcast(x Op, dims ...int64) Op {
	xs, ok := b.operandShape(OpBroadcast, x)
	if !ok {
		return Op{}
	}
	if !xs.DType.IsArray() {
		return b.setErr(fmt.Errorf("broadcast: %w: operand %s", ErrShapeMismatch, xs))
	}
	out := shape.Make(xs.DType, append(slices.Clone(dims), xs.Dims...)...)
	return b.add(Instruction{
		Opcode: OpBroadcast,
		Shape:  out,
		Attrs:  []Attr{{Key: "dimensions", Value: formatInts(dims)}},
	}, x)
}

// Reduce folds the given axes with the combiner opcode.
func (b *Builder) Reduce(x Op, combiner Opcode, axes ...int) Op {
	if !combiner.IsReducer() {
		return b.setErr(fmt.Errorf("reduce: unsupported combiner %q", combiner))
	}
	xs, ok := b.operandShape(OpReduce, x)
	if !ok {
		return Op{}
	}
	if !xs.DType.IsArray() {
		return b.setErr(fmt.Errorf("reduce: %w: operand %s", ErrShapeMismatch, xs))
	}
	drop := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 || a >= xs.Rank() || drop[a] {
			return b.setErr(fmt.Errorf("reduce: %w: bad axis %d for %s", ErrShapeMismatch, a, xs))
		}
		drop[a] = true
	}
	var dims []int64
	for i, d := range xs.Dims {
		if !drop[i] {
			dims = append(dims, d)
		}
	}
	sorted := slices.Clone(axes)
	slices.Sort(sorted)
	return b.add(Instruction{
		Opcode: OpReduce,
		Shape:  shape.Make(xs.DType, dims...),
		Attrs: []Attr{
			{Key: "dimensions", Value: formatInts(sorted)},
			{Key: "to_apply", Value: string(combiner)},
		},
	}, x)
}

// Slice extracts [start, limit) along every dimension.
func (b *Builder) Slice(x Op, start, limit []int64) Op {
	xs, ok := b.operandShape(OpSlice, x)
	if !ok {
		return Op{}
	}
	if len(start) != xs.Rank() || len(limit) != xs.Rank() {
		return b.setErr(fmt.Errorf("slice: %w: rank %d, got %d/%d bounds", ErrShapeMismatch, xs.Rank(), len(start), len(limit)))
	}
	dims := make([]int64, xs.Rank())
	for i := range dims {
		if start[i] < 0 || limit[i] > xs.Dims[i] || start[i] > limit[i] {
			return b.setErr(fmt.Errorf("slice: %w: bounds [%d,%d) on dim %d of %s", ErrShapeMismatch, start[i], limit[i], i, xs))
		}
		dims[i] = limit[i] - start[i]
	}
	return b.add(Instruction{
		Opcode: OpSlice,
		Shape:  shape.Make(xs.DType, dims...),
		Attrs:  []Attr{{Key: "slice", Value: formatBounds(start, limit)}},
	}, x)
}

// Tuple groups ops into one tuple-shaped instruction.
func (b *Builder) Tuple(ops ...Op) Op {
	elems := make([]shape.Shape, len(ops))
	for i, o := range ops {
		s, ok := b.operandShape(OpTuple, o)
		if !ok {
			return Op{}
		}
		elems[i] = s
	}
	return b.add(Instruction{Opcode: OpTuple, Shape: shape.MakeTuple(elems...)}, ops...)
}

// GetTupleElement extracts element index of a tuple-shaped op.
func (b *Builder) GetTupleElement(t Op, index int) Op {
	ts, ok := b.operandShape(OpGetTupleElement, t)
	if !ok {
		return Op{}
	}
	elem, err := ts.TupleElement(index)
	if err != nil {
		return b.setErr(fmt.Errorf("get-tuple-element: %w: %w", ErrShapeMismatch, err))
	}
	return b.add(Instruction{
		Opcode: OpGetTupleElement,
		Shape:  elem,
		Attrs:  []Attr{{Key: "index", Value: fmt.Sprint(index)}},
	}, t)
}

// Build seals the recorded instructions into a Computation rooted at root.
func (b *Builder) Build(root Op) (*Computation, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.check(root); err != nil {
		return nil, fmt.Errorf("build %s: root: %w", b.name, err)
	}
	c := &Computation{
		Name:         b.name,
		Instructions: make([]Instruction, len(b.instrs)),
		Root:         root.id,
	}
	for i, in := range b.instrs {
		in.Operands = slices.Clone(in.Operands)
		in.Attrs = slices.Clone(in.Attrs)
		in.Literal = slices.Clone(in.Literal)
		in.Shape = in.Shape.Clone()
		c.Instructions[i] = in
	}
	return c, nil
}

func formatInts[T int | int64](xs []T) string {
	out := "{"
	for i, x := range xs {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprint(x)
	}
	return out + "}"
}

func formatBounds(start, limit []int64) string {
	out := "{"
	for i := range start {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("[%d:%d]", start[i], limit[i])
	}
	return out + "}"
}

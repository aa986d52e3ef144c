package ir

import (
	"fmt"
	"strings"
	"sync"

	"graphir/internal/hlo"
	"graphir/internal/shape"
)

// Node is a vertex of the traced graph. Every operator embeds Base, which
// implements everything except the operator specific parts (Lower, Clone
// and optionally String).
type Node interface {
	Op() OpKind
	// Operands returns the operand handles in order. The slice must not be modified.
	Operands() []Output
	Operand(i int) Output
	OperandNodes() []Node
	NumOutputs() int
	Shape() shape.Shape
	ShapeAt(i int) (shape.Shape, error)
	NodeHash() Hash
	Hash() Hash
	Metadata() MetaData
	Lower(loctx LoweringContext) ([]hlo.Op, error)
	Clone(operands []Value) (Node, error)
	String() string

	base() *Base
}

// ShapeFn computes the shape of a node on first use.
type ShapeFn func() shape.Shape

// Base holds the state shared by all nodes. It is created by NewBase,
// NewBaseFn or NewLeafBase and embedded by value in the concrete operator.
type Base struct {
	op         OpKind
	operands   []Value
	outputs    []Output
	numOutputs int
	seed       Hash
	nodeHash   Hash
	hash       Hash
	lazy       *lazyShape
	meta       MetaData
}

type lazyShape struct {
	once  sync.Once
	fn    ShapeFn
	shape shape.Shape
	// failure is what the resolution panicked with; Shape re-raises it.
	failure any
}

type baseOptions struct {
	numOutputs int
	seed       Hash
	user       UserMetaData
}

// Option configures node construction.
type Option func(*baseOptions)

// WithNumOutputs sets the number of outputs; more than one requires a tuple shape
// with exactly that many elements.
func WithNumOutputs(n int) Option {
	return func(o *baseOptions) { o.numOutputs = n }
}

// WithHashSeed distinguishes nodes whose op, shape and operands agree but whose
// attributes do not (for example the dims of a reduction).
func WithHashSeed(seed Hash) Option {
	return func(o *baseOptions) { o.seed = seed }
}

// WithUserMetaData attaches caller data to the node's metadata.
func WithUserMetaData(md UserMetaData) Option {
	return func(o *baseOptions) { o.user = md }
}

func collectOptions(opts []Option) baseOptions {
	o := baseOptions{numOutputs: 1, seed: DefaultHashSeed}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewBase builds the base of a node with a known shape.
func NewBase(op OpKind, operands []Value, s shape.Shape, opts ...Option) Base {
	o := collectOptions(opts)
	checkArity(op, s, o.numOutputs)
	b := newBase(op, operands, o)
	b.lazy = &lazyShape{shape: s}
	b.lazy.once.Do(func() {})
	b.nodeHash = opHash(op, HashUint(s.Hash()), o.seed)
	b.hash = graphHash(b.nodeHash, b.operands)
	return b
}

// NewBaseFn builds the base of a node whose shape is computed by fn the first
// time it is requested. fn runs at most once per node, and not at all when a
// structurally identical node already resolved its shape.
func NewBaseFn(op OpKind, operands []Value, fn ShapeFn, opts ...Option) Base {
	if fn == nil {
		panic(fmt.Errorf("ir: %s: nil shape function", op))
	}
	o := collectOptions(opts)
	if o.numOutputs < 1 {
		panic(fmt.Errorf("%w: %s declares %d outputs", ErrShapeArity, op, o.numOutputs))
	}
	b := newBase(op, operands, o)
	b.lazy = &lazyShape{fn: fn}
	b.nodeHash = opHash(op, deferredShapeHash, o.seed)
	b.hash = graphHash(b.nodeHash, b.operands)
	return b
}

// NewLeafBase builds the base of a node without operands.
func NewLeafBase(op OpKind, s shape.Shape, opts ...Option) Base {
	return NewBase(op, nil, s, opts...)
}

func newBase(op OpKind, operands []Value, o baseOptions) Base {
	if !op.Valid() {
		panic(fmt.Errorf("%w: zero OpKind", ErrInvalidOperand))
	}
	b := Base{
		op:         op,
		operands:   make([]Value, len(operands)),
		outputs:    make([]Output, len(operands)),
		numOutputs: o.numOutputs,
		seed:       o.seed,
	}
	for i, v := range operands {
		if v.Node == nil {
			panic(fmt.Errorf("%w: %s operand %d is nil", ErrInvalidOperand, op, i))
		}
		if v.Index < 0 || v.Index >= v.Node.NumOutputs() {
			panic(fmt.Errorf("%w: %s operand %d uses output %d of %s (%d outputs)",
				ErrInvalidOperand, op, i, v.Index, v.Node.Op(), v.Node.NumOutputs()))
		}
		b.operands[i] = v
		b.outputs[i] = v.Output()
	}
	b.meta = captureMetaData(o.user)
	return b
}

func checkArity(op OpKind, s shape.Shape, n int) {
	if err := arityError(op, s, n); err != nil {
		panic(err)
	}
}

func arityError(op OpKind, s shape.Shape, n int) error {
	switch {
	case n < 1:
		return fmt.Errorf("%w: %s declares %d outputs", ErrShapeArity, op, n)
	case n == 1 && s.IsTuple():
		return fmt.Errorf("%w: %s has one output but tuple shape %s", ErrShapeArity, op, s)
	case n > 1 && (!s.IsTuple() || s.TupleSize() != n):
		return fmt.Errorf("%w: %s has %d outputs but shape %s", ErrShapeArity, op, n, s)
	}
	return nil
}

func opHash(op OpKind, shapeHash, seed Hash) Hash {
	return HashValues(seed, op.Hash(), shapeHash)
}

func graphHash(nodeHash Hash, operands []Value) Hash {
	h := nodeHash
	for _, v := range operands {
		h = HashCombine(h, v.Hash())
	}
	return h
}

func (b *Base) base() *Base { return b }

// Op returns the operator kind.
func (b *Base) Op() OpKind { return b.op }

// Operands returns the operand handles in order.
func (b *Base) Operands() []Output { return b.outputs }

// Operand returns the i-th operand handle.
func (b *Base) Operand(i int) Output { return b.outputs[i] }

// OperandNodes returns the nodes producing each operand, in order.
func (b *Base) OperandNodes() []Node {
	nodes := make([]Node, len(b.operands))
	for i, v := range b.operands {
		nodes[i] = v.Node
	}
	return nodes
}

// NumOutputs returns the number of result slots.
func (b *Base) NumOutputs() int { return b.numOutputs }

// NodeHash hashes the operator, shape and seed, ignoring operands.
func (b *Base) NodeHash() Hash { return b.nodeHash }

// Hash hashes the whole rooted subgraph.
func (b *Base) Hash() Hash { return b.hash }

// HashSeed returns the seed the node was built with.
func (b *Base) HashSeed() Hash { return b.seed }

// Metadata returns the scope, frames and user data captured at construction.
func (b *Base) Metadata() MetaData { return b.meta }

// Shape returns the full shape, a tuple when the node has several outputs.
// A lazy shape that fails to resolve panics on this and every later call.
func (b *Base) Shape() shape.Shape {
	l := b.lazy
	l.once.Do(func() {
		fn := l.fn
		l.fn = nil
		defer func() {
			if r := recover(); r != nil {
				l.failure = r
			}
		}()
		l.shape = resolveShape(b.hash, fn, func(s shape.Shape) error {
			return arityError(b.op, s, b.numOutputs)
		})
	})
	if l.failure != nil {
		panic(l.failure)
	}
	return l.shape
}

// ShapeAt returns the shape of output i.
func (b *Base) ShapeAt(i int) (shape.Shape, error) {
	if i < 0 || i >= b.numOutputs {
		return shape.Shape{}, fmt.Errorf("%w: %s has %d outputs, asked for %d", ErrOutputIndex, b.op, b.numOutputs, i)
	}
	s := b.Shape()
	if b.numOutputs == 1 {
		return s, nil
	}
	return s.TupleElement(i)
}

// Lower reports that the operator has no lowering.
func (b *Base) Lower(LoweringContext) ([]hlo.Op, error) {
	return nil, fmt.Errorf("%w: %s", ErrLowerNotImplemented, b.op)
}

// Clone reports that the operator cannot be cloned.
func (b *Base) Clone([]Value) (Node, error) {
	return nil, fmt.Errorf("%w: %s", ErrCloneNotImplemented, b.op)
}

// String renders "[op] shape, num_outputs=N, hash=H[, scope=S]".
func (b *Base) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s, num_outputs=%d, hash=%s", b.op, b.Shape(), b.numOutputs, b.hash)
	if b.meta.Scope != "" {
		fmt.Fprintf(&sb, ", scope=%s", b.meta.Scope)
	}
	if b.meta.User != nil {
		fmt.Fprintf(&sb, ", user=%s", b.meta.User)
	}
	return sb.String()
}

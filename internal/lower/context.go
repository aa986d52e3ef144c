// Package lower turns traced ir graphs into hlo computations.
package lower

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
	"graphir/internal/trace"
)

var (
	// ErrNotLowered reports an output whose producer has not been lowered.
	ErrNotLowered = errors.New("lower: output not lowered yet")
	// ErrOutputCount reports a node that returned the wrong number of ops.
	ErrOutputCount = ir.ErrOutputCount
	// ErrFailed is returned by a context whose previous pass failed.
	ErrFailed = errors.New("lower: context already failed")
)

// Context lowers nodes into one hlo.Builder. A context is used by a single
// goroutine and must be discarded after an error.
type Context struct {
	b        *hlo.Builder
	ops      map[ir.Output]hlo.Op
	lowered  map[ir.Node]struct{}
	order    []ir.Node
	params   int
	metadata bool
	err      error
}

// Option configures a Context.
type Option func(*Context)

// WithoutMetadata stops the context from annotating instructions with the
// op type, scope and source location of the node being lowered.
func WithoutMetadata() Option {
	return func(c *Context) { c.metadata = false }
}

// NewContext returns a context building a computation called name.
func NewContext(name string, opts ...Option) *Context {
	c := &Context{
		b:        hlo.NewBuilder(name),
		ops:      make(map[ir.Output]hlo.Op),
		lowered:  make(map[ir.Node]struct{}),
		metadata: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Builder returns the underlying builder.
func (c *Context) Builder() *hlo.Builder { return c.b }

// GetOutputOp returns the op recorded for out.
func (c *Context) GetOutputOp(out ir.Output) (hlo.Op, error) {
	op, ok := c.ops[out]
	if !ok {
		if out.Node == nil {
			return hlo.Op{}, fmt.Errorf("%w: nil output", ErrNotLowered)
		}
		return hlo.Op{}, fmt.Errorf("%w: %s output %d", ErrNotLowered, out.Node.Op(), out.Index)
	}
	return op, nil
}

// AssignOutputOp records op as the lowering of out.
func (c *Context) AssignOutputOp(out ir.Output, op hlo.Op) {
	c.ops[out] = op
}

// AddParameter declares parameter number N, where N counts previous calls.
func (c *Context) AddParameter(s shape.Shape, name string) hlo.Op {
	op := c.b.Parameter(c.params, s, name)
	c.params++
	return op
}

// Lowered returns the nodes lowered so far, in order.
func (c *Context) Lowered() []ir.Node { return c.order }

// LowerRoots lowers every node reachable from roots that this context has
// not lowered yet, operands first.
func (c *Context) LowerRoots(ctx context.Context, roots ...ir.Node) (err error) {
	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrFailed, c.err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := trace.BeginCtx(ctx, trace.ScopePass, "lower:"+c.b.Name())
	defer func() {
		span.WithExtra("nodes", strconv.Itoa(len(c.order)))
		if err != nil {
			c.err = err
			span.End(err.Error())
			return
		}
		span.End("")
	}()

	post, err := ir.ComputePostOrder(roots...)
	if err != nil {
		return err
	}
	tracer := trace.FromContext(ctx)
	parent := trace.ParentSpan(ctx)
	for _, n := range post {
		if _, done := c.lowered[n]; done {
			continue
		}
		if err := c.lowerNode(n); err != nil {
			return err
		}
		c.lowered[n] = struct{}{}
		c.order = append(c.order, n)
		trace.Point(tracer, trace.ScopeNode, "lower:"+n.Op().String(), "", parent,
			map[string]string{"hash": n.Hash().String()})
	}
	return nil
}

func (c *Context) lowerNode(n ir.Node) error {
	if c.metadata {
		c.b.SetOpMetadata(opMetadata(n))
		defer c.b.ClearOpMetadata()
	}
	ops, err := n.Lower(c)
	if err != nil {
		return fmt.Errorf("lower %s: %w", n.Op(), err)
	}
	if len(ops) != n.NumOutputs() {
		return fmt.Errorf("%w: %s returned %d ops for %d outputs", ErrOutputCount, n.Op(), len(ops), n.NumOutputs())
	}
	for i := range n.NumOutputs() {
		if _, ok := c.ops[ir.Output{Node: n, Index: i}]; !ok {
			return fmt.Errorf("%w: %s did not register output %d", ErrNotLowered, n.Op(), i)
		}
	}
	return c.b.Err()
}

func opMetadata(n ir.Node) hlo.OpMetadata {
	md := n.Metadata()
	out := hlo.OpMetadata{OpType: n.Op().String(), OpName: md.Scope}
	if loc, ok := md.Location(); ok {
		out.SourceFile = loc.File
		out.SourceLine = loc.Line
	}
	return out
}

// MetadataHash hashes the metadata a Context stamps while lowering roots.
// Two graphs with the same structural hash lower to the same instructions,
// but only graphs with the same MetadataHash lower to the same annotations.
func MetadataHash(roots ...ir.Node) (ir.Hash, error) {
	order, err := ir.ComputePostOrder(roots...)
	if err != nil {
		return 0, err
	}
	h := ir.HashUint(uint64(len(order)))
	for _, n := range order {
		md := opMetadata(n)
		h = ir.HashValues(h,
			ir.HashString(md.OpType),
			ir.HashString(md.OpName),
			ir.HashString(md.SourceFile),
			ir.HashUint(uint64(max(md.SourceLine, 0))))
	}
	return h, nil
}

// Build seals the computation. Its root is the op of the only root output,
// or a tuple of every root output in order.
func (c *Context) Build(roots ...ir.Node) (*hlo.Computation, error) {
	var outs []ir.Output
	for _, r := range roots {
		for i := range r.NumOutputs() {
			outs = append(outs, ir.Output{Node: r, Index: i})
		}
	}
	return c.BuildOutputs(outs...)
}

// BuildOutputs is Build for a selection of outputs.
func (c *Context) BuildOutputs(outs ...ir.Output) (*hlo.Computation, error) {
	if c.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailed, c.err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("lower: %s has no roots", c.b.Name())
	}
	ops := make([]hlo.Op, len(outs))
	for i, out := range outs {
		op, err := c.GetOutputOp(out)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	root := ops[0]
	if len(ops) > 1 {
		root = c.b.Tuple(ops...)
	}
	return c.b.Build(root)
}

// LowerGraph lowers roots into a fresh context and builds the computation.
func LowerGraph(ctx context.Context, name string, roots ...ir.Node) (*hlo.Computation, error) {
	c := NewContext(name)
	if err := c.LowerRoots(ctx, roots...); err != nil {
		return nil, err
	}
	return c.Build(roots...)
}

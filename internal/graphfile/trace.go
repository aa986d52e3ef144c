package graphfile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"graphir/internal/ir"
	"graphir/internal/ops"
	"graphir/internal/shape"
	"graphir/internal/trace"
)

// Nodes built from a file carry its scopes but no Go call sites.
func init() {
	ir.RegisterFrameBoundary("graphir/internal/graphfile.")
}

// Traced is the ir graph built from a File.
type Traced struct {
	Name    string
	Outputs []ir.Output
	// Nodes maps every id to the node built for it. Structurally identical
	// entries share a node.
	Nodes map[string]ir.Node
	Hash  ir.Hash
	// Merged counts entries that reused an identical node.
	Merged int
}

// Roots returns the distinct nodes producing the outputs, in output order.
func (t *Traced) Roots() []ir.Node {
	seen := make(map[ir.Node]bool, len(t.Outputs))
	var roots []ir.Node
	for _, o := range t.Outputs {
		if !seen[o.Node] {
			seen[o.Node] = true
			roots = append(roots, o.Node)
		}
	}
	return roots
}

// Trace builds the ir nodes of f on the calling goroutine. Node scopes are
// pushed on the goroutine's scope stack, a "/" in a scope nesting it.
func Trace(ctx context.Context, f *File) (tr *Traced, err error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	ctx, span := trace.BeginCtx(ctx, trace.ScopeGraph, "trace:"+f.Graph.Name)
	defer func() {
		if err != nil {
			span.End(err.Error())
			return
		}
		span.WithExtra("nodes", strconv.Itoa(len(tr.Nodes))).End("")
	}()

	table := ir.NewNodeTable()
	tr = &Traced{Name: f.Graph.Name, Nodes: make(map[string]ir.Node, len(f.Nodes))}
	for i := range f.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := &f.Nodes[i]
		var n ir.Node
		withScopes(spec.Scope, func() {
			n, err = buildNode(spec, tr.Nodes)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: node %q: %w", f.Path, spec.ID, err)
		}
		tr.Nodes[spec.ID] = table.Intern(n)
	}
	tr.Merged, _ = table.Stats()

	for _, raw := range f.Graph.Outputs {
		v, err := resolve(raw, tr.Nodes)
		if err != nil {
			return nil, fmt.Errorf("%s: output: %w", f.Path, err)
		}
		tr.Outputs = append(tr.Outputs, v.Output())
	}
	tr.Hash = ir.CombinedHash(tr.Outputs...)
	return tr, nil
}

func withScopes(scope string, fn func()) {
	if scope == "" {
		fn()
		return
	}
	var guards []*ir.ScopeGuard
	for part := range strings.SplitSeq(scope, ir.ScopeSeparator) {
		guards = append(guards, ir.PushScope(part))
	}
	defer guards[0].Pop()
	fn()
}

func resolve(raw string, nodes map[string]ir.Node) (ir.Value, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return ir.Value{}, err
	}
	n, ok := nodes[ref.ID]
	if !ok {
		return ir.Value{}, fmt.Errorf("unknown id %q", ref.ID)
	}
	if ref.Index >= n.NumOutputs() {
		return ir.Value{}, fmt.Errorf("%q: %s has %d outputs", raw, n.Op(), n.NumOutputs())
	}
	return ir.Value{Node: n, Index: ref.Index}, nil
}

func buildNode(spec *NodeSpec, nodes map[string]ir.Node) (ir.Node, error) {
	operands := make([]ir.Value, len(spec.Operands))
	for i, raw := range spec.Operands {
		v, err := resolve(raw, nodes)
		if err != nil {
			return nil, err
		}
		operands[i] = v
	}

	switch op := spec.Op; {
	case op == "parameter" || op == "constant":
		s, err := shape.Parse(spec.Shape)
		if err != nil {
			return nil, err
		}
		if op == "parameter" {
			return ops.NewParameter(s, spec.ID)
		}
		return ops.NewConstant(s, spec.Value)
	case ops.IsUnary(op):
		return ops.NewUnary(op, operands[0])
	case ops.IsBinary(op):
		return ops.NewBinary(op, operands[0], operands[1])
	case op == "reshape":
		return ops.NewReshape(operands[0], spec.Dims...)
	case op == "broadcast":
		return ops.NewBroadcast(operands[0], spec.Dims...)
	case strings.HasPrefix(op, "reduce_"):
		return ops.NewReduce(strings.TrimPrefix(op, "reduce_"), operands[0], spec.Axes...)
	case op == "split":
		return ops.NewSplit(operands[0], spec.Parts)
	}
	return nil, fmt.Errorf("unknown op %q", spec.Op)
}

package ops_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/lower"
	"graphir/internal/ops"
	"graphir/internal/shape"
	"graphir/internal/testkit"
)

func must(t *testing.T, n ir.Node, err error) ir.Node {
	t.Helper()
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	return n
}

func TestOperatorsLower(t *testing.T) {
	x := must(t, ops.NewParameter(shape.Make(shape.F32, 4, 2), "x"))
	two := must(t, ops.NewConstant(shape.Scalar(shape.F32), 2))
	scaled := must(t, ops.NewBinary("mul", ir.ValueOf(x), ir.ValueOf(two)))
	act := must(t, ops.NewUnary("tanh", ir.ValueOf(scaled)))
	flat := must(t, ops.NewReshape(ir.ValueOf(act), 8))
	wide := must(t, ops.NewBroadcast(ir.ValueOf(flat), 3))
	sum := must(t, ops.NewReduce("sum", ir.ValueOf(wide), 0))
	halves := must(t, ops.NewSplit(ir.ValueOf(x), 2))
	diff := must(t, ops.NewBinary("sub", ir.Value{Node: halves}, ir.Value{Node: halves, Index: 1}))

	if !scaled.Shape().Equal(shape.Make(shape.F32, 4, 2)) {
		t.Fatalf("scalar broadcast shape = %s", scaled.Shape())
	}
	if !sum.Shape().Equal(shape.Make(shape.F32, 8)) {
		t.Fatalf("reduce shape = %s", sum.Shape())
	}
	if !diff.Shape().Equal(shape.Make(shape.F32, 2, 2)) {
		t.Fatalf("split half shape = %s", diff.Shape())
	}

	if err := testkit.CheckGraphInvariants(sum, diff); err != nil {
		t.Fatalf("graph invariants: %v", err)
	}

	comp, err := lower.LowerGraph(context.Background(), "ops", sum, diff)
	if err != nil {
		t.Fatalf("LowerGraph: %v", err)
	}
	counts := map[hlo.Opcode]int{
		hlo.OpParameter: 1,
		hlo.OpConstant:  1,
		hlo.OpBroadcast: 2,
		hlo.OpMultiply:  1,
		hlo.OpTanh:      1,
		hlo.OpReshape:   1,
		hlo.OpReduce:    1,
		hlo.OpSlice:     2,
		hlo.OpSubtract:  1,
		hlo.OpTuple:     1,
	}
	for code, want := range counts {
		if got := comp.Count(code); got != want {
			t.Fatalf("%s count = %d, want %d\n%s", code, got, want, comp)
		}
	}
	root := comp.RootShape()
	if !root.Equal(shape.MakeTuple(shape.Make(shape.F32, 8), shape.Make(shape.F32, 2, 2))) {
		t.Fatalf("root shape = %s", root)
	}
	if !strings.Contains(comp.String(), `op_type="xla::tanh"`) {
		t.Fatalf("missing op metadata:\n%s", comp)
	}
}

func TestConstructorErrors(t *testing.T) {
	x := must(t, ops.NewParameter(shape.Make(shape.F32, 3), "x"))
	y := must(t, ops.NewParameter(shape.Make(shape.S32, 3), "y"))
	z := must(t, ops.NewParameter(shape.Make(shape.F32, 4), "z"))

	tests := []struct {
		name string
		fn   func() (ir.Node, error)
	}{
		{"unknown unary", func() (ir.Node, error) { return ops.NewUnary("sin", ir.ValueOf(x)) }},
		{"unknown binary", func() (ir.Node, error) { return ops.NewBinary("pow", ir.ValueOf(x), ir.ValueOf(x)) }},
		{"dtype mismatch", func() (ir.Node, error) { return ops.NewBinary("add", ir.ValueOf(x), ir.ValueOf(y)) }},
		{"shape mismatch", func() (ir.Node, error) { return ops.NewBinary("add", ir.ValueOf(x), ir.ValueOf(z)) }},
		{"nil operand", func() (ir.Node, error) { return ops.NewUnary("neg", ir.Value{}) }},
		{"bad reshape", func() (ir.Node, error) { return ops.NewReshape(ir.ValueOf(x), 2, 2) }},
		{"bad axis", func() (ir.Node, error) { return ops.NewReduce("sum", ir.ValueOf(x), 1) }},
		{"duplicate axis", func() (ir.Node, error) { return ops.NewReduce("max", ir.ValueOf(z), 0, 0) }},
		{"uneven split", func() (ir.Node, error) { return ops.NewSplit(ir.ValueOf(x), 2) }},
		{"tuple parameter", func() (ir.Node, error) {
			return ops.NewParameter(shape.MakeTuple(shape.Scalar(shape.F32)), "t")
		}},
		{"tuple operand", func() (ir.Node, error) {
			sp := must(t, ops.NewSplit(ir.ValueOf(z), 2))
			return ops.NewUnary("neg", ir.Value{Node: sp, Index: 2})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.fn(); !errors.Is(err, ops.ErrInvalidArgument) {
				t.Fatalf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCloneRoundTrip(t *testing.T) {
	x := must(t, ops.NewParameter(shape.Make(shape.F32, 4), "x"))
	c := must(t, ops.NewConstant(shape.Make(shape.F32, 4), 0.5))
	nodes := []ir.Node{
		x,
		c,
		must(t, ops.NewUnary("exp", ir.ValueOf(x))),
		must(t, ops.NewBinary("max", ir.ValueOf(x), ir.ValueOf(c))),
		must(t, ops.NewReshape(ir.ValueOf(x), 2, 2)),
		must(t, ops.NewBroadcast(ir.ValueOf(x), 5)),
		must(t, ops.NewReduce("min", ir.ValueOf(x), 0)),
		must(t, ops.NewSplit(ir.ValueOf(x), 4)),
	}
	for _, n := range nodes {
		clone, err := n.Clone(ir.OperandValues(n))
		if err != nil {
			t.Fatalf("Clone(%s): %v", n.Op(), err)
		}
		if clone.Hash() != n.Hash() || clone.Op() != n.Op() || !clone.Shape().Equal(n.Shape()) {
			t.Fatalf("clone of %s differs: %s vs %s", n.Op(), clone, n)
		}
	}
}

func TestAttributesChangeHash(t *testing.T) {
	x := must(t, ops.NewParameter(shape.Make(shape.F32, 2, 3), "x"))
	pairs := [][2]ir.Node{
		{must(t, ops.NewParameter(shape.Make(shape.F32, 2), "a")), must(t, ops.NewParameter(shape.Make(shape.F32, 2), "b"))},
		{must(t, ops.NewConstant(shape.Scalar(shape.F32), 1)), must(t, ops.NewConstant(shape.Scalar(shape.F32), 2))},
		{must(t, ops.NewReduce("sum", ir.ValueOf(x), 0)), must(t, ops.NewReduce("sum", ir.ValueOf(x), 1))},
		{must(t, ops.NewReduce("sum", ir.ValueOf(x), 0)), must(t, ops.NewReduce("max", ir.ValueOf(x), 0))},
		{must(t, ops.NewUnary("exp", ir.ValueOf(x))), must(t, ops.NewUnary("log", ir.ValueOf(x)))},
	}
	for i, p := range pairs {
		if p[0].Hash() == p[1].Hash() {
			t.Fatalf("pair %d hashes equal: %s / %s", i, p[0], p[1])
		}
	}
}

func TestNodeCastOperators(t *testing.T) {
	x := must(t, ops.NewParameter(shape.Make(shape.F32, 2), "input"))
	p, ok := ir.NodeCast[*ops.Parameter](x, ops.ParameterKind)
	if !ok || p.Name != "input" {
		t.Fatalf("NodeCast(parameter) = %v, %v", p, ok)
	}
	if _, ok := ir.NodeCast[*ops.Constant](x, ops.ConstantKind); ok {
		t.Fatalf("NodeCast(constant) matched a parameter")
	}
}

func TestGeneric(t *testing.T) {
	x := must(t, ops.NewParameter(shape.Make(shape.F32, 4), "x"))
	kind := ir.GetOpKind("test::double_then_split")
	fn := func(b *hlo.Builder, in []hlo.Op) ([]hlo.Op, error) {
		d := b.Binary(hlo.OpAdd, in[0], in[0])
		return []hlo.Op{
			b.Slice(d, []int64{0}, []int64{2}),
			b.Slice(d, []int64{2}, []int64{4}),
		}, nil
	}
	out := shape.MakeTuple(shape.Make(shape.F32, 2), shape.Make(shape.F32, 2))
	g := must(t, ops.NewGeneric(kind, ir.ValuesOf(x), out, fn, ir.HashString("v1")))
	if g.NumOutputs() != 2 {
		t.Fatalf("NumOutputs() = %d", g.NumOutputs())
	}
	clone, err := g.Clone(ir.OperandValues(g))
	if err != nil || clone.Hash() != g.Hash() {
		t.Fatalf("Clone: %v", err)
	}
	comp, err := lower.LowerGraph(context.Background(), "generic", g)
	if err != nil {
		t.Fatalf("LowerGraph: %v", err)
	}
	if comp.Count(hlo.OpSlice) != 2 || comp.Count(hlo.OpTuple) != 1 {
		t.Fatalf("unexpected computation:\n%s", comp)
	}

	failing := must(t, ops.NewGeneric(kind, ir.ValuesOf(x), shape.Make(shape.F32, 4),
		func(*hlo.Builder, []hlo.Op) ([]hlo.Op, error) { return nil, errors.New("boom") }, ir.HashString("v2")))
	if _, err := lower.LowerGraph(context.Background(), "failing", failing); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("LowerGraph error = %v", err)
	}
}

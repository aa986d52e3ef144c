package ir_test

import (
	"errors"
	"strings"
	"testing"

	"graphir/internal/hlo"
	"graphir/internal/ir"
	"graphir/internal/shape"
)

func TestComputePostOrder(t *testing.T) {
	s := shape.Make(shape.F32, 2)
	x := newLeaf(s)
	y := newLeaf(s, ir.WithHashSeed(3))
	sum := newBinary(kindAdd, ir.ValueOf(x), ir.ValueOf(y))
	prod := newBinary(kindMul, ir.ValueOf(sum), ir.ValueOf(x))
	// diamond: sum reached twice through prod and the second root
	other := newBinary(kindAdd, ir.ValueOf(sum), ir.ValueOf(sum))

	order, err := ir.ComputePostOrder(prod, other, prod)
	if err != nil {
		t.Fatalf("ComputePostOrder: %v", err)
	}
	want := []ir.Node{x, y, sum, prod, other}
	if len(order) != len(want) {
		t.Fatalf("order has %d nodes, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}

	roots := ir.Roots(order)
	if len(roots) != 2 || roots[0] != prod || roots[1] != other {
		t.Fatalf("Roots() = %v", roots)
	}
}

// loopy reports extra operands after construction, which is the only way a
// cycle can appear.
type loopy struct {
	ir.Base
	extra []ir.Output
}

func (n *loopy) Operands() []ir.Output { return n.extra }

func TestComputePostOrderCycle(t *testing.T) {
	a := &loopy{Base: ir.NewLeafBase(kindParam, shape.Scalar(shape.F32))}
	b := newBinary(kindAdd, ir.ValueOf(a), ir.ValueOf(a))
	a.extra = []ir.Output{{Node: b}}
	if _, err := ir.ComputePostOrder(b); !errors.Is(err, ir.ErrCycle) {
		t.Fatalf("error = %v, want ErrCycle", err)
	}
}

func TestNodeTableDedup(t *testing.T) {
	s := shape.Make(shape.S32, 4)
	table := ir.NewNodeTable()
	a := table.Intern(buildAddGraph(s, ir.DefaultHashSeed))
	b := table.Intern(buildAddGraph(s, ir.DefaultHashSeed))
	c := table.Intern(buildAddGraph(s, 17))
	if a != b {
		t.Fatalf("identical graphs were not merged")
	}
	if a == c || table.Len() != 2 {
		t.Fatalf("distinct graphs merged, Len() = %d", table.Len())
	}
	if hits, misses := table.Stats(); hits != 1 || misses != 2 {
		t.Fatalf("Stats() = %d, %d", hits, misses)
	}
	if got, ok := table.Lookup(c.Hash()); !ok || got != c {
		t.Fatalf("Lookup(%s) = %v, %v", c.Hash(), got, ok)
	}
}

func TestDumps(t *testing.T) {
	ir.ResetScopes()
	x := newLeaf(shape.Make(shape.F32, 8))
	var sp ir.Node
	ir.WithScope("halves", func() { sp = newSplit(ir.ValueOf(x)) })
	sum := newBinary(kindAdd, ir.Value{Node: sp}, ir.Value{Node: sp, Index: 1})

	text, err := ir.ToText(sum)
	if err != nil {
		t.Fatalf("ToText: %v", err)
	}
	wantLines := []string{
		"%0 = test::param f32[8]",
		"%1 = test::split (f32[4], f32[4]), num_outputs=2, operands=(%0), scope=halves",
		"ROOT %2 = test::add f32[4], operands=(%1:0, %1:1)",
	}
	got := strings.Split(strings.TrimSpace(text), "\n")
	if len(got) != len(wantLines) {
		t.Fatalf("ToText:\n%s", text)
	}
	for i, line := range wantLines {
		if got[i] != line {
			t.Fatalf("line %d = %q, want %q", i, got[i], line)
		}
	}

	dot, err := ir.ToDot("g", sum)
	if err != nil {
		t.Fatalf("ToDot: %v", err)
	}
	for _, part := range []string{`digraph "g" {`, "n2 [shape=doublecircle];", `n1 -> n2 [label="1:1"];`, `n0 -> n1 [label="0"];`} {
		if !strings.Contains(dot, part) {
			t.Fatalf("ToDot missing %q:\n%s", part, dot)
		}
	}
}

func TestReturnOps(t *testing.T) {
	loctx := newFakeContext()
	x := newLeaf(shape.Make(shape.F32, 8))
	ops, err := x.Lower(loctx)
	if err != nil || len(ops) != 1 {
		t.Fatalf("Lower: %v, %v", ops, err)
	}
	got, err := loctx.GetOutputOp(ir.Output{Node: x})
	if err != nil || got != ops[0] {
		t.Fatalf("GetOutputOp = %v, %v", got, err)
	}
	if resolved, err := ir.OperandOps(loctx, newBinary(kindAdd, ir.ValueOf(x), ir.ValueOf(x))); err != nil || resolved[1] != ops[0] {
		t.Fatalf("OperandOps = %v, %v", resolved, err)
	}

	sp := newSplit(ir.ValueOf(x))
	if _, err := ir.ReturnOp(sp, ops[0], loctx); !errors.Is(err, ir.ErrOutputCount) {
		t.Fatalf("ReturnOp on two outputs: %v", err)
	}
	if _, err := ir.ReturnOps(sp, ops, loctx); !errors.Is(err, ir.ErrOutputCount) {
		t.Fatalf("ReturnOps with one op: %v", err)
	}
	if _, err := ir.ReturnOp(x, hlo.Op{}, loctx); !errors.Is(err, hlo.ErrInvalidOp) {
		t.Fatalf("ReturnOp(invalid) = %v", err)
	}

	b := loctx.Builder()
	halves := []hlo.Op{
		b.Slice(ops[0], []int64{0}, []int64{4}),
		b.Slice(ops[0], []int64{4}, []int64{8}),
	}
	if _, err := ir.ReturnOps(sp, halves, loctx); err != nil {
		t.Fatalf("ReturnOps: %v", err)
	}
	if op, _ := loctx.GetOutputOp(ir.Output{Node: sp, Index: 1}); op != halves[1] {
		t.Fatalf("output 1 = %v, want %v", op, halves[1])
	}
}

package lower_test

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
	"graphir/internal/trace"
)

// recorder is an operator that logs the order in which nodes lower and the
// operand ops they observe.
type recorder struct {
	ir.Base
	log *[]string
	saw *[]hlo.Op
}

var recordKind = ir.GetOpKind("test::record")

func newRecorder(name string, log *[]string, saw *[]hlo.Op, operands ...ir.Node) ir.Node {
	return ir.MakeNode(&recorder{
		Base: ir.NewBase(recordKind, ir.ValuesOf(operands...), shape.Make(shape.F32, 2),
			ir.WithHashSeed(ir.HashString(name)), ir.WithUserMetaData(label(name))),
		log: log,
		saw: saw,
	})
}

type label string

func (l label) String() string { return string(l) }

func (r *recorder) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	*r.log = append(*r.log, r.Metadata().User.String())
	in, err := ir.OperandOps(loctx, r)
	if err != nil {
		return nil, err
	}
	*r.saw = append(*r.saw, in...)
	if len(in) == 0 {
		return ir.ReturnOp(r, loctx.AddParameter(r.Shape(), r.Metadata().User.String()), loctx)
	}
	return ir.ReturnOp(r, loctx.Builder().Unary(hlo.OpNegate, in[0]), loctx)
}

func TestChainLowersInOrderOnce(t *testing.T) {
	var log []string
	var saw []hlo.Op
	a := newRecorder("A", &log, &saw)
	b := newRecorder("B", &log, &saw, a)
	c := newRecorder("C", &log, &saw, b)

	lc := lower.NewContext("chain")
	if err := lc.LowerRoots(context.Background(), c); err != nil {
		t.Fatalf("LowerRoots: %v", err)
	}
	// lowering again is a no-op for already lowered nodes
	if err := lc.LowerRoots(context.Background(), c, b); err != nil {
		t.Fatalf("second LowerRoots: %v", err)
	}
	if strings.Join(log, ",") != "A,B,C" {
		t.Fatalf("lowering order = %v, want A,B,C", log)
	}
	bOp, err := lc.GetOutputOp(ir.Output{Node: b})
	if err != nil {
		t.Fatalf("GetOutputOp(B): %v", err)
	}
	if len(saw) != 2 || saw[1] != bOp {
		t.Fatalf("C saw operand %v, want B's op %v", saw, bOp)
	}
	if got := lc.Lowered(); len(got) != 3 || got[2] != c {
		t.Fatalf("Lowered() = %v", got)
	}

	comp, err := lc.Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if comp.Count(hlo.OpParameter) != 1 || comp.Count(hlo.OpNegate) != 2 || comp.Count(hlo.OpTuple) != 0 {
		t.Fatalf("unexpected computation:\n%s", comp)
	}
}

func TestGetOutputOpBeforeLowering(t *testing.T) {
	x, err := ops.NewParameter(shape.Scalar(shape.F32), "x")
	if err != nil {
		t.Fatal(err)
	}
	lc := lower.NewContext("early")
	if _, err := lc.GetOutputOp(ir.Output{Node: x}); !errors.Is(err, lower.ErrNotLowered) {
		t.Fatalf("error = %v, want ErrNotLowered", err)
	}
	if _, err := lc.Build(x); !errors.Is(err, lower.ErrNotLowered) {
		t.Fatalf("Build error = %v, want ErrNotLowered", err)
	}
}

// liar registers its output but claims to return two ops.
type liar struct{ ir.Base }

func (l *liar) Lower(loctx ir.LoweringContext) ([]hlo.Op, error) {
	op := loctx.AddParameter(l.Shape(), "")
	loctx.AssignOutputOp(ir.Output{Node: l}, op)
	return []hlo.Op{op, op}, nil
}

func TestFailedLoweringPoisonsContext(t *testing.T) {
	bad := ir.MakeNode(&liar{Base: ir.NewLeafBase(ir.GetOpKind("test::liar"), shape.Scalar(shape.F32))})
	lc := lower.NewContext("bad")
	if err := lc.LowerRoots(context.Background(), bad); !errors.Is(err, lower.ErrOutputCount) {
		t.Fatalf("error = %v, want ErrOutputCount", err)
	}
	if _, err := lc.Build(bad); !errors.Is(err, lower.ErrFailed) {
		t.Fatalf("Build after failure = %v, want ErrFailed", err)
	}

	x, _ := ops.NewParameter(shape.Scalar(shape.F32), "x")
	if err := lc.LowerRoots(context.Background(), x); !errors.Is(err, lower.ErrFailed) {
		t.Fatalf("LowerRoots after failure = %v, want ErrFailed", err)
	}
}

func TestUnimplementedLowering(t *testing.T) {
	type bare struct{ ir.Base }
	n := ir.MakeNode(&bare{Base: ir.NewLeafBase(ir.GetOpKind("test::bare"), shape.Scalar(shape.F32))})
	if _, err := lower.LowerGraph(context.Background(), "bare", n); !errors.Is(err, ir.ErrLowerNotImplemented) {
		t.Fatalf("error = %v, want ErrLowerNotImplemented", err)
	}
}

func TestMetadataAndTracing(t *testing.T) {
	ir.ResetScopes()
	var x, y ir.Node
	ir.WithScope("block", func() {
		x, _ = ops.NewParameter(shape.Make(shape.F32, 3), "x")
		y, _ = ops.NewUnary("abs", ir.ValueOf(x))
	})

	ring := trace.NewRingTracer(64, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)
	comp, err := lower.LowerGraph(ctx, "meta", y)
	if err != nil {
		t.Fatalf("LowerGraph: %v", err)
	}
	in := comp.Instructions[comp.Root]
	if in.Metadata.OpType != "xla::abs" || in.Metadata.OpName != "block" {
		t.Fatalf("root metadata = %+v", in.Metadata)
	}
	if !strings.HasSuffix(in.Metadata.SourceFile, "context_test.go") {
		t.Fatalf("source file = %q", in.Metadata.SourceFile)
	}

	var begins, points int
	for _, ev := range ring.Snapshot() {
		switch ev.Kind {
		case trace.KindSpanBegin:
			begins++
		case trace.KindPoint:
			points++
		}
	}
	if begins != 1 || points != 2 {
		t.Fatalf("events: %d span begins, %d points", begins, points)
	}

	plain := lower.NewContext("plain", lower.WithoutMetadata())
	if err := plain.LowerRoots(context.Background(), y); err != nil {
		t.Fatalf("LowerRoots: %v", err)
	}
	comp, err = plain.Build(y)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !comp.Instructions[comp.Root].Metadata.Empty() {
		t.Fatalf("metadata recorded with WithoutMetadata")
	}
}

func TestCanceledContext(t *testing.T) {
	x, _ := ops.NewParameter(shape.Scalar(shape.F32), "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := lower.NewContext("c").LowerRoots(ctx, x); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

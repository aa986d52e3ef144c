package hlo

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/vmihailenco/msgpack/v5"

	"graphir/internal/shape"
)

func TestBuilderShapes(t *testing.T) {
	b := NewBuilder("shapes")
	x := b.Parameter(0, shape.Make(shape.F32, 2, 3), "x")
	y := b.Parameter(1, shape.Make(shape.F32, 2, 3), "y")
	sum := b.Binary(OpAdd, x, y)
	neg := b.Unary(OpNegate, sum)
	flat := b.Reshape(neg, 6)
	wide := b.Broadcast(flat, 4)
	red := b.Reduce(wide, OpAdd, 0)
	sl := b.Slice(x, []int64{0, 1}, []int64{1, 3})
	tup := b.Tuple(red, sl)
	gte := b.GetTupleElement(tup, 1)

	if err := b.Err(); err != nil {
		t.Fatalf("unexpected builder error: %v", err)
	}

	tests := []struct {
		op   Op
		want string
	}{
		{sum, "f32[2,3]"},
		{neg, "f32[2,3]"},
		{flat, "f32[6]"},
		{wide, "f32[4,6]"},
		{red, "f32[6]"},
		{sl, "f32[1,2]"},
		{tup, "(f32[6], f32[1,2])"},
		{gte, "f32[1,2]"},
	}
	for _, tt := range tests {
		got, err := b.Shape(tt.op)
		if err != nil {
			t.Fatalf("Shape(%s): %v", tt.op, err)
		}
		if got.String() != tt.want {
			t.Fatalf("Shape(%s) = %s, want %s", tt.op, got, tt.want)
		}
	}
}

func TestBuilderFirstErrorSticks(t *testing.T) {
	b := NewBuilder("errs")
	x := b.Parameter(0, shape.Make(shape.F32, 2), "x")
	y := b.Parameter(1, shape.Make(shape.F32, 3), "y")
	bad := b.Binary(OpAdd, x, y)
	if bad.Valid() {
		t.Fatalf("mismatched add returned a valid op")
	}
	if !errors.Is(b.Err(), ErrShapeMismatch) {
		t.Fatalf("Err() = %v, want ErrShapeMismatch", b.Err())
	}
	// later valid calls are ignored
	if b.Unary(OpNegate, x).Valid() {
		t.Fatalf("builder kept emitting after an error")
	}
	if _, err := b.Build(x); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Build error = %v, want ErrShapeMismatch", err)
	}
}

func TestBuilderRejectsForeignOps(t *testing.T) {
	a := NewBuilder("a")
	other := NewBuilder("b")
	x := other.Parameter(0, shape.Scalar(shape.F32), "")
	a.Unary(OpExp, x)
	if !errors.Is(a.Err(), ErrInvalidOp) {
		t.Fatalf("Err() = %v, want ErrInvalidOp", a.Err())
	}
}

func TestBuilderParameterValidation(t *testing.T) {
	b := NewBuilder("params")
	b.Parameter(0, shape.Scalar(shape.F32), "")
	b.Parameter(0, shape.Scalar(shape.F32), "")
	if b.Err() == nil || !strings.Contains(b.Err().Error(), "declared twice") {
		t.Fatalf("Err() = %v, want duplicate parameter error", b.Err())
	}
}

func TestComputationText(t *testing.T) {
	b := NewBuilder("text")
	b.SetOpMetadata(OpMetadata{OpType: "xla::device_data", OpName: "encoder/x"})
	x := b.Parameter(0, shape.Make(shape.F32, 2), "x")
	b.ClearOpMetadata()
	c1 := b.Constant(shape.Make(shape.F32, 2), 1.5)
	sum := b.Binary(OpAdd, x, c1)
	comp, err := b.Build(b.Tuple(sum))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := comp.String()
	wantLines := []string{
		"HloModule text",
		"ENTRY text {",
		`%parameter.0 = f32[2] parameter(0), name="x"`,
		`metadata={op_type="xla::device_data" op_name="encoder/x"}`,
		"%constant.1 = f32[2] constant(1.5)",
		"%add.2 = f32[2] add(%parameter.0, %constant.1)",
		"ROOT %tuple.3 = (f32[2]) tuple(%add.2)",
	}
	for _, line := range wantLines {
		if !strings.Contains(got, line) {
			t.Fatalf("HLO text missing %q:\n%s", line, got)
		}
	}
}

func TestComputationEncodeDecode(t *testing.T) {
	b := NewBuilder("roundtrip")
	x := b.Parameter(0, shape.Make(shape.S32, 4), "x")
	y := b.Parameter(1, shape.Make(shape.S32, 4), "y")
	comp, err := b.Build(b.Binary(OpMaximum, x, y))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var buf bytes.Buffer
	if err := comp.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(comp.String(), back.String()); diff != "" {
		t.Fatalf("decoded computation differs (-want +got):\n%s", diff)
	}
	params := back.ParameterShapes()
	if len(params) != 2 || !params[1].Equal(shape.Make(shape.S32, 4)) {
		t.Fatalf("ParameterShapes() = %v", params)
	}

	// computations are also encoded as fields of larger records
	type record struct {
		Comp *Computation
	}
	data, err := msgpack.Marshal(record{Comp: comp})
	if err != nil {
		t.Fatalf("Marshal record: %v", err)
	}
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Unmarshal record: %v", err)
	}
	if diff := cmp.Diff(comp, rec.Comp, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("embedded computation differs (-want +got):\n%s", diff)
	}
}

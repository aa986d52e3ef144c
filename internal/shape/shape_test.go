package shape

import (
	"testing"
)

func TestShapeString(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  string
	}{
		{name: "scalar", shape: Scalar(F32), want: "f32[]"},
		{name: "matrix", shape: Make(S32, 2, 3), want: "s32[2,3]"},
		{name: "tuple", shape: MakeTuple(Make(F32, 2), Scalar(Pred)), want: "(f32[2], pred[])"},
		{name: "empty_tuple", shape: MakeTuple(), want: "()"},
		{name: "nested", shape: MakeTuple(MakeTuple(Make(BF16, 1))), want: "((bf16[1]))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.shape.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := Parse(tt.want)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.want, err)
			}
			if !parsed.Equal(tt.shape) {
				t.Fatalf("Parse(%q) = %s, want %s", tt.want, parsed, tt.shape)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "f32", "q32[1]", "f32[1,", "(f32[1]", "f32[1] x", "f32[-1]"} {
		if _, err := Parse(src); err == nil {
			t.Fatalf("Parse(%q) succeeded, want error", src)
		}
	}
}

func TestTupleElement(t *testing.T) {
	tup := MakeTuple(Make(F32, 4), Make(S64, 1, 2))
	if tup.TupleSize() != 2 {
		t.Fatalf("TupleSize() = %d, want 2", tup.TupleSize())
	}
	e, err := tup.TupleElement(1)
	if err != nil {
		t.Fatalf("TupleElement(1): %v", err)
	}
	if !e.Equal(Make(S64, 1, 2)) {
		t.Fatalf("TupleElement(1) = %s", e)
	}
	if _, err := tup.TupleElement(2); err == nil {
		t.Fatalf("TupleElement(2) succeeded, want error")
	}
	if _, err := Make(F32, 1).TupleElement(0); err == nil {
		t.Fatalf("TupleElement on array succeeded, want error")
	}
}

func TestHashDistinguishesShapes(t *testing.T) {
	shapes := []Shape{
		Scalar(F32),
		Make(F32, 1),
		Make(F32, 1, 1),
		Make(F64, 1),
		Make(F32, 2, 3),
		Make(F32, 3, 2),
		MakeTuple(),
		MakeTuple(Make(F32, 1)),
		MakeTuple(Make(F32, 1), Make(F32, 1)),
	}
	seen := make(map[uint64]string, len(shapes))
	for _, s := range shapes {
		h := s.Hash()
		if prev, ok := seen[h]; ok {
			t.Fatalf("hash collision between %s and %s", prev, s)
		}
		seen[h] = s.String()
		if h != s.Clone().Hash() {
			t.Fatalf("clone of %s hashes differently", s)
		}
	}
}

func TestMakeCopiesDims(t *testing.T) {
	dims := []int64{2, 3}
	s := Make(F32, dims...)
	dims[0] = 7
	if s.Dims[0] != 2 {
		t.Fatalf("Make kept a reference to the caller's slice")
	}
	if s.Size() != 6 {
		t.Fatalf("Size() = %d, want 6", s.Size())
	}
}

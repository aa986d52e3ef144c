// Package shape describes the static type of an IR value: an element type
// with dimensions, or a tuple of shapes for multi-output operations.
package shape

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"
	"github.com/cespare/xxhash/v2"
)

// Shape is either an array shape (DType + Dims, rank 0 being a scalar) or
// a tuple shape (DType == Tuple, Elems holding the element shapes).
type Shape struct {
	DType DType   `msgpack:"t"`
	Dims  []int64 `msgpack:"d,omitempty"`
	Elems []Shape `msgpack:"e,omitempty"`
}

// Make returns an array shape.
func Make(dtype DType, dims ...int64) Shape {
	return Shape{DType: dtype, Dims: slices.Clone(dims)}
}

// Scalar returns a rank 0 shape.
func Scalar(dtype DType) Shape {
	return Shape{DType: dtype}
}

// MakeTuple returns a tuple shape holding copies of elems.
func MakeTuple(elems ...Shape) Shape {
	out := Shape{DType: Tuple, Elems: make([]Shape, len(elems))}
	for i, e := range elems {
		out.Elems[i] = e.Clone()
	}
	return out
}

// Valid reports whether s was initialized.
func (s Shape) Valid() bool {
	return s.DType != InvalidType
}

// IsTuple reports whether s is a tuple shape.
func (s Shape) IsTuple() bool {
	return s.DType == Tuple
}

// IsScalar reports whether s is a rank 0 array.
func (s Shape) IsScalar() bool {
	return s.DType.IsArray() && len(s.Dims) == 0
}

// TupleSize returns the number of tuple elements, 0 for arrays.
func (s Shape) TupleSize() int {
	if !s.IsTuple() {
		return 0
	}
	return len(s.Elems)
}

// TupleElement returns the i-th element of a tuple shape.
func (s Shape) TupleElement(i int) (Shape, error) {
	if !s.IsTuple() {
		return Shape{}, fmt.Errorf("shape %s is not a tuple", s)
	}
	if i < 0 || i >= len(s.Elems) {
		return Shape{}, fmt.Errorf("tuple index %d out of range for %s", i, s)
	}
	return s.Elems[i], nil
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s.Dims)
}

// Size returns the number of elements of an array shape.
func (s Shape) Size() int64 {
	if !s.DType.IsArray() {
		return 0
	}
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Clone returns a deep copy.
func (s Shape) Clone() Shape {
	out := Shape{DType: s.DType, Dims: slices.Clone(s.Dims)}
	if s.Elems != nil {
		out.Elems = make([]Shape, len(s.Elems))
		for i, e := range s.Elems {
			out.Elems[i] = e.Clone()
		}
	}
	return out
}

// Equal compares two shapes structurally.
func (s Shape) Equal(other Shape) bool {
	if s.DType != other.DType || !slices.Equal(s.Dims, other.Dims) {
		return false
	}
	if len(s.Elems) != len(other.Elems) {
		return false
	}
	for i := range s.Elems {
		if !s.Elems[i].Equal(other.Elems[i]) {
			return false
		}
	}
	return true
}

// Hash returns a deterministic hash of the shape structure.
func (s Shape) Hash() uint64 {
	d := xxhash.New()
	s.writeHash(d)
	return d.Sum64()
}

func (s Shape) writeHash(d *xxhash.Digest) {
	var buf [8]byte
	_, _ = d.Write([]byte{byte(s.DType)})
	if s.IsTuple() {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s.Elems)))
		_, _ = d.Write(buf[:])
		for _, e := range s.Elems {
			e.writeHash(d)
		}
		return
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(len(s.Dims)))
	_, _ = d.Write(buf[:])
	for _, dim := range s.Dims {
		u, err := safecast.Conv[uint64](dim)
		if err != nil {
			// negative dims only appear in malformed shapes; keep them distinct
			u = ^uint64(0) - uint64(-dim)
		}
		binary.LittleEndian.PutUint64(buf[:], u)
		_, _ = d.Write(buf[:])
	}
}

// String renders the shape in HLO notation: f32[2,3], (f32[2], s32[]).
func (s Shape) String() string {
	var sb strings.Builder
	s.write(&sb)
	return sb.String()
}

func (s Shape) write(sb *strings.Builder) {
	if s.IsTuple() {
		sb.WriteByte('(')
		for i, e := range s.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteByte(')')
		return
	}
	sb.WriteString(s.DType.String())
	sb.WriteByte('[')
	for i, d := range s.Dims {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(sb, "%d", d)
	}
	sb.WriteByte(']')
}

// DimsAsInts converts the dimensions to int, failing on overflow.
func (s Shape) DimsAsInts() ([]int, error) {
	out := make([]int, len(s.Dims))
	for i, d := range s.Dims {
		v, err := safecast.Conv[int](d)
		if err != nil {
			return nil, fmt.Errorf("dimension %d of %s: %w", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

package shape

import (
	"fmt"
	"strings"
)

// DType enumerates element types. Tuple marks a tuple shape.
type DType uint8

const (
	InvalidType DType = iota
	Pred
	S8
	S16
	S32
	S64
	U8
	U32
	U64
	F16
	BF16
	F32
	F64
	Tuple
)

var dtypeNames = [...]string{
	InvalidType: "invalid",
	Pred:        "pred",
	S8:          "s8",
	S16:         "s16",
	S32:         "s32",
	S64:         "s64",
	U8:          "u8",
	U32:         "u32",
	U64:         "u64",
	F16:         "f16",
	BF16:        "bf16",
	F32:         "f32",
	F64:         "f64",
	Tuple:       "tuple",
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return fmt.Sprintf("DType(%d)", d)
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	return d == F16 || d == BF16 || d == F32 || d == F64
}

// IsArray reports whether d is a valid element type for an array shape.
func (d DType) IsArray() bool {
	return d > InvalidType && d < Tuple
}

// ByteSize returns the storage size of a single element.
func (d DType) ByteSize() int {
	switch d {
	case Pred, S8, U8:
		return 1
	case S16, F16, BF16:
		return 2
	case S32, U32, F32:
		return 4
	case S64, U64, F64:
		return 8
	default:
		return 0
	}
}

// ParseDType converts the textual form ("f32", "pred") back to a DType.
func ParseDType(s string) (DType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range dtypeNames {
		if name == s && DType(i).IsArray() {
			return DType(i), nil
		}
	}
	return InvalidType, fmt.Errorf("unknown element type %q", s)
}

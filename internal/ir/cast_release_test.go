//go:build !irdebug

package ir_test

import (
	"testing"

	"graphir/internal/ir"
	"graphir/internal/shape"
)

func TestNodeCastTypeMismatch(t *testing.T) {
	x := newLeaf(shape.Make(shape.F32, 2))
	if _, ok := ir.NodeCast[*binary](x, kindParam); ok {
		t.Fatalf("NodeCast to the wrong type succeeded")
	}
}

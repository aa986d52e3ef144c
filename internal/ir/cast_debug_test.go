//go:build irdebug

package ir_test

import (
	"testing"

	"graphir/internal/ir"
	"graphir/internal/shape"
)

func TestNodeCastTypeMismatchPanics(t *testing.T) {
	x := newLeaf(shape.Make(shape.F32, 2))
	defer func() {
		if recover() == nil {
			t.Fatalf("NodeCast to the wrong type did not panic")
		}
	}()
	ir.NodeCast[*binary](x, kindParam)
}

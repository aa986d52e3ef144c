package testkit

import (
	"strings"
	"testing"

	"graphir/internal/ir"
	"graphir/internal/shape"
)

var (
	leafKind = ir.GetOpKind("testkit::leaf")
	pairKind = ir.GetOpKind("testkit::pair")
)

type leaf struct{ ir.Base }

func newLeaf(seed ir.Hash) *leaf {
	return &leaf{Base: ir.NewLeafBase(leafKind, shape.Make(shape.F32, 3), ir.WithHashSeed(seed))}
}

func (l *leaf) Clone(operands []ir.Value) (ir.Node, error) { return newLeaf(l.HashSeed()), nil }

type pair struct{ ir.Base }

func newPair(x ir.Value) *pair {
	s := shape.MakeTuple(x.Shape(), x.Shape())
	return &pair{Base: ir.NewBase(pairKind, []ir.Value{x}, s, ir.WithNumOutputs(2))}
}

type badClone struct{ ir.Base }

func (b *badClone) Clone(operands []ir.Value) (ir.Node, error) { return newLeaf(99), nil }

func TestCheckGraphInvariants(t *testing.T) {
	x := newLeaf(1)
	p := newPair(ir.ValueOf(x))
	if err := CheckGraphInvariants(p); err != nil {
		t.Fatalf("valid graph rejected: %v", err)
	}
}

func TestCheckGraphInvariantsBadClone(t *testing.T) {
	b := &badClone{Base: ir.NewLeafBase(leafKind, shape.Make(shape.F32, 3), ir.WithHashSeed(5))}
	err := CheckGraphInvariants(b)
	if err == nil || !strings.Contains(err.Error(), "clone hash") {
		t.Fatalf("err = %v, want clone hash mismatch", err)
	}
}

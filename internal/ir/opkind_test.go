package ir_test

import (
	"sync"
	"testing"

	"graphir/internal/ir"
)

func TestGetOpKindInterns(t *testing.T) {
	a := ir.GetOpKind("xla::opkind_test_x")
	b := ir.GetOpKind("xla::opkind_test_x")
	c := ir.GetOpKind("xla::opkind_test_y")
	if a != b {
		t.Fatalf("GetOpKind returned different kinds for the same name")
	}
	if a.Hash() != b.Hash() {
		t.Fatalf("equal kinds hash differently: %s vs %s", a.Hash(), b.Hash())
	}
	if a == c || a.Hash() == c.Hash() {
		t.Fatalf("distinct names share a kind or hash")
	}
	if a.String() != "xla::opkind_test_x" {
		t.Fatalf("String() = %q", a.String())
	}
	if a.Compare(c) != -1 || c.Compare(a) != 1 || a.Compare(b) != 0 {
		t.Fatalf("Compare does not follow interning order")
	}
	if !a.Less(c) {
		t.Fatalf("Less(%s, %s) = false", a, c)
	}
}

func TestOpKindZero(t *testing.T) {
	var k ir.OpKind
	if k.Valid() || k.ID() != 0 || k.Hash() != 0 {
		t.Fatalf("zero OpKind should be invalid")
	}
	if k.String() != "<invalid>" {
		t.Fatalf("String() = %q", k.String())
	}
}

func TestOpKindNormalizesNames(t *testing.T) {
	composed := ir.GetOpKind("test::caf\u00e9")
	decomposed := ir.GetOpKind("test::cafe\u0301")
	if composed != decomposed {
		t.Fatalf("NFC-equivalent names interned separately")
	}
	if _, ok := ir.LookupOpKind("test::never_interned"); ok {
		t.Fatalf("LookupOpKind created a symbol")
	}
}

func TestGetOpKindConcurrent(t *testing.T) {
	const workers = 16
	before := ir.OpKindCount()
	kinds := make([]ir.OpKind, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kinds[i] = ir.GetOpKind("test::concurrent")
		}()
	}
	wg.Wait()
	for _, k := range kinds[1:] {
		if k != kinds[0] {
			t.Fatalf("concurrent interning produced two symbols")
		}
	}
	if got := ir.OpKindCount(); got != before+1 {
		t.Fatalf("OpKindCount() = %d, want %d", got, before+1)
	}
}

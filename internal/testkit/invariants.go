// Package testkit holds checks shared by tests of packages that build ir
// graphs.
package testkit

import (
	"errors"
	"fmt"

	"graphir/internal/ir"
)

// CheckGraphInvariants walks the graph reachable from roots and verifies:
// 1) every operand refers to an existing output of a non-nil node
// 2) every node reports a shape for each output, a tuple when it has more than one
// 3) Hash is NodeHash folded with the operand hashes in order
// 4) a clone over the same operands hashes identically
func CheckGraphInvariants(roots ...ir.Node) error {
	order, err := ir.ComputePostOrder(roots...)
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range order {
		if err := checkNode(n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Op(), err))
		}
	}
	return errors.Join(errs...)
}

func checkNode(n ir.Node) error {
	operands := ir.OperandValues(n)
	for i, v := range operands {
		if !v.Valid() {
			return fmt.Errorf("operand %d is invalid: %v", i, v)
		}
	}

	if n.NumOutputs() < 1 {
		return fmt.Errorf("num outputs %d", n.NumOutputs())
	}
	s := n.Shape()
	if n.NumOutputs() > 1 && s.TupleSize() != n.NumOutputs() {
		return fmt.Errorf("shape %s does not have %d elements", s, n.NumOutputs())
	}
	for i := range n.NumOutputs() {
		if _, err := n.ShapeAt(i); err != nil {
			return err
		}
	}
	if _, err := n.ShapeAt(n.NumOutputs()); !errors.Is(err, ir.ErrOutputIndex) {
		return fmt.Errorf("ShapeAt past the last output returned %v", err)
	}

	want := n.NodeHash()
	for _, v := range operands {
		want = ir.HashCombine(want, v.Hash())
	}
	if n.Hash() != want {
		return fmt.Errorf("hash %s, want %s from node hash and operands", n.Hash(), want)
	}

	clone, err := n.Clone(operands)
	if errors.Is(err, ir.ErrCloneNotImplemented) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	if clone.Hash() != n.Hash() || clone.Op() != n.Op() {
		return fmt.Errorf("clone hash %s op %s, want %s %s", clone.Hash(), clone.Op(), n.Hash(), n.Op())
	}
	return nil
}

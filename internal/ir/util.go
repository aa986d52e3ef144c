package ir

import "fmt"

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

// ComputePostOrder returns every node reachable from roots, operands before
// the nodes that use them. Each node appears once; roots are visited in the
// order given and operands left to right.
func ComputePostOrder(roots ...Node) ([]Node, error) {
	type frame struct {
		node Node
		next int
	}
	state := make(map[Node]visitState)
	var order []Node
	var stack []frame

	for _, root := range roots {
		if root == nil || state[root] == visited {
			continue
		}
		stack = append(stack[:0], frame{node: root})
		state[root] = visiting
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			ops := top.node.Operands()
			if top.next < len(ops) {
				child := ops[top.next].Node
				top.next++
				switch state[child] {
				case visiting:
					return nil, fmt.Errorf("%w: %s reaches itself", ErrCycle, child.Op())
				case unvisited:
					state[child] = visiting
					stack = append(stack, frame{node: child})
				}
				continue
			}
			state[top.node] = visited
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
	}
	return order, nil
}

// OperandValues returns the operands of n as owning edges, in order. Passing
// the result to Clone yields a node with the same hash as n.
func OperandValues(n Node) []Value {
	outs := n.Operands()
	vals := make([]Value, len(outs))
	for i, o := range outs {
		vals[i] = Value{Node: o.Node, Index: o.Index}
	}
	return vals
}

// CheckOperandCount is used by Clone implementations.
func CheckOperandCount(n Node, operands []Value, want int) error {
	if len(operands) != want {
		return fmt.Errorf("%w: %s takes %d operands, got %d", ErrOperandCount, n.Op(), want, len(operands))
	}
	return nil
}

// Roots returns the nodes of order that no other node in order uses.
func Roots(order []Node) []Node {
	used := make(map[Node]struct{}, len(order))
	for _, n := range order {
		for _, op := range n.Operands() {
			used[op.Node] = struct{}{}
		}
	}
	var roots []Node
	for _, n := range order {
		if _, ok := used[n]; !ok {
			roots = append(roots, n)
		}
	}
	return roots
}

// CombinedHash folds the hashes of several outputs, in order. It identifies
// a computation built from those outputs.
func CombinedHash(outs ...Output) Hash {
	hs := make([]Hash, len(outs))
	for i, o := range outs {
		hs[i] = o.Hash()
	}
	return HashValues(DefaultHashSeed, hs...)
}

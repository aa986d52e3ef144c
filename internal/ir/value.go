package ir

import (
	"fmt"

	"graphir/internal/shape"
)

// Output names one result slot of a node. It is a plain handle: holding an
// Output does not make the holder an operand owner, and Outputs are what
// lowering contexts and maps key on.
type Output struct {
	Node  Node
	Index int
}

// OutputSet is a set of outputs.
type OutputSet map[Output]struct{}

// OutputMap maps outputs to arbitrary data.
type OutputMap[T any] map[Output]T

// Valid reports whether the output refers to a node.
func (o Output) Valid() bool {
	return o.Node != nil
}

// Shape returns the shape of this slot; for multi-output nodes it is the
// tuple element, not the full tuple. It panics when the index is out of range.
func (o Output) Shape() shape.Shape {
	return mustShapeAt(o.Node, o.Index)
}

// NodeShape returns the full shape of the producing node.
func (o Output) NodeShape() shape.Shape {
	return o.Node.Shape()
}

// Hash combines the node's graph hash with the output index.
func (o Output) Hash() Hash {
	return outputHash(o.Node, o.Index)
}

func (o Output) String() string {
	if o.Node == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s, index=%d", o.Node, o.Index)
}

// Value is an operand edge: the consuming node keeps the producer alive.
type Value struct {
	Node  Node
	Index int
}

// ValueOf returns the Value for output 0 of n.
func ValueOf(n Node) Value {
	return Value{Node: n}
}

// ValuesOf returns ValueOf for every node.
func ValuesOf(nodes ...Node) []Value {
	out := make([]Value, len(nodes))
	for i, n := range nodes {
		out[i] = Value{Node: n}
	}
	return out
}

// Valid reports whether the value refers to a node.
func (v Value) Valid() bool {
	return v.Node != nil
}

// Output projects the value onto a non-owning handle.
func (v Value) Output() Output {
	return Output{Node: v.Node, Index: v.Index}
}

// Shape returns the shape of this slot. It panics when the index is out of range.
func (v Value) Shape() shape.Shape {
	return mustShapeAt(v.Node, v.Index)
}

// NodeShape returns the full shape of the producing node.
func (v Value) NodeShape() shape.Shape {
	return v.Node.Shape()
}

// Hash combines the node's graph hash with the output index.
func (v Value) Hash() Hash {
	return outputHash(v.Node, v.Index)
}

func outputHash(n Node, index int) Hash {
	if n == nil {
		return 0
	}
	return HashCombine(n.Hash(), HashUint(uint64(index)))
}

func mustShapeAt(n Node, index int) shape.Shape {
	if n == nil {
		panic(fmt.Errorf("%w: nil node", ErrInvalidOperand))
	}
	s, err := n.ShapeAt(index)
	if err != nil {
		panic(err)
	}
	return s
}

// Package ir is the traced computation graph: interned operator kinds,
// immutable nodes with owning operand edges, structural hashing, lazily
// resolved shapes, per-goroutine naming scopes and the contract through
// which nodes lower themselves into backend operations.
//
// # Building graphs
//
// Concrete operators embed Base and are constructed through NewBase,
// NewBaseFn (lazy shape) or NewLeafBase:
//
//	type Add struct{ ir.Base }
//
//	func NewAdd(x, y ir.Value) ir.Node {
//		return ir.MakeNode(&Add{Base: ir.NewBase(addKind, []ir.Value{x, y}, x.Shape())})
//	}
//
// A node keeps its operands alive (Value edges) and exposes them again as
// Output handles. Nothing in a node points back at its users.
//
// # Hashing
//
// NodeHash covers the operator, the shape (when known at construction) and
// the hash seed. Hash additionally folds in every operand hash in order, so
// two graphs with the same structure hash equal regardless of identity.
//
// # Scopes
//
// PushScope / WithScope maintain a stack of names for the calling goroutine;
// the joined path is recorded in the metadata of every node created while
// the scope is active.
//
// # Lowering
//
// Each operator implements Lower and registers its results with ReturnOp or
// ReturnOps. The traversal itself lives in package lower.
package ir

package ir

import "fmt"

// NodeCast returns n as T when n's operator is op. A node whose operator
// matches but whose type is not T is a programming error: builds with the
// irdebug tag panic, other builds report (zero, false).
func NodeCast[T Node](n Node, op OpKind) (T, bool) {
	var zero T
	if n == nil || n.Op() != op {
		return zero, false
	}
	t, ok := n.(T)
	if !ok {
		if debugCasts {
			panic(fmt.Sprintf("ir: node %s has op %s but type %T, not %T", n, op, n, zero))
		}
		return zero, false
	}
	return t, true
}

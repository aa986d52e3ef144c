package ir

import (
	"strconv"
	"sync/atomic"

	"graphir/internal/trace"
)

type tracerBox struct{ t trace.Tracer }

var graphChanges atomic.Pointer[tracerBox]

// SetGraphChangeTracer makes MakeNode report every new node to t as a
// node-scope point event. A nil tracer turns reporting off.
func SetGraphChangeTracer(t trace.Tracer) {
	if t == nil || !t.Enabled() {
		graphChanges.Store(nil)
		return
	}
	graphChanges.Store(&tracerBox{t: t})
}

// LogGraphChanges reports whether MakeNode currently emits events.
func LogGraphChanges() bool {
	return graphChanges.Load() != nil
}

// MakeNode finishes construction of a concrete operator and returns it as a
// Node. Constructors in operator packages end with it.
func MakeNode[T Node](n T) Node {
	if box := graphChanges.Load(); box != nil {
		logNode(box.t, n)
	}
	return n
}

func logNode(t trace.Tracer, n Node) {
	b := n.base()
	extra := map[string]string{
		"hash":     b.hash.String(),
		"operands": strconv.Itoa(len(b.operands)),
	}
	if b.meta.Scope != "" {
		extra["scope"] = b.meta.Scope
	}
	if loc, ok := b.meta.Location(); ok {
		extra["at"] = loc.File + ":" + strconv.Itoa(loc.Line)
	}
	trace.Point(t, trace.ScopeNode, "node:"+b.op.String(), "created", 0, extra)
}

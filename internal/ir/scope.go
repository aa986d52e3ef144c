package ir

import (
	"strings"
	"sync"

	"graphir/internal/trace"
)

// ScopeSeparator joins nested scope names.
const ScopeSeparator = "/"

type scopeStack struct {
	names []string
}

// scopes holds one stack per tracing goroutine. An empty stack is removed so
// goroutine ids can be reused without leaking names.
var scopes = struct {
	mu     sync.Mutex
	stacks map[uint64]*scopeStack
}{
	stacks: make(map[uint64]*scopeStack),
}

// ScopeGuard pops the scope pushed by PushScope.
type ScopeGuard struct {
	gid   uint64
	stack *scopeStack
	depth int
	once  sync.Once
}

// PushScope appends name to the calling goroutine's scope stack. The returned
// guard must be popped on the same goroutine, usually with defer.
func PushScope(name string) *ScopeGuard {
	gid := trace.GoroutineID()
	scopes.mu.Lock()
	defer scopes.mu.Unlock()
	st := scopes.stacks[gid]
	if st == nil {
		st = &scopeStack{}
		scopes.stacks[gid] = st
	}
	st.names = append(st.names, name)
	return &ScopeGuard{gid: gid, stack: st, depth: len(st.names)}
}

// Pop restores the stack to the depth it had before the matching push,
// dropping any inner scopes that were not popped. Calling it again is a no-op.
func (g *ScopeGuard) Pop() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		scopes.mu.Lock()
		defer scopes.mu.Unlock()
		st := scopes.stacks[g.gid]
		if st == nil || st != g.stack || len(st.names) < g.depth {
			return
		}
		clear(st.names[g.depth-1:])
		st.names = st.names[:g.depth-1]
		if len(st.names) == 0 {
			delete(scopes.stacks, g.gid)
		}
	})
}

// WithScope runs fn inside a scope named name. The scope is popped even if
// fn panics.
func WithScope(name string, fn func()) {
	g := PushScope(name)
	defer g.Pop()
	fn()
}

// CurrentScope returns the joined scope path of the calling goroutine.
func CurrentScope() string {
	gid := trace.GoroutineID()
	scopes.mu.Lock()
	defer scopes.mu.Unlock()
	st := scopes.stacks[gid]
	if st == nil {
		return ""
	}
	return strings.Join(st.names, ScopeSeparator)
}

// ScopeDepth returns the number of active scopes on the calling goroutine.
func ScopeDepth() int {
	gid := trace.GoroutineID()
	scopes.mu.Lock()
	defer scopes.mu.Unlock()
	if st := scopes.stacks[gid]; st != nil {
		return len(st.names)
	}
	return 0
}

// ResetScopes clears the calling goroutine's stack. Guards created before
// the reset become no-ops.
func ResetScopes() {
	gid := trace.GoroutineID()
	scopes.mu.Lock()
	defer scopes.mu.Unlock()
	delete(scopes.stacks, gid)
}

package ir

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// SourceLocation is one frame of the call stack that created a node.
type SourceLocation struct {
	File     string
	Line     int
	Function string
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Function)
}

// UserMetaData is caller data carried by a node. It is printed in dumps.
type UserMetaData interface {
	String() string
}

// MetaData is captured once, when the node is constructed.
type MetaData struct {
	Scope  string
	Frames []SourceLocation
	User   UserMetaData
}

// Location returns the innermost recorded frame.
func (m MetaData) Location() (SourceLocation, bool) {
	if len(m.Frames) == 0 {
		return SourceLocation{}, false
	}
	return m.Frames[0], true
}

// DefaultMaxFrames is the number of frames recorded per node unless changed
// with SetMaxFrames.
const DefaultMaxFrames = 8

var maxFrames atomic.Int32

func init() {
	maxFrames.Store(DefaultMaxFrames)
}

// SetMaxFrames sets how many call-site frames new nodes record; 0 disables
// frame capture.
func SetMaxFrames(n int) {
	maxFrames.Store(int32(max(0, min(n, 64))))
}

// framePrefixes lists function name prefixes that are not user call sites,
// and the boundaries set by RegisterFrameBoundary.
var framePrefixes = struct {
	mu         sync.RWMutex
	prefixes   []string
	boundaries []string
}{
	prefixes: []string{"graphir/internal/ir."},
}

// RegisterFramePrefix hides frames whose function name starts with prefix,
// so packages that wrap node construction report their caller instead.
func RegisterFramePrefix(prefix string) {
	framePrefixes.mu.Lock()
	defer framePrefixes.mu.Unlock()
	if !slices.Contains(framePrefixes.prefixes, prefix) {
		framePrefixes.prefixes = append(framePrefixes.prefixes, prefix)
	}
}

// RegisterFrameBoundary makes nodes whose nearest visible caller starts
// with prefix record no frames. Packages that build nodes from data rather
// than from Go code use it, since their call sites say nothing about where
// a node came from.
func RegisterFrameBoundary(prefix string) {
	framePrefixes.mu.Lock()
	defer framePrefixes.mu.Unlock()
	if !slices.Contains(framePrefixes.boundaries, prefix) {
		framePrefixes.boundaries = append(framePrefixes.boundaries, prefix)
	}
}

func hasAnyPrefix(fn string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

func hiddenFrame(fn string) bool {
	if strings.HasPrefix(fn, "runtime.") {
		return true
	}
	framePrefixes.mu.RLock()
	defer framePrefixes.mu.RUnlock()
	return hasAnyPrefix(fn, framePrefixes.prefixes)
}

func boundaryFrame(fn string) bool {
	framePrefixes.mu.RLock()
	defer framePrefixes.mu.RUnlock()
	return hasAnyPrefix(fn, framePrefixes.boundaries)
}

func captureMetaData(user UserMetaData) MetaData {
	md := MetaData{Scope: CurrentScope(), User: user}
	limit := int(maxFrames.Load())
	if limit == 0 {
		return md
	}
	pcs := make([]uintptr, limit+16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var recorded []SourceLocation
	for len(recorded) < limit {
		f, more := frames.Next()
		if f.Function != "" && !hiddenFrame(f.Function) {
			if len(recorded) == 0 && boundaryFrame(f.Function) {
				return md
			}
			recorded = append(recorded, SourceLocation{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	md.Frames = recorded
	return md
}

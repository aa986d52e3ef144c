package trace

import (
	"fmt"
	"strings"
)

// Level controls how much is traced. Each level includes the ones below it.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // crash dumps only
	LevelPhase        // driver and pass boundaries
	LevelDetail       // per-graph events
	LevelDebug        // every node
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a flag value to a Level. The empty string is off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for l, name := range levelNames {
		if name == s {
			return Level(l), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|phase|detail|debug)", s)
}

// maxScope is the finest scope each level records; zero records nothing.
var maxScope = [...]Scope{LevelPhase: ScopePass, LevelDetail: ScopeGraph, LevelDebug: ScopeNode}

// ShouldEmit reports whether events of scope are recorded at this level.
// Error-level tracing only goes through crash dumps.
func (l Level) ShouldEmit(scope Scope) bool {
	return int(l) < len(maxScope) && scope <= maxScope[l]
}

package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota // no tracing
	LevelError               // only point events flagged as errors
	LevelPhase               // driver + pass boundaries
	LevelDetail              // per probe / function
	LevelDebug               // everything including statement-level events
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a flag value into a Level.
func ParseLevel(s string) (Level, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == want {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// Scope indicates the granularity of an event; lower is coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // whole translation
	ScopePass                    // number, analyze, emit
	ScopeUnit                    // one probe or function
	ScopeNode                    // one statement
)

var scopeNames = [...]string{ScopeDriver: "driver", ScopePass: "pass", ScopeUnit: "unit", ScopeNode: "node"}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// finest is the finest scope each level lets through.
var finest = [...]Scope{LevelPhase: ScopePass, LevelDetail: ScopeUnit, LevelDebug: ScopeNode}

// ShouldEmit returns true if events of scope pass at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	if int(l) >= len(finest) {
		return true
	}
	return finest[l] != 0 && scope <= finest[l]
}

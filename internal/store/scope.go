package store

import (
	"fmt"
	"strings"
)

type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeLocation
	ScopeSceneWindow
)

// Scope is a parsed world-rule active_scope: "global", "location:<name>",
// or "scenes:<from>-<to>".
type Scope struct {
	Kind     ScopeKind
	Location string
	From     int
	To       int
}

func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "global" {
		return Scope{Kind: ScopeGlobal}, nil
	}
	if name, ok := strings.CutPrefix(raw, "location:"); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return Scope{}, fmt.Errorf("location scope requires a name")
		}
		return Scope{Kind: ScopeLocation, Location: name}, nil
	}
	if window, ok := strings.CutPrefix(raw, "scenes:"); ok {
		var from, to int
		if _, err := fmt.Sscanf(window, "%d-%d", &from, &to); err != nil {
			return Scope{}, fmt.Errorf("invalid scene window %q", window)
		}
		if from < 1 || to < from {
			return Scope{}, fmt.Errorf("invalid scene window %q", window)
		}
		return Scope{Kind: ScopeSceneWindow, From: from, To: to}, nil
	}
	return Scope{}, fmt.Errorf("unknown active_scope: %s", raw)
}

// Covers reports whether a rule applies to a scene at the given location
// and sequence index.
func (s Scope) Covers(location string, sequenceIndex int) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeLocation:
		return strings.EqualFold(s.Location, strings.TrimSpace(location))
	case ScopeSceneWindow:
		return sequenceIndex >= s.From && sequenceIndex <= s.To
	default:
		return false
	}
}

// RuleInScope parses the rule's scope and evaluates coverage. Unparseable
// scopes are treated as out of scope rather than failing the read path.
func RuleInScope(rule WorldRule, location string, sequenceIndex int) bool {
	scope, err := ParseScope(rule.ActiveScope)
	if err != nil {
		return false
	}
	return rule.Active && scope.Covers(location, sequenceIndex)
}

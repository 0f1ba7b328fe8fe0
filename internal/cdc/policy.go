package cdc

import (
	"fmt"
	"strings"
)

// Policy decides which mutation kinds produce a notification.
type Policy struct {
	notify map[MutationKind]bool
}

// DefaultPolicy notifies CREATE, DELETE and UNKNOWN and suppresses UPDATE.
func DefaultPolicy() Policy {
	return NewPolicy(MutationCreate, MutationDelete, MutationUnknown)
}

// NewPolicy notifies exactly the given kinds.
func NewPolicy(kinds ...MutationKind) Policy {
	notify := make(map[MutationKind]bool, len(kinds))
	for _, kind := range kinds {
		notify[kind] = true
	}
	return Policy{notify: notify}
}

// PolicyFromActions builds a policy from configured action names.
func PolicyFromActions(actions []string) (Policy, error) {
	kinds := make([]MutationKind, 0, len(actions))
	for _, action := range actions {
		kind, ok := ParseMutationKind(strings.ToUpper(strings.TrimSpace(action)))
		if !ok {
			return Policy{}, fmt.Errorf("unsupported notify action %q", action)
		}
		kinds = append(kinds, kind)
	}
	return NewPolicy(kinds...), nil
}

// Notifies reports whether kind produces a notification.
func (p Policy) Notifies(kind MutationKind) bool {
	return p.notify[kind]
}

// Kinds returns the notifying kinds in canonical order.
func (p Policy) Kinds() []MutationKind {
	out := make([]MutationKind, 0, len(p.notify))
	for _, kind := range MutationKinds {
		if p.notify[kind] {
			out = append(out, kind)
		}
	}
	return out
}

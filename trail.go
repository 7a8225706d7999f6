package postmortem

import (
	"slices"
	"sync"
)

// maxTrailScopes bounds the number of scopes remembered by a trail.
const maxTrailScopes = 256

// trail remembers the scopes entered while a guard is active.
// Scopes are also recorded on the trails of enclosing guards.
type trail struct {
	parent *trail

	mu     sync.Mutex
	scopes []*Scope
}

func newTrail(parent *trail) *trail {
	return &trail{parent: parent}
}

func (t *trail) record(s *Scope) {
	for each := t; each != nil; each = each.parent {
		each.mu.Lock()
		if len(each.scopes) == maxTrailScopes {
			// drop oldest
			copy(each.scopes, each.scopes[1:])
			each.scopes = each.scopes[:maxTrailScopes-1]
		}
		each.scopes = append(each.scopes, s)
		each.mu.Unlock()
	}
}

// scopesDo calls f for each recorded scope, newest first, until f returns false.
func (t *trail) scopesDo(f func(s *Scope) bool) {
	t.mu.Lock()
	scopes := make([]*Scope, len(t.scopes))
	copy(scopes, t.scopes)
	t.mu.Unlock()
	for i := len(scopes) - 1; i >= 0; i-- {
		if !f(scopes[i]) {
			return
		}
	}
}

// find returns the newest scope for which match holds.
func (t *trail) find(match func(s *Scope) bool) (found *Scope) {
	t.scopesDo(func(s *Scope) bool {
		if match(s) {
			found = s
			return false
		}
		return true
	})
	return
}

// encloses reports whether other is t or nested in t.
func (t *trail) encloses(other *trail) bool {
	for each := other; each != nil; each = each.parent {
		if each == t {
			return true
		}
	}
	return false
}

// synthesize returns frames, oldest first, for the chain of the newest scope
// that was entered under t. It is used when a failure carries no stack.
func (t *trail) synthesize() []Frame {
	newest := t.find(func(*Scope) bool { return true })
	var frames []Frame
	for s := newest; s != nil && t.encloses(s.trail); s = s.parent {
		frames = append(frames, s.frame())
	}
	slices.Reverse(frames)
	return frames
}

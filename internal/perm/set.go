package perm

import (
	"errors"
	"fmt"
	"sort"
)

// Set is an unordered collection of permissions.
type Set map[Permission]struct{}

// NewSet builds a set from perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Union merges every list into one set. The result does not depend on the
// order of lists or of the tokens inside them.
func Union(lists ...[]Permission) Set {
	s := make(Set)
	for _, list := range lists {
		for _, p := range list {
			s[p] = struct{}{}
		}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasPermissions reports whether effective contains at least one of required.
// Call sites pass an any-of group, conventionally including Host and Debug.
// An empty required list never matches.
func HasPermissions(effective Set, required []Permission) bool {
	for _, p := range required {
		if effective.Has(p) {
			return true
		}
	}
	return false
}

var (
	ErrGrantHost  = errors.New("the host permission can't be given to a role")
	ErrGrantDebug = errors.New("only staff members with the debug permission can grant it")
)

// CanGrant checks whether an actor holding actor may add or remove tokens on a
// role. Host is reserved for the tournament's host role. Debug needs debug.
// Everything else needs host, debug or the token itself.
func CanGrant(actor Set, tokens []Permission) error {
	privileged := actor.Has(Host) || actor.Has(Debug)
	for _, p := range tokens {
		switch {
		case p == Host:
			return ErrGrantHost
		case p == Debug && !actor.Has(Debug):
			return ErrGrantDebug
		case !privileged && !actor.Has(p):
			return fmt.Errorf("you can't grant or revoke the %s permission without having it", p)
		}
	}
	return nil
}

// Diff returns the tokens added and removed when going from before to after.
func Diff(before, after []Permission) (added, removed []Permission) {
	b, a := NewSet(before...), NewSet(after...)
	for _, p := range after {
		if !b.Has(p) {
			added = append(added, p)
		}
	}
	for _, p := range before {
		if !a.Has(p) {
			removed = append(removed, p)
		}
	}
	return added, removed
}

// Package scopes defines the closed set of capabilities embedded content may
// request and the containment rules every token derivation must obey.
package scopes

import (
	"sort"
	"strings"
)

// Scope is a single capability from the closed enumeration.
type Scope string

const (
	ProgressRead  Scope = "progress.read"
	ProgressWrite Scope = "progress.write"
	AttemptsRead  Scope = "attempts.read"
	AttemptsWrite Scope = "attempts.write"
	FilesRead     Scope = "files.read"
	FilesWrite    Scope = "files.write"
)

// All lists every known scope in canonical order.
var All = []Scope{ProgressRead, ProgressWrite, AttemptsRead, AttemptsWrite, FilesRead, FilesWrite}

var known = map[Scope]struct{}{
	ProgressRead:  {},
	ProgressWrite: {},
	AttemptsRead:  {},
	AttemptsWrite: {},
	FilesRead:     {},
	FilesWrite:    {},
}

// IsValid returns true if s belongs to the closed enumeration.
func (s Scope) IsValid() bool {
	_, ok := known[s]
	return ok
}

// Set is an ordered, deduplicated collection of scopes. The zero value is an
// empty set.
type Set []Scope

// New builds a Set from the given scopes, dropping unknown values and
// duplicates and sorting the result into canonical order.
func New(ss ...Scope) Set {
	seen := make(map[Scope]struct{}, len(ss))
	out := make(Set, 0, len(ss))
	for _, s := range ss {
		if !s.IsValid() {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse builds a Set from a space-separated scope string, dropping unknown
// values.
func Parse(raw string) Set {
	fields := strings.Fields(raw)
	ss := make([]Scope, 0, len(fields))
	for _, f := range fields {
		ss = append(ss, Scope(f))
	}
	return New(ss...)
}

// FromStrings builds a Set from a string slice, dropping unknown values.
func FromStrings(raw []string) Set {
	ss := make([]Scope, 0, len(raw))
	for _, r := range raw {
		ss = append(ss, Scope(r))
	}
	return New(ss...)
}

// Strings returns the set as a plain string slice for serialization.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, sc := range s {
		out[i] = string(sc)
	}
	return out
}

// String renders the set as a space-separated scope string.
func (s Set) String() string {
	return strings.Join(s.Strings(), " ")
}

// Contains reports whether the set grants the required scope.
func (s Set) Contains(required Scope) bool {
	for _, sc := range s {
		if sc == required {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every scope in s is also present in other.
func (s Set) SubsetOf(other Set) bool {
	for _, sc := range s {
		if !other.Contains(sc) {
			return false
		}
	}
	return true
}

// Intersect returns the scopes present in both sets. Token derivation always
// narrows through Intersect so a child token can never widen its parent's
// grant.
func (s Set) Intersect(other Set) Set {
	out := make([]Scope, 0, len(s))
	for _, sc := range s {
		if other.Contains(sc) {
			out = append(out, sc)
		}
	}
	return New(out...)
}

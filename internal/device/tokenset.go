package device

import "strings"

// TokenSet is an insertion-ordered set of strings. The zero value is ready to
// use. Entries can be added but never removed.
type TokenSet struct {
	order []string
	index map[string]struct{}
}

// NewTokenSet builds a set from values, dropping blanks and duplicates while
// preserving first-seen order.
func NewTokenSet(values ...string) TokenSet {
	var s TokenSet
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts value and reports whether it was new.
func (s *TokenSet) Add(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[value]; ok {
		return false
	}
	s.index[value] = struct{}{}
	s.order = append(s.order, value)
	return true
}

// Has reports membership.
func (s TokenSet) Has(value string) bool {
	_, ok := s.index[strings.TrimSpace(value)]
	return ok
}

// Len returns the number of entries.
func (s TokenSet) Len() int {
	return len(s.order)
}

// Values returns a copy of the entries in insertion order.
func (s TokenSet) Values() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clone returns an independent copy.
func (s TokenSet) Clone() TokenSet {
	return NewTokenSet(s.order...)
}

// ContainsAll reports whether every entry of other is present in s.
func (s TokenSet) ContainsAll(other TokenSet) bool {
	for _, v := range other.order {
		if !s.Has(v) {
			return false
		}
	}
	return true
}

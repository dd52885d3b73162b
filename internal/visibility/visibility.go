// Package visibility tracks which layers a map session renders.
package visibility

import (
	"sort"

	"github.com/joeblew999/plat-campus/internal/registry"
)

// Set is the set of visible layer names. Every member is a registered
// layer, and base layers are members for the whole life of the set.
// Floor layers change only through Show and Hide, which the floor-plan
// session drives.
// A Set is not safe for concurrent use; the owning session serialises
// access.
type Set struct {
	reg     *registry.Registry
	members map[string]struct{}
}

// New returns the initial set: every base layer plus the default-visible
// layers.
func New(reg *registry.Registry) *Set {
	s := &Set{reg: reg, members: make(map[string]struct{})}
	for _, name := range reg.InitialVisible() {
		s.members[name] = struct{}{}
	}
	return s
}

// Toggle flips a layer's membership and reports whether anything changed.
// Unknown, base and floor layers are left untouched.
func (s *Set) Toggle(name string) bool {
	l, ok := s.reg.Layer(name)
	if !ok || l.IsBase() || l.Group == registry.GroupFloor {
		return false
	}
	if _, on := s.members[name]; on {
		delete(s.members, name)
	} else {
		s.members[name] = struct{}{}
	}
	return true
}

// ToggleAll hides every bulk-toggle layer when all of them are visible,
// otherwise shows all of them. It returns the resulting visibility of the
// allowlist.
func (s *Set) ToggleAll() bool {
	list := s.reg.ToggleAllLayers()
	allVisible := true
	for _, name := range list {
		if !s.Has(name) {
			allVisible = false
			break
		}
	}
	for _, name := range list {
		if allVisible {
			s.Hide(name)
		} else {
			s.Show(name)
		}
	}
	return !allVisible
}

// Show adds a registered layer. Unknown names are ignored.
func (s *Set) Show(name string) bool {
	if !s.reg.Has(name) {
		return false
	}
	if _, on := s.members[name]; on {
		return false
	}
	s.members[name] = struct{}{}
	return true
}

// Hide removes a non-base layer.
func (s *Set) Hide(name string) bool {
	l, ok := s.reg.Layer(name)
	if !ok || l.IsBase() {
		return false
	}
	if _, on := s.members[name]; !on {
		return false
	}
	delete(s.members, name)
	return true
}

// Has reports whether a layer is visible.
func (s *Set) Has(name string) bool {
	_, ok := s.members[name]
	return ok
}

// Names returns the visible layers sorted by name.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.members))
	for name := range s.members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of visible layers.
func (s *Set) Len() int { return len(s.members) }

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := &Set{reg: s.reg, members: make(map[string]struct{}, len(s.members))}
	for name := range s.members {
		c.members[name] = struct{}{}
	}
	return c
}

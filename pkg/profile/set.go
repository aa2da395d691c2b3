package profile

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("profile not found")

// Set is the ordered list of profiles a store holds.
type Set struct {
	Profiles []*Profile `yaml:"profiles" json:"profiles" bson:"profiles"`
}

func NewSet(profiles ...*Profile) *Set {
	return &Set{Profiles: profiles}
}

func (s *Set) Len() int { return len(s.Profiles) }

// Append adds p and returns its index.
func (s *Set) Append(p *Profile) int {
	s.Profiles = append(s.Profiles, p)
	return len(s.Profiles) - 1
}

// Remove deletes the profile at index; out of range indexes are ignored.
func (s *Set) Remove(index int) {
	if index < 0 || index >= len(s.Profiles) {
		return
	}
	s.Profiles = append(s.Profiles[:index], s.Profiles[index+1:]...)
}

// Get returns the profile at index, or nil.
func (s *Set) Get(index int) *Profile {
	if index < 0 || index >= len(s.Profiles) {
		return nil
	}
	return s.Profiles[index]
}

// Find returns the first profile called name.
func (s *Set) Find(name string) (*Profile, error) {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (s *Set) Names() []string {
	names := make([]string, len(s.Profiles))
	for i, p := range s.Profiles {
		names[i] = p.Name
	}
	return names
}

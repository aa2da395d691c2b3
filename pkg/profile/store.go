package profile

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/andrej220/synctity/pkg/config"
	"github.com/andrej220/synctity/pkg/config/mongostore"
)

// Store loads and saves a Set through a config backend.
type Store struct {
	backend config.Config
}

func NewStore(backend config.Config) *Store {
	return &Store{backend: backend}
}

// Load reads and validates the profile set. A backend with nothing stored
// yet yields an empty set.
func (s *Store) Load() (*Set, error) {
	set := &Set{}
	if err := s.backend.Load(set); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, mongostore.ErrNotFound) {
			return &Set{}, nil
		}
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if err := ValidateSet(set); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return set, nil
}

// Save validates set and writes it to the backend.
func (s *Store) Save(set *Set) error {
	if set == nil {
		return fmt.Errorf("save profiles: nil set")
	}
	if err := ValidateSet(set); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	if err := s.backend.Save(set); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}

// Watch reloads the set whenever the backend reports a change.
func (s *Store) Watch(onChange func(*Set, error)) error {
	return s.backend.Watch(func() {
		onChange(s.Load())
	})
}

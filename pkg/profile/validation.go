package profile

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	if err := validate.RegisterValidation("profilename", validateProfileName); err != nil {
		panic(err)
	}
}

// validateProfileName rejects names with surrounding whitespace or line
// breaks; they are looked up verbatim by the CLI and the HTTP API.
func validateProfileName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.TrimSpace(name) != name {
		return false
	}
	return !strings.ContainsAny(name, "\r\n")
}

func ValidateProfile(p *Profile) error {
	if p == nil {
		return fmt.Errorf("nil profile")
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return nil
}

// ValidateSet validates every profile and requires unique names.
func ValidateSet(s *Set) error {
	seen := make(map[string]bool, len(s.Profiles))
	for i, p := range s.Profiles {
		if err := ValidateProfile(p); err != nil {
			return fmt.Errorf("profile #%d: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

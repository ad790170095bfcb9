package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/giantswarm/tokenkit/internal/flow"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 1 {
		return ve[0].Error()
	}
	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) {
	*ve = append(*ve, ValidationError{Field: field, Value: value, Message: message})
}

// ProfileNotFoundError is returned for an unknown profile name.
type ProfileNotFoundError struct {
	Name string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found", e.Name)
}

// Validate checks versions, auth types and profile references.
func Validate(c Config) error {
	var errs ValidationErrors

	validateVersion(&errs, "version", c.Version)
	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			errs.Add("defaultProfile", "references an undefined profile", c.DefaultProfile)
		}
	}

	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.Profiles[name]
		prefix := "profiles." + name + "."
		validateVersion(&errs, prefix+"version", p.Version)
		if p.AuthType != "" {
			if _, err := flow.ParseAuthType(p.AuthType); err != nil {
				errs.Add(prefix+"authType", "is not a known auth type", p.AuthType)
			}
		}
		if p.Resource != "" && len(p.Scopes) > 0 {
			errs.Add(prefix+"scopes", "cannot be combined with resource", p.Scopes)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateVersion(errs *ValidationErrors, field string, v int) {
	if v != 0 && v != 1 && v != 2 {
		errs.Add(field, "must be 1 or 2", v)
	}
}

// Package scope validates v2 scopes and v1 resources before they reach the
// identity provider.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

// DefaultSuffix is appended to a resource URI given without a permission.
const DefaultSuffix = "/.default"

var (
	// openIDScopes pass through unchanged.
	openIDScopes = map[string]bool{
		"openid":         true,
		"email":          true,
		"profile":        true,
		"offline_access": true,
	}
	// unsupportedScopes are OpenID Connect scopes the provider rejects.
	unsupportedScopes = map[string]bool{
		"address": true,
		"phone":   true,
	}

	guidPattern = regexp.MustCompile(`^(?i)(?:[0-9a-f]{32}|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

// IsGUID reports whether s is a 32 digit hex GUID, with or without dashes.
func IsGUID(s string) bool {
	return guidPattern.MatchString(s)
}

// Normalize validates a single v2 scope. A resource URI without a path is
// rewritten to its .default scope; the returned warning describes the rewrite.
func Normalize(s string) (normalized string, warning string, err error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", "", fmt.Errorf("%w: empty scope", autherr.ErrInvalidScope)
	case openIDScopes[s]:
		return s, "", nil
	case unsupportedScopes[s]:
		return "", "", fmt.Errorf("%w: %q is not supported by the identity provider", autherr.ErrInvalidScope, s)
	}

	if strings.Contains(s, "://") {
		u, perr := url.Parse(s)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			return "", "", fmt.Errorf("%w: %q is not a valid URI", autherr.ErrInvalidScope, s)
		}
		if u.Path == "" || u.Path == "/" {
			fixed := strings.TrimRight(s, "/") + DefaultSuffix
			return fixed, fmt.Sprintf("scope %q has no permission, using %q", s, fixed), nil
		}
		return s, "", nil
	}

	head, rest, hasPath := strings.Cut(s, "/")
	if IsGUID(head) {
		if !hasPath || rest == "" {
			return "", "", fmt.Errorf("%w: GUID scope %q must include a permission path", autherr.ErrInvalidScope, s)
		}
		return s, "", nil
	}

	return "", "", fmt.Errorf("%w: %q must be a URI with a scheme or a GUID with a path", autherr.ErrInvalidScope, s)
}

// NormalizeAll normalizes every scope, dropping duplicates while keeping the
// first-seen order. Warnings for rewritten scopes are returned alongside.
func NormalizeAll(scopes []string) ([]string, []string, error) {
	if len(scopes) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one scope is required", autherr.ErrInvalidScope)
	}

	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	var warnings []string
	for _, raw := range scopes {
		n, warn, err := Normalize(raw)
		if err != nil {
			return nil, nil, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, warnings, nil
}

// Split parses a space or comma separated scope list.
func Split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
}

// ValidateResource checks a v1 resource: a single URI or GUID.
func ValidateResource(resource string) error {
	if resource == "" {
		return fmt.Errorf("%w: resource is required", autherr.ErrInvalidScope)
	}
	if strings.ContainsAny(resource, " \t\r\n") {
		return fmt.Errorf("%w: resource %q must be a single URI or GUID", autherr.ErrInvalidScope, resource)
	}
	return nil
}

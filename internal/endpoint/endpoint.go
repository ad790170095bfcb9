// Package endpoint composes identity provider URIs.
package endpoint

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

// Type is the kind of provider endpoint.
type Type string

const (
	Authorize  Type = "authorize"
	Token      Type = "token"
	DeviceCode Type = "devicecode"
)

// DefaultHost is the public cloud authority host.
const DefaultHost = "https://login.microsoftonline.com/"

// OAuthPath returns the protocol path segment for version 1 or 2.
func OAuthPath(version int) string {
	if version == 1 {
		return "oauth2"
	}
	return "oauth2/v2.0"
}

// Build returns the URI of endpoint t for the given authority host, tenant and
// protocol version. A host that already carries a path (a B2C or custom
// authority) gets the endpoint appended to that path instead.
func Build(host, tenant string, version int, t Type) (string, error) {
	if version != 1 && version != 2 {
		return "", fmt.Errorf("%w: unsupported protocol version %d", autherr.ErrInvalidEndpoint, version)
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("%w: invalid host %q: %v", autherr.ErrInvalidEndpoint, host, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: host %q must be an absolute URL", autherr.ErrInvalidEndpoint, host)
	}

	existing := strings.Trim(u.Path, "/")
	if existing != "" {
		u.Path = "/" + path.Join(existing, string(t))
	} else {
		if tenant == "" {
			return "", fmt.Errorf("%w: tenant is required", autherr.ErrInvalidEndpoint)
		}
		u.Path = "/" + path.Join(tenant, OAuthPath(version), string(t))
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Validate checks that uri is an absolute URL whose last path segment is t.
func Validate(uri string, t Type) error {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", autherr.ErrInvalidEndpoint, uri)
	}
	if tail := path.Base(strings.TrimRight(u.Path, "/")); tail != string(t) {
		return fmt.Errorf("%w: %q is not a %s endpoint", autherr.ErrInvalidEndpoint, uri, t)
	}
	return nil
}

// Set is a complete set of endpoints for one authority.
type Set struct {
	Authorize  string `json:"authorize,omitempty" yaml:"authorize,omitempty"`
	Token      string `json:"token" yaml:"token"`
	DeviceCode string `json:"devicecode,omitempty" yaml:"devicecode,omitempty"`
}

// Resolve builds the endpoint set for an authority.
func Resolve(host, tenant string, version int) (*Set, error) {
	var s Set
	var err error
	if s.Authorize, err = Build(host, tenant, version, Authorize); err != nil {
		return nil, err
	}
	if s.Token, err = Build(host, tenant, version, Token); err != nil {
		return nil, err
	}
	if s.DeviceCode, err = Build(host, tenant, version, DeviceCode); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks an externally supplied set. The token endpoint is required;
// the others are checked when present.
func (s *Set) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: endpoint set is nil", autherr.ErrInvalidEndpoint)
	}
	if err := Validate(s.Token, Token); err != nil {
		return err
	}
	if s.Authorize != "" {
		if err := Validate(s.Authorize, Authorize); err != nil {
			return err
		}
	}
	if s.DeviceCode != "" {
		if err := Validate(s.DeviceCode, DeviceCode); err != nil {
			return err
		}
	}
	return nil
}

// Package credential holds the credential set returned by the identity provider.
package credential

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/tokenkit/internal/expiry"
)

// Set is the provider-issued part of a token: the access token, the optional
// refresh and ID tokens and the resolved expiry.
type Set struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`

	// ExpirySource records how Expiry was resolved.
	ExpirySource expiry.Source `json:"expiry_source,omitempty"`

	// Extra holds the remaining provider fields (scope, resource, ext_expires_in, ...)
	// as strings.
	Extra map[string]string `json:"extra,omitempty"`
}

// knownFields are lifted into Set attributes and excluded from Extra.
var knownFields = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"token_type":    true,
	"expires_in":    true,
	"expires_on":    true,
}

// FromResponse builds a Set from a decoded provider response requested at
// requestedAt, resolving the expiry through the expiry package.
func FromResponse(fields map[string]any, requestedAt time.Time) (*Set, error) {
	access, _ := fields["access_token"].(string)
	if access == "" {
		return nil, fmt.Errorf("provider response does not contain an access token")
	}

	resolved := expiry.Resolve(fields, requestedAt)

	set := &Set{
		AccessToken:  access,
		RefreshToken: stringField(fields, "refresh_token"),
		IDToken:      stringField(fields, "id_token"),
		TokenType:    stringField(fields, "token_type"),
		Expiry:       resolved.Expiry,
		ExpirySource: resolved.Source,
	}
	if set.TokenType == "" {
		set.TokenType = "Bearer"
	}

	for k, v := range fields {
		if knownFields[k] || v == nil {
			continue
		}
		if set.Extra == nil {
			set.Extra = make(map[string]string)
		}
		set.Extra[k] = stringify(v)
	}

	return set, nil
}

// Merge carries over the refresh and ID tokens of prev when s, typically the
// result of a refresh, does not include new ones.
func (s *Set) Merge(prev *Set) {
	if prev == nil {
		return
	}
	if s.RefreshToken == "" {
		s.RefreshToken = prev.RefreshToken
	}
	if s.IDToken == "" {
		s.IDToken = prev.IDToken
	}
}

// Clone returns a detached copy.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	c := *s
	c.Extra = maps.Clone(s.Extra)
	return &c
}

// Valid reports whether the access token is usable at now. A zero expiry is
// treated as valid.
func (s *Set) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.Expiry.IsZero() {
		return true
	}
	return now.Before(s.Expiry)
}

// OAuth2 converts the set to an oauth2.Token. The ID token and extras are
// available through Token.Extra.
func (s *Set) OAuth2() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}

	extra := make(map[string]interface{}, len(s.Extra)+1)
	for k, v := range s.Extra {
		extra[k] = v
	}
	if s.IDToken != "" {
		extra["id_token"] = s.IDToken
	}
	if len(extra) > 0 {
		token = token.WithExtra(extra)
	}
	return token
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(string(data))
	}
}

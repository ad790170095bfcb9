// Package fingerprint derives the cache key of a token request.
package fingerprint

import (
	"crypto/md5" // #nosec G501 -- used as a cache key, not for integrity
	"encoding/hex"
	"encoding/json"
	"strings"
)

// ClientIdentity identifies the client and, where relevant, the user on whose
// behalf a token is requested. Secrets are deliberately not part of it.
type ClientIdentity struct {
	ClientID              string `json:"client_id"`
	Username              string `json:"username,omitempty"`
	CertificateThumbprint string `json:"cert_thumbprint,omitempty"`
	// CredentialKind is "secret", "certificate", "assertion" or empty.
	CredentialKind string `json:"credential_kind,omitempty"`
	// Assertion names the user behind an on-behalf-of input token, never the
	// token itself.
	Assertion string `json:"assertion,omitempty"`
}

// Inputs is the full set of request-defining values.
type Inputs struct {
	Version       int               `json:"version"`
	Host          string            `json:"host"`
	Tenant        string            `json:"tenant"`
	AuthType      string            `json:"auth_type"`
	Client        ClientIdentity    `json:"client"`
	Resource      string            `json:"resource,omitempty"`
	Scopes        []string          `json:"scopes,omitempty"`
	AuthorizeArgs map[string]string `json:"authorize_args,omitempty"`
	TokenArgs     map[string]string `json:"token_args,omitempty"`
}

// Hash returns the lowercase hex MD5 digest of the canonical encoding of in.
// Equal inputs give equal hashes across processes; host and tenant are
// compared case-insensitively.
func Hash(in Inputs) string {
	in.Host = strings.ToLower(strings.TrimRight(in.Host, "/"))
	in.Tenant = strings.ToLower(in.Tenant)

	// encoding/json emits struct fields in declaration order and map keys sorted,
	// which makes the encoding canonical.
	data, err := json.Marshal(in)
	if err != nil {
		// Inputs holds only strings, ints and string maps.
		panic("fingerprint: unexpected encoding failure: " + err.Error())
	}

	sum := md5.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// IsHash reports whether s has the shape of a value returned by Hash.
func IsHash(s string) bool {
	if len(s) != md5.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Package flow implements the OAuth 2.0 grant types used to acquire tokens.
//
// Every grant is a Flow variant: it takes the common Request and returns the
// raw provider Response, which the caller hands to the expiry resolver. The
// set of variants is closed; New returns the one for an AuthType.
package flow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/giantswarm/tokenkit/internal/assertion"
	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/internal/endpoint"
)

// AuthType names a grant type.
type AuthType string

const (
	AuthorizationCode AuthType = "authorization_code"
	DeviceCode        AuthType = "device_code"
	ClientCredentials AuthType = "client_credentials"
	ResourceOwner     AuthType = "resource_owner"
	OnBehalfOf        AuthType = "on_behalf_of"
	Managed           AuthType = "managed"
	CLI               AuthType = "cli"
)

// AuthTypes lists every known grant type.
var AuthTypes = []AuthType{
	AuthorizationCode,
	DeviceCode,
	ClientCredentials,
	ResourceOwner,
	OnBehalfOf,
	Managed,
	CLI,
}

// ParseAuthType validates an auth type name.
func ParseAuthType(s string) (AuthType, error) {
	for _, t := range AuthTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", autherr.ErrInvalidAuthType, s)
}

// DeviceSession is a device authorization in progress.
type DeviceSession struct {
	UserCode        string `json:"user_code"`
	DeviceCode      string `json:"device_code"`
	VerificationURI string `json:"verification_uri"`
	// Interval and ExpiresIn are in seconds.
	Interval  int    `json:"interval"`
	ExpiresIn int    `json:"expires_in"`
	Message   string `json:"message,omitempty"`
}

// Request carries everything a flow may need. Fields a flow does not use are
// ignored.
type Request struct {
	Version   int
	Tenant    string
	Endpoints *endpoint.Set

	ClientID string
	// Password is the client secret for confidential client grants and the
	// user's password for the resource owner grant.
	Password string
	Username string
	Signer   assertion.Signer
	// AssertionOptions tunes client assertions; ClientID and Audience are filled in.
	AssertionOptions assertion.Options

	// Resource is the v1 target, Scopes the v2 one.
	Resource string
	Scopes   []string

	AuthorizeArgs map[string]string
	TokenArgs     map[string]string

	// AuthCode and DeviceSession are one-time materials supplied by an
	// embedding application.
	AuthCode      string
	DeviceSession *DeviceSession
	// OnBehalfOf is the raw access token exchanged by the on-behalf-of grant.
	OnBehalfOf string

	RedirectURI     string
	DisableListener bool

	HTTPClient  *http.Client
	Out         io.Writer
	Now         func() time.Time
	Sleep       Sleeper
	Runner      CommandRunner
	OpenBrowser func(string) error
	Getenv      func(string) string
}

// Response is the decoded body of a successful provider response.
type Response struct {
	Fields      map[string]any
	RequestedAt time.Time
}

// Flow acquires a token with one grant type.
type Flow interface {
	Type() AuthType
	Acquire(ctx context.Context, req *Request) (*Response, error)
}

// ClientAuthenticator is implemented by flows that authenticate the client
// with a secret or an assertion. The refresh grant reuses it.
type ClientAuthenticator interface {
	ClientAuth(ctx context.Context, req *Request) (url.Values, error)
}

// New returns the flow for t.
func New(t AuthType) (Flow, error) {
	switch t {
	case AuthorizationCode:
		return authorizationCodeFlow{}, nil
	case DeviceCode:
		return deviceCodeFlow{}, nil
	case ClientCredentials:
		return clientCredentialsFlow{}, nil
	case ResourceOwner:
		return resourceOwnerFlow{}, nil
	case OnBehalfOf:
		return onBehalfOfFlow{}, nil
	case Managed:
		return managedFlow{}, nil
	case CLI:
		return cliFlow{}, nil
	}
	return nil, fmt.Errorf("%w: %q", autherr.ErrInvalidAuthType, t)
}

func (r *Request) out() io.Writer {
	if r.Out == nil {
		return os.Stderr
	}
	return r.Out
}

func (r *Request) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Request) httpClient() *http.Client {
	if r.HTTPClient == nil {
		return http.DefaultClient
	}
	return r.HTTPClient
}

func (r *Request) getenv(key string) string {
	if r.Getenv == nil {
		return os.Getenv(key)
	}
	return r.Getenv(key)
}

func (r *Request) sleeper() Sleeper {
	if r.Sleep == nil {
		return Sleep
	}
	return r.Sleep
}

func (r *Request) tokenEndpoint() (string, error) {
	if r.Endpoints == nil || r.Endpoints.Token == "" {
		return "", fmt.Errorf("%w: token endpoint is not configured", autherr.ErrInvalidEndpoint)
	}
	return r.Endpoints.Token, nil
}

// setTarget adds the resource (v1) or scope (v2) parameter.
func (r *Request) setTarget(form url.Values) {
	if r.Version == 1 {
		form.Set("resource", r.Resource)
		return
	}
	form.Set("scope", strings.Join(r.Scopes, " "))
}

func setArgs(form url.Values, args map[string]string) {
	for k, v := range args {
		form.Set(k, v)
	}
}

package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/tokenkit/internal/assertion"
	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/internal/cache"
	"github.com/giantswarm/tokenkit/internal/endpoint"
	"github.com/giantswarm/tokenkit/internal/fingerprint"
	"github.com/giantswarm/tokenkit/internal/flow"
	"github.com/giantswarm/tokenkit/internal/scope"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// Defaults applied by Get.
const (
	DefaultVersion = 2
	DefaultTenant  = "common"
	DefaultHost    = endpoint.DefaultHost
	// DefaultApp is the public client ID of the Azure CLI, usable for
	// interactive flows against any tenant.
	DefaultApp = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"
)

type (
	// AuthType names a grant type.
	AuthType = flow.AuthType
	// Signer produces certificate signatures for client assertions.
	Signer = assertion.Signer
	// AssertionOptions tunes client assertions.
	AssertionOptions = assertion.Options
	// DeviceSession is a device authorization started by the caller.
	DeviceSession = flow.DeviceSession
	// Sleeper waits between device code polls.
	Sleeper = flow.Sleeper
	// CommandRunner runs the external CLI.
	CommandRunner = flow.CommandRunner
	// Store is the on-disk token cache.
	Store = cache.Store
	// Endpoints overrides the derived provider endpoints.
	Endpoints = endpoint.Set
)

// Grant types.
const (
	AuthorizationCode = flow.AuthorizationCode
	DeviceCode        = flow.DeviceCode
	ClientCredentials = flow.ClientCredentials
	ResourceOwner     = flow.ResourceOwner
	OnBehalfOf        = flow.OnBehalfOf
	Managed           = flow.Managed
	CLI               = flow.CLI
)

// OpenStore opens the token cache in dir. An empty dir uses
// $TOKENKIT_CACHE_DIR, then ~/.config/tokenkit/tokens.
func OpenStore(dir string) (*Store, error) {
	return cache.New(cache.Config{Dir: dir})
}

// Options describe a token request.
type Options struct {
	// Version is the protocol version, 1 or 2.
	Version int
	Host    string
	Tenant  string

	// Resource is the v1 target. Scopes is the v2 target; a v2 request with
	// only a Resource uses it as its single scope.
	Resource string
	Scopes   []string

	// App is the client ID.
	App string
	// Password is the client secret, or the user's password when Username is set.
	Password    string
	Username    string
	Certificate Signer
	Assertion   AssertionOptions

	// AuthType forces a grant type instead of deducing it.
	AuthType string

	// OnBehalfOf is the token exchanged by the on-behalf-of grant.
	// OnBehalfOfToken is the same as a raw string.
	OnBehalfOf      *Token
	OnBehalfOfToken string

	// AuthCode and DeviceSession are one-time materials supplied by an
	// embedding application. They are never reused by Refresh.
	AuthCode      string
	DeviceSession *DeviceSession

	AuthorizeArgs map[string]string
	TokenArgs     map[string]string

	DisableCache    bool
	DisableListener bool
	RedirectURI     string
	Endpoints       *Endpoints

	// Store is the cache. Nil opens the default store when caching is enabled.
	Store *Store

	HTTPClient  *http.Client
	Out         io.Writer
	Now         func() time.Time
	Sleep       Sleeper
	Runner      CommandRunner
	OpenBrowser func(string) error
	Getenv      func(string) string
}

// resolved is a validated request the Token works from.
type resolved struct {
	Options
	authType  AuthType
	endpoints *endpoint.Set
	identity  fingerprint.ClientIdentity
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// resolve applies defaults, validates the target and selects the flow.
func (o Options) resolve() (*resolved, error) {
	if o.Version == 0 {
		o.Version = DefaultVersion
	}
	if o.Version != 1 && o.Version != 2 {
		return nil, fmt.Errorf("unsupported protocol version %d", o.Version)
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Tenant == "" {
		o.Tenant = DefaultTenant
	}
	if o.App == "" {
		o.App = DefaultApp
	}

	if err := o.resolveTarget(); err != nil {
		return nil, err
	}

	authType, err := flow.Select(flow.Hints{
		AuthType:    o.AuthType,
		Password:    o.Password != "",
		Username:    o.Username != "",
		Certificate: o.Certificate != nil,
		OnBehalfOf:  o.OnBehalfOf != nil || o.OnBehalfOfToken != "",
		Listener:    !o.DisableListener,
	})
	if err != nil {
		return nil, err
	}
	if authType == flow.DeviceCode && o.AuthType == "" {
		logging.Warn("Token", "No local listener available, falling back to device code authentication")
	}

	eps := o.Endpoints
	if eps != nil {
		if err := eps.Validate(); err != nil {
			return nil, err
		}
	} else if eps, err = endpoint.Resolve(o.Host, o.Tenant, o.Version); err != nil {
		return nil, err
	}

	return &resolved{
		Options:   o,
		authType:  authType,
		endpoints: eps,
		identity:  o.clientIdentity(),
	}, nil
}

// resolveTarget enforces that exactly one of resource and scopes is set.
func (o *Options) resolveTarget() error {
	if o.Version == 1 {
		if len(o.Scopes) > 0 {
			return fmt.Errorf("%w: v1 requests take a resource, not scopes", autherr.ErrInvalidScope)
		}
		o.Resource = strings.TrimSpace(o.Resource)
		return scope.ValidateResource(o.Resource)
	}

	scopes := o.Scopes
	if len(scopes) == 0 && o.Resource != "" {
		scopes = []string{o.Resource}
	} else if len(scopes) > 0 && o.Resource != "" {
		return fmt.Errorf("%w: set either a resource or scopes, not both", autherr.ErrInvalidScope)
	}
	normalized, warnings, err := scope.NormalizeAll(scopes)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logging.Warn("Token", "%s", w)
	}
	o.Scopes = normalized
	o.Resource = ""
	return nil
}

func (o Options) clientIdentity() fingerprint.ClientIdentity {
	id := fingerprint.ClientIdentity{ClientID: o.App, Username: o.Username}
	switch {
	case o.Certificate != nil:
		id.CredentialKind = "certificate"
		id.CertificateThumbprint = hex.EncodeToString(o.Certificate.Thumbprint())
	case o.Password != "":
		id.CredentialKind = "secret"
	}
	switch {
	case o.OnBehalfOf != nil:
		if raw := o.OnBehalfOf.AccessToken(); raw != "" {
			id.Assertion = assertionIdentity(raw)
		} else {
			id.Assertion = "token:" + o.OnBehalfOf.Hash()
		}
	case o.OnBehalfOfToken != "":
		id.Assertion = assertionIdentity(o.OnBehalfOfToken)
	}
	return id
}

// assertionIdentity names the user an on-behalf-of input token was issued
// to. JWTs are identified by their tenant and object or subject claims so a
// renewed input token maps to the same cache entry; anything else by digest.
func assertionIdentity(raw string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err == nil {
		tid, _ := claims["tid"].(string)
		user, _ := claims["oid"].(string)
		if user == "" {
			user, _ = claims.GetSubject()
		}
		if user != "" {
			return "user:" + tid + "/" + user
		}
	}
	sum := sha256.Sum256([]byte(raw))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (r *resolved) inputs() fingerprint.Inputs {
	return fingerprint.Inputs{
		Version:       r.Version,
		Host:          r.Host,
		Tenant:        r.Tenant,
		AuthType:      string(r.authType),
		Client:        r.identity,
		Resource:      r.Resource,
		Scopes:        r.Scopes,
		AuthorizeArgs: r.AuthorizeArgs,
		TokenArgs:     r.TokenArgs,
	}
}

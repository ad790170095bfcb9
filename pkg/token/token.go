// Package token acquires, caches, validates and refreshes OAuth 2.0 access
// tokens.
//
// Get is the entry point. It deduces the grant type from the supplied
// credentials, serves the token from the on-disk cache when possible and runs
// the grant otherwise:
//
//	tok, err := token.Get(ctx, token.Options{
//		Tenant:   "contoso",
//		Resource: "https://management.example.com/",
//		App:      appID,
//		Password: secret,
//	})
//	if err != nil {
//		return err
//	}
//	req.Header.Set("Authorization", "Bearer "+tok.AccessToken())
//
// Tokens are keyed by a fingerprint of the request (see Token.Hash), which
// callers may keep as a handle for Load and Delete.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/internal/cache"
	"github.com/giantswarm/tokenkit/internal/credential"
	"github.com/giantswarm/tokenkit/internal/fingerprint"
	"github.com/giantswarm/tokenkit/internal/flow"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// Token is an acquired access token together with the request that produced
// it. It is safe for concurrent use.
type Token struct {
	mu         sync.Mutex
	state      State
	req        *resolved
	flow       flow.Flow
	hash       string
	credential *credential.Set
	store      *cache.Store
	createdAt  time.Time

	group singleflight.Group
}

// Get returns a token for opts, from the cache when a record exists. An
// expired record is refreshed before Get returns.
func Get(ctx context.Context, opts Options) (*Token, error) {
	r, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	t, err := newToken(r)
	if err != nil {
		return nil, err
	}

	if t.store != nil {
		if rec, ok := t.store.Load(t.hash); ok {
			logging.Debug("Token", "Using cached token %s", t.hash)
			if err := t.fromCache(ctx, rec); err != nil {
				return nil, err
			}
			return t, nil
		}
	}

	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func newToken(r *resolved) (*Token, error) {
	f, err := flow.New(r.authType)
	if err != nil {
		return nil, err
	}
	t := &Token{
		state: Unrequested,
		req:   r,
		flow:  f,
		hash:  fingerprint.Hash(r.inputs()),
	}
	if !r.DisableCache {
		t.store = r.Store
		if t.store == nil {
			if t.store, err = OpenStore(""); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// fromCache adopts a record and refreshes it when expired.
func (t *Token) fromCache(ctx context.Context, rec *cache.Record) error {
	t.mu.Lock()
	t.credential = rec.Credential
	t.createdAt = rec.CreatedAt
	next := CachedValid
	if !t.credential.Valid(t.req.now()) {
		next = CachedExpired
	}
	err := t.setState(next)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	if next == CachedExpired {
		logging.Info("Token", "Cached token %s has expired, refreshing", t.hash)
		return t.Refresh(ctx)
	}
	return nil
}

// acquire runs the grant for a token that has never been requested.
func (t *Token) acquire(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, err := t.run(ctx, true)
	if err != nil {
		return err
	}
	t.credential = set
	t.createdAt = t.req.now()
	t.persist()
	return t.setState(Valid)
}

// run executes the flow. oneTime controls whether caller-supplied one-time
// materials (authorization code, device session) may be used.
func (t *Token) run(ctx context.Context, oneTime bool) (*credential.Set, error) {
	req, err := t.flowRequest(ctx, oneTime)
	if err != nil {
		return nil, err
	}
	logging.Info("Token", "Acquiring token with %s flow", t.flow.Type())
	resp, err := t.flow.Acquire(ctx, req)
	if err != nil {
		return nil, err
	}
	return credential.FromResponse(resp.Fields, resp.RequestedAt)
}

// Refresh renews the credential set: with the refresh grant when a refresh
// token is held, otherwise by re-running the flow. On failure the cache record
// is deleted, the token becomes Invalid and the error wraps ErrRefreshFailed.
func (t *Token) Refresh(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Invalid {
		return ErrTokenInvalid
	}
	if err := t.setState(Refreshing); err != nil {
		return err
	}

	set, err := t.renew(ctx)
	if err != nil {
		t.invalidate()
		return fmt.Errorf("%w: %w", autherr.ErrRefreshFailed, err)
	}

	set.Merge(t.credential)
	t.credential = set
	t.persist()
	return t.setState(Valid)
}

func (t *Token) renew(ctx context.Context) (*credential.Set, error) {
	if t.credential == nil || t.credential.RefreshToken == "" {
		logging.Debug("Token", "No refresh token for %s, re-running %s flow", t.hash, t.flow.Type())
		return t.run(ctx, false)
	}

	req, err := t.flowRequest(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := flow.Refresh(ctx, req, t.flow, t.credential.RefreshToken)
	if err != nil {
		return nil, err
	}
	return credential.FromResponse(resp.Fields, resp.RequestedAt)
}

func (t *Token) flowRequest(ctx context.Context, oneTime bool) (*flow.Request, error) {
	r := t.req
	req := &flow.Request{
		Version:          r.Version,
		Tenant:           r.Tenant,
		Endpoints:        r.endpoints,
		ClientID:         r.App,
		Password:         r.Password,
		Username:         r.Username,
		Signer:           r.Certificate,
		AssertionOptions: r.Assertion,
		Resource:         r.Resource,
		Scopes:           r.Scopes,
		AuthorizeArgs:    r.AuthorizeArgs,
		TokenArgs:        r.TokenArgs,
		OnBehalfOf:       r.OnBehalfOfToken,
		RedirectURI:      r.RedirectURI,
		DisableListener:  r.DisableListener,
		HTTPClient:       r.HTTPClient,
		Out:              r.Out,
		Now:              r.Now,
		Sleep:            r.Sleep,
		Runner:           r.Runner,
		OpenBrowser:      r.OpenBrowser,
		Getenv:           r.Getenv,
	}
	if oneTime {
		req.AuthCode = r.AuthCode
		req.DeviceSession = r.DeviceSession
	}

	if r.OnBehalfOf != nil && t.flow.Type() == flow.OnBehalfOf {
		if !r.OnBehalfOf.Validate() {
			if err := r.OnBehalfOf.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("failed to refresh on-behalf-of input token: %w", err)
			}
		}
		req.OnBehalfOf = r.OnBehalfOf.AccessToken()
	}
	return req, nil
}

// persist writes the snapshot. A cache failure never fails the token.
func (t *Token) persist() {
	if t.store == nil {
		return
	}
	if err := t.store.Save(t.record()); err != nil {
		logging.Warn("Token", "Token %s could not be cached: %v", t.hash, err)
	}
}

func (t *Token) record() *cache.Record {
	r := t.req
	return &cache.Record{
		Hash:          t.hash,
		Version:       r.Version,
		Host:          r.Host,
		Tenant:        r.Tenant,
		AuthType:      string(r.authType),
		Client:        r.identity,
		Resource:      r.Resource,
		Scopes:        r.Scopes,
		AuthorizeArgs: r.AuthorizeArgs,
		TokenArgs:     r.TokenArgs,
		Credential:    t.credential.Clone(),
		CreatedAt:     t.createdAt,
	}
}

// invalidate removes the cache record and marks the token Invalid.
func (t *Token) invalidate() {
	if t.store != nil {
		if err := t.store.Delete(t.hash); err != nil {
			logging.Warn("Token", "Failed to remove cache record %s: %v", t.hash, err)
		}
	}
	t.state = Invalid
}

func (t *Token) setState(to State) error {
	next, err := t.state.next(to)
	if err != nil {
		return err
	}
	logging.Debug("Token", "Token %s: %s -> %s", t.hash, t.state, next)
	t.state = next
	return nil
}

// Validate reports whether the access token has not expired. A token without
// a resolved expiry is considered valid.
func (t *Token) Validate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validLocked()
}

func (t *Token) validLocked() bool {
	if t.state == Invalid {
		return false
	}
	return t.credential.Valid(t.req.now())
}

// Delete removes the cache record and invalidates the token.
func (t *Token) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.store != nil {
		if err := t.store.Delete(t.hash); err != nil {
			return err
		}
	}
	t.state = Invalid
	return nil
}

// Hash is the fingerprint of the request, usable as a handle for Load and Delete.
func (t *Token) Hash() string { return t.hash }

// AuthType is the grant type the token was acquired with.
func (t *Token) AuthType() AuthType { return t.req.authType }

// State returns the lifecycle state.
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AccessToken returns the bearer token value.
func (t *Token) AccessToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.credential == nil {
		return ""
	}
	return t.credential.AccessToken
}

// Expiry returns the resolved expiry instant.
func (t *Token) Expiry() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.credential == nil {
		return time.Time{}
	}
	return t.credential.Expiry
}

// OAuth2 converts the credential set to an oauth2.Token.
func (t *Token) OAuth2() *oauth2.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.credential == nil {
		return nil
	}
	return t.credential.OAuth2()
}

// TokenSource returns an oauth2.TokenSource that refreshes the token when it
// has expired. Concurrent callers share a single refresh.
func (t *Token) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, token: t}
}

type tokenSource struct {
	ctx   context.Context
	token *Token
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	t := s.token
	if t.Validate() {
		return t.OAuth2(), nil
	}

	_, err, _ := t.group.Do(t.hash, func() (any, error) {
		if t.Validate() {
			return nil, nil
		}
		return nil, t.Refresh(s.ctx)
	})
	if err != nil {
		return nil, err
	}
	return t.OAuth2(), nil
}

// Load returns the cached token stored under hash. opts supplies whatever the
// original request needs to refresh (secrets, certificate, transport); its
// identity fields are taken from the record. An expired record is refreshed.
func Load(ctx context.Context, store *Store, hash string, opts Options) (*Token, error) {
	if store == nil {
		return nil, errors.New("no token store")
	}
	rec, ok := store.Load(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", autherr.ErrTokenNotFound, hash)
	}

	opts.Version = rec.Version
	opts.Host = rec.Host
	opts.Tenant = rec.Tenant
	opts.AuthType = rec.AuthType
	opts.App = rec.Client.ClientID
	opts.Username = rec.Client.Username
	opts.Resource = rec.Resource
	opts.Scopes = rec.Scopes
	opts.AuthorizeArgs = rec.AuthorizeArgs
	opts.TokenArgs = rec.TokenArgs
	opts.Store = store
	opts.DisableCache = false

	r, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	// The record's identity is authoritative; secrets supplied now must not
	// change the handle.
	r.identity = rec.Client

	t, err := newToken(r)
	if err != nil {
		return nil, err
	}
	t.hash = rec.Hash
	if err := t.fromCache(ctx, rec); err != nil {
		return nil, err
	}
	return t, nil
}

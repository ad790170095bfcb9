package flow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/internal/listener"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

type authorizationCodeFlow struct{}

func (authorizationCodeFlow) Type() AuthType { return AuthorizationCode }

// ClientAuth adds a secret or assertion when the app is a confidential client.
func (authorizationCodeFlow) ClientAuth(ctx context.Context, req *Request) (url.Values, error) {
	if req.Signer == nil && req.Password == "" {
		return url.Values{}, nil
	}
	return confidentialClientAuth(ctx, req)
}

func (f authorizationCodeFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	endpoint, err := req.tokenEndpoint()
	if err != nil {
		return nil, err
	}

	code := req.AuthCode
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = listener.DefaultRedirectURI
	}
	var verifier string

	if code == "" {
		if req.DisableListener {
			return nil, autherr.ErrMissingListenerCapability
		}
		if code, redirectURI, verifier, err = f.interactive(ctx, req, redirectURI); err != nil {
			return nil, err
		}
	}

	auth, err := f.ClientAuth(ctx, req)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", req.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}
	req.setTarget(form)
	mergeValues(form, auth)
	setArgs(form, req.TokenArgs)

	return postForm(ctx, req, endpoint, form)
}

// interactive runs the browser login and returns the code, the effective
// redirect URI and the PKCE verifier.
func (authorizationCodeFlow) interactive(ctx context.Context, req *Request, redirectURI string) (string, string, string, error) {
	l, err := listener.Listen(ctx, redirectURI)
	if err != nil {
		return "", "", "", err
	}
	defer l.Stop()

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL, err := AuthorizeURL(req, l.RedirectURI(), state, verifier)
	if err != nil {
		return "", "", "", err
	}

	fmt.Fprintf(req.out(), "Complete the login in your browser. If it does not open, visit:\n%s\n", authURL)
	open := req.OpenBrowser
	if open == nil {
		open = listener.OpenBrowser
	}
	if err := open(authURL); err != nil {
		logging.Warn("Flow", "Could not open browser: %v", err)
	}

	result, err := l.Wait(ctx, state)
	if err != nil {
		return "", "", "", err
	}
	return result.Code, l.RedirectURI(), verifier, nil
}

// AuthorizeURL builds the authorize endpoint URI. An empty verifier omits PKCE.
func AuthorizeURL(req *Request, redirectURI, state, verifier string) (string, error) {
	if req.Endpoints == nil || req.Endpoints.Authorize == "" {
		return "", fmt.Errorf("%w: authorize endpoint is not configured", autherr.ErrInvalidEndpoint)
	}

	cfg := &oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: redirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: req.Endpoints.Authorize},
	}

	var opts []oauth2.AuthCodeOption
	if req.Version == 1 {
		opts = append(opts, oauth2.SetAuthURLParam("resource", req.Resource))
	} else {
		cfg.Scopes = req.Scopes
	}
	if req.Username != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.Username))
	}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	for k, v := range req.AuthorizeArgs {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return cfg.AuthCodeURL(state, opts...), nil
}

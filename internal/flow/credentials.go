package flow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

// JWTBearerGrantType is the grant type of the on-behalf-of exchange.
const JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

type clientCredentialsFlow struct{}

func (clientCredentialsFlow) Type() AuthType { return ClientCredentials }

func (clientCredentialsFlow) ClientAuth(ctx context.Context, req *Request) (url.Values, error) {
	return confidentialClientAuth(ctx, req)
}

func (f clientCredentialsFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	endpoint, err := req.tokenEndpoint()
	if err != nil {
		return nil, err
	}
	auth, err := f.ClientAuth(ctx, req)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", req.ClientID)
	req.setTarget(form)
	mergeValues(form, auth)
	setArgs(form, req.TokenArgs)

	return postForm(ctx, req, endpoint, form)
}

type resourceOwnerFlow struct{}

func (resourceOwnerFlow) Type() AuthType { return ResourceOwner }

func (resourceOwnerFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: resource owner flow requires a username and a password", autherr.ErrMissingCredentials)
	}
	endpoint, err := req.tokenEndpoint()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", req.ClientID)
	form.Set("username", req.Username)
	form.Set("password", req.Password)
	req.setTarget(form)
	setArgs(form, req.TokenArgs)

	return postForm(ctx, req, endpoint, form)
}

type onBehalfOfFlow struct{}

func (onBehalfOfFlow) Type() AuthType { return OnBehalfOf }

func (onBehalfOfFlow) ClientAuth(ctx context.Context, req *Request) (url.Values, error) {
	return confidentialClientAuth(ctx, req)
}

func (f onBehalfOfFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	if req.OnBehalfOf == "" {
		return nil, autherr.ErrMissingAssertionToken
	}
	endpoint, err := req.tokenEndpoint()
	if err != nil {
		return nil, err
	}
	auth, err := f.ClientAuth(ctx, req)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", JWTBearerGrantType)
	form.Set("client_id", req.ClientID)
	form.Set("assertion", req.OnBehalfOf)
	form.Set("requested_token_use", "on_behalf_of")
	req.setTarget(form)
	mergeValues(form, auth)
	setArgs(form, req.TokenArgs)

	return postForm(ctx, req, endpoint, form)
}

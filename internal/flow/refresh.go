package flow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

// Refresh exchanges refreshToken at the token endpoint. The original flow
// supplies client authentication when it has any.
func Refresh(ctx context.Context, req *Request, original Flow, refreshToken string) (*Response, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", autherr.ErrMissingCredentials)
	}
	endpoint, err := req.tokenEndpoint()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", req.ClientID)
	form.Set("refresh_token", refreshToken)
	req.setTarget(form)

	if ca, ok := original.(ClientAuthenticator); ok {
		auth, err := ca.ClientAuth(ctx, req)
		if err != nil {
			return nil, err
		}
		mergeValues(form, auth)
	}
	setArgs(form, req.TokenArgs)

	return postForm(ctx, req, endpoint, form)
}

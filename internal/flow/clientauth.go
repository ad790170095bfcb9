package flow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/giantswarm/tokenkit/internal/assertion"
	"github.com/giantswarm/tokenkit/internal/autherr"
)

// ClientAssertionType is the client_assertion_type of a JWT client assertion.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// confidentialClientAuth returns client_secret or a freshly signed
// client_assertion. A certificate takes precedence over a secret.
func confidentialClientAuth(ctx context.Context, req *Request) (url.Values, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("%w: client ID is required", autherr.ErrMissingCredentials)
	}

	values := url.Values{}
	switch {
	case req.Signer != nil:
		audience, err := req.tokenEndpoint()
		if err != nil {
			return nil, err
		}
		opts := req.AssertionOptions
		opts.ClientID = req.ClientID
		opts.Audience = audience
		if opts.Now == nil {
			opts.Now = req.now
		}
		signed, err := assertion.Build(ctx, req.Signer, opts)
		if err != nil {
			return nil, err
		}
		values.Set("client_assertion_type", ClientAssertionType)
		values.Set("client_assertion", signed)
	case req.Password != "":
		values.Set("client_secret", req.Password)
	default:
		return nil, fmt.Errorf("%w: a client secret or certificate is required", autherr.ErrMissingCredentials)
	}
	return values, nil
}

func mergeValues(dst, src url.Values) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Set(k, v)
		}
	}
}

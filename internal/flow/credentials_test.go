package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

func TestClientCredentials_EndToEndScenario(t *testing.T) {
	at, err := Select(Hints{Password: true})
	require.NoError(t, err)
	require.Equal(t, ClientCredentials, at)

	p := newFakeProvider(t, ok(tokenBody))
	req := p.request(1)
	req.Password = "secret"

	f, err := New(at)
	require.NoError(t, err)
	resp, err := f.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "access-1", resp.Fields["access_token"])
	assert.Equal(t, testNow, resp.RequestedAt)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, "/contoso/oauth2/token", reqs[0].Path)
	assert.Equal(t, "client_credentials", reqs[0].Form.Get("grant_type"))
	assert.Equal(t, testApp, reqs[0].Form.Get("client_id"))
	assert.Equal(t, "secret", reqs[0].Form.Get("client_secret"))
	assert.Equal(t, "https://management.example.com/", reqs[0].Form.Get("resource"))
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[0].Header.Get("Content-Type"))
}

func TestClientCredentials_V2ScopesAndTokenArgs(t *testing.T) {
	p := newFakeProvider(t, ok(tokenBody))
	req := p.request(2)
	req.Password = "secret"
	req.TokenArgs = map[string]string{"claims": `{"access_token":{}}`}

	_, err := clientCredentialsFlow{}.Acquire(context.Background(), req)
	require.NoError(t, err)

	form := p.Requests()[0].Form
	assert.Equal(t, "https://graph.example.com/.default offline_access", form.Get("scope"))
	assert.Empty(t, form.Get("resource"))
	assert.Equal(t, `{"access_token":{}}`, form.Get("claims"))
}

func TestClientCredentials_Certificate(t *testing.T) {
	signer, key := testSigner(t)
	p := newFakeProvider(t, ok(tokenBody))
	req := p.request(2)
	req.Signer = signer
	req.Password = "ignored-secret"

	_, err := clientCredentialsFlow{}.Acquire(context.Background(), req)
	require.NoError(t, err)

	form := p.Requests()[0].Form
	assert.Empty(t, form.Get("client_secret"))
	assert.Equal(t, ClientAssertionType, form.Get("client_assertion_type"))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(form.Get("client_assertion"), claims,
		func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithTimeFunc(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	assert.Equal(t, req.Endpoints.Token, claims["aud"])
	assert.Equal(t, testApp, claims["iss"])
}

func TestClientCredentials_MissingCredentials(t *testing.T) {
	p := newFakeProvider(t)
	_, err := clientCredentialsFlow{}.Acquire(context.Background(), p.request(1))
	assert.ErrorIs(t, err, autherr.ErrMissingCredentials)
	assert.Empty(t, p.Requests())
}

func TestClientCredentials_ProviderError(t *testing.T) {
	p := newFakeProvider(t, fakeResponse{
		status: 401,
		body:   `{"error":"invalid_client","error_description":"AADSTS7000215: Invalid client secret provided.\r\nTrace ID: abc"}`,
	})
	req := p.request(1)
	req.Password = "wrong"

	_, err := clientCredentialsFlow{}.Acquire(context.Background(), req)
	var pe *autherr.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 401, pe.StatusCode)
	assert.Equal(t, "invalid_client", pe.Code)
	assert.Contains(t, err.Error(), "AADSTS7000215: Invalid client secret provided.")
	assert.NotContains(t, err.Error(), "Trace ID")
}

func TestResourceOwner(t *testing.T) {
	p := newFakeProvider(t, ok(tokenBody))
	req := p.request(2)
	req.Username = "user@contoso.example"
	req.Password = "hunter2"

	_, err := resourceOwnerFlow{}.Acquire(context.Background(), req)
	require.NoError(t, err)

	form := p.Requests()[0].Form
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "user@contoso.example", form.Get("username"))
	assert.Equal(t, "hunter2", form.Get("password"))
	assert.Equal(t, testApp, form.Get("client_id"))
}

func TestResourceOwner_MissingCredentials(t *testing.T) {
	p := newFakeProvider(t)
	for _, mutate := range []func(*Request){
		func(r *Request) { r.Username = "user" },
		func(r *Request) { r.Password = "pw" },
	} {
		req := p.request(2)
		mutate(req)
		_, err := resourceOwnerFlow{}.Acquire(context.Background(), req)
		assert.ErrorIs(t, err, autherr.ErrMissingCredentials)
	}
	assert.Empty(t, p.Requests())
}

func TestOnBehalfOf(t *testing.T) {
	p := newFakeProvider(t, ok(tokenBody))
	req := p.request(2)
	req.Password = "secret"
	req.OnBehalfOf = "incoming.jwt.token"

	_, err := onBehalfOfFlow{}.Acquire(context.Background(), req)
	require.NoError(t, err)

	form := p.Requests()[0].Form
	assert.Equal(t, JWTBearerGrantType, form.Get("grant_type"))
	assert.Equal(t, "on_behalf_of", form.Get("requested_token_use"))
	assert.Equal(t, "incoming.jwt.token", form.Get("assertion"))
	assert.Equal(t, "secret", form.Get("client_secret"))
}

func TestOnBehalfOf_MissingAssertion(t *testing.T) {
	p := newFakeProvider(t)
	req := p.request(2)
	req.Password = "secret"

	_, err := onBehalfOfFlow{}.Acquire(context.Background(), req)
	assert.ErrorIs(t, err, autherr.ErrMissingAssertionToken)
}

func TestTokenEndpointRequired(t *testing.T) {
	req := &Request{Version: 2, ClientID: testApp, Password: "secret"}
	_, err := clientCredentialsFlow{}.Acquire(context.Background(), req)
	assert.ErrorIs(t, err, autherr.ErrInvalidEndpoint)
}

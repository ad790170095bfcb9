package flow

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantDesc string
	}{
		{"oauth", `{"error":"invalid_grant","error_description":"expired"}`, "invalid_grant", "expired"},
		{"nested", `{"error":{"code":"Forbidden","message":"identity not found"}}`, "Forbidden", "identity not found"},
		{"message only", `{"message":"gateway down"}`, "", "gateway down"},
		{"not json", `<html>bad gateway</html>`, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pe := providerError(502, []byte(tc.body))
			assert.Equal(t, 502, pe.StatusCode)
			assert.Equal(t, tc.wantCode, pe.Code)
			assert.Equal(t, tc.wantDesc, pe.Description)
			assert.Equal(t, tc.body, pe.Body)
		})
	}
}

func TestPostForm_NonObjectBody(t *testing.T) {
	p := newFakeProvider(t, ok(`["not","an","object"]`), ok(`null`))
	req := p.request(2)

	_, err := postForm(context.Background(), req, req.Endpoints.Token, url.Values{})
	require.Error(t, err)

	_, err = postForm(context.Background(), req, req.Endpoints.Token, url.Values{})
	assert.ErrorContains(t, err, "not a JSON object")
}

func TestPostForm_UsesNumbers(t *testing.T) {
	p := newFakeProvider(t, ok(`{"access_token":"a","expires_in":3599}`))
	req := p.request(2)

	resp, err := postForm(context.Background(), req, req.Endpoints.Token, url.Values{"grant_type": {"x"}})
	require.NoError(t, err)
	assert.Equal(t, json.Number("3599"), resp.Fields["expires_in"])
	assert.Equal(t, "x", p.Requests()[0].Form.Get("grant_type"))
	assert.Equal(t, "application/json", p.Requests()[0].Header.Get("Accept"))
}

package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// maxResponseBytes bounds provider response bodies.
const maxResponseBytes = 1 << 20

// postForm sends a form encoded POST and decodes the JSON response.
func postForm(ctx context.Context, req *Request, endpoint string, form url.Values) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	logging.Debug("Flow", "POST %s (grant_type=%s)", endpoint, form.Get("grant_type"))
	return do(req, httpReq)
}

// do sends httpReq and decodes a JSON object body. Non-2xx responses become
// *autherr.ProviderError.
func do(req *Request, httpReq *http.Request) (*Response, error) {
	requestedAt := req.now()

	resp, err := req.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", httpReq.URL.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", httpReq.URL.Redacted(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providerError(resp.StatusCode, body)
	}

	fields, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", httpReq.URL.Redacted(), err)
	}
	return &Response{Fields: fields, RequestedAt: requestedAt}, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	return fields, nil
}

// providerError extracts the OAuth error code and description. Managed
// identity endpoints sometimes nest them under "error".
func providerError(status int, body []byte) *autherr.ProviderError {
	pe := &autherr.ProviderError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var flat struct {
		Error       any    `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return pe
	}

	switch e := flat.Error.(type) {
	case string:
		pe.Code = e
	case map[string]any:
		pe.Code, _ = e["code"].(string)
		if msg, ok := e["message"].(string); ok && flat.Description == "" {
			flat.Description = msg
		}
	}
	pe.Description = flat.Description
	if pe.Description == "" {
		pe.Description = flat.Message
	}
	return pe
}

package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

// DeviceCodeGrantType is the v2 device code grant type. The v1 endpoint
// expects the short form "device_code".
const DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

type deviceCodeFlow struct{}

func (deviceCodeFlow) Type() AuthType { return DeviceCode }

func (deviceCodeFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	endpoint, err := req.tokenEndpoint()
	if err != nil {
		return nil, err
	}

	session := req.DeviceSession
	if session == nil {
		if session, err = StartDeviceSession(ctx, req); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(req.out(), session.Instructions())

	poller := &Poller{
		Interval: time.Duration(session.Interval) * time.Second,
		Window:   time.Duration(session.ExpiresIn) * time.Second,
		Sleep:    req.sleeper(),
		Request: func(ctx context.Context) (*Response, error) {
			return postForm(ctx, req, endpoint, devicePollForm(req, session))
		},
	}
	return poller.Poll(ctx)
}

// StartDeviceSession requests a user and device code from the devicecode endpoint.
func StartDeviceSession(ctx context.Context, req *Request) (*DeviceSession, error) {
	if req.Endpoints == nil || req.Endpoints.DeviceCode == "" {
		return nil, fmt.Errorf("%w: devicecode endpoint is not configured", autherr.ErrInvalidEndpoint)
	}

	form := url.Values{}
	form.Set("client_id", req.ClientID)
	req.setTarget(form)

	resp, err := postForm(ctx, req, req.Endpoints.DeviceCode, form)
	if err != nil {
		return nil, err
	}
	return parseDeviceSession(resp.Fields)
}

// Instructions is the text shown to the user.
func (s *DeviceSession) Instructions() string {
	if s.Message != "" {
		return s.Message
	}
	return fmt.Sprintf("To sign in, use a web browser to open the page %s and enter the code %s to authenticate.", s.VerificationURI, s.UserCode)
}

func devicePollForm(req *Request, s *DeviceSession) url.Values {
	form := url.Values{}
	form.Set("client_id", req.ClientID)
	if req.Version == 1 {
		form.Set("grant_type", "device_code")
		form.Set("code", s.DeviceCode)
		form.Set("resource", req.Resource)
	} else {
		form.Set("grant_type", DeviceCodeGrantType)
		form.Set("device_code", s.DeviceCode)
	}
	setArgs(form, req.TokenArgs)
	return form
}

// parseDeviceSession accepts v1 (verification_url, string numbers) and v2
// (verification_uri) responses.
func parseDeviceSession(fields map[string]any) (*DeviceSession, error) {
	s := &DeviceSession{}
	s.UserCode, _ = fields["user_code"].(string)
	s.DeviceCode, _ = fields["device_code"].(string)
	s.Message, _ = fields["message"].(string)
	if uri, ok := fields["verification_uri"].(string); ok {
		s.VerificationURI = uri
	} else {
		s.VerificationURI, _ = fields["verification_url"].(string)
	}
	s.Interval = intField(fields["interval"])
	s.ExpiresIn = intField(fields["expires_in"])

	if s.DeviceCode == "" || s.UserCode == "" {
		return nil, fmt.Errorf("devicecode response is missing the user or device code")
	}
	if s.ExpiresIn <= 0 {
		return nil, fmt.Errorf("devicecode response has no validity window")
	}
	return s, nil
}

func intField(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			return int(f)
		}
		return int(i)
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

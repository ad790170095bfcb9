package flow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/internal/scope"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// Managed identity endpoints.
const (
	IMDSEndpoint   = "http://169.254.169.254/metadata/identity/oauth2/token"
	IMDSAPIVersion = "2018-02-01"

	MSIAPIVersion      = "2017-09-01"
	IdentityAPIVersion = "2019-08-01"
)

// Environment variables that redirect managed identity requests.
const (
	EnvMSIEndpoint      = "MSI_ENDPOINT"
	EnvMSISecret        = "MSI_SECRET"
	EnvIdentityEndpoint = "IDENTITY_ENDPOINT"
	EnvIdentityHeader   = "IDENTITY_HEADER"
)

// managedIdentityArgs select a user-assigned identity.
var managedIdentityArgs = []string{"client_id", "object_id", "mi_res_id", "msi_res_id", "principal_id"}

type managedFlow struct{}

func (managedFlow) Type() AuthType { return Managed }

func (managedFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	resource := ManagedResource(req)
	if err := scope.ValidateResource(resource); err != nil {
		return nil, err
	}

	target := managedTarget(req)

	query := url.Values{}
	query.Set("api-version", target.apiVersion)
	query.Set("resource", resource)
	for _, k := range managedIdentityArgs {
		if v, ok := req.TokenArgs[k]; ok {
			query.Set(k, v)
		}
	}

	u, err := url.Parse(target.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid managed identity endpoint %q", autherr.ErrInvalidEndpoint, target.endpoint)
	}
	u.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create managed identity request: %w", err)
	}
	for k, v := range target.headers {
		httpReq.Header.Set(k, v)
	}

	logging.Debug("Flow", "GET %s (managed identity, api-version %s)", target.endpoint, target.apiVersion)
	return do(req, httpReq)
}

// ManagedResource is the v1 resource, or for v2 the first scope with its
// .default suffix removed.
func ManagedResource(req *Request) string {
	if req.Version == 1 {
		return req.Resource
	}
	if len(req.Scopes) == 0 {
		return ""
	}
	return strings.TrimSuffix(req.Scopes[0], scope.DefaultSuffix)
}

type managedEndpoint struct {
	endpoint   string
	apiVersion string
	headers    map[string]string
}

func managedTarget(req *Request) managedEndpoint {
	if ep := req.getenv(EnvMSIEndpoint); ep != "" {
		headers := map[string]string{"Metadata": "true"}
		if secret := req.getenv(EnvMSISecret); secret != "" {
			headers = map[string]string{"secret": secret}
		}
		return managedEndpoint{endpoint: ep, apiVersion: MSIAPIVersion, headers: headers}
	}
	if ep := req.getenv(EnvIdentityEndpoint); ep != "" {
		return managedEndpoint{
			endpoint:   ep,
			apiVersion: IdentityAPIVersion,
			headers:    map[string]string{"X-IDENTITY-HEADER": req.getenv(EnvIdentityHeader)},
		}
	}
	return managedEndpoint{
		endpoint:   IMDSEndpoint,
		apiVersion: IMDSAPIVersion,
		headers:    map[string]string{"Metadata": "true"},
	}
}

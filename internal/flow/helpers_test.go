package flow

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokenkit/internal/assertion"
	"github.com/giantswarm/tokenkit/internal/endpoint"
)

const (
	testApp    = "11111111-1111-1111-1111-111111111111"
	testTenant = "contoso"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

type fakeResponse struct {
	status int
	body   string
}

func ok(body string) fakeResponse { return fakeResponse{status: http.StatusOK, body: body} }

func pending() fakeResponse {
	return fakeResponse{status: http.StatusBadRequest, body: `{"error":"authorization_pending","error_description":"AADSTS70016: pending"}`}
}

// fakeProvider answers every request with the next scripted response.
type fakeProvider struct {
	t         *testing.T
	mu        sync.Mutex
	server    *httptest.Server
	responses []fakeResponse
	requests  []recordedRequest
}

func newFakeProvider(t *testing.T, responses ...fakeResponse) *fakeProvider {
	t.Helper()
	p := &fakeProvider{t: t, responses: responses}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	require.NoError(p.t, r.ParseForm())

	p.mu.Lock()
	p.requests = append(p.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Form:   r.PostForm,
		Header: r.Header.Clone(),
	})
	var resp fakeResponse
	if len(p.responses) == 0 {
		resp = fakeResponse{status: http.StatusInternalServerError, body: `{"error":"unexpected_request"}`}
	} else {
		resp, p.responses = p.responses[0], p.responses[1:]
	}
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (p *fakeProvider) Requests() []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedRequest(nil), p.requests...)
}

func (p *fakeProvider) endpoints(version int) *endpoint.Set {
	base := p.server.URL + "/" + testTenant + "/" + endpoint.OAuthPath(version) + "/"
	return &endpoint.Set{
		Authorize:  base + "authorize",
		Token:      base + "token",
		DeviceCode: base + "devicecode",
	}
}

func (p *fakeProvider) request(version int) *Request {
	req := &Request{
		Version:    version,
		Tenant:     testTenant,
		Endpoints:  p.endpoints(version),
		ClientID:   testApp,
		HTTPClient: p.server.Client(),
		Now:        func() time.Time { return testNow },
	}
	if version == 1 {
		req.Resource = "https://management.example.com/"
	} else {
		req.Scopes = []string{"https://graph.example.com/.default", "offline_access"}
	}
	return req
}

// recordingSleeper counts sleeps without waiting.
type recordingSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testSigner(t *testing.T) (*assertion.LocalSigner, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "flow-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	signer, err := assertion.NewLocalSigner(cert, key)
	require.NoError(t, err)
	return signer, key
}

const tokenBody = `{"token_type":"Bearer","expires_in":3599,"access_token":"access-1","refresh_token":"refresh-1"}`

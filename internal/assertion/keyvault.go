package assertion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// KeyVaultAPIVersion is the key vault REST API version used for sign calls.
const KeyVaultAPIVersion = "7.4"

// KeyVaultSigner signs through a remote key vault key. The private key never
// leaves the vault.
type KeyVaultSigner struct {
	// KeyURL is the key identifier, e.g. https://vault.example.net/keys/name/version.
	KeyURL string
	// Type is the vault key type.
	Type KeyType
	// CertThumbprint is the SHA-1 thumbprint of the matching certificate.
	CertThumbprint []byte
	// Source authenticates calls to the vault.
	Source oauth2.TokenSource
}

func (s *KeyVaultSigner) KeyType() KeyType { return s.Type }

func (s *KeyVaultSigner) Thumbprint() []byte { return s.CertThumbprint }

type keyVaultSignRequest struct {
	Algorithm string `json:"alg"`
	Value     string `json:"value"`
}

type keyVaultSignResponse struct {
	KeyID string `json:"kid"`
	Value string `json:"value"`
}

// Sign implements Signer with the vault sign operation.
func (s *KeyVaultSigner) Sign(ctx context.Context, alg string, digest []byte) ([]byte, error) {
	if s.KeyURL == "" {
		return nil, fmt.Errorf("key vault key URL is required")
	}
	if s.Source == nil {
		return nil, fmt.Errorf("key vault signer has no token source")
	}

	body, err := json.Marshal(keyVaultSignRequest{
		Algorithm: alg,
		Value:     base64.RawURLEncoding.EncodeToString(digest),
	})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(s.KeyURL, "/") + "/sign?api-version=" + KeyVaultAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create key vault request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := oauth2.NewClient(ctx, s.Source).Do(req)
	if err != nil {
		return nil, fmt.Errorf("key vault sign request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read key vault response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key vault sign failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out keyVaultSignResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse key vault response: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(out.Value, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid key vault signature encoding: %w", err)
	}
	return sig, nil
}

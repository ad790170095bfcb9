// Package assertion builds signed JWT client assertions for certificate
// authenticated grants.
//
// The JWT is assembled with golang-jwt; the signature itself comes from a
// Signer, so the private key may live in a local file or a remote key vault.
package assertion

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// KeyType is the family of the signing key.
type KeyType string

const (
	KeyTypeRSA KeyType = "RSA"
	KeyTypeEC  KeyType = "EC"
)

// Signer reports a key type and certificate thumbprint and signs digests.
type Signer interface {
	KeyType() KeyType

	// Thumbprint is the SHA-1 digest of the DER encoded certificate.
	Thumbprint() []byte

	// Sign returns the raw JWS signature of digest for alg (RS256, ES384, ...).
	// EC signatures are the fixed size R || S concatenation.
	Sign(ctx context.Context, alg string, digest []byte) ([]byte, error)
}

// CurveSizer is implemented by EC signers that know their curve. CurveSize is
// the ES signature size the curve signs with: 256, 384 or 512, or 0 when the
// curve has no JWS algorithm.
type CurveSizer interface {
	CurveSize() int
}

// DefaultDuration is the lifetime of an assertion.
const DefaultDuration = time.Hour

// DefaultSignatureSize is the digest size in bits.
const DefaultSignatureSize = 256

// NowTimeFunc is the clock used when Options.Now is nil.
var NowTimeFunc = time.Now

// Options controls a single assertion.
type Options struct {
	ClientID string
	// Audience is the token endpoint URI.
	Audience string
	Duration time.Duration
	// SignatureSize is 256, 384 or 512.
	SignatureSize int
	// Claims are merged over the standard claims.
	Claims map[string]any
	Now    func() time.Time
}

// Algorithm returns the JWS algorithm name for a key type and digest size.
func Algorithm(kt KeyType, size int) (string, error) {
	if size == 0 {
		size = DefaultSignatureSize
	}
	if size != 256 && size != 384 && size != 512 {
		return "", fmt.Errorf("unsupported signature size %d", size)
	}
	switch kt {
	case KeyTypeRSA:
		return fmt.Sprintf("RS%d", size), nil
	case KeyTypeEC:
		return fmt.Sprintf("ES%d", size), nil
	default:
		return "", fmt.Errorf("unsupported key type %q", kt)
	}
}

// signerAlgorithm picks the JWS algorithm for signer. The size of an EC key is
// fixed by its curve: a zero size takes it, any other size must match it.
func signerAlgorithm(signer Signer, size int) (string, error) {
	cs, ok := signer.(CurveSizer)
	if !ok || signer.KeyType() != KeyTypeEC {
		return Algorithm(signer.KeyType(), size)
	}
	curve := cs.CurveSize()
	switch {
	case curve == 0:
		return "", fmt.Errorf("unsupported elliptic curve for a client assertion")
	case size == 0:
		size = curve
	case size != curve:
		return "", fmt.Errorf("signature size %d does not match the certificate key, which signs ES%d", size, curve)
	}
	return Algorithm(KeyTypeEC, size)
}

// HashFor returns the digest function of a JWS algorithm name.
func HashFor(alg string) (crypto.Hash, error) {
	if len(alg) != 5 {
		return 0, fmt.Errorf("unsupported algorithm %q", alg)
	}
	switch alg[2:] {
	case "256":
		return crypto.SHA256, nil
	case "384":
		return crypto.SHA384, nil
	case "512":
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("unsupported algorithm %q", alg)
}

// Build returns a compact serialized, signed client assertion.
func Build(ctx context.Context, signer Signer, opts Options) (string, error) {
	if signer == nil {
		return "", fmt.Errorf("no certificate signer configured")
	}
	if opts.ClientID == "" {
		return "", fmt.Errorf("client assertion requires a client ID")
	}
	if opts.Audience == "" {
		return "", fmt.Errorf("client assertion requires an audience")
	}

	alg, err := signerAlgorithm(signer, opts.SignatureSize)
	if err != nil {
		return "", err
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("unsupported algorithm %q", alg)
	}
	hash, err := HashFor(alg)
	if err != nil {
		return "", err
	}

	now := NowTimeFunc
	if opts.Now != nil {
		now = opts.Now
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	issued := now()

	claims := jwt.MapClaims{
		"iss": opts.ClientID,
		"sub": opts.ClientID,
		"aud": opts.Audience,
		"exp": issued.Add(duration).Unix(),
		"nbf": issued.Unix(),
		"iat": issued.Unix(),
		"jti": uuid.NewString(),
	}
	maps.Copy(claims, opts.Claims)

	token := jwt.NewWithClaims(method, claims)
	thumbprint := signer.Thumbprint()
	token.Header["x5t"] = base64.RawURLEncoding.EncodeToString(thumbprint)
	token.Header["kid"] = hex.EncodeToString(thumbprint)

	signingString, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("failed to encode client assertion: %w", err)
	}

	h := hash.New()
	h.Write([]byte(signingString))
	sig, err := signer.Sign(ctx, alg, h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}

	return signingString + "." + token.EncodeSegment(sig), nil
}

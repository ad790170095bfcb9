package assertion

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // certificate thumbprints are SHA-1 by definition
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// LocalSigner signs with a private key held in memory.
type LocalSigner struct {
	key        crypto.Signer
	keyType    KeyType
	thumbprint []byte
}

// NewLocalSigner pairs a certificate with its private key.
func NewLocalSigner(cert *x509.Certificate, key any) (*LocalSigner, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is required")
	}
	s := &LocalSigner{thumbprint: Thumbprint(cert)}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		s.key, s.keyType = k, KeyTypeRSA
	case *ecdsa.PrivateKey:
		s.key, s.keyType = k, KeyTypeEC
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return s, nil
}

// Thumbprint returns the SHA-1 digest of a certificate.
func Thumbprint(cert *x509.Certificate) []byte {
	sum := sha1.Sum(cert.Raw) //nolint:gosec
	return sum[:]
}

func (s *LocalSigner) KeyType() KeyType { return s.keyType }

func (s *LocalSigner) Thumbprint() []byte { return s.thumbprint }

// CurveSize implements CurveSizer. It is 0 for RSA keys.
func (s *LocalSigner) CurveSize() int {
	k, ok := s.key.(*ecdsa.PrivateKey)
	if !ok {
		return 0
	}
	switch k.Curve {
	case elliptic.P256():
		return 256
	case elliptic.P384():
		return 384
	case elliptic.P521():
		return 512
	}
	return 0
}

// Sign implements Signer.
func (s *LocalSigner) Sign(_ context.Context, alg string, digest []byte) ([]byte, error) {
	hash, err := HashFor(alg)
	if err != nil {
		return nil, err
	}
	switch k := s.key.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(rand.Reader, k, hash, digest)
	case *ecdsa.PrivateKey:
		if want := s.CurveSize(); want == 0 || alg != fmt.Sprintf("ES%d", want) {
			return nil, fmt.Errorf("algorithm %s cannot be signed with a %s key", alg, k.Curve.Params().Name)
		}
		r, sv, err := ecdsa.Sign(rand.Reader, k, digest)
		if err != nil {
			return nil, err
		}
		size := (k.Curve.Params().BitSize + 7) / 8
		out := make([]byte, 2*size)
		r.FillBytes(out[:size])
		sv.FillBytes(out[size:])
		return out, nil
	}
	return nil, fmt.Errorf("unsupported private key type %T", s.key)
}

// ParsePEM reads a certificate and a private key from PEM data.
func ParsePEM(data []byte) (*LocalSigner, error) {
	var cert *x509.Certificate
	var key any
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		var err error
		switch block.Type {
		case "CERTIFICATE":
			if cert == nil {
				cert, err = x509.ParseCertificate(block.Bytes)
			}
		case "PRIVATE KEY":
			key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		case "RSA PRIVATE KEY":
			key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			key, err = x509.ParseECPrivateKey(block.Bytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse PEM block %q: %w", block.Type, err)
		}
	}
	if cert == nil {
		return nil, fmt.Errorf("no certificate found in PEM data")
	}
	if key == nil {
		return nil, fmt.Errorf("no private key found in PEM data")
	}
	return NewLocalSigner(cert, key)
}

// LoadPEM reads a PEM file holding both the certificate and the key.
func LoadPEM(path string) (*LocalSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	return ParsePEM(data)
}

// ParsePFX decodes a PKCS#12 bundle.
func ParsePFX(data []byte, password string) (*LocalSigner, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PFX: %w", err)
	}
	return NewLocalSigner(cert, key)
}

// LoadPFX reads a PKCS#12 file.
func LoadPFX(path, password string) (*LocalSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	return ParsePFX(data, password)
}

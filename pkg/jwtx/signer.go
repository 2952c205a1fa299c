package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/aussiebroadwan/ticketauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported JWT signing algorithms
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner loads a PEM private key and returns a Signer for alg. The key
// type must match the algorithm: RSA for RS256, P-256 for ES256 and Ed25519
// for EdDSA.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	key, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}

	method, err := signingMethod(alg)
	if err != nil {
		return nil, err
	}
	if err := checkKeyType(alg, key.Public()); err != nil {
		return nil, err
	}

	jwk, err := NewJWK(kid, alg, key.Public())
	if err != nil {
		return nil, err
	}

	return &keySigner{kid: kid, method: method, key: key, jwk: jwk}, nil
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

// Sign serialises the claims and signs them, stamping the kid header.
func (s *keySigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case AlgorithmRS256:
		return jwt.SigningMethodRS256, nil
	case AlgorithmES256:
		return jwt.SigningMethodES256, nil
	case AlgorithmEdDSA:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256, EdDSA)", alg)
	}
}

func checkKeyType(alg string, pub crypto.PublicKey) error {
	ok := false
	switch alg {
	case AlgorithmRS256:
		_, ok = pub.(*rsa.PublicKey)
	case AlgorithmES256:
		var ec *ecdsa.PublicKey
		ec, ok = pub.(*ecdsa.PublicKey)
		ok = ok && ec.Curve.Params().Name == "P-256"
	case AlgorithmEdDSA:
		_, ok = pub.(ed25519.PublicKey)
	}
	if !ok {
		return fmt.Errorf("%w: %T cannot be used with %s", ErrAlgMismatch, pub, alg)
	}
	return nil
}

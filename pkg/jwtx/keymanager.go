package jwtx

import (
	"fmt"
	"math/rand/v2"

	"github.com/aussiebroadwan/ticketauth/pkg/cryptox"
)

const (
	defaultNumKeys = 3
	maxNumKeys     = 10
	defaultRSABits = 4096
)

// KeyManager owns an instance's signing keys. Keys are generated at startup
// and live only in memory, so every restart invalidates outstanding access
// tokens. Refresh tokens are opaque and survive.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	algorithm string
	signers   []Signer
}

// KeyManagerOptions configures NewEphemeralKeyManager.
type KeyManagerOptions struct {
	// Algorithm is one of RS256, ES256, EdDSA.
	Algorithm string

	// Issuer is enforced by the Verifier.
	Issuer string

	// Audience is enforced by the Verifier when non-empty.
	Audience []string

	// RSABits is the RS256 key size (default 4096, minimum 2048).
	RSABits int

	// NumKeys is how many signing keys to generate (default 3, capped at 10).
	NumKeys int
}

// NewEphemeralKeyManager generates NumKeys signing keys with random kids and
// wires them into a KeySet and Verifier.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = defaultNumKeys
	}
	numKeys = min(numKeys, maxNumKeys)

	keyset := NewKeySet()
	verifier, err := NewVerifier(keyset, opts.Algorithm, VerifyOptions{
		Issuer:   opts.Issuer,
		Audience: opts.Audience,
	})
	if err != nil {
		return nil, err
	}

	signers := make([]Signer, 0, numKeys)
	for i := range numKeys {
		signer, err := generateSigner(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate signer %d: %w", i+1, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add signer %d to keyset: %w", i+1, err)
		}
		signers = append(signers, signer)
	}

	return &KeyManager{
		Verifier:  verifier,
		KeySet:    keyset,
		algorithm: opts.Algorithm,
		signers:   signers,
	}, nil
}

func generateSigner(algorithm string, rsaBits int) (Signer, error) {
	kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key ID: %w", err)
	}

	var pemBytes []byte
	switch algorithm {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = defaultRSABits
		}
		pemBytes, err = cryptox.GenerateRSAKey(rsaBits)
	case AlgorithmES256:
		pemBytes, err = cryptox.GenerateES256Key()
	case AlgorithmEdDSA:
		pemBytes, err = cryptox.GenerateEd25519Key()
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
	if err != nil {
		return nil, err
	}
	return NewSigner(algorithm, "ticketauth-"+kid, pemBytes)
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string { return km.algorithm }

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }

// NumSigners returns the number of signing keys.
func (km *KeyManager) NumSigners() int { return len(km.signers) }

// GetSigner returns a randomly selected signing key.
func (km *KeyManager) GetSigner() Signer {
	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

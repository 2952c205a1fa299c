package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
)

// InitAuthKeys generates the signing keys for this process.
//
// Keys live only in memory: every restart invalidates outstanding access
// tokens while refresh tokens, being opaque, survive. Supported algorithms
// are RS256, ES256 and EdDSA; AUTH_NUM_KEYS controls how many keys are
// generated (default 3).
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager",
		"algorithm", cfg.Algorithm,
		"num_keys", cfg.NumKeys,
	)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.AudienceList(),
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing keys",
		"algorithm", keyManager.Algorithm(),
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)
	logger.Warn("all existing access tokens are now invalid due to key rotation on startup")

	return keyManager, nil
}

package app

import (
	"errors"
	"fmt"
	"strings"

	"credd/cmd/security/token"
)

// NewKeyRing builds the signing key ring from cfg.
//
// Startup fails without configured keys unless AllowEphemeral is set, in
// which case a random key is generated and a warning logged.
func NewKeyRing(cfg TokenConfig, log Logger) (*token.KeyRing, error) {
	if strings.TrimSpace(cfg.Keys) == "" {
		if !cfg.AllowEphemeral {
			return nil, fmt.Errorf("security policy: %s is required (or set token.allow_ephemeral for development)", token.KeysEnv)
		}
		k, err := token.Generate("ephemeral")
		if err != nil {
			return nil, err
		}
		log.Warn("token.keys.ephemeral", "kid", k.ID, "fingerprint", k.Fingerprint())
		return token.NewKeyRing(k)
	}

	keys, err := token.ParseKeys(cfg.Keys)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrKeyTooShort):
			return nil, fmt.Errorf("security policy: signing keys must be at least 32 bytes: %w", err)
		default:
			return nil, fmt.Errorf("security policy: %s: %w", token.KeysEnv, err)
		}
	}
	ring, err := token.NewKeyRingFromKeys(keys)
	if err != nil {
		return nil, err
	}
	log.Info("token.keys.loaded", "current", ring.Current().ID, "accepted", ring.IDs())
	return ring, nil
}

// ReloadKeys applies cfg.Keys to the running key ring: the first key signs,
// the others stay accepted and keys no longer listed are revoked.
func (a *App) ReloadKeys(cfg TokenConfig) error {
	keys, err := token.ParseKeys(cfg.Keys)
	if err != nil {
		return fmt.Errorf("security policy: %s: %w", token.KeysEnv, err)
	}
	if err := a.ring.Reload(keys); err != nil {
		return err
	}
	a.log.Info("token.keys.reloaded", "current", a.ring.Current().ID, "accepted", a.ring.IDs())
	return nil
}

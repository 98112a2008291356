package config

import (
	"fmt"
	"strings"

	"leverlend/crypto"
)

var validBackends = map[string]bool{
	"level":  true,
	"bolt":   true,
	"memory": true,
}

// ValidateConfig rejects settings the daemon cannot run with.
func ValidateConfig(cfg *Config) error {
	if !validBackends[cfg.Backend] {
		return fmt.Errorf("config: unknown storage backend %q", cfg.Backend)
	}
	if cfg.Protocol.MaxBaseFeeBps > 10_000 {
		return fmt.Errorf("config: Protocol.MaxBaseFeeBps > 10000")
	}
	if cfg.Protocol.MaxFixedFeeBps > 10_000 {
		return fmt.Errorf("config: Protocol.MaxFixedFeeBps > 10000")
	}
	if admin := strings.TrimSpace(cfg.Admin); admin != "" {
		if _, err := crypto.DecodeAddress(admin); err != nil {
			return fmt.Errorf("config: invalid Admin address: %w", err)
		}
	}
	return nil
}

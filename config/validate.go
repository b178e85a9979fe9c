package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if cfg.RPCRatePerMinute < 0 {
		return fmt.Errorf("config: RPCRatePerMinute must not be negative")
	}
	if cfg.RPCRateBurst < 0 {
		return fmt.Errorf("config: RPCRateBurst must not be negative")
	}
	return nil
}

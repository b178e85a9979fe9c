package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultRPCAddress       = ":8080"
	defaultDataDir          = "./veritynet-data"
	defaultNetworkName      = "veritynet-local"
	defaultRPCRatePerMinute = 120
	defaultRPCRateBurst     = 20
)

// Config holds the node daemon settings persisted as TOML.
type Config struct {
	RPCAddress       string  `toml:"RPCAddress"`
	DataDir          string  `toml:"DataDir"`
	GenesisFile      string  `toml:"GenesisFile"`
	NetworkName      string  `toml:"NetworkName"`
	RPCRatePerMinute float64 `toml:"RPCRatePerMinute"`
	RPCRateBurst     int     `toml:"RPCRateBurst"`
	Pauses           Pauses  `toml:"pauses"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if cfg.RPCRatePerMinute == 0 {
		cfg.RPCRatePerMinute = defaultRPCRatePerMinute
	}
	if cfg.RPCRateBurst == 0 {
		cfg.RPCRateBurst = defaultRPCRateBurst
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       defaultRPCAddress,
		DataDir:          defaultDataDir,
		GenesisFile:      "",
		NetworkName:      defaultNetworkName,
		RPCRatePerMinute: defaultRPCRatePerMinute,
		RPCRateBurst:     defaultRPCRateBurst,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

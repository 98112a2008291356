package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon's startup settings.
type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	DataDir       string   `toml:"DataDir"`
	Backend       string   `toml:"Backend"`
	LogFile       string   `toml:"LogFile"`
	NetworkName   string   `toml:"NetworkName"`
	Admin         string   `toml:"Admin"`
	Protocol      Protocol `toml:"Protocol"`
}

// Protocol groups the lending parameters applied at boot.
type Protocol struct {
	UnlockTimeSeconds uint64 `toml:"UnlockTimeSeconds"`
	MaxBaseFeeBps     uint64 `toml:"MaxBaseFeeBps"`
	MaxFixedFeeBps    uint64 `toml:"MaxFixedFeeBps"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./leverlend-data"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = "level"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "leverlend-local"
	}
	if cfg.Protocol.UnlockTimeSeconds == 0 {
		cfg.Protocol.UnlockTimeSeconds = 21_600
	}
	if cfg.Protocol.MaxBaseFeeBps == 0 {
		cfg.Protocol.MaxBaseFeeBps = 1_000
	}
	if cfg.Protocol.MaxFixedFeeBps == 0 {
		cfg.Protocol.MaxFixedFeeBps = 1_000
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the service-level settings for the escrow daemon.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	ServiceName    string `toml:"ServiceName"`
	Env            string `toml:"Env"`
	// AuthTokenEnv names the environment variable holding the RPC bearer
	// token; an empty value disables the check.
	AuthTokenEnv string `toml:"AuthTokenEnv"`
}

// Load reads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "escrowd"
	}
	if strings.TrimSpace(cfg.AuthTokenEnv) == "" {
		cfg.AuthTokenEnv = "ESCROWD_RPC_TOKEN"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	return cfg, nil
}

package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Network  string `json:"network"`
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	// Capacity, in shannons, of the cell deposited under the checker lock.
	DepositCapacity uint64 `json:"deposit_capacity"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lenscript"
	}
	return filepath.Join(home, ".lenscript")
}

func DefaultConfig() Config {
	return Config{
		Network:         "devnet",
		DataDir:         DefaultDataDir(),
		LogLevel:        "info",
		DepositCapacity: 1_000 * 100_000_000,
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.ContainsAny(cfg.Network, `/\`) || cfg.Network == "." || cfg.Network == ".." {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.DepositCapacity == 0 {
		return errors.New("deposit_capacity must be > 0")
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xraph/paylink/extension"
)

const defaultConfigFile = "paylink.yaml"

// privateKeyEnv overrides private_key so the key can stay out of the file.
const privateKeyEnv = "PAYLINK_PRIVATE_KEY"

// fileConfig is the layout of paylink.yaml.
type fileConfig struct {
	Paylink  extension.Config `yaml:",inline"`
	LogLevel string           `yaml:"log_level"`
}

// loadConfig reads path. A missing file yields the defaults: simulated mode
// over the file store.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fileConfig{}, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fileConfig{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if key := os.Getenv(privateKeyEnv); key != "" {
		cfg.Paylink.PrivateKey = key
	}
	cfg.Paylink = cfg.Paylink.WithDefaults()

	if err := cfg.Paylink.Validate(); err != nil {
		return fileConfig{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

func (c fileConfig) level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

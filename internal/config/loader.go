package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"matrixmcp/pkg/logging"
)

const (
	userConfigDir  = ".config/matrix-mcp"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns ~/.config/matrix-mcp.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig reads config.yaml from configPath over the defaults, applies
// environment overrides and validates the result. A missing file is not
// an error.
func LoadConfig(configPath string) (Config, error) {
	cfg := GetDefaultConfig()

	if configPath != "" {
		if err := loadFile(filepath.Join(configPath, configFileName), &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if errs := Validate(cfg); errs.HasErrors() {
		return Config{}, errs
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No %s found at %s, using defaults", configFileName, path)
			return nil
		}
		return NewConfigurationError(path, ErrorTypeIO, "failed to read configuration file", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return NewConfigurationError(path, ErrorTypeParse, "failed to parse configuration file", err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	return nil
}

// ApplyEnv overrides cfg with the environment variables named in the
// struct tags. Unset variables leave the current values alone.
func ApplyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return NewConfigurationError("environment", ErrorTypeParse, "invalid environment variable", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/tokenkit/pkg/logging"
)

const (
	// EnvConfigDir overrides the configuration directory.
	EnvConfigDir = "TOKENKIT_CONFIG_DIR"

	userConfigDir  = ".config/tokenkit"
	configFileName = "config.yaml"
)

// DefaultConfigPath returns $TOKENKIT_CONFIG_DIR, or ~/.config/tokenkit.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults. An
// empty configPath uses DefaultConfigPath.
func LoadConfig(configPath string) (Config, error) {
	if configPath == "" {
		var err error
		if configPath, err = DefaultConfigPath(); err != nil {
			return Config{}, err
		}
	}
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	if err := Validate(config); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", configFilePath, err)
	}
	logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

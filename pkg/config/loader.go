package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads config.yaml from configDir, expands environment variables,
// merges it over Default(), and validates the result. Mirrors the
// teacher's load()+validate() two-step Initialize pipeline
// (pkg/config/loader.go), reduced to this server's single YAML file.
func Load(configDir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(configDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No user config: defaults alone must already validate.
			if verr := Validate(cfg); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("failed to merge user configuration: %w", err))
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/justapithecus/pydust/types"
)

// Config file names, in lookup order.
const (
	PyprojectFile = "pyproject.toml"
	YAMLFile      = "pydust.yaml"
	YMLFile       = "pydust.yml"
)

var candidates = []string{PyprojectFile, YAMLFile, YMLFile}

// Find returns the first config file present in dir.
func Find(dir string) (string, error) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &types.ConfigError{
		Path: dir,
		Msg:  fmt.Sprintf("no config file found (looked for %s)", strings.Join(candidates, ", ")),
	}
}

// Load reads a config file, expands environment variables, applies
// defaults and validates the result. The format is chosen by extension:
// .toml files are read as pyproject.toml, .yaml and .yml as YAML.
func Load(path string) (*types.ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &types.ConfigError{Path: path, Msg: "config file not found"}
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := []byte(ExpandEnv(string(data)))

	var raw *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		var doc pyproject
		if err := toml.Unmarshal(expanded, &doc); err != nil {
			return nil, &types.ConfigError{Path: path, Msg: "invalid TOML", Err: err}
		}
		raw = doc.Tool.Pydust
		if raw == nil {
			raw = &Config{}
		}
	case ".yaml", ".yml":
		raw = &Config{}
		if err := yaml.Unmarshal(expanded, raw); err != nil {
			return nil, &types.ConfigError{Path: path, Msg: "invalid YAML", Err: err}
		}
	default:
		return nil, &types.ConfigError{Path: path, Msg: fmt.Sprintf("unsupported config format %q", ext)}
	}

	cfg := raw.ToolConfig()
	if err := cfg.Validate(); err != nil {
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

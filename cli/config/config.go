// Package config loads pydust project configuration from pyproject.toml or
// pydust.yaml.
package config

import (
	"github.com/justapithecus/pydust/types"
)

// Config is the raw [tool.pydust] table or pydust.yaml document.
// Unset values take the defaults in types; plural keys read better in YAML,
// singular array-of-tables keys read better in TOML, and both are accepted.
type Config struct {
	Root            *string       `toml:"root" yaml:"root"`
	BuildScriptPath *string       `toml:"build_script_path" yaml:"build_script_path"`
	BuildZig        *string       `toml:"build_zig" yaml:"build_zig"`
	SelfManaged     bool          `toml:"self_managed" yaml:"self_managed"`
	ZigTests        *bool         `toml:"zig_tests" yaml:"zig_tests"`
	ZigExe          string        `toml:"zig_exe" yaml:"zig_exe"`
	PythonExe       string        `toml:"python_exe" yaml:"python_exe"`
	PydustSource    string        `toml:"pydust_source" yaml:"pydust_source"`
	ExtModules      []ModuleEntry `toml:"ext_modules" yaml:"ext_modules"`
	ExtModule       []ModuleEntry `toml:"ext_module" yaml:"ext_module"`
}

// ModuleEntry is one extension module entry.
type ModuleEntry struct {
	Name       string `toml:"name" yaml:"name"`
	Root       string `toml:"root" yaml:"root"`
	LimitedAPI *bool  `toml:"limited_api" yaml:"limited_api"`
}

// pyproject is the subset of pyproject.toml read by pydust.
type pyproject struct {
	Tool struct {
		Pydust *Config `toml:"pydust"`
	} `toml:"tool"`
}

// ToolConfig applies defaults and returns the resolved configuration.
// It does not validate.
func (c *Config) ToolConfig() *types.ToolConfig {
	cfg := &types.ToolConfig{
		Root:            types.DefaultRoot,
		BuildScriptPath: types.DefaultBuildScriptPath,
		SelfManaged:     c.SelfManaged,
		ZigTests:        true,
		ZigExe:          c.ZigExe,
		PythonExe:       c.PythonExe,
		PydustSource:    c.PydustSource,
	}
	if c.Root != nil {
		cfg.Root = *c.Root
	}
	switch {
	case c.BuildScriptPath != nil:
		cfg.BuildScriptPath = *c.BuildScriptPath
	case c.BuildZig != nil:
		cfg.BuildScriptPath = *c.BuildZig
	}
	if c.ZigTests != nil {
		cfg.ZigTests = *c.ZigTests
	}
	if cfg.PythonExe == "" {
		cfg.PythonExe = types.DefaultPythonExe
	}
	if cfg.PydustSource == "" {
		cfg.PydustSource = types.DefaultPydustSource
	}

	entries := append(append([]ModuleEntry(nil), c.ExtModules...), c.ExtModule...)
	for _, e := range entries {
		m := types.ExtModule{Name: e.Name, Root: e.Root, LimitedAPI: true}
		if e.LimitedAPI != nil {
			m.LimitedAPI = *e.LimitedAPI
		}
		cfg.ExtModules = append(cfg.ExtModules, m)
	}
	return cfg
}

// Package types defines core domain types for pydust: the project
// configuration model, test-server records and the error taxonomy shared by
// the build and test packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Configuration defaults.
const (
	// DefaultRoot is the default package root passed to the toolchain.
	DefaultRoot = "src/"
	// DefaultBuildScriptPath is where the generated build script is written.
	DefaultBuildScriptPath = "build.zig"
	// DefaultPythonExe is the interpreter used when none is configured.
	DefaultPythonExe = "python3"
	// DefaultPydustSource is the pydust Zig library root imported by
	// generated build scripts.
	DefaultPydustSource = "pydust/src/pydust.zig"
)

// Output layout of compiled artifacts.
const (
	// LimitedAPISuffix is the stable-ABI shared-library suffix.
	LimitedAPISuffix = ".abi3.so"
	// TestBinarySuffix is appended to the library name for test binaries.
	TestBinarySuffix = ".test.bin"
	// OutputDir is the toolchain's install prefix.
	OutputDir = "zig-out"
)

// ExtModule describes one native extension module.
type ExtModule struct {
	// Name is the dotted import name, e.g. "pkg.sub.mod".
	Name string `toml:"name" yaml:"name" json:"name"`
	// Root is the path to the module's source entry file.
	Root string `toml:"root" yaml:"root" json:"root"`
	// LimitedAPI selects the stable ABI. Only true is supported.
	LimitedAPI bool `toml:"limited_api" yaml:"limited_api" json:"limited_api"`
}

// LibName returns the last dotted segment of the module name.
func (m ExtModule) LibName() string {
	if i := strings.LastIndexByte(m.Name, '.'); i >= 0 {
		return m.Name[i+1:]
	}
	return m.Name
}

// InstallPath returns the path the shared library is installed to,
// relative to the project directory: "a.b.c" becomes "a/b/c.abi3.so".
//
// Only the limited API layout is defined. Other modules return an
// *UnsupportedError.
func (m ExtModule) InstallPath() (string, error) {
	if !m.LimitedAPI {
		return "", &UnsupportedError{
			Module:  m.Name,
			Feature: "install path for non-limited API module",
		}
	}
	return filepath.Join(strings.Split(m.Name, ".")...) + LimitedAPISuffix, nil
}

// TestBinaryPath returns the path of the module's compiled test binary.
func (m ExtModule) TestBinaryPath() string {
	return filepath.Join(OutputDir, "bin", m.LibName()+TestBinarySuffix)
}

// ToolConfig is the project-wide configuration. It is built once by the
// entry point and treated as immutable afterwards.
type ToolConfig struct {
	// Root is the directory containing module sources.
	Root string `json:"root"`
	// BuildScriptPath is where the generated build script is written.
	BuildScriptPath string `json:"build_script_path"`
	// SelfManaged means the user supplies their own build script.
	// ExtModules must be empty when set.
	SelfManaged bool `json:"self_managed"`
	// ZigTests enables collection of compiled unit tests.
	ZigTests bool `json:"zig_tests"`
	// ZigExe overrides the toolchain command. Empty means
	// "<PythonExe> -m ziglang".
	ZigExe string `json:"zig_exe,omitempty"`
	// PythonExe is the target interpreter.
	PythonExe string `json:"python_exe"`
	// PydustSource is the pydust Zig library root, relative to the build
	// script.
	PydustSource string `json:"pydust_source"`
	// ExtModules is the ordered module list.
	ExtModules []ExtModule `json:"ext_modules"`
}

// Validate checks the configuration invariants.
func (c *ToolConfig) Validate() error {
	if c.Root == "" {
		return &ConfigError{Field: "root", Msg: "must be non-empty"}
	}
	if c.BuildScriptPath == "" {
		return &ConfigError{Field: "build_script_path", Msg: "must be non-empty"}
	}
	if c.SelfManaged && len(c.ExtModules) > 0 {
		return &ConfigError{
			Field: "ext_modules",
			Msg:   fmt.Sprintf("must be empty when self_managed is true, got %d modules", len(c.ExtModules)),
		}
	}

	seen := make(map[string]struct{}, len(c.ExtModules))
	for i, m := range c.ExtModules {
		field := fmt.Sprintf("ext_modules[%d]", i)
		if m.Name == "" {
			return &ConfigError{Field: field + ".name", Msg: "must be non-empty"}
		}
		for _, part := range strings.Split(m.Name, ".") {
			if part == "" {
				return &ConfigError{Field: field + ".name", Msg: fmt.Sprintf("invalid dotted name %q", m.Name)}
			}
		}
		if m.Root == "" {
			return &ConfigError{Field: field + ".root", Msg: "must be non-empty"}
		}
		if _, dup := seen[m.Name]; dup {
			return &ConfigError{Field: field + ".name", Msg: fmt.Sprintf("duplicate module %q", m.Name)}
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

// Module returns the configured module with the given dotted name.
func (c *ToolConfig) Module(name string) (ExtModule, bool) {
	for _, m := range c.ExtModules {
		if m.Name == name {
			return m, true
		}
	}
	return ExtModule{}, false
}

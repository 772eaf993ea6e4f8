// Package zigexe builds and runs Zig toolchain invocations against a
// generated build script.
package zigexe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/justapithecus/pydust/buildzig"
	"github.com/justapithecus/pydust/types"
)

// CommandKind is the closed set of toolchain invocations.
type CommandKind int

const (
	// Install builds and installs every module library.
	Install CommandKind = iota
	// BuildLibrary compiles one module to a shared library.
	BuildLibrary
	// Test compiles one module's tests to a test runner without running it.
	Test
	// Debug compiles an ad-hoc root file to a debug binary.
	Debug
)

func (k CommandKind) String() string {
	switch k {
	case Install:
		return "install"
	case BuildLibrary:
		return "build-library"
	case Test:
		return "test"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Optimize is a Zig optimization mode.
type Optimize string

// Optimization modes.
const (
	OptimizeDebug        Optimize = "Debug"
	OptimizeReleaseSafe  Optimize = "ReleaseSafe"
	OptimizeReleaseFast  Optimize = "ReleaseFast"
	OptimizeReleaseSmall Optimize = "ReleaseSmall"
)

// ParseOptimize parses an optimization mode, case-insensitively.
func ParseOptimize(s string) (Optimize, error) {
	for _, o := range []Optimize{OptimizeDebug, OptimizeReleaseSafe, OptimizeReleaseFast, OptimizeReleaseSmall} {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", fmt.Errorf("invalid optimize mode: %q (must be Debug, ReleaseSafe, ReleaseFast, or ReleaseSmall)", s)
}

// Request describes one toolchain invocation.
type Request struct {
	Kind CommandKind
	// Module is required for BuildLibrary and Test, and must be nil otherwise.
	Module *types.ExtModule
	// Optimize defaults to OptimizeDebug.
	Optimize Optimize
	// DebugRoot is the ad-hoc root file for Debug.
	DebugRoot string
}

// Argv returns the full argument vector for req.
func Argv(cfg *types.ToolConfig, req Request) ([]string, error) {
	argv, err := toolchain(cfg)
	if err != nil {
		return nil, err
	}

	step, err := stepFor(req)
	if err != nil {
		return nil, err
	}

	optimize := req.Optimize
	if optimize == "" {
		optimize = OptimizeDebug
	}

	argv = append(argv,
		"build",
		"--build-file", cfg.BuildScriptPath,
		step,
		fmt.Sprintf("-D%s=%s", buildzig.OptionOptimize, optimize),
		fmt.Sprintf("-D%s=%s", buildzig.OptionPythonExe, pythonExe(cfg)),
	)
	if req.Kind == Debug {
		argv = append(argv, fmt.Sprintf("-D%s=%s", buildzig.OptionDebugRoot, req.DebugRoot))
	}
	return argv, nil
}

func stepFor(req Request) (string, error) {
	switch req.Kind {
	case Install:
		if req.Module != nil {
			return "", fmt.Errorf("%s does not take a module", req.Kind)
		}
		return buildzig.InstallStep, nil
	case BuildLibrary:
		if req.Module == nil {
			return "", fmt.Errorf("%s requires a module", req.Kind)
		}
		if _, err := req.Module.InstallPath(); err != nil {
			return "", err
		}
		return buildzig.LibStep(*req.Module), nil
	case Test:
		if req.Module == nil {
			return "", fmt.Errorf("%s requires a module", req.Kind)
		}
		return buildzig.TestStep(*req.Module), nil
	case Debug:
		if req.Module != nil {
			return "", fmt.Errorf("%s does not take a module", req.Kind)
		}
		if req.DebugRoot == "" {
			return "", fmt.Errorf("%s requires a root file", req.Kind)
		}
		return buildzig.InstallStep, nil
	default:
		return "", fmt.Errorf("unknown command kind %s", req.Kind)
	}
}

// toolchain returns the command prefix running Zig: the configured zig_exe
// split into words, or the ziglang package of the target interpreter.
func toolchain(cfg *types.ToolConfig) ([]string, error) {
	if cfg.ZigExe == "" {
		return []string{pythonExe(cfg), "-m", "ziglang"}, nil
	}
	words, err := shlex.Split(cfg.ZigExe)
	if err != nil {
		return nil, &types.ConfigError{Field: "zig_exe", Msg: fmt.Sprintf("cannot parse %q", cfg.ZigExe), Err: err}
	}
	if len(words) == 0 {
		return nil, &types.ConfigError{Field: "zig_exe", Msg: "is blank"}
	}
	words[0] = expandHome(words[0])
	return words, nil
}

func pythonExe(cfg *types.ToolConfig) string {
	if cfg.PythonExe == "" {
		return types.DefaultPythonExe
	}
	return cfg.PythonExe
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

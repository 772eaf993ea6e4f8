// Package buildzig renders a project configuration into a build.zig script
// for the Zig build system.
//
// The script declares one shared library and one test runner per extension
// module, named steps to build either for a single module, and an optional
// debug executable gated on -Ddebug-root. Output depends only on the
// configuration, so regenerating an unchanged project is byte-identical.
package buildzig

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/pydust/types"
)

// Step names declared by the generated script.
const (
	InstallStep   = "install"
	TestBuildStep = "pydust-test-build"
)

// Build options declared by the generated script.
const (
	OptionOptimize  = "optimize"
	OptionPythonExe = "python-exe"
	OptionDebugRoot = "debug-root"
)

// DebugBinary is the install name of the -Ddebug-root executable, relative
// to the bin directory.
const DebugBinary = "debug.bin"

// LibStep returns the step building one module's shared library.
func LibStep(m types.ExtModule) string {
	return "lib-" + m.Name
}

// TestStep returns the step building one module's test runner.
func TestStep(m types.ExtModule) string {
	return "test-" + m.Name
}

// Generate validates cfg and writes its build script to out. Nothing is
// written when validation or rendering fails.
func Generate(out io.Writer, cfg *types.ToolConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := render(w, cfg); err != nil {
		return err
	}
	if err := w.Err(); err != nil {
		return err
	}

	if _, err := out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write build script: %w", err)
	}
	return nil
}

// WriteFile regenerates cfg.BuildScriptPath, overwriting any previous
// contents.
func WriteFile(cfg *types.ToolConfig) error {
	var buf bytes.Buffer
	if err := Generate(&buf, cfg); err != nil {
		return err
	}
	if dir := filepath.Dir(cfg.BuildScriptPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create build script directory: %w", err)
		}
	}
	if err := os.WriteFile(cfg.BuildScriptPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write build script %s: %w", cfg.BuildScriptPath, err)
	}
	return nil
}

func render(w *Writer, cfg *types.ToolConfig) error {
	pydustSource := cfg.PydustSource
	if pydustSource == "" {
		pydustSource = types.DefaultPydustSource
	}
	pythonExe := cfg.PythonExe
	if pythonExe == "" {
		pythonExe = types.DefaultPythonExe
	}

	w.Line("// Generated by pydust. Do not edit; changes are overwritten on every build.")
	w.Line(`const std = @import("std");`)
	w.Blank()

	var renderErr error
	w.Block("pub fn build(b: *std.Build) void", func() {
		w.Text(`
			const target = b.standardTargetOptions(.{});
			const optimize = b.standardOptimizeOption(.{});
		`)
		w.Linef(`const python_exe = b.option([]const u8, %s, "Python executable to build against") orelse %s;`,
			zigString(OptionPythonExe), zigString(pythonExe))
		w.Linef(`const debug_root = b.option([]const u8, %s, "Root file compiled to a debug binary");`,
			zigString(OptionDebugRoot))
		w.Blank()
		w.Text(`
			const python_include = pythonConfig(b, python_exe, "include");
			const python_libdir = pythonConfig(b, python_exe, "libdir");
			const python_lib = pythonConfig(b, python_exe, "lib");
		`)
		w.Scope("const pydust = b.createModule(.{", "});", func() {
			w.Linef(".source_file = .{ .path = %s },", zigString(filepath.ToSlash(pydustSource)))
		})
		w.Blank()
		w.Linef(`const test_step = b.step(%s, "Build pydust test runners");`, zigString(TestBuildStep))
		if len(cfg.ExtModules) == 0 {
			w.Line("_ = test_step;")
		}
		w.Blank()

		for _, m := range cfg.ExtModules {
			if err := renderModule(w, cfg, m); err != nil {
				renderErr = err
				return
			}
		}

		renderDebug(w, cfg)
	})
	if renderErr != nil {
		return renderErr
	}
	w.Blank()

	w.Block("fn pythonConfig(b: *std.Build, python_exe: []const u8, key: []const u8) []const u8", func() {
		w.Text(`
			const program = b.fmt(
			    \\import sysconfig
			    \\v = {{"include": sysconfig.get_path("include"), "libdir": sysconfig.get_config_var("LIBDIR"), "lib": "python" + sysconfig.get_config_var("py_version_short")}}
			    \\print(v["{s}"], end="")
			, .{key});
			return b.exec(&.{ python_exe, "-c", program });
		`)
	})
	return nil
}

func renderModule(w *Writer, cfg *types.ToolConfig, m types.ExtModule) error {
	installPath, err := m.InstallPath()
	if err != nil {
		return err
	}

	w.Linef("// %s", m.Name)
	w.Block("", func() {
		w.Line("const options = b.addOptions();")
		w.Linef("options.addOption([:0]const u8, \"module_name\", %s);", zigString(m.Name))
		w.Linef("options.addOption(bool, \"limited_api\", %t);", m.LimitedAPI)
		w.Linef("options.addOption([:0]const u8, \"hexversion\", %s);", zigString(types.LimitedAPIHexVersion))
		w.Blank()

		renderCompileStep(w, cfg, m, "lib", "b.addSharedLibrary")
		w.Line("lib.linker_allow_shlib_undefined = true;")
		w.Linef("const install_lib = b.addInstallFileWithDir(lib.getEmittedBin(), .{ .custom = \"..\" }, %s);",
			zigString(filepath.ToSlash(installPath)))
		w.Line("b.getInstallStep().dependOn(&install_lib.step);")
		w.Linef("b.step(%s, %s).dependOn(&install_lib.step);",
			zigString(LibStep(m)), zigString("Build the "+m.Name+" extension module"))
		w.Blank()

		renderCompileStep(w, cfg, m, "lib_test", "b.addTest")
		w.Text(`
			lib_test.addLibraryPath(.{ .path = python_libdir });
			lib_test.linkSystemLibrary(python_lib);
			lib_test.linkLibC();
		`)
		w.Linef("const install_test = b.addInstallFileWithDir(lib_test.getEmittedBin(), .bin, %s);",
			zigString(filepath.Base(m.TestBinaryPath())))
		w.Line("test_step.dependOn(&install_test.step);")
		w.Linef("b.step(%s, %s).dependOn(&install_test.step);",
			zigString(TestStep(m)), zigString("Build the "+m.Name+" test runner"))
	})
	w.Blank()
	return nil
}

// renderCompileStep declares a compile step named ident for module m.
func renderCompileStep(w *Writer, cfg *types.ToolConfig, m types.ExtModule, ident, ctor string) {
	w.Scope(fmt.Sprintf("const %s = %s(.{", ident, ctor), "});", func() {
		w.Linef(".name = %s,", zigString(m.LibName()))
		w.Linef(".root_source_file = .{ .path = %s },", zigString(filepath.ToSlash(m.Root)))
		w.Linef(".main_pkg_path = .{ .path = %s },", zigString(filepath.ToSlash(cfg.Root)))
		w.Line(".target = target,")
		w.Line(".optimize = optimize,")
	})
	w.Linef("%s.addOptions(\"pyconf\", options);", ident)
	w.Linef("%s.addModule(\"pydust\", pydust);", ident)
	w.Linef("%s.addIncludePath(.{ .path = python_include });", ident)
}

// renderDebug emits the -Ddebug-root target. It is always present in the
// script and only built when the option is passed.
func renderDebug(w *Writer, cfg *types.ToolConfig) {
	w.Block("if (debug_root) |root|", func() {
		w.Scope("const debug_bin = b.addExecutable(.{", "});", func() {
			w.Line(`.name = "debug",`)
			w.Line(".root_source_file = .{ .path = root },")
			w.Linef(".main_pkg_path = .{ .path = %s },", zigString(filepath.ToSlash(cfg.Root)))
			w.Line(".target = target,")
			w.Line(".optimize = optimize,")
		})
		w.Text(`
			debug_bin.addModule("pydust", pydust);
			debug_bin.addIncludePath(.{ .path = python_include });
			debug_bin.addLibraryPath(.{ .path = python_libdir });
			debug_bin.linkSystemLibrary(python_lib);
			debug_bin.linkLibC();
		`)
		w.Linef("const install_debug = b.addInstallFileWithDir(debug_bin.getEmittedBin(), .bin, %s);",
			zigString(DebugBinary))
		w.Line("b.getInstallStep().dependOn(&install_debug.step);")
	})
}

// zigString quotes s as a Zig string literal.
func zigString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

package zigexe

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/justapithecus/pydust/types"
)

func testConfig() *types.ToolConfig {
	return &types.ToolConfig{
		Root:            "src/",
		BuildScriptPath: "build.zig",
		PythonExe:       "/usr/bin/python3.11",
		ExtModules: []types.ExtModule{
			{Name: "fib._lib", Root: "fib/fib.zig", LimitedAPI: true},
		},
	}
}

func TestArgv(t *testing.T) {
	cfg := testConfig()
	fib := cfg.ExtModules[0]
	prefix := []string{"/usr/bin/python3.11", "-m", "ziglang", "build", "--build-file", "build.zig"}

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "install",
			req:  Request{Kind: Install, Optimize: OptimizeReleaseSafe},
			want: []string{"install", "-Doptimize=ReleaseSafe", "-Dpython-exe=/usr/bin/python3.11"},
		},
		{
			name: "build library",
			req:  Request{Kind: BuildLibrary, Module: &fib, Optimize: OptimizeReleaseFast},
			want: []string{"lib-fib._lib", "-Doptimize=ReleaseFast", "-Dpython-exe=/usr/bin/python3.11"},
		},
		{
			name: "test defaults to debug",
			req:  Request{Kind: Test, Module: &fib},
			want: []string{"test-fib._lib", "-Doptimize=Debug", "-Dpython-exe=/usr/bin/python3.11"},
		},
		{
			name: "debug",
			req:  Request{Kind: Debug, DebugRoot: "example/debug.zig"},
			want: []string{"install", "-Doptimize=Debug", "-Dpython-exe=/usr/bin/python3.11", "-Ddebug-root=example/debug.zig"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Argv(cfg, tt.req)
			if err != nil {
				t.Fatalf("Argv failed: %v", err)
			}
			want := append(append([]string{}, prefix...), tt.want...)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Argv = %q, want %q", got, want)
			}
		})
	}
}

func TestArgv_InvalidRequests(t *testing.T) {
	cfg := testConfig()
	fib := cfg.ExtModules[0]

	tests := []struct {
		name string
		req  Request
	}{
		{name: "install with module", req: Request{Kind: Install, Module: &fib}},
		{name: "build library without module", req: Request{Kind: BuildLibrary}},
		{name: "test without module", req: Request{Kind: Test}},
		{name: "debug without root", req: Request{Kind: Debug}},
		{name: "debug with module", req: Request{Kind: Debug, Module: &fib, DebugRoot: "x.zig"}},
		{name: "unknown kind", req: Request{Kind: CommandKind(99)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Argv(cfg, tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestArgv_BuildLibraryNonLimitedAPI(t *testing.T) {
	m := types.ExtModule{Name: "fib._lib", Root: "fib/fib.zig", LimitedAPI: false}
	_, err := Argv(testConfig(), Request{Kind: BuildLibrary, Module: &m})
	if !errors.Is(err, types.ErrUnsupported) {
		t.Errorf("Argv = %v, want ErrUnsupported", err)
	}
}

func TestArgv_ZigExe(t *testing.T) {
	cfg := testConfig()
	cfg.ZigExe = `"/opt/zig 0.11/zig" --color off`

	got, err := Argv(cfg, Request{Kind: Install})
	if err != nil {
		t.Fatalf("Argv failed: %v", err)
	}
	want := []string{"/opt/zig 0.11/zig", "--color", "off", "build"}
	if !reflect.DeepEqual(got[:4], want) {
		t.Errorf("Argv prefix = %q, want %q", got[:4], want)
	}
}

func TestArgv_ZigExeHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := testConfig()
	cfg.ZigExe = "~/zig/zig"

	got, err := Argv(cfg, Request{Kind: Install})
	if err != nil {
		t.Fatalf("Argv failed: %v", err)
	}
	if want := filepath.Join(home, "zig", "zig"); got[0] != want {
		t.Errorf("argv[0] = %q, want %q", got[0], want)
	}
}

func TestArgv_ZigExeBlank(t *testing.T) {
	cfg := testConfig()
	cfg.ZigExe = "   "

	_, err := Argv(cfg, Request{Kind: Install})
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Argv = %v, want *types.ConfigError", err)
	}
}

func TestParseOptimize(t *testing.T) {
	for _, s := range []string{"Debug", "releasesafe", "ReleaseFast", "RELEASESMALL"} {
		if _, err := ParseOptimize(s); err != nil {
			t.Errorf("ParseOptimize(%q) failed: %v", s, err)
		}
	}
	if got, _ := ParseOptimize("releasesafe"); got != OptimizeReleaseSafe {
		t.Errorf("ParseOptimize(releasesafe) = %q, want %q", got, OptimizeReleaseSafe)
	}
	if _, err := ParseOptimize("O3"); err == nil {
		t.Error("ParseOptimize(O3) should fail")
	}
}

func TestCommandKind_String(t *testing.T) {
	want := map[CommandKind]string{
		Install:      "install",
		BuildLibrary: "build-library",
		Test:         "test",
		Debug:        "debug",
	}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("%d.String() = %q, want %q", int(k), k.String(), s)
		}
	}
}

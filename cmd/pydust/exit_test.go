package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"
)

// captureExit replaces osExit and stderr for one test.
func captureExit(t *testing.T) (code *int, out *bytes.Buffer) {
	t.Helper()
	code = new(int)
	*code = -1
	out = &bytes.Buffer{}

	prevExit, prevStderr := osExit, stderr
	osExit = func(c int) { *code = c }
	stderr = out
	t.Cleanup(func() {
		osExit, stderr = prevExit, prevStderr
	})
	return code, out
}

func TestExitErrHandler_NilError(t *testing.T) {
	code, out := captureExit(t)
	exitErrHandler(nil, nil)
	if *code != -1 {
		t.Errorf("exit called with %d, want no exit", *code)
	}
	if out.Len() != 0 {
		t.Errorf("stderr = %q, want empty", out.String())
	}
}

func TestExitErrHandler_ExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{"success no message", cli.Exit("", 0), 0, ""},
		{"test failure no message", cli.Exit("", 1), 1, ""},
		{"build error", cli.Exit("zig build failed (exit code 1): zig build install", 2), 2, "zig build failed (exit code 1): zig build install\n"},
		{"protocol error", cli.Exit("test server crashed (exit code 134): EOF", 3), 3, "test server crashed (exit code 134): EOF\n"},
		{"config error", cli.Exit("invalid config pyproject.toml: root: must be non-empty", 4), 4, "invalid config pyproject.toml: root: must be non-empty\n"},
		{"wrapped", fmt.Errorf("context: %w", cli.Exit("inner", 42)), 42, "inner\n"},
		{"joined", errors.Join(errors.New("context"), cli.Exit("", 2)), 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := captureExit(t)
			exitErrHandler(nil, tt.err)
			if *code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", *code, tt.wantCode)
			}
			if out.String() != tt.wantOut {
				t.Errorf("stderr = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestExitErrHandler_RegularError(t *testing.T) {
	code, out := captureExit(t)
	exitErrHandler(nil, errors.New("regular error"))
	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if out.String() != "Error: regular error\n" {
		t.Errorf("stderr = %q", out.String())
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	want := []string{"build", "install", "generate", "test", "list", "history", "debug", "version"}
	if len(app.Commands) != len(want) {
		t.Fatalf("len(Commands) = %d, want %d", len(app.Commands), len(want))
	}
	for i, name := range want {
		if app.Commands[i].Name != name {
			t.Errorf("Commands[%d] = %q, want %q", i, app.Commands[i].Name, name)
		}
	}
}

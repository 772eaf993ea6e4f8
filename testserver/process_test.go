package testserver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lib.test.bin")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestProcessManager_ExitCode(t *testing.T) {
	path := writeScript(t, `printf '%s' "$1"; exit 3`)
	proc := NewProcessManager(&ProcessConfig{BinaryPath: path})

	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	out, err := io.ReadAll(proc.Stdout())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(out) != ListenFlag {
		t.Errorf("argv[1] = %q, want %q", out, ListenFlag)
	}

	status, err := proc.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", status.ExitCode)
	}
}

func TestProcessManager_Stderr(t *testing.T) {
	path := writeScript(t, `echo "leak" >&2`)
	var stderr strings.Builder
	proc := NewProcessManager(&ProcessConfig{BinaryPath: path, Stderr: &stderr})

	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, _ = io.ReadAll(proc.Stdout())
	if _, err := proc.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if stderr.String() != "leak\n" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "leak\n")
	}
}

func TestProcessManager_Kill(t *testing.T) {
	path := writeScript(t, `exec sleep 30`)
	proc := NewProcessManager(&ProcessConfig{BinaryPath: path})

	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	status, err := proc.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a signaled process", status.ExitCode)
	}
}

func TestProcessManager_WaitBeforeStart(t *testing.T) {
	proc := NewProcessManager(&ProcessConfig{BinaryPath: "lib.test.bin"})
	if _, err := proc.Wait(); err == nil {
		t.Error("Wait() error = nil, want error")
	}
}

func TestProcessManager_MissingBinary(t *testing.T) {
	proc := NewProcessManager(&ProcessConfig{BinaryPath: filepath.Join(t.TempDir(), "missing")})
	if err := proc.Start(context.Background()); err == nil {
		t.Error("Start() error = nil, want error")
	}
}

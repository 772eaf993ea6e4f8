package testserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
)

// ListenFlag turns a compiled test binary into a protocol server over its
// own stdin and stdout.
const ListenFlag = "--listen=-"

// ProcessConfig configures a test server process.
type ProcessConfig struct {
	// BinaryPath is the compiled test binary.
	BinaryPath string
	// Stderr receives the child's stderr. Nil discards it.
	Stderr io.Writer
}

// ExitStatus is how a test server process ended.
type ExitStatus struct {
	// ExitCode is the process exit code, or -1 when it was signaled.
	ExitCode int
}

// Process abstracts test server process lifecycle for testing.
type Process interface {
	Start(ctx context.Context) error
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Wait reaps the process. Stdout must be fully consumed first.
	Wait() (*ExitStatus, error)
	Kill() error
}

// ProcessFactory creates a Process. Used for test injection.
type ProcessFactory func(config *ProcessConfig) Process

// ProcessManager runs a test binary as a child process.
type ProcessManager struct {
	config *ProcessConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// NewProcessManager creates a new process manager.
func NewProcessManager(config *ProcessConfig) Process {
	return &ProcessManager{config: config}
}

// Start starts the test binary with ListenFlag.
func (m *ProcessManager) Start(ctx context.Context) error {
	m.cmd = exec.CommandContext(ctx, m.config.BinaryPath, ListenFlag)
	m.cmd.Stderr = m.config.Stderr

	stdin, err := m.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	m.stdin = stdin

	stdout, err := m.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	m.stdout = stdout

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start test server %s: %w", m.config.BinaryPath, err)
	}
	return nil
}

// Stdin returns the request pipe.
func (m *ProcessManager) Stdin() io.WriteCloser {
	return m.stdin
}

// Stdout returns the response pipe.
func (m *ProcessManager) Stdout() io.Reader {
	return m.stdout
}

// Wait waits for the process to exit.
func (m *ProcessManager) Wait() (*ExitStatus, error) {
	if m.cmd == nil {
		return nil, errors.New("test server not started")
	}

	err := m.cmd.Wait()
	if err == nil {
		return &ExitStatus{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("test server wait failed: %w", err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Exited() {
		return &ExitStatus{ExitCode: status.ExitStatus()}, nil
	}
	return &ExitStatus{ExitCode: -1}, nil
}

// Kill terminates the process.
func (m *ProcessManager) Kill() error {
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Kill()
	}
	return nil
}

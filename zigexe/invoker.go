package zigexe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/justapithecus/pydust/log"
	"github.com/justapithecus/pydust/metrics"
	"github.com/justapithecus/pydust/types"
)

// BuildError reports a toolchain invocation that did not exit 0.
type BuildError struct {
	Argv []string
	// ExitCode is -1 when the process could not start or was signaled.
	ExitCode int
	Err      error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("zig build failed (exit code %d): %s", e.ExitCode, QuoteArgv(e.Argv))
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Invoker runs toolchain commands to completion. Output of the child is
// passed through, never parsed.
type Invoker struct {
	config    *types.ToolConfig
	logger    *log.Logger
	collector *metrics.Collector
	stdout    io.Writer
	stderr    io.Writer
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(i *Invoker) {
		i.stdout = stdout
		i.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(i *Invoker) { i.logger = logger }
}

// WithCollector records build outcomes in collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(i *Invoker) { i.collector = collector }
}

// NewInvoker creates an Invoker for cfg.
func NewInvoker(cfg *types.ToolConfig, opts ...Option) *Invoker {
	i := &Invoker{
		config: cfg,
		logger: log.Nop(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Argv returns the argument vector Run would execute for req.
func (i *Invoker) Argv(req Request) ([]string, error) {
	return Argv(i.config, req)
}

// Run executes req and blocks until the toolchain exits. A non-zero exit
// is returned as *BuildError.
func (i *Invoker) Run(ctx context.Context, req Request) error {
	argv, err := i.Argv(req)
	if err != nil {
		return err
	}

	fields := map[string]any{"command": req.Kind.String(), "argv": argv}
	if req.Module != nil {
		fields["module"] = req.Module.Name
	}
	i.logger.Info("running zig", fields)
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = i.stdout
	cmd.Stderr = i.stderr

	if err := cmd.Run(); err != nil {
		i.collector.IncBuildFailed()
		buildErr := &BuildError{Argv: argv, ExitCode: exitCode(err)}
		if buildErr.ExitCode == -1 {
			buildErr.Err = err
		}
		i.logger.Error("zig failed", map[string]any{
			"command":   req.Kind.String(),
			"exit_code": buildErr.ExitCode,
			"error":     err.Error(),
		})
		return buildErr
	}

	i.collector.IncBuildSucceeded()
	i.logger.Info("zig finished", map[string]any{
		"command":     req.Kind.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// exitCode extracts the exit status from a Run/Wait error, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Exited() {
			return status.ExitStatus()
		}
	}
	return -1
}

// QuoteArgv renders argv as a shell command line.
func QuoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = quoteArg(arg)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.ContainsRune("@%+=:,./-_", c)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

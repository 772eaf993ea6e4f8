// Package testserver drives compiled Zig test binaries through the
// test-server protocol.
//
// Every operation is one session: spawn the binary, read its version,
// exchange one request and response, then tear the process down. Sessions
// are never reused, so a crash in one test cannot affect another.
package testserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/justapithecus/pydust/iox"
	"github.com/justapithecus/pydust/ipc"
	"github.com/justapithecus/pydust/log"
	"github.com/justapithecus/pydust/metrics"
	"github.com/justapithecus/pydust/types"
)

// DefaultCrashGrace is how long a server that stopped responding is given
// to exit on its own before it is killed.
const DefaultCrashGrace = time.Second

// ProcessCrashError reports a test server that exited abnormally while a
// response was expected.
type ProcessCrashError struct {
	// ExitCode is the observed exit code, or -1 when signaled.
	ExitCode int
	Err      error
}

func (e *ProcessCrashError) Error() string {
	return fmt.Sprintf("test server crashed (exit code %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessCrashError) Unwrap() error {
	return e.Err
}

// IsProcessCrash reports whether err is or wraps a *ProcessCrashError.
func IsProcessCrash(err error) bool {
	var crashErr *ProcessCrashError
	return errors.As(err, &crashErr)
}

// Metadata is the result of a metadata query.
type Metadata struct {
	// Version is the server's reported Zig version.
	Version string
	Tests   []types.TestMetadata
}

// RunResult is the result of one test execution.
type RunResult struct {
	Outcome types.TestOutcome
	// Stderr is everything the test wrote to stderr.
	Stderr string
}

// Client runs sessions against one compiled test binary.
type Client struct {
	binaryPath string
	factory    ProcessFactory
	logger     *log.Logger
	collector  *metrics.Collector
	scratchDir string
	crashGrace time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithProcessFactory overrides process creation (for testing).
func WithProcessFactory(factory ProcessFactory) Option {
	return func(c *Client) { c.factory = factory }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithCollector records session activity in collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Client) { c.collector = collector }
}

// WithScratchDir sets where stderr scratch files are created. Empty means
// the system temp directory.
func WithScratchDir(dir string) Option {
	return func(c *Client) { c.scratchDir = dir }
}

// WithCrashGrace overrides DefaultCrashGrace.
func WithCrashGrace(d time.Duration) Option {
	return func(c *Client) { c.crashGrace = d }
}

// NewClient creates a client for the test binary at binaryPath.
func NewClient(binaryPath string, opts ...Option) *Client {
	c := &Client{
		binaryPath: binaryPath,
		factory:    NewProcessManager,
		logger:     log.Nop(),
		crashGrace: DefaultCrashGrace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryMetadata runs a metadata session and returns the discovered tests in
// server order.
func (c *Client) QueryMetadata(ctx context.Context) (*Metadata, error) {
	s, err := c.open(ctx, "query_test_metadata", nil)
	if err != nil {
		return nil, err
	}
	defer s.teardown()

	if err := s.send(func(enc *ipc.Encoder) error { return enc.WriteQueryTestMetadata() }); err != nil {
		return nil, c.fail(s, err)
	}
	blob, err := s.dec.Expect(ipc.ResponseTestMetadata)
	if err != nil {
		return nil, c.fail(s, err)
	}
	tests, err := ipc.DecodeTestMetadata(blob)
	if err != nil {
		return nil, c.fail(s, err)
	}

	c.collector.IncMetadataQuery()
	s.logger.Debug("test metadata received", map[string]any{"tests": len(tests)})
	return &Metadata{Version: s.version, Tests: tests}, nil
}

// RunTest runs the test at index in a fresh session. The returned
// RunResult carries captured stderr whenever the process was spawned, even
// when an error is returned.
func (c *Client) RunTest(ctx context.Context, index uint32) (*RunResult, error) {
	scratch, err := os.CreateTemp(c.scratchDir, "pydust-stderr-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr scratch file: %w", err)
	}
	defer iox.ReleaseTemp(scratch)

	outcome, runErr := c.runTest(ctx, index, scratch)

	// The session is torn down by now, so the file is complete.
	stderr, readErr := os.ReadFile(scratch.Name())
	result := &RunResult{Outcome: outcome, Stderr: string(stderr)}
	if runErr != nil {
		return result, runErr
	}
	if readErr != nil {
		return result, fmt.Errorf("failed to read captured stderr: %w", readErr)
	}
	return result, nil
}

func (c *Client) runTest(ctx context.Context, index uint32, stderr io.Writer) (types.TestOutcome, error) {
	outcome := types.TestOutcome{Index: index}

	s, err := c.open(ctx, "run_test", stderr)
	if err != nil {
		return outcome, err
	}
	defer s.teardown()
	s.logger = s.logger.With(map[string]any{"test_index": index})

	if err := s.send(func(enc *ipc.Encoder) error { return enc.WriteRunTest(index) }); err != nil {
		return outcome, c.fail(s, err)
	}
	body, err := s.dec.Expect(ipc.ResponseTestResults)
	if err != nil {
		return outcome, c.fail(s, err)
	}
	echoed, flags, err := ipc.DecodeTestResults(body)
	if err != nil {
		return outcome, c.fail(s, err)
	}
	if echoed != index {
		return outcome, c.fail(s, &ipc.ProtocolError{
			Kind: ipc.ErrorMalformed,
			Msg:  fmt.Sprintf("test_results for index %d, requested %d", echoed, index),
		})
	}

	outcome = flags.Outcome(index)
	s.logger.Debug("test finished", map[string]any{
		"failed":  outcome.Failed,
		"skipped": outcome.Skipped,
		"leaked":  outcome.Leaked,
	})
	return outcome, nil
}

// session is one spawned test server past its version handshake.
type session struct {
	ctx     context.Context
	proc    Process
	stdin   *bufio.Writer
	enc     *ipc.Encoder
	dec     *ipc.Decoder
	version string
	logger  *log.Logger
	// exit is set once the process has been reaped.
	exit *ExitStatus
}

// open spawns the test binary and performs the version handshake.
func (c *Client) open(ctx context.Context, purpose string, stderr io.Writer) (*session, error) {
	logger := c.logger.With(map[string]any{
		"session_id": uuid.New().String(),
		"binary":     c.binaryPath,
		"purpose":    purpose,
	})

	proc := c.factory(&ProcessConfig{BinaryPath: c.binaryPath, Stderr: stderr})
	if err := proc.Start(ctx); err != nil {
		logger.Error("failed to start test server", map[string]any{"error": err.Error()})
		return nil, err
	}
	c.collector.IncSessionStarted()

	stdin := bufio.NewWriter(proc.Stdin())
	s := &session{
		ctx:    ctx,
		proc:   proc,
		stdin:  stdin,
		enc:    ipc.NewEncoder(stdin),
		dec:    ipc.NewDecoder(bufio.NewReader(proc.Stdout())),
		logger: logger,
	}

	version, err := s.dec.Expect(ipc.ResponseZigVersion)
	if err == nil && !utf8.Valid(version) {
		err = &ipc.ProtocolError{Kind: ipc.ErrorMalformed, Msg: "zig_version body is not valid UTF-8"}
	}
	if err != nil {
		err = c.fail(s, err)
		s.teardown()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	s.version = string(version)
	logger.Debug("test server ready", map[string]any{"zig_version": s.version})
	return s, nil
}

// send writes one request and flushes it before any response is read.
func (s *session) send(write func(*ipc.Encoder) error) error {
	if err := write(s.enc); err != nil {
		return err
	}
	if err := s.stdin.Flush(); err != nil {
		return fmt.Errorf("failed to flush request: %w", err)
	}
	return nil
}

// fail classifies a session error. When the server stopped responding the
// process is given crashGrace to exit on its own; an abnormal exit becomes a
// *ProcessCrashError, anything else stays a protocol error. A cancelled
// session context is reported as cancellation, never as a crash.
func (c *Client) fail(s *session, err error) error {
	if !isStreamFailure(err) {
		if ipc.IsProtocolError(err) {
			c.collector.IncProtocolError()
		}
		s.logger.Error("test server session failed", map[string]any{"error": err.Error()})
		return err
	}

	iox.DiscardClose(s.proc.Stdin())
	var killed atomic.Bool
	timer := time.AfterFunc(c.crashGrace, func() {
		killed.Store(true)
		iox.DiscardErr(s.proc.Kill)
	})
	status, waitErr := s.proc.Wait()
	timer.Stop()
	s.exit = status
	if s.exit == nil {
		s.exit = &ExitStatus{ExitCode: -1}
	}

	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.logger.Warn("test server session cancelled", map[string]any{
			"error":     ctxErr.Error(),
			"exit_code": s.exit.ExitCode,
		})
		return fmt.Errorf("test server session cancelled: %w", ctxErr)
	}

	if errors.Is(err, io.EOF) {
		err = &ipc.ProtocolError{Kind: ipc.ErrorPartial, Msg: "stream closed while awaiting response", Err: err}
	}
	if waitErr == nil && !killed.Load() && status.ExitCode != 0 {
		c.collector.IncProcessCrash()
		s.logger.Error("test server crashed", map[string]any{"exit_code": status.ExitCode})
		return &ProcessCrashError{ExitCode: status.ExitCode, Err: err}
	}

	c.collector.IncProtocolError()
	s.logger.Error("test server stream failed", map[string]any{
		"error":     err.Error(),
		"exit_code": s.exit.ExitCode,
	})
	return err
}

// isStreamFailure reports whether err means the server stopped producing
// or accepting bytes, as opposed to sending something wrong.
func isStreamFailure(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var protoErr *ipc.ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Kind == ipc.ErrorPartial
	}
	// Anything else is a write to a broken request pipe.
	return true
}

// teardown closes the request pipe, kills the process and reaps it. Safe
// to call after fail already reaped the process.
func (s *session) teardown() {
	iox.DiscardClose(s.proc.Stdin())
	if s.exit != nil {
		return
	}
	iox.DiscardErr(s.proc.Kill)
	status, err := s.proc.Wait()
	if err != nil {
		s.logger.Warn("failed to reap test server", map[string]any{"error": err.Error()})
		status = &ExitStatus{ExitCode: -1}
	}
	s.exit = status
}

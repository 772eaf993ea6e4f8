// Package collector maps compiled Zig test binaries onto a test run: one
// File per extension module, one Item per test the binary reports.
package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/justapithecus/pydust/log"
	"github.com/justapithecus/pydust/metrics"
	"github.com/justapithecus/pydust/testserver"
	"github.com/justapithecus/pydust/types"
)

// ZigSuffix is the source suffix of collectable module roots.
const ZigSuffix = ".zig"

// Client runs test-server sessions against one test binary.
type Client interface {
	QueryMetadata(ctx context.Context) (*testserver.Metadata, error)
	RunTest(ctx context.Context, index uint32) (*testserver.RunResult, error)
}

// ClientFactory creates a Client for a test binary. Used for test injection.
type ClientFactory func(binaryPath string) Client

// Collector discovers and runs the Zig tests of a project.
type Collector struct {
	config    *types.ToolConfig
	baseDir   string
	factory   ClientFactory
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures a Collector.
type Option func(*Collector)

// WithClientFactory overrides test-server client creation.
func WithClientFactory(factory ClientFactory) Option {
	return func(c *Collector) { c.factory = factory }
}

// WithBaseDir sets the project directory that relative module roots and
// test binaries resolve against. Defaults to the working directory.
func WithBaseDir(dir string) Option {
	return func(c *Collector) { c.baseDir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// WithMetrics records collection and outcomes in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Collector) { c.collector = collector }
}

// New creates a Collector for config.
func New(config *types.ToolConfig, opts ...Option) *Collector {
	c := &Collector{
		config: config,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.factory == nil {
		logger, collector := c.logger, c.collector
		c.factory = func(binaryPath string) Client {
			return testserver.NewClient(binaryPath,
				testserver.WithLogger(logger),
				testserver.WithCollector(collector),
			)
		}
	}
	return c
}

// CollectFile returns the File for path when path is the root of a
// configured module and Zig tests are enabled.
func (c *Collector) CollectFile(path string) (*File, bool) {
	if !c.config.ZigTests || filepath.Ext(path) != ZigSuffix {
		return nil, false
	}
	target, err := c.abs(path)
	if err != nil {
		return nil, false
	}
	for _, m := range c.config.ExtModules {
		root, err := c.abs(m.Root)
		if err != nil {
			continue
		}
		if root == target {
			return c.file(m), true
		}
	}
	return nil, false
}

// Files returns one File per configured module, in configuration order.
// It is empty when Zig tests are disabled.
func (c *Collector) Files() []*File {
	if !c.config.ZigTests {
		return nil
	}
	files := make([]*File, 0, len(c.config.ExtModules))
	for _, m := range c.config.ExtModules {
		files = append(files, c.file(m))
	}
	return files
}

func (c *Collector) file(m types.ExtModule) *File {
	return &File{
		Module:    m,
		collector: c,
		logger:    c.logger.With(map[string]any{"module": m.Name}),
	}
}

func (c *Collector) abs(path string) (string, error) {
	if !filepath.IsAbs(path) && c.baseDir != "" {
		path = filepath.Join(c.baseDir, path)
	}
	return filepath.Abs(path)
}

// File is the collection unit of one module.
type File struct {
	Module types.ExtModule
	// ZigVersion is the version the binary reported, set by Collect.
	ZigVersion string
	collector  *Collector
	logger     *log.Logger
}

// BinaryPath returns the module's compiled test binary.
func (f *File) BinaryPath() string {
	path := f.Module.TestBinaryPath()
	if f.collector.baseDir != "" {
		path = filepath.Join(f.collector.baseDir, path)
	}
	return path
}

// Collect queries the test binary once and returns one Item per test, in
// the order the binary reports them. Any session error aborts collection
// of the whole module.
func (f *File) Collect(ctx context.Context) ([]*Item, error) {
	md, err := f.collector.factory(f.BinaryPath()).QueryMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", f.Module.Name, err)
	}

	f.ZigVersion = md.Version
	items := make([]*Item, 0, len(md.Tests))
	for _, test := range md.Tests {
		items = append(items, &Item{Test: test, file: f})
	}
	f.collector.collector.AddTestsCollected(len(items))
	f.logger.Info("collected zig tests", map[string]any{
		"tests":       len(items),
		"zig_version": md.Version,
	})
	return items, nil
}

// Item is one discovered test.
type Item struct {
	Test types.TestMetadata
	file *File
}

// Module returns the module the test belongs to.
func (i *Item) Module() types.ExtModule {
	return i.file.Module
}

// NodeID returns the item's address: "<module root>::<test name>".
func (i *Item) NodeID() string {
	return i.file.Module.Root + "::" + i.Test.Name
}

// Run executes the test in its own session and maps its flags to a
// Report. Stderr is always attached. On a session error the report has
// OutcomeError and the error is returned as well.
func (i *Item) Run(ctx context.Context) (*Report, error) {
	logger := i.file.logger.With(map[string]any{"test": i.Test.Name})
	counters := i.file.collector.collector

	report := &Report{
		NodeID:  i.NodeID(),
		Module:  i.file.Module.Name,
		Test:    i.Test.Name,
		Outcome: OutcomePassed,
		Flags:   types.TestOutcome{Index: i.Test.Index},
	}

	start := time.Now()
	result, err := i.file.collector.factory(i.file.BinaryPath()).RunTest(ctx, i.Test.Index)
	report.duration = time.Since(start)
	report.DurationMs = report.duration.Milliseconds()

	if result != nil {
		report.Sections = append(report.Sections, Section{When: WhenCall, Key: SectionStderr, Content: result.Stderr})
	}
	if err != nil {
		report.Outcome = OutcomeError
		report.Message = fmt.Sprintf("Zig test crashed: %v", err)
		logger.Error("zig test session failed", map[string]any{"error": err.Error()})
		return report, fmt.Errorf("run %s: %w", report.NodeID, err)
	}

	report.Flags = result.Outcome
	if report.Flags.Leaked {
		report.Sections = append(report.Sections, Section{
			When:    WhenCall,
			Key:     SectionLeaks,
			Content: fmt.Sprintf("Zig detected a memory leak in '%s'", report.NodeID),
		})
		counters.IncTestLeaked()
	}

	switch {
	case report.Flags.Failed || report.Flags.Leaked:
		report.Outcome = OutcomeFailed
		report.Message = FailureMessage
		counters.IncTestFailed()
	case report.Flags.Skipped:
		report.Outcome = OutcomeSkipped
		counters.IncTestSkipped()
	default:
		counters.IncTestPassed()
	}

	logger.Debug("zig test finished", map[string]any{
		"outcome":     string(report.Outcome),
		"duration_ms": report.DurationMs,
	})
	return report, nil
}

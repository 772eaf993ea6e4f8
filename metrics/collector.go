// Package metrics counts build and test-server activity for one pydust
// invocation.
//
// The Collector is a leaf package with no internal dependencies. All
// methods are nil-receiver safe so callers may pass a nil *Collector to
// disable collection.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	Project string `json:"project" yaml:"project" msgpack:"project"`

	// Builds
	BuildsSucceeded int64 `json:"builds_succeeded" yaml:"builds_succeeded" msgpack:"builds_succeeded"`
	BuildsFailed    int64 `json:"builds_failed" yaml:"builds_failed" msgpack:"builds_failed"`

	// Test-server sessions
	SessionsStarted int64 `json:"sessions_started" yaml:"sessions_started" msgpack:"sessions_started"`
	MetadataQueries int64 `json:"metadata_queries" yaml:"metadata_queries" msgpack:"metadata_queries"`
	ProtocolErrors  int64 `json:"protocol_errors" yaml:"protocol_errors" msgpack:"protocol_errors"`
	ProcessCrashes  int64 `json:"process_crashes" yaml:"process_crashes" msgpack:"process_crashes"`

	// Test outcomes
	TestsCollected int64 `json:"tests_collected" yaml:"tests_collected" msgpack:"tests_collected"`
	TestsPassed    int64 `json:"tests_passed" yaml:"tests_passed" msgpack:"tests_passed"`
	TestsFailed    int64 `json:"tests_failed" yaml:"tests_failed" msgpack:"tests_failed"`
	TestsSkipped   int64 `json:"tests_skipped" yaml:"tests_skipped" msgpack:"tests_skipped"`
	TestsLeaked    int64 `json:"tests_leaked" yaml:"tests_leaked" msgpack:"tests_leaked"`
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector labelled with the project name.
func NewCollector(project string) *Collector {
	return &Collector{s: Snapshot{Project: project}}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Builds ---

// IncBuildSucceeded records a toolchain invocation that exited 0.
func (c *Collector) IncBuildSucceeded() {
	c.add(func(s *Snapshot) *int64 { return &s.BuildsSucceeded }, 1)
}

// IncBuildFailed records a failed toolchain invocation.
func (c *Collector) IncBuildFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.BuildsFailed }, 1)
}

// --- Sessions ---

// IncSessionStarted records a spawned test server.
func (c *Collector) IncSessionStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.SessionsStarted }, 1)
}

// IncMetadataQuery records a completed metadata query.
func (c *Collector) IncMetadataQuery() {
	c.add(func(s *Snapshot) *int64 { return &s.MetadataQueries }, 1)
}

// IncProtocolError records a session aborted by a protocol error.
func (c *Collector) IncProtocolError() {
	c.add(func(s *Snapshot) *int64 { return &s.ProtocolErrors }, 1)
}

// IncProcessCrash records a test server that exited abnormally mid-session.
func (c *Collector) IncProcessCrash() {
	c.add(func(s *Snapshot) *int64 { return &s.ProcessCrashes }, 1)
}

// --- Tests ---

// AddTestsCollected records n discovered tests.
func (c *Collector) AddTestsCollected(n int) {
	c.add(func(s *Snapshot) *int64 { return &s.TestsCollected }, int64(n))
}

// IncTestPassed records a passing test.
func (c *Collector) IncTestPassed() {
	c.add(func(s *Snapshot) *int64 { return &s.TestsPassed }, 1)
}

// IncTestFailed records a failing test.
func (c *Collector) IncTestFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.TestsFailed }, 1)
}

// IncTestSkipped records a skipped test.
func (c *Collector) IncTestSkipped() {
	c.add(func(s *Snapshot) *int64 { return &s.TestsSkipped }, 1)
}

// IncTestLeaked records a test that leaked memory. Leaks are also failures
// and are counted by IncTestFailed separately.
func (c *Collector) IncTestLeaked() {
	c.add(func(s *Snapshot) *int64 { return &s.TestsLeaked }, 1)
}

// --- Snapshot ---

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

package types

// TestNamePrefix marks internal test namespacing in compiled test names.
const TestNamePrefix = "test."

// TestMetadata describes one test discovered from a test server.
type TestMetadata struct {
	// Index is the zero-based position used to request execution.
	Index uint32 `json:"index" yaml:"index" msgpack:"index"`
	// Name is the test name with TestNamePrefix stripped.
	Name string `json:"name" yaml:"name" msgpack:"name"`
	// AsyncFrameSize is set only for async tests.
	AsyncFrameSize *string `json:"async_frame_size,omitempty" yaml:"async_frame_size,omitempty" msgpack:"async_frame_size,omitempty"`
	// ExpectedPanic is set only for tests declaring an expected panic.
	ExpectedPanic *string `json:"expected_panic,omitempty" yaml:"expected_panic,omitempty" msgpack:"expected_panic,omitempty"`
}

// TestOutcome holds the result flags of one executed test.
// The flags are independent: a test may both fail and leak.
type TestOutcome struct {
	Index   uint32 `json:"index" yaml:"index" msgpack:"index"`
	Failed  bool   `json:"failed" yaml:"failed" msgpack:"failed"`
	Skipped bool   `json:"skipped" yaml:"skipped" msgpack:"skipped"`
	Leaked  bool   `json:"leaked" yaml:"leaked" msgpack:"leaked"`
}

package ipc

import (
	"encoding/binary"

	"github.com/justapithecus/pydust/types"
)

// TestResultsSize is the size of a test_results body.
const TestResultsSize = 8

// TestFlags is the flags word of a test_results body.
type TestFlags uint32

// Flag bits. Higher bits are reserved and ignored.
const (
	FlagFailed  TestFlags = 1 << 0
	FlagSkipped TestFlags = 1 << 1
	FlagLeaked  TestFlags = 1 << 2
)

// Outcome maps the flag bits onto a TestOutcome for index.
func (f TestFlags) Outcome(index uint32) types.TestOutcome {
	return types.TestOutcome{
		Index:   index,
		Failed:  f&FlagFailed != 0,
		Skipped: f&FlagSkipped != 0,
		Leaked:  f&FlagLeaked != 0,
	}
}

// DecodeTestResults decodes a test_results body into its echoed index and
// flags.
func DecodeTestResults(body []byte) (uint32, TestFlags, error) {
	if len(body) != TestResultsSize {
		return 0, 0, malformed("test_results body is %d bytes, want %d", len(body), TestResultsSize)
	}
	index := binary.LittleEndian.Uint32(body[0:4])
	flags := TestFlags(binary.LittleEndian.Uint32(body[4:8]))
	return index, flags, nil
}

// EncodeTestResults encodes a test_results body.
func EncodeTestResults(index uint32, flags TestFlags) []byte {
	body := make([]byte, TestResultsSize)
	binary.LittleEndian.PutUint32(body[0:4], index)
	binary.LittleEndian.PutUint32(body[4:8], uint32(flags))
	return body
}

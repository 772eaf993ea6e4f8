package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/justapithecus/pydust/types"
)

// metadataPrefixSize covers string_table_len and test_count.
const metadataPrefixSize = 8

// DecodeTestMetadata decodes a test_metadata body.
//
// Layout: string_table_len (u32), test_count (u32), then three arrays of
// test_count u32 offsets (names, async frame sizes, expected panics), and a
// trailing string table of string_table_len bytes holding NUL-terminated
// strings. Offsets index the string table; 0 means absent for the two
// optional arrays. The blob is untrusted: every offset is bounds checked.
func DecodeTestMetadata(blob []byte) ([]types.TestMetadata, error) {
	if len(blob) < metadataPrefixSize {
		return nil, malformed("metadata blob is %d bytes, need at least %d", len(blob), metadataPrefixSize)
	}
	stringTableLen := uint64(binary.LittleEndian.Uint32(blob[0:4]))
	testCount := uint64(binary.LittleEndian.Uint32(blob[4:8]))

	arraysLen := 3 * 4 * testCount
	if need := metadataPrefixSize + arraysLen + stringTableLen; uint64(len(blob)) < need {
		return nil, malformed("metadata blob is %d bytes, need %d for %d tests and %d string bytes",
			len(blob), need, testCount, stringTableLen)
	}

	arrays := blob[metadataPrefixSize : metadataPrefixSize+arraysLen]
	table := blob[uint64(len(blob))-stringTableLen:]
	offset := func(array, i uint64) uint32 {
		at := (array*testCount + i) * 4
		return binary.LittleEndian.Uint32(arrays[at : at+4])
	}

	tests := make([]types.TestMetadata, 0, testCount)
	for i := uint64(0); i < testCount; i++ {
		name, err := lookupString(table, offset(0, i))
		if err != nil {
			return nil, fmt.Errorf("test %d name: %w", i, err)
		}
		meta := types.TestMetadata{
			Index: uint32(i),
			Name:  strings.TrimPrefix(name, types.TestNamePrefix),
		}
		if off := offset(1, i); off != 0 {
			s, err := lookupString(table, off)
			if err != nil {
				return nil, fmt.Errorf("test %d async frame size: %w", i, err)
			}
			meta.AsyncFrameSize = &s
		}
		if off := offset(2, i); off != 0 {
			s, err := lookupString(table, off)
			if err != nil {
				return nil, fmt.Errorf("test %d expected panic: %w", i, err)
			}
			meta.ExpectedPanic = &s
		}
		tests = append(tests, meta)
	}
	return tests, nil
}

// lookupString returns the NUL-terminated UTF-8 string at off.
func lookupString(table []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(table)) {
		return "", malformed("string offset %d outside %d byte string table", off, len(table))
	}
	rest := table[off:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", malformed("string at offset %d is not NUL-terminated", off)
	}
	if !utf8.Valid(rest[:end]) {
		return "", malformed("string at offset %d is not valid UTF-8", off)
	}
	return string(rest[:end]), nil
}

// EncodeTestMetadata builds a metadata blob in the layout read by
// DecodeTestMetadata. Names are written as given. Offset 0 of the string
// table is reserved so that optional fields can be absent.
func EncodeTestMetadata(tests []types.TestMetadata) []byte {
	table := []byte{0}
	intern := func(s string) uint32 {
		off := uint32(len(table))
		table = append(table, s...)
		table = append(table, 0)
		return off
	}

	n := len(tests)
	arrays := make([]uint32, 3*n)
	for i, t := range tests {
		arrays[i] = intern(t.Name)
		if t.AsyncFrameSize != nil {
			arrays[n+i] = intern(*t.AsyncFrameSize)
		}
		if t.ExpectedPanic != nil {
			arrays[2*n+i] = intern(*t.ExpectedPanic)
		}
	}

	blob := make([]byte, metadataPrefixSize+4*len(arrays), metadataPrefixSize+4*len(arrays)+len(table))
	binary.LittleEndian.PutUint32(blob[0:4], uint32(len(table)))
	binary.LittleEndian.PutUint32(blob[4:8], uint32(n))
	for i, off := range arrays {
		binary.LittleEndian.PutUint32(blob[metadataPrefixSize+4*i:], off)
	}
	return append(blob, table...)
}

func malformed(format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: ErrorMalformed, Msg: fmt.Sprintf(format, args...)}
}

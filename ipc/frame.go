// Package ipc implements the test-server wire protocol spoken by compiled
// Zig test binaries started with --listen=-.
//
// Every message is an 8-byte header (tag, body length; both little-endian
// uint32) followed by exactly length body bytes.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame size constants.
const (
	// HeaderSize is the size of a message header in bytes.
	HeaderSize = 8
	// MaxBodySize bounds the body length accepted from a server (16 MiB).
	MaxBodySize = 16 * 1024 * 1024
)

// RequestTag identifies a client to server message.
type RequestTag uint32

// Request tags. Only QueryTestMetadata and RunTest are sent by pydust; the
// rest are reserved by the compiler server protocol.
const (
	RequestExit RequestTag = iota
	RequestUpdate
	RequestRun
	RequestHotUpdate
	// RequestQueryTestMetadata asks for the test table. No body.
	RequestQueryTestMetadata
	// RequestRunTest runs one test. Body is a uint32 test index.
	RequestRunTest
)

func (t RequestTag) String() string {
	switch t {
	case RequestExit:
		return "exit"
	case RequestUpdate:
		return "update"
	case RequestRun:
		return "run"
	case RequestHotUpdate:
		return "hot_update"
	case RequestQueryTestMetadata:
		return "query_test_metadata"
	case RequestRunTest:
		return "run_test"
	default:
		return fmt.Sprintf("request(%d)", uint32(t))
	}
}

// ResponseTag identifies a server to client message.
type ResponseTag uint32

// Response tags.
const (
	// ResponseZigVersion carries the server version as a UTF-8 string.
	ResponseZigVersion ResponseTag = iota
	ResponseErrorBundle
	ResponseProgress
	ResponseEmitBinPath
	// ResponseTestMetadata carries the metadata blob.
	ResponseTestMetadata
	// ResponseTestResults carries the index and flags of a finished test.
	ResponseTestResults
)

func (t ResponseTag) String() string {
	switch t {
	case ResponseZigVersion:
		return "zig_version"
	case ResponseErrorBundle:
		return "error_bundle"
	case ResponseProgress:
		return "progress"
	case ResponseEmitBinPath:
		return "emit_bin_path"
	case ResponseTestMetadata:
		return "test_metadata"
	case ResponseTestResults:
		return "test_results"
	default:
		return fmt.Sprintf("response(%d)", uint32(t))
	}
}

// Header is the fixed message header.
type Header struct {
	Tag    uint32
	Length uint32
}

// MarshalBinary encodes the header in wire order.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.put(buf)
	return buf, nil
}

// UnmarshalBinary decodes a header from exactly HeaderSize bytes.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return &ProtocolError{
			Kind: ErrorMalformed,
			Msg:  fmt.Sprintf("header must be %d bytes, got %d", HeaderSize, len(data)),
		}
	}
	h.Tag = binary.LittleEndian.Uint32(data[0:4])
	h.Length = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

func (h Header) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Tag)
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
}

// ErrorKind classifies protocol errors.
type ErrorKind int

const (
	// ErrorTagMismatch indicates a response with an unexpected tag.
	ErrorTagMismatch ErrorKind = iota
	// ErrorPartial indicates a truncated header or body.
	ErrorPartial
	// ErrorTooLarge indicates a body length above MaxBodySize.
	ErrorTooLarge
	// ErrorMalformed indicates a body that does not decode.
	ErrorMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTagMismatch:
		return "tag_mismatch"
	case ErrorPartial:
		return "partial"
	case ErrorTooLarge:
		return "too_large"
	case ErrorMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ProtocolError reports a desynchronized or invalid exchange. A session that
// returned a ProtocolError must not be reused.
type ProtocolError struct {
	Kind ErrorKind
	Msg  string
	// Want and Got are set for ErrorTagMismatch.
	Want ResponseTag
	Got  uint32
	Err  error
}

func (e *ProtocolError) Error() string {
	msg := e.Msg
	if e.Kind == ErrorTagMismatch {
		msg = fmt.Sprintf("unexpected response tag %d (%s), want %d (%s)",
			e.Got, ResponseTag(e.Got), uint32(e.Want), e.Want)
	}
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", msg, e.Err)
	}
	return "protocol error: " + msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

// Decoder reads messages from a test server's stdout.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a new message decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// ReadHeader reads one message header.
//
// Errors:
//   - io.EOF: the stream ended before any header byte
//   - *ProtocolError with Kind=ErrorPartial: truncated header
func (d *Decoder) ReadHeader() (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(d.reader, buf[:]); err != nil {
		if err == io.EOF {
			return Header{}, io.EOF
		}
		return Header{}, &ProtocolError{Kind: ErrorPartial, Msg: "failed to read header", Err: err}
	}
	var h Header
	_ = h.UnmarshalBinary(buf[:])
	return h, nil
}

// ReadBody reads exactly n body bytes.
func (d *Decoder) ReadBody(n uint32) ([]byte, error) {
	if n > MaxBodySize {
		return nil, &ProtocolError{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("body size %d exceeds maximum %d", n, MaxBodySize),
		}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(d.reader, body); err != nil {
		return nil, &ProtocolError{
			Kind: ErrorPartial,
			Msg:  fmt.Sprintf("failed to read %d byte body", n),
			Err:  err,
		}
	}
	return body, nil
}

// Expect reads one message and returns its body if the tag matches want.
// On a mismatch the body is left unread and a *ProtocolError is returned;
// the stream is desynchronized from then on.
func (d *Decoder) Expect(want ResponseTag) ([]byte, error) {
	h, err := d.ReadHeader()
	if err != nil {
		return nil, err
	}
	if h.Tag != uint32(want) {
		return nil, &ProtocolError{Kind: ErrorTagMismatch, Want: want, Got: h.Tag}
	}
	return d.ReadBody(h.Length)
}

// Encoder writes messages to a test server's stdin.
type Encoder struct {
	writer io.Writer
}

// NewEncoder creates a new message encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// WriteMessage writes a header and body as a single write.
func (e *Encoder) WriteMessage(tag RequestTag, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))
	Header{Tag: uint32(tag), Length: uint32(len(body))}.put(buf)
	copy(buf[HeaderSize:], body)
	if _, err := e.writer.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s request: %w", tag, err)
	}
	return nil
}

// WriteQueryTestMetadata writes a query_test_metadata request.
func (e *Encoder) WriteQueryTestMetadata() error {
	return e.WriteMessage(RequestQueryTestMetadata, nil)
}

// WriteRunTest writes a run_test request for the test at index.
func (e *Encoder) WriteRunTest(index uint32) error {
	var body [4]byte
	binary.LittleEndian.PutUint32(body[:], index)
	return e.WriteMessage(RequestRunTest, body[:])
}

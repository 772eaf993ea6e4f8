package testserver

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/justapithecus/pydust/ipc"
	"github.com/justapithecus/pydust/metrics"
	"github.com/justapithecus/pydust/types"
)

func strPtr(s string) *string { return &s }

func TestClient_QueryMetadata(t *testing.T) {
	tests := []types.TestMetadata{
		{Index: 0, Name: "addition"},
		{Index: 1, Name: "panics", ExpectedPanic: strPtr("reached unreachable code")},
		{Index: 2, Name: "async frame", AsyncFrameSize: strPtr("128")},
	}

	var configs []*ProcessConfig
	server := func(conn *serverConn) int {
		handshake(t, conn)
		tag, _, ok := readRequest(conn.stdin)
		if !ok || tag != ipc.RequestQueryTestMetadata {
			t.Errorf("request = %v (ok=%v), want %v", tag, ok, ipc.RequestQueryTestMetadata)
			return 1
		}
		writeMessage(t, conn.stdout, ipc.ResponseTestMetadata, ipc.EncodeTestMetadata(tests))
		<-conn.killed
		return 0
	}

	collector := metrics.NewCollector("demo")
	client := NewClient("zig-out/bin/lib.test.bin",
		WithProcessFactory(fakeFactory(server, &configs)),
		WithCollector(collector),
	)

	md, err := client.QueryMetadata(context.Background())
	if err != nil {
		t.Fatalf("QueryMetadata() error = %v", err)
	}
	if md.Version != testZigVersion {
		t.Errorf("Version = %q, want %q", md.Version, testZigVersion)
	}
	if diff := cmp.Diff(tests, md.Tests); diff != "" {
		t.Errorf("Tests mismatch (-want +got):\n%s", diff)
	}
	if len(configs) != 1 || configs[0].BinaryPath != "zig-out/bin/lib.test.bin" {
		t.Errorf("process configs = %+v, want one for the test binary", configs)
	}

	snap := collector.Snapshot()
	if snap.SessionsStarted != 1 {
		t.Errorf("SessionsStarted = %d, want 1", snap.SessionsStarted)
	}
	if snap.MetadataQueries != 1 {
		t.Errorf("MetadataQueries = %d, want 1", snap.MetadataQueries)
	}
}

func TestClient_QueryMetadata_Empty(t *testing.T) {
	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		writeMessage(t, conn.stdout, ipc.ResponseTestMetadata, ipc.EncodeTestMetadata(nil))
		<-conn.killed
		return 0
	}

	client := NewClient("lib.test.bin", WithProcessFactory(fakeFactory(server, nil)))
	md, err := client.QueryMetadata(context.Background())
	if err != nil {
		t.Fatalf("QueryMetadata() error = %v", err)
	}
	if len(md.Tests) != 0 {
		t.Errorf("len(Tests) = %d, want 0", len(md.Tests))
	}
}

func TestClient_QueryMetadata_TagMismatch(t *testing.T) {
	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		writeMessage(t, conn.stdout, ipc.ResponseTestResults, make([]byte, ipc.TestResultsSize))
		<-conn.killed
		return 0
	}

	collector := metrics.NewCollector("demo")
	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(server, nil)),
		WithCollector(collector),
	)
	_, err := client.QueryMetadata(context.Background())

	var protoErr *ipc.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want *ipc.ProtocolError", err)
	}
	if protoErr.Kind != ipc.ErrorTagMismatch {
		t.Errorf("Kind = %v, want %v", protoErr.Kind, ipc.ErrorTagMismatch)
	}
	if got := collector.Snapshot().ProtocolErrors; got != 1 {
		t.Errorf("ProtocolErrors = %d, want 1", got)
	}
}

func runTestServer(t *testing.T, flags ipc.TestFlags, stderr string) serverFunc {
	return func(conn *serverConn) int {
		handshake(t, conn)
		tag, body, ok := readRequest(conn.stdin)
		if !ok || tag != ipc.RequestRunTest || len(body) != 4 {
			t.Errorf("request = %v len %d (ok=%v), want run_test", tag, len(body), ok)
			return 1
		}
		index := binary.LittleEndian.Uint32(body)
		_, _ = conn.stderr.Write([]byte(stderr))
		writeMessage(t, conn.stdout, ipc.ResponseTestResults, ipc.EncodeTestResults(index, flags))
		<-conn.killed
		return 0
	}
}

func TestClient_RunTest(t *testing.T) {
	tests := []struct {
		name   string
		flags  ipc.TestFlags
		stderr string
		want   types.TestOutcome
	}{
		{"passed", 0, "", types.TestOutcome{Index: 2}},
		{"failed", ipc.FlagFailed, "expected 1, found 2\n", types.TestOutcome{Index: 2, Failed: true}},
		{"skipped", ipc.FlagSkipped, "", types.TestOutcome{Index: 2, Skipped: true}},
		{"leaked", ipc.FlagLeaked, "error(gpa): memory address leaked\n", types.TestOutcome{Index: 2, Leaked: true}},
		{"reserved bits", ipc.FlagFailed | 1<<7, "", types.TestOutcome{Index: 2, Failed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := t.TempDir()
			client := NewClient("lib.test.bin",
				WithProcessFactory(fakeFactory(runTestServer(t, tt.flags, tt.stderr), nil)),
				WithScratchDir(scratch),
			)

			result, err := client.RunTest(context.Background(), 2)
			if err != nil {
				t.Fatalf("RunTest() error = %v", err)
			}
			if result.Outcome != tt.want {
				t.Errorf("Outcome = %+v, want %+v", result.Outcome, tt.want)
			}
			if result.Stderr != tt.stderr {
				t.Errorf("Stderr = %q, want %q", result.Stderr, tt.stderr)
			}

			entries, err := os.ReadDir(scratch)
			if err != nil {
				t.Fatalf("ReadDir() error = %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("scratch dir has %d entries, want 0", len(entries))
			}
		})
	}
}

func TestClient_RunTest_IndexMismatch(t *testing.T) {
	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		writeMessage(t, conn.stdout, ipc.ResponseTestResults, ipc.EncodeTestResults(7, 0))
		<-conn.killed
		return 0
	}

	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(server, nil)),
		WithScratchDir(t.TempDir()),
	)
	_, err := client.RunTest(context.Background(), 3)

	var protoErr *ipc.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want *ipc.ProtocolError", err)
	}
	if protoErr.Kind != ipc.ErrorMalformed {
		t.Errorf("Kind = %v, want %v", protoErr.Kind, ipc.ErrorMalformed)
	}
}

func TestClient_RunTest_Crash(t *testing.T) {
	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		_, _ = conn.stderr.Write([]byte("panic: reached unreachable code\n"))
		return 134
	}

	collector := metrics.NewCollector("demo")
	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(server, nil)),
		WithCollector(collector),
		WithScratchDir(t.TempDir()),
	)
	result, err := client.RunTest(context.Background(), 0)

	var crashErr *ProcessCrashError
	if !errors.As(err, &crashErr) {
		t.Fatalf("error = %v, want *ProcessCrashError", err)
	}
	if crashErr.ExitCode != 134 {
		t.Errorf("ExitCode = %d, want 134", crashErr.ExitCode)
	}
	if !IsProcessCrash(err) {
		t.Error("IsProcessCrash() = false, want true")
	}
	if result == nil || !strings.Contains(result.Stderr, "unreachable") {
		t.Errorf("result = %+v, want captured stderr", result)
	}
	if got := collector.Snapshot().ProcessCrashes; got != 1 {
		t.Errorf("ProcessCrashes = %d, want 1", got)
	}
}

func TestClient_RunTest_PartialCleanExit(t *testing.T) {
	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		_, _ = conn.stdout.Write([]byte{byte(ipc.ResponseTestResults), 0, 0})
		return 0
	}

	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(server, nil)),
		WithScratchDir(t.TempDir()),
	)
	_, err := client.RunTest(context.Background(), 0)

	if IsProcessCrash(err) {
		t.Fatalf("error = %v, want protocol error", err)
	}
	var protoErr *ipc.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want *ipc.ProtocolError", err)
	}
	if protoErr.Kind != ipc.ErrorPartial {
		t.Errorf("Kind = %v, want %v", protoErr.Kind, ipc.ErrorPartial)
	}
}

func TestClient_RunTest_HungAfterClose(t *testing.T) {
	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		_ = conn.stdout.Close()
		<-conn.killed
		return 0
	}

	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(server, nil)),
		WithScratchDir(t.TempDir()),
		WithCrashGrace(10*time.Millisecond),
	)
	_, err := client.RunTest(context.Background(), 0)

	if IsProcessCrash(err) {
		t.Errorf("error = %v, want protocol error for a killed server", err)
	}
	if !ipc.IsProtocolError(err) {
		t.Errorf("error = %v, want *ipc.ProtocolError", err)
	}
}

func TestClient_RunTest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := func(conn *serverConn) int {
		handshake(t, conn)
		readRequest(conn.stdin)
		cancel()
		return 1
	}

	collector := metrics.NewCollector("demo")
	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(server, nil)),
		WithCollector(collector),
		WithScratchDir(t.TempDir()),
	)
	_, err := client.RunTest(ctx, 0)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if IsProcessCrash(err) {
		t.Errorf("IsProcessCrash() = true, want false for a cancelled session")
	}
	if got := collector.Snapshot().ProcessCrashes; got != 0 {
		t.Errorf("ProcessCrashes = %d, want 0", got)
	}
}

func TestClient_RunTest_DeadlineKillsServer(t *testing.T) {
	path := writeScript(t, `printf '\000\000\000\000\006\000\000\000%s' 0.11.0; exec sleep 30`)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	client := NewClient(path, WithScratchDir(t.TempDir()))
	_, err := client.RunTest(ctx, 0)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if IsProcessCrash(err) {
		t.Errorf("IsProcessCrash() = true, want false for a deadline")
	}
}

func TestClient_HandshakeCrash(t *testing.T) {
	server := func(conn *serverConn) int {
		return 1
	}

	client := NewClient("lib.test.bin", WithProcessFactory(fakeFactory(server, nil)))
	_, err := client.QueryMetadata(context.Background())

	if !IsProcessCrash(err) {
		t.Fatalf("error = %v, want *ProcessCrashError", err)
	}
	if !strings.Contains(err.Error(), "handshake") {
		t.Errorf("error = %q, want mention of handshake", err.Error())
	}
}

func TestClient_HandshakeInvalidVersion(t *testing.T) {
	server := func(conn *serverConn) int {
		writeMessage(t, conn.stdout, ipc.ResponseZigVersion, []byte{0xff, 0xfe})
		<-conn.killed
		return 0
	}

	client := NewClient("lib.test.bin", WithProcessFactory(fakeFactory(server, nil)))
	_, err := client.QueryMetadata(context.Background())

	var protoErr *ipc.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want *ipc.ProtocolError", err)
	}
	if protoErr.Kind != ipc.ErrorMalformed {
		t.Errorf("Kind = %v, want %v", protoErr.Kind, ipc.ErrorMalformed)
	}
}

func TestClient_StartError(t *testing.T) {
	startErr := errors.New("exec format error")
	factory := func(config *ProcessConfig) Process {
		return &fakeProcess{config: config, startErr: startErr}
	}

	client := NewClient("lib.test.bin", WithProcessFactory(factory), WithScratchDir(t.TempDir()))
	_, err := client.RunTest(context.Background(), 0)
	if !errors.Is(err, startErr) {
		t.Errorf("error = %v, want %v", err, startErr)
	}
}

func TestClient_FreshProcessPerRun(t *testing.T) {
	var configs []*ProcessConfig
	client := NewClient("lib.test.bin",
		WithProcessFactory(fakeFactory(runTestServer(t, 0, ""), &configs)),
		WithScratchDir(t.TempDir()),
	)

	for i := uint32(0); i < 3; i++ {
		if _, err := client.RunTest(context.Background(), i); err != nil {
			t.Fatalf("RunTest(%d) error = %v", i, err)
		}
	}
	if len(configs) != 3 {
		t.Errorf("processes spawned = %d, want 3", len(configs))
	}
}

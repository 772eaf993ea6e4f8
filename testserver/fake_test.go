package testserver

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/justapithecus/pydust/ipc"
)

var errKilled = errors.New("killed")

// serverConn is the test binary's side of a fake session.
type serverConn struct {
	stdin  io.Reader
	stdout io.WriteCloser
	stderr io.Writer
	killed <-chan struct{}
}

// serverFunc plays a test binary and returns its exit code.
type serverFunc func(conn *serverConn) int

// fakeProcess runs a serverFunc in a goroutine behind in-memory pipes.
type fakeProcess struct {
	config   *ProcessConfig
	server   serverFunc
	startErr error

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	killOnce sync.Once
	killedCh chan struct{}
	killed   atomic.Bool
	done     chan struct{}
	code     int
}

func (p *fakeProcess) Start(ctx context.Context) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.killedCh = make(chan struct{})
	p.done = make(chan struct{})

	stderr := p.config.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	conn := &serverConn{stdin: p.stdinR, stdout: p.stdoutW, stderr: stderr, killed: p.killedCh}
	go func() {
		code := p.server(conn)
		_ = p.stdoutW.Close()
		_ = p.stdinR.Close()
		p.code = code
		close(p.done)
	}()
	return nil
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }

func (p *fakeProcess) Wait() (*ExitStatus, error) {
	<-p.done
	if p.killed.Load() {
		return &ExitStatus{ExitCode: -1}, nil
	}
	return &ExitStatus{ExitCode: p.code}, nil
}

func (p *fakeProcess) Kill() error {
	p.killOnce.Do(func() {
		p.killed.Store(true)
		close(p.killedCh)
		_ = p.stdinR.CloseWithError(errKilled)
		_ = p.stdoutR.CloseWithError(errKilled)
	})
	return nil
}

// fakeFactory returns a ProcessFactory running server and records the
// configs it was called with.
func fakeFactory(server serverFunc, configs *[]*ProcessConfig) ProcessFactory {
	return func(config *ProcessConfig) Process {
		if configs != nil {
			*configs = append(*configs, config)
		}
		return &fakeProcess{config: config, server: server}
	}
}

func writeMessage(t *testing.T, w io.Writer, tag ipc.ResponseTag, body []byte) {
	t.Helper()
	var header [ipc.HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(tag))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	if _, err := w.Write(append(header[:], body...)); err != nil {
		t.Errorf("server write failed: %v", err)
	}
}

// readRequest reads one request from the client. ok is false when the
// client went away.
func readRequest(r io.Reader) (tag ipc.RequestTag, body []byte, ok bool) {
	var header [ipc.HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, false
	}
	body = make([]byte, binary.LittleEndian.Uint32(header[4:8]))
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, false
	}
	return ipc.RequestTag(binary.LittleEndian.Uint32(header[0:4])), body, true
}

const testZigVersion = "0.11.0"

func handshake(t *testing.T, conn *serverConn) {
	t.Helper()
	writeMessage(t, conn.stdout, ipc.ResponseZigVersion, []byte(testZigVersion))
}

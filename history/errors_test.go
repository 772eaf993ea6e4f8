package history

import (
	"errors"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o" }
func (timeoutError) Timeout() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"timeout interface", timeoutError{}, ErrTimeout},
		{"local permission", errors.New("open /x: permission denied"), ErrPermissionDenied},
		{"s3 access denied", errors.New("api error AccessDenied: Access Denied (403)"), ErrAccessDenied},
		{"missing file", errors.New("open /x: no such file or directory"), ErrNotFound},
		{"missing key", errors.New("NoSuchKey: The specified key does not exist"), ErrNotFound},
		{"disk full", errors.New("write: no space left on device"), ErrDiskFull},
		{"deadline", errors.New("context deadline exceeded"), ErrTimeout},
		{"throttled", errors.New("SlowDown: Please reduce your request rate"), ErrThrottled},
		{"credentials", errors.New("failed to retrieve credentials"), ErrAuth},
		{"network", errors.New("dial tcp 127.0.0.1:9000: connection refused"), ErrNetwork},
		{"other", errors.New("boom"), ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("open /x: permission denied")
	err := wrap("write", "session_id=s", cause)

	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("errors.Is(err, ErrPermissionDenied) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatal("errors.As(*StorageError) = false, want true")
	}
	if storageErr.Op != "write" {
		t.Errorf("Op = %q, want %q", storageErr.Op, "write")
	}
	want := "history write session_id=s: permission denied: open /x: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if wrap("read", "", nil) != nil {
		t.Error("wrap(nil) != nil")
	}
}

package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	lockPath := filepath.Join(stateDir, LockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file should exist while held: %v", err)
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if !strings.Contains(string(data), "pid=") {
		t.Errorf("lock file should record the holder PID, got %q", string(data))
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
}

func TestAcquireConflict(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	_, err = AcquireLock(stateDir)
	if err == nil {
		t.Fatal("second acquire on a held lock should fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T: %v", err, err)
	}
	if !strings.Contains(lockErr.ExistingInfo, "running") {
		t.Errorf("lock error should report the running holder, got %q", lockErr.ExistingInfo)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	lock2, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	defer lock2.Release()
}

func TestCreatesStateDirectory(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("AcquireLock should create the state directory: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(stateDir); err != nil {
		t.Errorf("state directory should exist: %v", err)
	}
}

func TestExtractPIDFromLockInfo(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"pid=1234\nstarted=2026-01-01T00:00:00Z\n", 1234},
		{"pid=\n", 0},
		{"garbage", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := extractPIDFromLockInfo(tt.content); got != tt.want {
			t.Errorf("extractPIDFromLockInfo(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func TestLockErrorMessage(t *testing.T) {
	cause := errors.New("resource temporarily unavailable")
	err := &LockError{LockPath: "/tmp/state/goalpipe.lock", ExistingInfo: "PID 99 (running)", Cause: cause}

	msg := err.Error()
	if !strings.Contains(msg, "/tmp/state/goalpipe.lock") {
		t.Errorf("error should name the lock path, got %q", msg)
	}
	if !strings.Contains(msg, "PID 99") {
		t.Errorf("error should describe the holder, got %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("LockError should unwrap to its cause")
	}
}

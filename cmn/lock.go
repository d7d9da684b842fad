package cmn

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// LockFileName is the advisory lock taken in the temp dir to prevent two
// concurrent recovery runs from racing each other (spec §6).
const LockFileName = ".dc-recovery.lock"

// RunLock holds an exclusive advisory lock for the lifetime of one
// recovery run.
type RunLock struct {
	f *os.File
}

// AcquireLock takes an exclusive, non-blocking advisory lock on
// <tempDir>/LockFileName. It refuses to start (Configuration/precondition
// error kind, §7) rather than wait or race a concurrently running
// recovery process.
func AcquireLock(tempDir string) (*RunLock, error) {
	path := filepath.Join(tempDir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cmn: open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("cmn: another recovery run holds %s: %w", path, err)
	}
	return &RunLock{f: f}, nil
}

// Release drops the lock and closes the underlying file.
func (l *RunLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

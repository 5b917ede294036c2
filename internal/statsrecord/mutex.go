package statsrecord

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// NamedMutex is a cross-process mutex backed by flock(2) on a well-known
// file. Go has no binding for POSIX named semaphores in golang.org/x/sys;
// flock is the idiomatic stdlib-adjacent substitute for "a mutex two
// unrelated processes can both open by name", and the semantics spec §3
// actually needs (mutual exclusion, not counting) are a strict subset of
// what a named semaphore offers.
type NamedMutex struct {
	f *os.File
}

// OpenNamedMutex opens (creating if necessary) the lock file at path.
func OpenNamedMutex(path string) (*NamedMutex, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("statsrecord: open mutex file: %w", err)
	}
	return &NamedMutex{f: f}, nil
}

// Lock blocks until the exclusive flock is acquired.
func (m *NamedMutex) Lock() error {
	return unix.Flock(int(m.f.Fd()), unix.LOCK_EX)
}

// Unlock releases the flock.
func (m *NamedMutex) Unlock() error {
	return unix.Flock(int(m.f.Fd()), unix.LOCK_UN)
}

// Close closes the underlying lock file descriptor.
func (m *NamedMutex) Close() error {
	return m.f.Close()
}

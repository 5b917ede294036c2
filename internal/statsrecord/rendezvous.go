package statsrecord

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// RendezvousFile is the well-known path carrying the ASCII PID of the
// currently running samfsd, per spec §6.
const RendezvousFile = "/tmp/.samd"

// ShmDir is where the shared segment and its companion lock file live.
// /dev/shm is tmpfs-backed on Linux, matching the "shared memory, not disk"
// intent of the original POSIX shm_open-based design.
const ShmDir = "/dev/shm"

// ReadRendezvous returns the PID recorded in RendezvousFile, or 0 if the
// file does not exist or is unreadable.
func ReadRendezvous() int {
	b, err := os.ReadFile(RendezvousFile)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}

// WriteRendezvous overwrites RendezvousFile with pid.
func WriteRendezvous(pid int) error {
	return os.WriteFile(RendezvousFile, []byte(strconv.Itoa(pid)), 0644)
}

// IsAlive probes whether pid names a live process, via the conventional
// kill(pid, 0) liveness check (no signal is actually delivered).
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil
}

// MutexPath returns the flock file path for the segment owned by pid.
func MutexPath(shmDir string, pid int) string {
	return fmt.Sprintf("%s/samfs.%d.lock", shmDir, pid)
}

// Open implements the full lifecycle from spec §3: reattach to a live
// server's segment, or recreate one under the current process's PID,
// updating the rendezvous file as needed. method is only used when a new
// segment is created.
func Open(serverName, serverIP, serverDir string, method uint32) (*Record, int, error) {
	if prev := ReadRendezvous(); prev != 0 && IsAlive(prev) {
		mu, err := OpenNamedMutex(MutexPath(ShmDir, prev))
		if err != nil {
			return nil, 0, err
		}
		rec, err := Attach(ShmDir, prev, mu)
		if err != nil {
			mu.Close()
			return nil, 0, err
		}
		return rec, prev, nil
	}

	pid := os.Getpid()
	mu, err := OpenNamedMutex(MutexPath(ShmDir, pid))
	if err != nil {
		return nil, 0, err
	}
	rec, err := Create(ShmDir, pid, mu)
	if err != nil {
		mu.Close()
		return nil, 0, err
	}
	if err := mu.Lock(); err != nil {
		return nil, 0, err
	}
	rec.Init(serverName, serverIP, serverDir, pid, method)
	if err := mu.Unlock(); err != nil {
		return nil, 0, err
	}
	if err := WriteRendezvous(pid); err != nil {
		return nil, 0, err
	}
	return rec, pid, nil
}

// OpenViewer attaches to the currently recorded server's segment for
// read-mostly access from the -status viewer. It fails if no live server
// is recorded.
func OpenViewer() (*Record, int, error) {
	pid := ReadRendezvous()
	if !IsAlive(pid) {
		return nil, 0, fmt.Errorf("statsrecord: no live samfsd recorded in %s", RendezvousFile)
	}
	mu, err := OpenNamedMutex(MutexPath(ShmDir, pid))
	if err != nil {
		return nil, 0, err
	}
	rec, err := Attach(ShmDir, pid, mu)
	if err != nil {
		mu.Close()
		return nil, 0, err
	}
	return rec, pid, nil
}

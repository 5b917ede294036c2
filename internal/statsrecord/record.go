// Package statsrecord implements the shared, cross-process statistics
// record described by the spec: a small segment of POSIX shared memory,
// reattached by PID across invocations of the same binary, mutated under a
// named (flock-based) mutex, and readable without the mutex for the
// dashboard's non-critical fields.
package statsrecord

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Record is an explicitly owned handle onto the shared segment — callers
// thread it through the dispatcher, the handlers, and the status viewer
// rather than reaching for a package-level singleton (see spec design
// notes on cyclic/global state).
type Record struct {
	mu     *NamedMutex
	procMu sync.Mutex
	data   []byte
	l      *layout
	file   *os.File
}

// Create maps a fresh shared segment sized for one layout, backed by a
// file under shmDir (normally /dev/shm), and keyed by pid. It truncates any
// existing segment under the same key.
func Create(shmDir string, pid int, mu *NamedMutex) (*Record, error) {
	path := segmentPath(shmDir, pid)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("statsrecord: create segment: %w", err)
	}
	if err := f.Truncate(int64(layoutSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("statsrecord: size segment: %w", err)
	}
	return mapRecord(f, mu)
}

// Attach maps the existing shared segment for pid. Callers must first
// confirm pid is a live samfsd via IsAlive.
func Attach(shmDir string, pid int, mu *NamedMutex) (*Record, error) {
	path := segmentPath(shmDir, pid)
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("statsrecord: attach segment: %w", err)
	}
	return mapRecord(f, mu)
}

func mapRecord(f *os.File, mu *NamedMutex) (*Record, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, layoutSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("statsrecord: mmap: %w", err)
	}
	return &Record{
		mu:   mu,
		data: data,
		l:    (*layout)(unsafe.Pointer(&data[0])),
		file: f,
	}, nil
}

func segmentPath(dir string, pid int) string {
	return fmt.Sprintf("%s/samfs.%d.stat", dir, pid)
}

// Close unmaps the segment. It does not delete the backing file — the
// rendezvous file, not the segment file, decides whether a later
// invocation reattaches or recreates.
func (r *Record) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return err
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	return r.mu.Close()
}

// Init sets the identity fields. Callers must hold Lock.
func (r *Record) Init(name, ip, dir string, pid int, method uint32) {
	putFixed(r.l.serverName[:], name)
	putFixed(r.l.serverIP[:], ip)
	putFixed(r.l.serverDir[:], dir)
	r.l.serverPID = uint32(pid)
	atomic.StoreUint32(&r.l.concMethod, method)
}

func putFixed(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	copy(dst, s[:n])
}

func fixedString(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

// Lock acquires the mutex guarding every field below. flock(2) locks are
// scoped to the open file description, not the calling thread, so two
// goroutines in the same process sharing one Record (and therefore one
// fd) would not exclude each other through the flock alone — a second
// LOCK_EX from the same file description that already holds the lock
// returns immediately rather than blocking. procMu adds the real
// intra-process mutual exclusion the named flock is missing; the flock
// itself still provides the cross-process exclusion described in spec §5.
func (r *Record) Lock() error {
	r.procMu.Lock()
	if err := r.mu.Lock(); err != nil {
		r.procMu.Unlock()
		return err
	}
	return nil
}

// Unlock releases both the in-process and named cross-process mutex.
func (r *Record) Unlock() error {
	err := r.mu.Unlock()
	r.procMu.Unlock()
	return err
}

// ServerName, ServerIP, ServerDir, ServerPID are safe to read without the
// mutex: they are set once at Init and never mutated afterward.
func (r *Record) ServerName() string { return fixedString(r.l.serverName[:]) }
func (r *Record) ServerIP() string   { return fixedString(r.l.serverIP[:]) }
func (r *Record) ServerDir() string  { return fixedString(r.l.serverDir[:]) }
func (r *Record) ServerPID() uint32  { return r.l.serverPID }

// ConcMethod is read with an atomic load so the accept loop never observes
// a torn value when an operator changes discipline mid-flight (spec design
// notes, mode-change open question).
func (r *Record) ConcMethod() uint32 { return atomic.LoadUint32(&r.l.concMethod) }

// SetConcMethod atomically changes the active discipline. Safe to call
// without Lock/Unlock since it is a single aligned word.
func (r *Record) SetConcMethod(m uint32) { atomic.StoreUint32(&r.l.concMethod, m) }

// IncSelect/DecSelect and their Thread/Fork counterparts adjust the live
// per-discipline connection counts. Callers must hold Lock.
func (r *Record) IncSelect() { r.l.selectCount++ }
func (r *Record) DecSelect() { r.l.selectCount-- }
func (r *Record) IncThread() { r.l.threadCount++ }
func (r *Record) DecThread() { r.l.threadCount-- }
func (r *Record) IncFork()   { r.l.forkCount++ }
func (r *Record) DecFork()   { r.l.forkCount-- }

// SelectCount, ThreadCount, ForkCount may be read without the mutex for
// dashboard display; spec tolerates momentary inconsistency there.
func (r *Record) SelectCount() uint32 { return atomic.LoadUint32(&r.l.selectCount) }
func (r *Record) ThreadCount() uint32 { return atomic.LoadUint32(&r.l.threadCount) }
func (r *Record) ForkCount() uint32   { return atomic.LoadUint32(&r.l.forkCount) }

// AddBytesRcvd and AddBytesSent implement transport.Counters, folding
// traffic into both the monotonic totals and the per-tick rate fields.
// They acquire the mutex themselves since transport calls these from
// arbitrary handler goroutines/processes.
func (r *Record) AddBytesRcvd(n uint32) {
	_ = r.Lock()
	r.l.bytesRcvd += n
	r.l.dnlinkRate += n
	_ = r.Unlock()
}

func (r *Record) AddBytesSent(n uint32) {
	_ = r.Lock()
	r.l.bytesSent += n
	r.l.uplinkRate += n
	_ = r.Unlock()
}

func (r *Record) BytesRcvd() uint32 { return atomic.LoadUint32(&r.l.bytesRcvd) }
func (r *Record) BytesSent() uint32 { return atomic.LoadUint32(&r.l.bytesSent) }

// TickRates resets the instantaneous rate counters to zero and folds them
// into the exponential averages using avg ← (2·avg + current) / 3, exactly
// as spec §4.4 describes. Callers must hold Lock.
func (r *Record) TickRates() (uplinkRate, dnlinkRate, uplinkAvg, dnlinkAvg uint32) {
	uplinkRate, dnlinkRate = r.l.uplinkRate, r.l.dnlinkRate

	if r.l.uplinkAvg != 0 {
		r.l.uplinkAvg = (2*r.l.uplinkAvg + r.l.uplinkRate) / 3
	} else {
		r.l.uplinkAvg = r.l.uplinkRate
	}
	if r.l.dnlinkAvg != 0 {
		r.l.dnlinkAvg = (2*r.l.dnlinkAvg + r.l.dnlinkRate) / 3
	} else {
		r.l.dnlinkAvg = r.l.dnlinkRate
	}
	uplinkAvg, dnlinkAvg = r.l.uplinkAvg, r.l.dnlinkAvg

	r.l.uplinkRate = 0
	r.l.dnlinkRate = 0
	return
}

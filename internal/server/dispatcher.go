package server

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samfsd/samfs/internal/statsrecord"
	"github.com/samfsd/samfs/internal/transport"
	"github.com/samfsd/samfs/internal/wire"
)

// HandleFDFlag is the hidden flag samfsd re-execs itself with under the
// FORK discipline; its value is the inherited fd number carrying the
// already-accepted connection (see SPEC_FULL.md §4.3).
const HandleFDFlag = "handle-fd"

// Dispatcher accepts connections on a listener and routes each one to a
// Handlers instance, using one of three concurrency disciplines: the one
// given at startup, or whichever the shared record names by the time a
// connection is accepted. It mirrors the original's single-process SELECT loop,
// thread-per-connection, and fork-per-connection models, translated to
// their idiomatic Go equivalents.
type Dispatcher struct {
	Handlers    *Handlers
	Record      *statsrecord.Record
	ReadTimeout time.Duration
	Log         *logrus.Entry

	// selfPath and selfArgs are used to re-exec under the FORK discipline.
	selfPath string
	selfArgs []string
}

// NewDispatcher builds a Dispatcher, seeding the shared record's active
// concurrency method with method and capturing the current executable
// path so the FORK discipline can re-exec itself.
func NewDispatcher(h *Handlers, rec *statsrecord.Record, method uint32, readTimeout time.Duration, log *logrus.Entry) (*Dispatcher, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("server: resolve own executable: %w", err)
	}
	rec.SetConcMethod(method)
	return &Dispatcher{
		Handlers:    h,
		Record:      rec,
		ReadTimeout: readTimeout,
		Log:         log,
		selfPath:    self,
		selfArgs:    os.Args[1:],
	}, nil
}

// Serve accepts connections from ln until it returns an error (typically
// because ln was closed). The concurrency discipline is re-read from the
// shared record on every iteration rather than cached, so an operator
// changing it at runtime (samfsd -set-cmethod) takes effect on the very
// next accepted connection.
func (d *Dispatcher) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		wrapped := transport.Wrap(conn, d.Record)
		log := d.Log.WithField("conn", wrapped.ID.String())

		switch d.Record.ConcMethod() {
		case statsrecord.MethodSelect:
			// One goroutine serializes every connection's frames in turn,
			// the direct analogue of a single-threaded select(2) loop: no
			// two requests are ever in flight concurrently.
			d.serveSelect(wrapped, log)
		case statsrecord.MethodThread:
			go d.serveOne(wrapped, log, d.Record.IncThread, d.Record.DecThread)
		case statsrecord.MethodFork:
			go d.serveFork(wrapped, log)
		default:
			log.Error("unknown concurrency method, closing connection")
			_ = wrapped.Close()
		}
	}
}

// serveSelect runs a connection to completion inline, on the dispatcher's
// own goroutine, before accepting the next one.
func (d *Dispatcher) serveSelect(conn *transport.Conn, log *logrus.Entry) {
	_ = d.Record.Lock()
	d.Record.IncSelect()
	_ = d.Record.Unlock()

	d.drain(conn, log)

	_ = d.Record.Lock()
	d.Record.DecSelect()
	_ = d.Record.Unlock()
	_ = conn.Close()
}

// serveOne runs a connection to completion on its own goroutine —
// Go's equivalent of a dedicated request-handling thread.
func (d *Dispatcher) serveOne(conn *transport.Conn, log *logrus.Entry, inc, dec func()) {
	_ = d.Record.Lock()
	inc()
	_ = d.Record.Unlock()

	defer func() {
		_ = d.Record.Lock()
		dec()
		_ = d.Record.Unlock()
		_ = conn.Close()
	}()

	d.drain(conn, log)
}

// serveFork hands the connection's underlying file descriptor to a
// freshly re-exec'd copy of the current binary, the idiomatic Go stand-in
// for fork()+exec() isolation: forking a live multi-threaded Go runtime
// directly is unsupported, so a child process is started instead and the
// already-accepted socket is passed to it via ExtraFiles.
func (d *Dispatcher) serveFork(conn *transport.Conn, log *logrus.Entry) {
	_ = d.Record.Lock()
	d.Record.IncFork()
	_ = d.Record.Unlock()

	defer func() {
		_ = d.Record.Lock()
		d.Record.DecFork()
		_ = d.Record.Unlock()
	}()

	f, err := conn.TCPFile()
	if err != nil {
		log.WithError(err).Error("fork discipline requires a TCP connection")
		_ = conn.Close()
		return
	}
	_ = conn.Close() // the duplicated fd in f keeps the socket alive

	args := append(append([]string{}, d.selfArgs...), "--"+HandleFDFlag, "3")
	cmd := exec.Command(d.selfPath, args...)
	cmd.ExtraFiles = []*os.File{f}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Start()
	_ = f.Close() // the child holds its own copy of the descriptor
	if err != nil {
		log.WithError(err).Error("re-exec for fork discipline failed")
		return
	}
	if err := cmd.Wait(); err != nil {
		log.WithError(err).Warn("fork-discipline child exited with error")
	}
}

// ServeHandleFD implements the re-exec'd child's entry point: it rebuilds
// a connection around the inherited fd and drains it, then exits. Callers
// reach this from main() when the hidden --handle-fd flag is present.
func (d *Dispatcher) ServeHandleFD(fd int) error {
	f := os.NewFile(uintptr(fd), "inherited-conn")
	nc, err := net.FileConn(f)
	if err != nil {
		return fmt.Errorf("server: reconstruct connection from fd %d: %w", fd, err)
	}
	conn := transport.Wrap(nc, d.Record)
	d.drain(conn, d.Log.WithField("conn", conn.ID.String()))
	return conn.Close()
}

// drain reads exactly one request frame from conn and hands it to the
// handlers, which run any streaming continuations on the same connection;
// if no request frame arrives it returns without dispatching. Each
// connection in samfs carries one
// logical FUSE call's worth of request/response frames (including any
// streaming continuations), after which the client closes it.
func (d *Dispatcher) drain(conn *transport.Conn, log *logrus.Entry) {
	if d.ReadTimeout > 0 {
		if err := transport.SetReadDeadline(conn, d.ReadTimeout); err != nil {
			log.WithError(err).Warn("set read deadline")
		}
	}
	req, err := wire.ReadRequest(conn, conn)
	if err != nil {
		log.WithError(err).Debug("connection closed before a request frame arrived")
		return
	}
	d.Handlers.Dispatch(conn, req)
}

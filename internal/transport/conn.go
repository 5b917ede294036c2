// Package transport provides the TCP plumbing samfs runs its wire protocol
// over: dialing/listening helpers and a byte-counting net.Conn wrapper that
// feeds the shared statistics record.
package transport

import (
	"errors"
	"net"
	"os"

	"github.com/rs/xid"
)

var errNotTCP = errors.New("transport: connection is not a *net.TCPConn")

// Counters is the subset of the shared statistics record the transport
// layer needs to update on every read and write. internal/statsrecord.Record
// satisfies this interface.
type Counters interface {
	AddBytesRcvd(n uint32)
	AddBytesSent(n uint32)
}

// Conn wraps a net.Conn, folding every byte read or written into a shared
// Counters implementation and tagging the connection with a short-lived
// correlation id for structured logging. The wrapping pattern (report the
// byte count of every read and write as it happens) is adapted from a socket-accounting wrapper
// used for outbound HTTP dialers; here it runs both directions over a raw
// TCP connection instead.
type Conn struct {
	net.Conn
	ID       xid.ID
	counters Counters
}

// Wrap returns conn wrapped so that every Read/Write is folded into
// counters. If counters is nil the wrapper is a plain passthrough — useful
// on the client side, which has no shared record to update.
func Wrap(conn net.Conn, counters Counters) *Conn {
	return &Conn{Conn: conn, ID: xid.New(), counters: counters}
}

// Read implements net.Conn, counting bytes received by the local process.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 && c.counters != nil {
		c.counters.AddBytesRcvd(uint32(n))
	}
	return n, err
}

// Write implements net.Conn, counting bytes sent by the local process.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 && c.counters != nil {
		c.counters.AddBytesSent(uint32(n))
	}
	return n, err
}

// TCPFile returns the duplicated OS file backing conn, for handing a raw
// file descriptor to a re-exec'd child process (used by the FORK
// concurrency discipline). It requires the wrapped connection to be a
// *net.TCPConn.
func (c *Conn) TCPFile() (*os.File, error) {
	tc, ok := c.Conn.(*net.TCPConn)
	if !ok {
		return nil, errNotTCP
	}
	return tc.File()
}

// Package fusebridge adapts the samfs wire protocol to bazil.org/fuse's
// high-level fs.Node/fs.Handle interfaces, the client side of the bridge.
package fusebridge

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samfsd/samfs/internal/transport"
	"github.com/samfsd/samfs/internal/wire"
)

// client performs one request/response exchange against samfsd per call.
// samfs opens a fresh TCP connection per filesystem operation rather than
// pooling connections (see transport.Dial) — the FUSE kernel layer
// already serializes calls against a given file, so there is nothing to
// gain from keeping a connection warm, and a great deal of protocol
// complexity to lose by not doing so.
type client struct {
	addr string
	log  *logrus.Entry
}

func newClient(addr string, log *logrus.Entry) *client {
	return &client{addr: addr, log: log}
}

// call dials, sends req, and returns the single-frame response. It is not
// used for streaming operations (READ/WRITE/READDIR), which manage their
// own connection lifetime to drain or produce a sequence of frames.
func (c *client) call(req *wire.Request) (*wire.Response, error) {
	conn, err := transport.Dial(c.addr)
	if err != nil {
		return nil, fmt.Errorf("fusebridge: dial: %w", err)
	}
	defer conn.Close()

	if err := wire.WriteRequest(conn, conn, req); err != nil {
		return nil, fmt.Errorf("fusebridge: write request: %w", err)
	}
	rsp, err := wire.ReadResponse(conn, conn)
	if err != nil {
		return nil, fmt.Errorf("fusebridge: read response: %w", err)
	}
	return rsp, nil
}

// open dials and sends req, returning the live connection for the caller
// to continue reading/writing streaming frames on.
func (c *client) open(req *wire.Request) (*transport.Conn, error) {
	conn, err := transport.Dial(c.addr)
	if err != nil {
		return nil, fmt.Errorf("fusebridge: dial: %w", err)
	}
	if err := wire.WriteRequest(conn, conn, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("fusebridge: write request: %w", err)
	}
	return conn, nil
}

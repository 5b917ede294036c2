package transport

import (
	"fmt"
	"net"
	"time"
)

// Dial opens a new TCP connection to addr for a single client operation.
// samfs opens and closes one connection per filesystem call; there is no
// connection pooling (see spec §5 ordering guarantees — the FUSE layer
// already serializes per-file access, so nothing here needs to).
func Dial(addr string) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return Wrap(conn, nil), nil
}

// Listen opens the listening socket the dispatcher accepts connections on.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return ln, nil
}

// SetReadDeadline sets conn's read deadline to d from now; the deadline
// stays in force for every later read on conn until reset. A zero d
// clears any deadline, matching spec §5's "no timeout by default" with the
// opt-in documented in SPEC_FULL.md §5.
func SetReadDeadline(conn net.Conn, d time.Duration) error {
	if d <= 0 {
		return conn.SetReadDeadline(time.Time{})
	}
	return conn.SetReadDeadline(time.Now().Add(d))
}

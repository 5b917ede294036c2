package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// byteOrder is the wire encoding for every fixed-width field. Peers are
// assumed to share this encoding; samfs does not negotiate endianness
// (see spec design notes — this is the chosen, explicit alternative to
// the original's raw host-layout assumption).
var byteOrder = binary.LittleEndian

// WriteRequest fills req.Nonce with a fresh random value, writes the frame,
// and then reads back the peer's echoed nonce. A mismatch is logged but is
// not treated as fatal — the nonce handshake is a liveness check only.
func WriteRequest(w io.Writer, r io.Reader, req *Request) error {
	req.Nonce = rand.Uint32()
	if err := binary.Write(w, byteOrder, req); err != nil {
		return fmt.Errorf("wire: write request: %w", err)
	}
	return checkEcho(r, req.Nonce)
}

// ReadRequest reads one fixed-size Request frame and echoes its nonce back
// to the sender.
func ReadRequest(r io.Reader, w io.Writer) (*Request, error) {
	var req Request
	if err := binary.Read(r, byteOrder, &req); err != nil {
		return nil, fmt.Errorf("wire: read request: %w", err)
	}
	if err := echo(w, req.Nonce); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteResponse fills rsp.Nonce with a fresh random value, writes the
// frame, and reads back the echoed nonce.
func WriteResponse(w io.Writer, r io.Reader, rsp *Response) error {
	rsp.Nonce = rand.Uint32()
	if err := binary.Write(w, byteOrder, rsp); err != nil {
		return fmt.Errorf("wire: write response: %w", err)
	}
	return checkEcho(r, rsp.Nonce)
}

// ReadResponse reads one fixed-size Response frame and echoes its nonce.
func ReadResponse(r io.Reader, w io.Writer) (*Response, error) {
	var rsp Response
	if err := binary.Read(r, byteOrder, &rsp); err != nil {
		return nil, fmt.Errorf("wire: read response: %w", err)
	}
	if err := echo(w, rsp.Nonce); err != nil {
		return nil, err
	}
	return &rsp, nil
}

func echo(w io.Writer, nonce uint32) error {
	if err := binary.Write(w, byteOrder, nonce); err != nil {
		return fmt.Errorf("wire: echo nonce: %w", err)
	}
	return nil
}

func checkEcho(r io.Reader, sent uint32) error {
	var got uint32
	if err := binary.Read(r, byteOrder, &got); err != nil {
		return fmt.Errorf("wire: read nonce echo: %w", err)
	}
	if got != sent {
		logrus.WithFields(logrus.Fields{
			"sent": sent,
			"got":  got,
		}).Warn("wire: nonce echo mismatch, continuing anyway")
	}
	return nil
}

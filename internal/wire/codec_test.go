package wire

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	req := &Request{Op: Getattr, Mode: 0755}
	req.SetURL("/export")
	req.SetURI("/a/b.txt")

	errCh := make(chan error, 1)
	go func() { errCh <- WriteRequest(client, client, req) }()

	got, err := ReadRequest(server, server)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write request: %v", err)
	}

	if got.Op != Getattr {
		t.Errorf("op = %v, want %v", got.Op, Getattr)
	}
	if got.GetURL() != "/export" {
		t.Errorf("url = %q, want %q", got.GetURL(), "/export")
	}
	if got.GetURI() != "/a/b.txt" {
		t.Errorf("uri = %q, want %q", got.GetURI(), "/a/b.txt")
	}
	if got.Mode != 0755 {
		t.Errorf("mode = %o, want %o", got.Mode, 0755)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rsp := &Response{Status: StatusSuccess, Size: 13, EndOfData: 1}
	copy(rsp.Data[:], "hello, world\n")

	errCh := make(chan error, 1)
	go func() { errCh <- WriteResponse(server, server, rsp) }()

	got, err := ReadResponse(client, client)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write response: %v", err)
	}
	if !got.Success() {
		t.Fatalf("expected success response")
	}
	if got.Size != 13 {
		t.Errorf("size = %d, want 13", got.Size)
	}
	if string(got.Data[:got.Size]) != "hello, world\n" {
		t.Errorf("data = %q", got.Data[:got.Size])
	}
}

func TestNonceMismatchIsNotFatal(t *testing.T) {
	// A mismatched echo is logged, not returned as an error — only a
	// transport failure (e.g. a closed pipe) should surface as one.
	var echoed bytes.Buffer
	if err := binary.Write(&echoed, byteOrder, uint32(7)); err != nil {
		t.Fatalf("encode echo: %v", err)
	}
	if err := checkEcho(&echoed, 42); err != nil {
		t.Fatalf("mismatched echo returned an error: %v", err)
	}

	r, w := net.Pipe()
	w.Close()
	r.Close()
	if err := checkEcho(r, 42); err == nil {
		t.Fatalf("expected a transport error from a closed pipe, got nil")
	}
}

func TestFixedStringTruncation(t *testing.T) {
	req := &Request{}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	req.SetURI(string(long))
	if len(req.GetURI()) != uriLen-1 {
		t.Errorf("uri truncated to %d bytes, want %d", len(req.GetURI()), uriLen-1)
	}
}

func TestOpStreaming(t *testing.T) {
	for op, want := range map[Op]bool{
		Readdir:  true,
		Read:     true,
		Write:    true,
		Getattr:  false,
		Mkdir:    false,
		Truncate: false,
	} {
		if got := op.Streaming(); got != want {
			t.Errorf("%v.Streaming() = %v, want %v", op, got, want)
		}
	}
}

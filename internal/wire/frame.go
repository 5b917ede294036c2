package wire

import "bytes"

// Field widths, fixed for binary compatibility — see spec data model.
const (
	urlLen  = 80
	uriLen  = 160
	DataLen = 1024
)

// Status values carried in a Response.
const (
	StatusSuccess int32 = 0
	StatusFail    int32 = -1
)

// DefaultPort is the TCP port samfsd listens on by default.
const DefaultPort = 5001

// Request is the fixed-layout frame a client sends to ask the server to
// perform one filesystem operation. Every field is fixed width so the
// whole struct can be written and read as a flat byte sequence; there is
// no length prefix because there is nothing to prefix.
type Request struct {
	Nonce       uint32
	Op          Op
	URL         [urlLen]byte
	URI         [uriLen]byte
	Mode        uint32
	Flags       uint32
	TruncateLen int64
	Size        uint32
	Offset      int64
	EndOfData   uint8
	_           [3]byte
	Data        [DataLen]byte
}

// Response is the fixed-layout frame a server sends back. A streaming
// operation (READDIR, READ, WRITE) produces a sequence of Response frames
// terminated by one with EndOfData == 1.
type Response struct {
	Nonce     uint32
	Status    int32
	Errcode   int32
	Size      uint32
	EndOfData uint8
	_         [3]byte
	Data      [DataLen]byte
}

// SetURL copies s into the fixed URL field, truncating if necessary and
// always leaving room for a trailing NUL.
func (r *Request) SetURL(s string) { putFixedString(r.URL[:], s) }

// SetURI copies s into the fixed URI field.
func (r *Request) SetURI(s string) { putFixedString(r.URI[:], s) }

// GetURL returns the NUL-terminated string stored in URL.
func (r *Request) GetURL() string { return fixedString(r.URL[:]) }

// GetURI returns the NUL-terminated string stored in URI.
func (r *Request) GetURI() string { return fixedString(r.URI[:]) }

// SetData copies name (used by RENAME to carry the new path) into Data.
func (r *Request) SetData(s string) { putFixedString(r.Data[:], s) }

// GetDataString returns the NUL-terminated string stored in Data.
func (r *Request) GetDataString() string { return fixedString(r.Data[:]) }

func putFixedString(dst []byte, s string) {
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
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// Success reports whether the response indicates the operation succeeded.
func (r *Response) Success() bool { return r.Status == StatusSuccess }

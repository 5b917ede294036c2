package fusebridge

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/samfsd/samfs/internal/wire"
)

// Handle is an open file; samfs does not carry a distinct server-side file
// descriptor across calls, so a Handle is just a reference back to its
// Node, enough to satisfy the kernel's Read/Write/Release contract.
type Handle struct {
	node *Node
}

var (
	_ fs.Handle             = (*Handle)(nil)
	_ fs.HandleReader       = (*Handle)(nil)
	_ fs.HandleWriter       = (*Handle)(nil)
	_ fs.HandleReleaser     = (*Handle)(nil)
	_ fs.HandleReadDirAller = (*Handle)(nil)
)

// ReadDirAll implements fs.HandleReadDirAller. Once NodeOpener has
// produced a Handle for a directory, the kernel issues READDIR against
// that handle rather than the originating Node, so this just delegates.
func (h *Handle) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	return h.node.ReadDirAll(ctx)
}

// Read implements fs.HandleReader via a streaming READ exchange.
func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	wreq := h.node.request(wire.Read)
	wreq.Offset = req.Offset
	wreq.Size = uint32(req.Size)

	conn, err := h.node.fs.client.open(wreq)
	if err != nil {
		return err
	}
	defer conn.Close()

	data := make([]byte, 0, req.Size)
	for {
		rsp, err := wire.ReadResponse(conn, conn)
		if err != nil {
			return err
		}
		if !rsp.Success() {
			return errnoFromResponse(rsp)
		}
		data = append(data, rsp.Data[:rsp.Size]...)
		if rsp.EndOfData == 1 {
			break
		}
	}
	resp.Data = data
	return nil
}

// Write implements fs.HandleWriter. It mirrors masd_write's handshake: the
// opening WRITE frame carries only the offset and total size (no payload)
// and is answered with a status-only readiness ack before any data frame
// is sent; every byte of req.Data, including what would be the "first"
// chunk, then goes out as one or more subsequent data frames.
func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	chunkSize := wire.DataLen

	open := h.node.request(wire.Write)
	open.Offset = req.Offset
	open.Size = uint32(len(req.Data))

	conn, err := h.node.fs.client.open(open)
	if err != nil {
		return err
	}
	defer conn.Close()

	ack, err := wire.ReadResponse(conn, conn)
	if err != nil {
		return err
	}
	if !ack.Success() {
		return errnoFromResponse(ack)
	}

	remaining := req.Data
	for {
		n := len(remaining)
		if n > chunkSize {
			n = chunkSize
		}
		var next wire.Request
		next.Size = uint32(n)
		copy(next.Data[:], remaining[:n])
		remaining = remaining[n:]
		if len(remaining) == 0 {
			next.EndOfData = 1
		}
		if err := wire.WriteRequest(conn, conn, &next); err != nil {
			return err
		}
		if next.EndOfData == 1 {
			break
		}
	}

	rsp, err := wire.ReadResponse(conn, conn)
	if err != nil {
		return err
	}
	if !rsp.Success() {
		return errnoFromResponse(rsp)
	}
	resp.Size = int(rsp.Size)
	return nil
}

// Release implements fs.HandleReleaser. masd_release and masd_releasedir
// are both no-ops in the original ("invoked when file is closed(?)") that
// return success without contacting the server; RELEASE/RELEASEDIR are
// likewise never sent by this bridge.
func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return nil
}

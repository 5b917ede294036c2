package fusebridge

import (
	"syscall"

	"bazil.org/fuse"

	"github.com/samfsd/samfs/internal/wire"
)

// syscallEXDEV is returned when a rename crosses into a node type this
// bridge cannot resolve back to a uri (see Node.Rename).
const syscallEXDEV = syscall.EXDEV

// errnoFromResponse turns a failed response's errcode into a fuse.Errno so
// the kernel sees the real POSIX error instead of a blanket EIO.
func errnoFromResponse(rsp *wire.Response) error {
	if rsp.Success() {
		return nil
	}
	return fuse.Errno(syscall.Errno(rsp.Errcode))
}

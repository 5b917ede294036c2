// Package server implements the samfsd side of the bridge: local path
// resolution, one handler per wire operation, and the concurrency
// dispatcher that accepts connections and routes them to handlers.
package server

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/samfsd/samfs/internal/wire"
)

// unixNow returns the current time in unix nanoseconds, used as the
// UTIME_NOW fallback when a client sends a zero TimePair.
func unixNow() int64 { return time.Now().UnixNano() }

// Handlers performs the local filesystem syscalls for every operation in
// the spec's op table and writes the corresponding response frame(s).
type Handlers struct {
	Resolver Resolver
	Log      *logrus.Entry
}

// Dispatch runs the single operation named by req against the local
// filesystem and writes its response(s) to rw.
func (h *Handlers) Dispatch(rw io.ReadWriter, req *wire.Request) {
	log := h.Log.WithField("op", req.Op.String())
	switch req.Op {
	case wire.Getattr:
		h.handleGetattr(rw, req, log)
	case wire.Access:
		h.handleAccess(rw, req, log)
	case wire.Mkdir:
		h.handleMkdir(rw, req, log)
	case wire.Opendir:
		h.handleOpen(rw, req, log)
	case wire.Readdir:
		h.handleReaddir(rw, req, log)
	case wire.Releasedir:
		h.handleRelease(rw, req, log)
	case wire.Rmdir:
		h.handleRmdir(rw, req, log)
	case wire.Create:
		h.handleCreate(rw, req, log)
	case wire.Open:
		h.handleOpen(rw, req, log)
	case wire.Read:
		h.handleRead(rw, req, log)
	case wire.Write:
		h.handleWrite(rw, req, log)
	case wire.Truncate:
		h.handleTruncate(rw, req, log)
	case wire.Release:
		h.handleRelease(rw, req, log)
	case wire.Unlink:
		h.handleUnlink(rw, req, log)
	case wire.Rename:
		h.handleRename(rw, req, log)
	case wire.Chmod:
		h.handleChmod(rw, req, log)
	case wire.Utime:
		h.handleUtime(rw, req, log)
	case wire.Statfs:
		h.handleStatfs(rw, req, log)
	default:
		log.Warn("unhandled operation")
		h.fail(rw, unix.ENOSYS)
	}
}

func (h *Handlers) resolve(req *wire.Request) (string, error) {
	return h.Resolver.Resolve(req.GetURL(), req.GetURI())
}

// fail writes a single terminal error response carrying errno.
func (h *Handlers) fail(rw io.ReadWriter, err error) {
	rsp := &wire.Response{
		Status:    wire.StatusFail,
		Errcode:   int32(errnoOf(err)),
		EndOfData: 1,
	}
	_ = wire.WriteResponse(rw, rw, rsp)
}

func (h *Handlers) ok(rw io.ReadWriter, rsp *wire.Response) {
	rsp.Status = wire.StatusSuccess
	rsp.EndOfData = 1
	_ = wire.WriteResponse(rw, rw, rsp)
}

// errnoOf unwraps the concrete syscall.Errno from a path/link error, or
// falls back to EIO for anything else (spec §7: errno propagation).
func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.As(pathErr.Err, &errno) {
			return errno
		}
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errors.As(linkErr.Err, &errno) {
			return errno
		}
	}
	return syscall.EIO
}

func (h *Handlers) handleGetattr(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		log.WithError(err).Debug("lstat failed")
		h.fail(rw, err)
		return
	}
	attr := wire.Attr{
		Mode:  st.Mode,
		Nlink: uint32(st.Nlink),
		UID:   st.Uid,
		GID:   st.Gid,
		Ino:   st.Ino,
		Size:  uint64(st.Size),
		Atime: st.Atim.Sec*1e9 + st.Atim.Nsec,
		Mtime: st.Mtim.Sec*1e9 + st.Mtim.Nsec,
		Ctime: st.Ctim.Sec*1e9 + st.Ctim.Nsec,
	}
	var rsp wire.Response
	if err := wire.EncodeAttr(&rsp.Data, attr); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &rsp)
}

func (h *Handlers) handleMkdir(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Mkdir(path, req.Mode); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleRmdir(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Rmdir(path); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleUnlink(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Unlink(path); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleCreate(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	fd, err := unix.Open(path, int(req.Flags)|os.O_WRONLY|os.O_CREAT, req.Mode)
	if err != nil {
		h.fail(rw, err)
		return
	}
	_ = unix.Close(fd)
	if err := unix.Chmod(path, req.Mode); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleTruncate(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Truncate(path, req.TruncateLen); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleRename(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	oldPath, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	newPath, err := h.Resolver.Resolve(req.GetURL(), req.GetDataString())
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Rename(oldPath, newPath); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleChmod(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Chmod(path, req.Mode); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleAccess(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	if err := unix.Access(path, req.Mode); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

// handleOpen answers both OPEN and OPENDIR. samfs keeps no server-side
// open-file table — every other op already opens and closes its own fd —
// so this only confirms the path exists and is reachable. The fusebridge
// client never sends OPEN or OPENDIR; its Open is a local no-op.
func (h *Handlers) handleOpen(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &wire.Response{})
}

// handleRelease answers both RELEASE and RELEASEDIR. There is no
// server-side handle to tear down, so this is an acknowledgment only.
func (h *Handlers) handleRelease(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	h.ok(rw, &wire.Response{})
}

func (h *Handlers) handleUtime(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	// The original always stamped both times with "now", ignoring the
	// client-supplied TimePair entirely — a bug noted in the original's
	// own comments. Here the request carries the times the client wants
	// and they are honored; a zero TimePair (no UTIME payload at all)
	// still falls back to "now", matching utimensat's UTIME_NOW idiom.
	tp, err := wire.DecodeTimePair(&req.Data)
	if err != nil {
		h.fail(rw, err)
		return
	}
	now := unix.NsecToTimespec(unixNow())
	atime, mtime := now, now
	if tp.Atime != 0 {
		atime = unix.NsecToTimespec(tp.Atime)
	}
	if tp.Mtime != 0 {
		mtime = unix.NsecToTimespec(tp.Mtime)
	}
	times := [2]unix.Timespec{atime, mtime}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times[:], unix.AT_SYMLINK_NOFOLLOW); err != nil {
		h.fail(rw, err)
		return
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		h.fail(rw, err)
		return
	}
	effective := wire.TimePair{
		Atime: st.Atim.Sec*1e9 + st.Atim.Nsec,
		Mtime: st.Mtim.Sec*1e9 + st.Mtim.Nsec,
	}
	var rsp wire.Response
	if err := wire.EncodeTimePair(&rsp.Data, effective); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &rsp)
}

func (h *Handlers) handleReaddir(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.fail(rw, err)
		return
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		h.fail(rw, err)
		return
	}

	all := make([]os.DirEntry, 0, len(entries)+2)
	all = append(all, direntShim{".", true}, direntShim{"..", true})
	all = append(all, entries...)

	for i, e := range all {
		var ino uint64
		if info, err := e.Info(); err == nil {
			if st, ok := info.Sys().(*syscall.Stat_t); ok {
				ino = st.Ino
			}
		}
		typ := uint8(unix.DT_REG)
		if e.IsDir() {
			typ = unix.DT_DIR
		}
		var rsp wire.Response
		if err := wire.EncodeDirEntry(&rsp.Data, wire.DirEntry{Ino: ino, Type: typ, Name: e.Name()}); err != nil {
			h.fail(rw, err)
			return
		}
		if i == len(all)-1 {
			rsp.Status = wire.StatusSuccess
			rsp.EndOfData = 1
			_ = wire.WriteResponse(rw, rw, &rsp)
			return
		}
		rsp.Status = wire.StatusSuccess
		if err := wire.WriteResponse(rw, rw, &rsp); err != nil {
			log.WithError(err).Warn("write readdir response")
			return
		}
	}
	if len(all) == 0 {
		h.ok(rw, &wire.Response{})
	}
}

// direntShim satisfies os.DirEntry for the synthetic "." and ".." entries
// samfs's READDIR always reports, mirroring what readdir(3) yields.
type direntShim struct {
	name string
	dir  bool
}

func (d direntShim) Name() string              { return d.name }
func (d direntShim) IsDir() bool                { return d.dir }
func (d direntShim) Type() os.FileMode          { return os.ModeDir }
func (d direntShim) Info() (os.FileInfo, error) { return nil, errNoSyntheticInfo }

var errNoSyntheticInfo = errors.New("server: no stat info for synthetic direntry")

func (h *Handlers) handleRead(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.fail(rw, err)
		return
	}
	defer f.Close()

	remaining := int64(req.Size)
	offset := req.Offset
	buf := make([]byte, wire.DataLen)
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := f.ReadAt(buf[:n], offset)
		var rsp wire.Response
		if read > 0 {
			copy(rsp.Data[:], buf[:read])
			rsp.Size = uint32(read)
		}
		offset += int64(read)
		remaining -= int64(read)
		if err != nil && err != io.EOF {
			h.fail(rw, err)
			return
		}
		rsp.Status = wire.StatusSuccess
		if err == io.EOF || read == 0 || remaining <= 0 {
			rsp.EndOfData = 1
			_ = wire.WriteResponse(rw, rw, &rsp)
			return
		}
		if err := wire.WriteResponse(rw, rw, &rsp); err != nil {
			log.WithError(err).Warn("write read response")
			return
		}
	}
}

// handleWrite opens (and seeks to req.Offset in) the target file, then
// sends a status-only readiness response before reading any data frame —
// matching samd.c's handle_write, which sends its ack ("tell server is
// ready to recv file data") before looping on read_req for the data
// itself. req carries only the open/seek intent (Offset, total Size); the
// client sends every byte of payload, including what would be the "first"
// chunk, as a subsequent data frame.
func (h *Handlers) handleWrite(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		h.fail(rw, err)
		return
	}
	defer f.Close()

	ready := &wire.Response{Status: wire.StatusSuccess}
	if err := wire.WriteResponse(rw, rw, ready); err != nil {
		log.WithError(err).Warn("write ready response")
		return
	}

	// Bug fix: the original's byte accumulator was left uninitialized
	// (declared but never zeroed before the loop), so a short first
	// chunk could report a garbage total. It starts at zero here.
	var total uint32
	offset := req.Offset
	for {
		data, err := wire.ReadRequest(rw, rw)
		if err != nil {
			log.WithError(err).Warn("read write data frame")
			return
		}
		n := int(data.Size)
		if n > len(data.Data) {
			n = len(data.Data)
		}
		written, err := f.WriteAt(data.Data[:n], offset)
		if err != nil {
			h.fail(rw, err)
			return
		}
		total += uint32(written)
		offset += int64(written)

		if data.EndOfData == 1 {
			break
		}
	}

	var rsp wire.Response
	rsp.Size = total
	h.ok(rw, &rsp)
}

func (h *Handlers) handleStatfs(rw io.ReadWriter, req *wire.Request, log *logrus.Entry) {
	path, err := h.resolve(req)
	if err != nil {
		h.fail(rw, err)
		return
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		h.fail(rw, err)
		return
	}
	info := wire.StatfsInfo{
		Bsize:   uint64(st.Bsize),
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		NameMax: uint64(st.Namelen),
	}
	var rsp wire.Response
	if err := wire.EncodeStatfs(&rsp.Data, info); err != nil {
		h.fail(rw, err)
		return
	}
	h.ok(rw, &rsp)
}

package fusebridge

import (
	"context"
	"os"
	"path"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/samfsd/samfs/internal/wire"
)

// FS is the root of one samfs mount: it dials addr for every operation and
// resolves every path relative to exportURL on the server.
type FS struct {
	client    *client
	exportURL string
	log       *logrus.Entry
}

// New builds an FS talking to a samfsd listening on addr, exporting the
// tree rooted at exportURL.
func New(addr, exportURL string, log *logrus.Entry) *FS {
	return &FS{client: newClient(addr, log), exportURL: exportURL, log: log}
}

// Root implements fs.FS.
func (f *FS) Root() (fs.Node, error) {
	return &Node{fs: f, uri: "/"}, nil
}

// Node is one file or directory within a mount, addressed by its uri
// relative to the mount's exportURL.
type Node struct {
	fs  *FS
	uri string
}

var (
	_ fs.Node               = (*Node)(nil)
	_ fs.NodeStringLookuper = (*Node)(nil)
	_ fs.HandleReadDirAller = (*Node)(nil)
	_ fs.NodeMkdirer        = (*Node)(nil)
	_ fs.NodeRemover        = (*Node)(nil)
	_ fs.NodeCreater        = (*Node)(nil)
	_ fs.NodeOpener         = (*Node)(nil)
	_ fs.NodeSetattrer      = (*Node)(nil)
	_ fs.NodeRenamer        = (*Node)(nil)
	_ fs.NodeAccesser       = (*Node)(nil)
	_ fs.FSStatfser         = (*Node)(nil)
)

func (n *Node) child(name string) *Node {
	return &Node{fs: n.fs, uri: path.Join(n.uri, name)}
}

func (n *Node) request(op wire.Op) *wire.Request {
	req := &wire.Request{Op: op}
	req.SetURL(n.fs.exportURL)
	req.SetURI(n.uri)
	return req
}

// Attr implements fs.Node via GETATTR.
func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	rsp, err := n.fs.client.call(n.request(wire.Getattr))
	if err != nil {
		return err
	}
	if !rsp.Success() {
		return errnoFromResponse(rsp)
	}
	attr, err := wire.DecodeAttr(&rsp.Data)
	if err != nil {
		return err
	}
	applyAttr(a, attr)
	return nil
}

func applyAttr(a *fuse.Attr, attr wire.Attr) {
	a.Inode = attr.Ino
	a.Size = attr.Size
	a.Mode = os.FileMode(attr.Mode)
	a.Nlink = attr.Nlink
	a.Uid = attr.UID
	a.Gid = attr.GID
	a.Atime = time.Unix(0, attr.Atime)
	a.Mtime = time.Unix(0, attr.Mtime)
	a.Ctime = time.Unix(0, attr.Ctime)
}

// Lookup implements fs.NodeStringLookuper via GETATTR on the child path —
// samfs has no separate LOOKUP wire op; existence and attributes are
// established by the same GETATTR a subsequent Attr() call would issue.
func (n *Node) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child := n.child(name)
	var a fuse.Attr
	if err := child.Attr(ctx, &a); err != nil {
		return nil, err
	}
	return child, nil
}

// ReadDirAll implements fs.HandleReadDirAller via a streaming READDIR.
func (n *Node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	conn, err := n.fs.client.open(n.request(wire.Readdir))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var out []fuse.Dirent
	for {
		rsp, err := wire.ReadResponse(conn, conn)
		if err != nil {
			return nil, err
		}
		if !rsp.Success() {
			return nil, errnoFromResponse(rsp)
		}
		entry := wire.DecodeDirEntry(&rsp.Data)
		if entry.Name != "" {
			out = append(out, fuse.Dirent{
				Inode: entry.Ino,
				Type:  direntType(entry.Type),
				Name:  entry.Name,
			})
		}
		if rsp.EndOfData == 1 {
			return out, nil
		}
	}
}

func direntType(t uint8) fuse.DirentType {
	const dtDir = 4 // unix.DT_DIR
	if t == dtDir {
		return fuse.DT_Dir
	}
	return fuse.DT_File
}

// Mkdir implements fs.NodeMkdirer.
func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	wreq := n.child(req.Name).request(wire.Mkdir)
	wreq.Mode = uint32(req.Mode.Perm())
	rsp, err := n.fs.client.call(wreq)
	if err != nil {
		return nil, err
	}
	if !rsp.Success() {
		return nil, errnoFromResponse(rsp)
	}
	return n.child(req.Name), nil
}

// Remove implements fs.NodeRemover, issuing RMDIR or UNLINK depending on
// which kind of entry the kernel is removing.
func (n *Node) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	op := wire.Unlink
	if req.Dir {
		op = wire.Rmdir
	}
	rsp, err := n.fs.client.call(n.child(req.Name).request(op))
	if err != nil {
		return err
	}
	return errnoFromResponse(rsp)
}

// Create implements fs.NodeCreater.
func (n *Node) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	child := n.child(req.Name)
	wreq := child.request(wire.Create)
	wreq.Mode = uint32(req.Mode.Perm())
	wreq.Flags = uint32(req.Flags)
	rsp, err := n.fs.client.call(wreq)
	if err != nil {
		return nil, nil, err
	}
	if !rsp.Success() {
		return nil, nil, errnoFromResponse(rsp)
	}
	h := &Handle{node: child}
	return child, h, nil
}

// Open implements fs.NodeOpener. masd_open and masd_opendir are both
// no-ops in the original that return success without talking to the
// server at all; OPEN/OPENDIR exist in the wire protocol for completeness
// but are never sent.
func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	return &Handle{node: n}, nil
}

// Setattr implements fs.NodeSetattrer. The original program fans a single
// SETATTR call out into up to three wire exchanges — TRUNCATE, then
// CHMOD, then UTIME — short-circuiting on the first failure; this is the
// one operation in samfs that is not a 1:1 request/response mapping.
// After those, a GETATTR fills resp.Attr, so a call makes up to four
// exchanges in all.
func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		wreq := n.request(wire.Truncate)
		wreq.TruncateLen = int64(req.Size)
		rsp, err := n.fs.client.call(wreq)
		if err != nil {
			return err
		}
		if !rsp.Success() {
			return errnoFromResponse(rsp)
		}
	}
	if req.Valid.Mode() {
		wreq := n.request(wire.Chmod)
		wreq.Mode = uint32(req.Mode.Perm())
		rsp, err := n.fs.client.call(wreq)
		if err != nil {
			return err
		}
		if !rsp.Success() {
			return errnoFromResponse(rsp)
		}
	}
	if req.Valid.Atime() || req.Valid.Mtime() {
		wreq := n.request(wire.Utime)
		var tp wire.TimePair
		if req.Valid.Atime() {
			tp.Atime = req.Atime.UnixNano()
		}
		if req.Valid.Mtime() {
			tp.Mtime = req.Mtime.UnixNano()
		}
		if err := wire.EncodeTimePair(&wreq.Data, tp); err != nil {
			return err
		}
		rsp, err := n.fs.client.call(wreq)
		if err != nil {
			return err
		}
		if !rsp.Success() {
			return errnoFromResponse(rsp)
		}
	}
	return n.Attr(ctx, &resp.Attr)
}

// Rename implements fs.NodeRenamer.
func (n *Node) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	destDir, ok := newDir.(*Node)
	if !ok {
		return fuse.Errno(syscallEXDEV)
	}
	wreq := n.child(req.OldName).request(wire.Rename)
	wreq.SetData(path.Join(destDir.uri, req.NewName))
	rsp, err := n.fs.client.call(wreq)
	if err != nil {
		return err
	}
	return errnoFromResponse(rsp)
}

// Access implements fs.NodeAccesser. masd_access is a no-op in the
// original ("dont know, invoked when directory is accessed") that always
// returns success without a wire round trip; ACCESS is likewise never
// sent by this bridge.
func (n *Node) Access(ctx context.Context, req *fuse.AccessRequest) error {
	return nil
}

// Statfs implements fs.FSStatfser.
func (n *Node) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	rsp, err := n.fs.client.call(n.request(wire.Statfs))
	if err != nil {
		return err
	}
	if !rsp.Success() {
		return errnoFromResponse(rsp)
	}
	info, err := wire.DecodeStatfs(&rsp.Data)
	if err != nil {
		return err
	}
	resp.Blocks = info.Blocks
	resp.Bfree = info.Bfree
	resp.Bavail = info.Bavail
	resp.Files = info.Files
	resp.Ffree = info.Ffree
	resp.Bsize = uint32(info.Bsize)
	resp.Namelen = uint32(info.NameMax)
	resp.Frsize = uint32(info.Bsize)
	return nil
}

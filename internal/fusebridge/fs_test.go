package fusebridge

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"bazil.org/fuse"
	"github.com/sirupsen/logrus"

	"github.com/samfsd/samfs/internal/server"
	"github.com/samfsd/samfs/internal/statsrecord"
)

// startTestServer brings up a real samfsd dispatcher on loopback exporting
// a temp directory, exercising the client package end to end against the
// actual server handlers rather than a stub.
func startTestServer(t *testing.T) (addr string) {
	t.Helper()
	exportDir := t.TempDir()

	recDir := t.TempDir()
	mu, err := statsrecord.OpenNamedMutex(recDir + "/lock")
	if err != nil {
		t.Fatalf("open mutex: %v", err)
	}
	rec, err := statsrecord.Create(recDir, os.Getpid(), mu)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	t.Cleanup(func() { rec.Close() })

	log := logrus.NewEntry(logrus.StandardLogger())
	h := &server.Handlers{Resolver: server.Resolver{SrcPath: exportDir}, Log: log}
	d, err := server.NewDispatcher(h, rec, statsrecord.MethodThread, 5*time.Second, log)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go d.Serve(ln)
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestNodeAttrRoot(t *testing.T) {
	addr := startTestServer(t)
	f := New(addr, "", logrus.NewEntry(logrus.StandardLogger()))
	root, err := f.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	var a fuse.Attr
	if err := root.(*Node).Attr(context.Background(), &a); err != nil {
		t.Fatalf("attr: %v", err)
	}
	if !a.Mode.IsDir() {
		t.Errorf("root mode = %v, want directory", a.Mode)
	}
}

func TestNodeMkdirLookupRemove(t *testing.T) {
	addr := startTestServer(t)
	f := New(addr, "", logrus.NewEntry(logrus.StandardLogger()))
	root, _ := f.Root()
	rootNode := root.(*Node)
	ctx := context.Background()

	child, err := rootNode.Mkdir(ctx, &fuse.MkdirRequest{Name: "sub", Mode: os.ModeDir | 0o755})
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if child.(*Node).uri != "/sub" {
		t.Errorf("child uri = %q", child.(*Node).uri)
	}

	looked, err := rootNode.Lookup(ctx, "sub")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	var a fuse.Attr
	if err := looked.(*Node).Attr(ctx, &a); err != nil {
		t.Fatalf("attr on looked-up child: %v", err)
	}

	if err := rootNode.Remove(ctx, &fuse.RemoveRequest{Name: "sub", Dir: true}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := rootNode.Lookup(ctx, "sub"); err == nil {
		t.Error("expected lookup to fail after remove")
	}
}

func TestHandleCreateWriteRead(t *testing.T) {
	addr := startTestServer(t)
	f := New(addr, "", logrus.NewEntry(logrus.StandardLogger()))
	root, _ := f.Root()
	rootNode := root.(*Node)
	ctx := context.Background()

	var createResp fuse.CreateResponse
	node, handle, err := rootNode.Create(ctx, &fuse.CreateRequest{Name: "f.txt", Mode: 0o644}, &createResp)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = node

	payload := []byte("written through the bridge")
	var writeResp fuse.WriteResponse
	if err := handle.(*Handle).Write(ctx, &fuse.WriteRequest{Data: payload, Offset: 0}, &writeResp); err != nil {
		t.Fatalf("write: %v", err)
	}
	if writeResp.Size != len(payload) {
		t.Errorf("write size = %d, want %d", writeResp.Size, len(payload))
	}

	var readResp fuse.ReadResponse
	if err := handle.(*Handle).Read(ctx, &fuse.ReadRequest{Offset: 0, Size: len(payload)}, &readResp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(readResp.Data) != string(payload) {
		t.Errorf("read data = %q, want %q", readResp.Data, payload)
	}

	if err := handle.(*Handle).Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Errorf("release: %v", err)
	}
}

// TestNodeOpenAccessRelease exercises Access/Open/Release/ReadDirAll,
// none of which (besides the READDIR the directory handle delegates to)
// ever reach the server — they are local no-ops matching masd_access,
// masd_open(dir), and masd_release(dir) in the original.
func TestNodeOpenAccessRelease(t *testing.T) {
	addr := startTestServer(t)
	f := New(addr, "", logrus.NewEntry(logrus.StandardLogger()))
	root, _ := f.Root()
	rootNode := root.(*Node)
	ctx := context.Background()

	if _, _, err := rootNode.Create(ctx, &fuse.CreateRequest{Name: "g.txt", Mode: 0o644}, &fuse.CreateResponse{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	child, err := rootNode.Lookup(ctx, "g.txt")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if err := child.(*Node).Access(ctx, &fuse.AccessRequest{Mask: 0}); err != nil {
		t.Fatalf("access: %v", err)
	}

	h, err := child.(*Node).Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h.(*Handle).Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("release: %v", err)
	}

	dh, err := rootNode.Open(ctx, &fuse.OpenRequest{Dir: true}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("opendir: %v", err)
	}
	entries, err := dh.(*Handle).ReadDirAll(ctx)
	if err != nil {
		t.Fatalf("readdir via handle: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected at least the dot entries")
	}
	if err := dh.(*Handle).Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("releasedir: %v", err)
	}
}

func TestNodeStatfs(t *testing.T) {
	addr := startTestServer(t)
	f := New(addr, "", logrus.NewEntry(logrus.StandardLogger()))
	root, _ := f.Root()
	var resp fuse.StatfsResponse
	if err := root.(*Node).Statfs(context.Background(), &fuse.StatfsRequest{}, &resp); err != nil {
		t.Fatalf("statfs: %v", err)
	}
	if resp.Bsize == 0 {
		t.Error("expected nonzero block size")
	}
}

package transport

import (
	"net"
	"sync/atomic"
	"testing"
)

type fakeCounters struct {
	rcvd, sent uint32
}

func (f *fakeCounters) AddBytesRcvd(n uint32) { atomic.AddUint32(&f.rcvd, n) }
func (f *fakeCounters) AddBytesSent(n uint32) { atomic.AddUint32(&f.sent, n) }

func TestConnCountsBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	counters := &fakeCounters{}
	wrapped := Wrap(server, counters)

	payload := []byte("hello")
	done := make(chan struct{})
	go func() {
		_, _ = client.Write(payload)
		close(done)
	}()

	buf := make([]byte, len(payload))
	n, err := wrapped.Read(buf)
	<-done
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("read %d bytes, want %d", n, len(payload))
	}
	if atomic.LoadUint32(&counters.rcvd) != uint32(len(payload)) {
		t.Errorf("rcvd = %d, want %d", counters.rcvd, len(payload))
	}

	go func() {
		buf := make([]byte, len(payload))
		_, _ = client.Read(buf)
	}()
	if _, err := wrapped.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if atomic.LoadUint32(&counters.sent) != uint32(len(payload)) {
		t.Errorf("sent = %d, want %d", counters.sent, len(payload))
	}
}

func TestWrapAssignsID(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := Wrap(server, nil)
	b := Wrap(client, nil)
	if a.ID == b.ID {
		t.Errorf("expected distinct connection ids")
	}
}

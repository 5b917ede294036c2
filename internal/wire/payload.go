package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Attr is the file/directory metadata carried in a GETATTR response's Data
// field. It replaces the original's raw `memcpy(&rsp.data, &st, ...)` with
// an explicit, independently-versionable encoding — the client and server
// here are built from the same module, so there is no ABI drift risk, but
// spelling the fields out keeps the wire format legible and testable.
type Attr struct {
	Mode  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Ino   uint64
	Size  uint64
	Atime int64 // unix nanoseconds
	Mtime int64
	Ctime int64
}

// EncodeAttr writes a into the first bytes of data.
func EncodeAttr(data *[DataLen]byte, a Attr) error {
	buf := bytes.NewBuffer(data[:0])
	if err := binary.Write(buf, byteOrder, a); err != nil {
		return fmt.Errorf("wire: encode attr: %w", err)
	}
	return nil
}

// DecodeAttr reads an Attr back out of data.
func DecodeAttr(data *[DataLen]byte) (Attr, error) {
	var a Attr
	r := bytes.NewReader(data[:])
	if err := binary.Read(r, byteOrder, &a); err != nil {
		return Attr{}, fmt.Errorf("wire: decode attr: %w", err)
	}
	return a, nil
}

// TimePair carries the access/modification times set by UTIME.
type TimePair struct {
	Atime int64
	Mtime int64
}

// EncodeTimePair writes t into data.
func EncodeTimePair(data *[DataLen]byte, t TimePair) error {
	buf := bytes.NewBuffer(data[:0])
	if err := binary.Write(buf, byteOrder, t); err != nil {
		return fmt.Errorf("wire: encode time pair: %w", err)
	}
	return nil
}

// DecodeTimePair reads a TimePair back out of data.
func DecodeTimePair(data *[DataLen]byte) (TimePair, error) {
	var t TimePair
	r := bytes.NewReader(data[:])
	if err := binary.Read(r, byteOrder, &t); err != nil {
		return TimePair{}, fmt.Errorf("wire: decode time pair: %w", err)
	}
	return t, nil
}

// StatfsInfo carries STATFS results.
type StatfsInfo struct {
	Bsize   uint64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	NameMax uint64
}

// EncodeStatfs writes s into data.
func EncodeStatfs(data *[DataLen]byte, s StatfsInfo) error {
	buf := bytes.NewBuffer(data[:0])
	if err := binary.Write(buf, byteOrder, s); err != nil {
		return fmt.Errorf("wire: encode statfs: %w", err)
	}
	return nil
}

// DecodeStatfs reads a StatfsInfo back out of data.
func DecodeStatfs(data *[DataLen]byte) (StatfsInfo, error) {
	var s StatfsInfo
	r := bytes.NewReader(data[:])
	if err := binary.Read(r, byteOrder, &s); err != nil {
		return StatfsInfo{}, fmt.Errorf("wire: decode statfs: %w", err)
	}
	return s, nil
}

// direntNameLen bounds how much of a directory entry's name fits in one
// READDIR response frame alongside its fixed fields.
const direntNameLen = DataLen - 8

// DirEntry is one READDIR response payload: an inode number, a DT_* type
// byte (mirroring bazil.org/fuse's Dirent.Type), and a NUL-terminated name.
type DirEntry struct {
	Ino  uint64
	Type uint8
	Name string
}

// EncodeDirEntry writes e into data.
func EncodeDirEntry(data *[DataLen]byte, e DirEntry) error {
	for i := range data {
		data[i] = 0
	}
	byteOrder.PutUint64(data[0:8], e.Ino)
	data[8] = e.Type
	name := e.Name
	if len(name) > direntNameLen-1 {
		name = name[:direntNameLen-1]
	}
	copy(data[9:], name)
	return nil
}

// DecodeDirEntry reads a DirEntry back out of data.
func DecodeDirEntry(data *[DataLen]byte) DirEntry {
	ino := byteOrder.Uint64(data[0:8])
	typ := data[8]
	name := fixedString(data[9:])
	return DirEntry{Ino: ino, Type: typ, Name: name}
}

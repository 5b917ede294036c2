// Package wire defines the fixed-layout request/response frames exchanged
// between a samfs client and a samfs server, and the nonce handshake that
// wraps every frame exchange.
package wire

// Op identifies the filesystem operation carried by a Request. The integer
// values are fixed for binary compatibility between independently built
// client and server binaries — never reorder or renumber this table.
type Op uint32

// Operation codes, in wire order.
const (
	Unknown Op = iota
	Getattr
	Access
	Mkdir
	Opendir
	Readdir
	Releasedir
	Rmdir
	Create
	Open
	Read
	Write
	Truncate
	Release
	Unlink
	Rename
	Chmod
	Utime
	Statfs
)

var opNames = map[Op]string{
	Unknown:    "UNKNOWN",
	Getattr:    "GETATTR",
	Access:     "ACCESS",
	Mkdir:      "MKDIR",
	Opendir:    "OPENDIR",
	Readdir:    "READDIR",
	Releasedir: "RELEASEDIR",
	Rmdir:      "RMDIR",
	Create:     "CREATE",
	Open:       "OPEN",
	Read:       "READ",
	Write:      "WRITE",
	Truncate:   "TRUNCATE",
	Release:    "RELEASE",
	Unlink:     "UNLINK",
	Rename:     "RENAME",
	Chmod:      "CHMOD",
	Utime:      "UTIME",
	Statfs:     "STATFS",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}

// Streaming reports whether an operation may be answered by more than one
// response frame, terminated by a frame with EndOfData set.
func (o Op) Streaming() bool {
	return o == Readdir || o == Read || o == Write
}

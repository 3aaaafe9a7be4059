package fs

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnknownPath     = errors.New("unknown path")
	ErrExists          = errors.New("path already exists")
	ErrNameTooLong     = errors.New("file name too long")
	ErrNotDirectory    = errors.New("not a directory")
	ErrIsDirectory     = errors.New("is a directory")
	ErrNotImplemented  = errors.New("not implemented")
	ErrClosed          = errors.New("file already closed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoSpace         = errors.New("no space left on disk")
)

// NameMax is the longest single path component a filesystem will create.
const NameMax = 14

// InodeType enumerates types of Inodes.
type InodeType int

const (
	// RegularFile is a fixed-length byte addressable file.
	RegularFile InodeType = iota

	// Directory is a directory.
	Directory
)

// String returns a human-readable representation of the InodeType.
func (n InodeType) String() string {
	switch n {
	case RegularFile:
		return "file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

type InodeStableAttr struct {
	// Type is the InodeType of a InodeOps.
	Type InodeType

	// DeviceID is the device on which a InodeOps resides.
	DeviceID uint64

	// InodeID uniquely identifies InodeOps on its device.
	InodeID uint64

	// BlockSize is the block size of data backing this InodeOps.
	BlockSize int64
}

// InodeUnstableAttr contains Inode attributes that may change over the
// lifetime of the Inode.
type InodeUnstableAttr struct {
	// Size is the file size in bytes.
	Size int64

	// Perms is the protection (read/write/execute for user/group/other).
	Perms int

	// ModificationTime is the time of last modification.
	ModificationTime time.Time

	// Links is the number of directory entries naming the inode.
	Links uint64
}

// InodeOps is implemented by each filesystem backend. Files have a fixed
// length chosen at creation; WriteAt never extends them.
type InodeOps interface {
	LookupChild(ctx context.Context, inode *Inode, name string) (*Inode, error)
	CreateChild(ctx context.Context, inode *Inode, name string, size int64) (*Inode, error)
	RemoveChild(ctx context.Context, inode *Inode, name string) error
	UnstableAttr(ctx context.Context, inode *Inode) (*InodeUnstableAttr, error)
	ReadAt(inode *Inode, p []byte, off int64) (int, error)
	WriteAt(inode *Inode, p []byte, off int64) (int, error)
}

type Inode struct {
	StableAttr InodeStableAttr

	Ops InodeOps

	mu        sync.Mutex
	denyWrite int
}

func NewInode(attr InodeStableAttr, ops InodeOps) *Inode {
	return &Inode{
		StableAttr: attr,
		Ops:        ops,
	}
}

func (i *Inode) IsDir() bool {
	return i.StableAttr.Type == Directory
}

func (i *Inode) denyWrites() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.denyWrite++
}

func (i *Inode) allowWrites() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.denyWrite > 0 {
		i.denyWrite--
	}
}

func (i *Inode) writable() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.denyWrite == 0
}

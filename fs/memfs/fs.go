package memfs

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/namhoon-kim97/pintos-kaist/device"
	"github.com/namhoon-kim97/pintos-kaist/fs"
)

const blockSize = 512

// DefaultCapacity is the disk size of a MemFS made by New.
const DefaultCapacity = 8 << 20

type Dir struct {
	fs.StandardDirOps

	mem *MemFS

	mu       sync.RWMutex
	Unstable fs.InodeUnstableAttr
	Children map[string]*fs.Inode
	Order    []string
}

func (d *Dir) AddChild(name string, inode *fs.Inode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.addChild(name, inode)
}

func (d *Dir) addChild(name string, inode *fs.Inode) {
	if _, ok := d.Children[name]; !ok {
		d.Order = append(d.Order, name)
	}

	d.Children[name] = inode
}

type File struct {
	fs.StandardFileOps

	mu       sync.RWMutex
	Unstable fs.InodeUnstableAttr
	Body     []byte
}

type MemFS struct {
	Device *device.Device
	root   *fs.Inode

	mu       sync.Mutex
	capacity int64
	used     int64
}

func New() *MemFS {
	return NewSized(DefaultCapacity)
}

// NewSized returns a MemFS whose created files may use at most capacity
// bytes, counted in whole blocks.
func NewSized(capacity int64) *MemFS {
	m := &MemFS{
		Device:   device.NewAnonDevice(),
		capacity: capacity,
	}
	m.root = m.NewDir(time.Now())

	return m
}

func blocks(size int64) int64 {
	return (size + blockSize - 1) / blockSize * blockSize
}

// reserve charges size against the disk before any memory is committed.
func (m *MemFS) reserve(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	need := blocks(size)
	if need > m.capacity-m.used {
		return fs.ErrNoSpace
	}

	m.used += need

	return nil
}

func (m *MemFS) refund(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= blocks(size)
	if m.used < 0 {
		m.used = 0
	}
}

// Used is the number of bytes charged to files on the disk.
func (m *MemFS) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.used
}

func (m *MemFS) Capacity() int64 {
	return m.capacity
}

func (m *MemFS) Root() (*fs.Inode, error) {
	return m.root, nil
}

func (m *MemFS) attr(typ fs.InodeType) fs.InodeStableAttr {
	return fs.InodeStableAttr{
		Type:      typ,
		DeviceID:  m.Device.DeviceID(),
		InodeID:   m.Device.NextIno(),
		BlockSize: blockSize,
	}
}

func (m *MemFS) NewDir(mtime time.Time) *fs.Inode {
	return fs.NewInode(m.attr(fs.Directory), &Dir{
		mem:      m,
		Unstable: fs.InodeUnstableAttr{Perms: 0755, ModificationTime: mtime, Links: 1},
		Children: make(map[string]*fs.Inode),
	})
}

// NewFile wraps body as the contents of a new file. The length of body is
// the length of the file. Its blocks count as used even past capacity.
func (m *MemFS) NewFile(body []byte, mtime time.Time) *fs.Inode {
	m.mu.Lock()
	m.used += blocks(int64(len(body)))
	m.mu.Unlock()

	return m.newFile(body, mtime)
}

func (m *MemFS) newFile(body []byte, mtime time.Time) *fs.Inode {
	return fs.NewInode(m.attr(fs.RegularFile), &File{
		Unstable: fs.InodeUnstableAttr{
			Size:             int64(len(body)),
			Perms:            0644,
			ModificationTime: mtime,
			Links:            1,
		},
		Body: body,
	})
}

// NewNamespace returns a mount namespace rooted at a fresh empty MemFS.
func NewNamespace() *fs.MountNamespace {
	return New().Namespace()
}

func (m *MemFS) Namespace() *fs.MountNamespace {
	ns := fs.NewMountNamespace()
	ns.SetRoot(m.root)

	return ns
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	child, ok := d.Children[name]
	if !ok {
		return nil, fs.ErrUnknownPath
	}

	return child, nil
}

func (d *Dir) CreateChild(ctx context.Context, inode *fs.Inode, name string, size int64) (*fs.Inode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.Children[name]; ok {
		return nil, fs.ErrExists
	}

	if err := d.mem.reserve(size); err != nil {
		return nil, err
	}

	child := d.mem.newFile(make([]byte, size), time.Now())
	d.addChild(name, child)
	d.Unstable.ModificationTime = time.Now()

	return child, nil
}

func (d *Dir) RemoveChild(ctx context.Context, inode *fs.Inode, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	child, ok := d.Children[name]
	if !ok {
		return fs.ErrUnknownPath
	}

	if sub, ok := child.Ops.(*Dir); ok {
		sub.mu.RLock()
		n := len(sub.Children)
		sub.mu.RUnlock()

		if n > 0 {
			return fs.ErrInvalidArgument
		}
	}

	delete(d.Children, name)

	if f, ok := child.Ops.(*File); ok {
		f.mu.RLock()
		size := int64(len(f.Body))
		f.mu.RUnlock()

		d.mem.refund(size)
	}

	for i, ent := range d.Order {
		if ent == name {
			d.Order = append(d.Order[:i], d.Order[i+1:]...)
			break
		}
	}

	d.Unstable.ModificationTime = time.Now()

	return nil
}

func (d *Dir) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	us := d.Unstable
	return &us, nil
}

func (f *File) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	us := f.Unstable
	return &us, nil
}

func (f *File) ReadAt(inode *fs.Inode, p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if off >= int64(len(f.Body)) {
		return 0, io.EOF
	}

	n := copy(p, f.Body[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (f *File) WriteAt(inode *fs.Inode, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off >= int64(len(f.Body)) {
		return 0, nil
	}

	n := copy(f.Body[off:], p)
	f.Unstable.ModificationTime = time.Now()

	return n, nil
}

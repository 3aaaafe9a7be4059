package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/namhoon-kim97/pintos-kaist/device"
	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/log"
)

// HostFS serves a directory of the host filesystem. Files keep the
// fixed-length semantics of the kernel filesystem: writes never extend them.
type HostFS struct {
	Device *device.Device
	root   *fs.Inode
}

func statToStableAttr(dev *device.Device, path string, stat os.FileInfo) fs.InodeStableAttr {
	var attr fs.InodeStableAttr
	attr.BlockSize = 4096
	attr.DeviceID = dev.DeviceID()

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err == nil {
		attr.InodeID = uint64(st.Ino)
		attr.BlockSize = int64(st.Blksize)
	} else {
		attr.InodeID = dev.NextIno()
	}

	if stat.IsDir() {
		attr.Type = fs.Directory
	} else {
		attr.Type = fs.RegularFile
	}

	return attr
}

func NewHostFS(path string) (*HostFS, error) {
	dev := device.NewAnonDevice()
	h := &HostFS{
		Device: dev,
	}

	log.L.Trace("creating host fs", "path", path)

	stat, err := os.Stat(path)
	if err != nil {
		log.L.Error("error stating hostfs path", "error", err)
		return nil, err
	}

	if !stat.IsDir() {
		return nil, fs.ErrNotDirectory
	}

	attr := statToStableAttr(dev, path, stat)

	h.root = fs.NewInode(attr, &Dir{host: h, FSPath: FSPath{Path: path}})

	return h, nil
}

func (h *HostFS) Root() (*fs.Inode, error) {
	return h.root, nil
}

// Namespace returns a mount namespace rooted at the host directory.
func (h *HostFS) Namespace() *fs.MountNamespace {
	ns := fs.NewMountNamespace()
	ns.SetRoot(h.root)

	return ns
}

type FSPath struct {
	Path string
}

func (p *FSPath) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	stat, err := os.Stat(p.Path)
	if err != nil {
		return nil, err
	}

	var us fs.InodeUnstableAttr
	us.ModificationTime = stat.ModTime()
	us.Perms = int(stat.Mode().Perm())
	us.Size = stat.Size()
	us.Links = 1

	return &us, nil
}

type Dir struct {
	fs.StandardDirOps
	FSPath

	host *HostFS
}

type Entry struct {
	fs.StandardFileOps
	FSPath

	mu sync.Mutex
	f  *os.File
}

// handle opens the backing file on first use and keeps it, so an entry
// unlinked on the host stays readable through inodes already looked up.
func (e *Entry) handle() (*os.File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.f != nil {
		return e.f, nil
	}

	f, err := os.OpenFile(e.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	e.f = f

	return f, nil
}

func (e *Entry) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	f, err := e.handle()
	if err != nil {
		return e.FSPath.UnstableAttr(ctx, inode)
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return &fs.InodeUnstableAttr{
		Size:             stat.Size(),
		Perms:            int(stat.Mode().Perm()),
		ModificationTime: stat.ModTime(),
		Links:            1,
	}, nil
}

func (e *Entry) ReadAt(inode *fs.Inode, p []byte, off int64) (int, error) {
	f, err := e.handle()
	if err != nil {
		return 0, err
	}

	return f.ReadAt(p, off)
}

func (e *Entry) WriteAt(inode *fs.Inode, p []byte, off int64) (int, error) {
	f, err := e.handle()
	if err != nil {
		return 0, err
	}

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if off >= stat.Size() {
		return 0, nil
	}

	if left := stat.Size() - off; int64(len(p)) > left {
		p = p[:left]
	}

	return f.WriteAt(p, off)
}

func (d *Dir) child(name string) string {
	return filepath.Join(d.Path, filepath.Base(name))
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	log.L.Trace("lookup child on host fs", "dir", d.Path, "name", name)

	cp := d.child(name)

	stat, err := os.Stat(cp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.ErrUnknownPath
		}

		return nil, err
	}

	attr := statToStableAttr(d.host.Device, cp, stat)

	if stat.IsDir() {
		return fs.NewInode(attr, &Dir{host: d.host, FSPath: FSPath{Path: cp}}), nil
	}

	return fs.NewInode(attr, &Entry{FSPath: FSPath{Path: cp}}), nil
}

func (d *Dir) CreateChild(ctx context.Context, inode *fs.Inode, name string, size int64) (*fs.Inode, error) {
	cp := d.child(name)

	f, err := os.OpenFile(cp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fs.ErrExists
		}

		return nil, err
	}

	defer f.Close()

	err = f.Truncate(size)
	if err != nil {
		os.Remove(cp)
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return fs.NewInode(statToStableAttr(d.host.Device, cp, stat), &Entry{FSPath: FSPath{Path: cp}}), nil
}

func (d *Dir) RemoveChild(ctx context.Context, inode *fs.Inode, name string) error {
	err := os.Remove(d.child(name))
	if err != nil {
		if os.IsNotExist(err) {
			return fs.ErrUnknownPath
		}

		return err
	}

	return nil
}

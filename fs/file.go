package fs

import (
	"context"
	"sync"
)

// File is one open file object. Every successful Open builds a new File,
// so two opens of the same path never share state beyond the inode.
type File struct {
	Dirent *Dirent

	mu     sync.Mutex
	closed bool
	denied bool
}

func newFile(d *Dirent) *File {
	return &File{Dirent: d}
}

func (f *File) Name() string {
	return f.Dirent.Path()
}

func (f *File) inode() (*Inode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	return f.Dirent.Inode, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalidArgument
	}

	i, err := f.inode()
	if err != nil {
		return 0, err
	}

	return i.Ops.ReadAt(i, p, off)
}

// WriteAt writes p at off without extending the file. While any open file
// on the inode denies writes it writes nothing.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalidArgument
	}

	i, err := f.inode()
	if err != nil {
		return 0, err
	}

	if !i.writable() {
		return 0, nil
	}

	return i.Ops.WriteAt(i, p, off)
}

func (f *File) Length() int64 {
	i, err := f.inode()
	if err != nil {
		return 0
	}

	us, err := i.Ops.UnstableAttr(context.Background(), i)
	if err != nil {
		return 0
	}

	return us.Size
}

// DenyWrite blocks writes to the underlying inode until AllowWrite or Close.
func (f *File) DenyWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.denied {
		return
	}

	f.denied = true
	f.Dirent.Inode.denyWrites()
}

func (f *File) AllowWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.allowWrite()
}

func (f *File) allowWrite() {
	if !f.denied {
		return
	}

	f.denied = false
	f.Dirent.Inode.allowWrites()
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	f.allowWrite()
	f.closed = true

	return nil
}

package fs

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// FileSystem is the narrow surface the kernel needs from a filesystem.
type FileSystem interface {
	Create(ctx context.Context, path string, size int64) error
	Remove(ctx context.Context, path string) error
	Open(ctx context.Context, path string) (*File, error)
}

var _ FileSystem = (*MountNamespace)(nil)

type MountNamespace struct {
	Root        *Dirent
	DirentCache *lru.ARCCache

	// serializes namespace mutation against cache fills
	mu sync.Mutex
}

func NewMountNamespace() *MountNamespace {
	cache, err := lru.NewARC(1000)
	if err != nil {
		panic(err)
	}

	return &MountNamespace{
		DirentCache: cache,
	}
}

func (m *MountNamespace) SetRoot(i *Inode) {
	m.Root = &Dirent{Inode: i}
}

func cleanPath(p string) (string, error) {
	if p == "" {
		return "", ErrUnknownPath
	}

	p = strings.TrimPrefix(path.Clean("/"+p), "/")

	return p, nil
}

func (m *MountNamespace) LookupDirent(ctx context.Context, p string) (*Dirent, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookup(ctx, p)
}

func (m *MountNamespace) lookup(ctx context.Context, p string) (*Dirent, error) {
	if p == "" {
		return m.Root, nil
	}

	if val, ok := m.DirentCache.Get(p); ok {
		return val.(*Dirent), nil
	}

	sections := strings.Split(p, "/")

	cur := m.Root

	for _, part := range sections {
		if !cur.Inode.IsDir() {
			return nil, errors.Wrapf(ErrNotDirectory, "component: %s", cur.Name)
		}

		i, err := cur.Inode.Ops.LookupChild(ctx, cur.Inode, part)
		if err != nil {
			return nil, err
		}

		cur = &Dirent{Inode: i, Parent: cur, Name: part}
	}

	m.DirentCache.Add(p, cur)

	return cur, nil
}

func (m *MountNamespace) parent(ctx context.Context, p string) (*Dirent, string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, "", err
	}

	if p == "" {
		return nil, "", ErrInvalidArgument
	}

	dir, name := path.Split(p)

	parent, err := m.lookup(ctx, strings.TrimSuffix(dir, "/"))
	if err != nil {
		return nil, "", err
	}

	if !parent.Inode.IsDir() {
		return nil, "", errors.Wrapf(ErrNotDirectory, "component: %s", parent.Name)
	}

	return parent, name, nil
}

// Create makes a regular file of the given length, zero filled.
func (m *MountNamespace) Create(ctx context.Context, p string, size int64) error {
	if size < 0 {
		return ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, name, err := m.parent(ctx, p)
	if err != nil {
		return err
	}

	if len(name) > NameMax {
		return errors.Wrapf(ErrNameTooLong, "name: %s", name)
	}

	if _, err := parent.Inode.Ops.LookupChild(ctx, parent.Inode, name); err == nil {
		return errors.Wrapf(ErrExists, "name: %s", name)
	}

	_, err = parent.Inode.Ops.CreateChild(ctx, parent.Inode, name, size)
	return err
}

// Remove unlinks a file. Files already open stay usable until closed.
func (m *MountNamespace) Remove(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, name, err := m.parent(ctx, p)
	if err != nil {
		return err
	}

	err = parent.Inode.Ops.RemoveChild(ctx, parent.Inode, name)
	if err != nil {
		return err
	}

	clean, _ := cleanPath(p)
	m.DirentCache.Remove(clean)

	return nil
}

func (m *MountNamespace) Open(ctx context.Context, p string) (*File, error) {
	dirent, err := m.LookupDirent(ctx, p)
	if err != nil {
		return nil, err
	}

	if dirent.Inode.IsDir() {
		return nil, errors.Wrapf(ErrIsDirectory, "path: %s", p)
	}

	return newFile(dirent), nil
}

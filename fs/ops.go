package fs

import (
	"context"
)

type StandardDirOps struct{}

func (_ StandardDirOps) ReadAt(inode *Inode, p []byte, off int64) (int, error) {
	return 0, ErrIsDirectory
}

func (_ StandardDirOps) WriteAt(inode *Inode, p []byte, off int64) (int, error) {
	return 0, ErrIsDirectory
}

type StandardFileOps struct{}

func (_ StandardFileOps) LookupChild(ctx context.Context, inode *Inode, name string) (*Inode, error) {
	return nil, ErrNotDirectory
}

func (_ StandardFileOps) CreateChild(ctx context.Context, inode *Inode, name string, size int64) (*Inode, error) {
	return nil, ErrNotDirectory
}

func (_ StandardFileOps) RemoveChild(ctx context.Context, inode *Inode, name string) error {
	return ErrNotDirectory
}

package kernel

import (
	"context"

	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/abi"
)

var (
	ErrWrongDirection = errors.New("console stream used the wrong way")
	ErrNotFile        = errors.New("descriptor is not a file")
)

// IsDescriptorFault reports whether err means the process named a
// descriptor it has no right to use.
func IsDescriptorFault(err error) bool {
	switch errors.Cause(err) {
	case ErrBadDescriptor, ErrNotOpen:
		return true
	default:
		return false
	}
}

func (k *Kernel) Create(ctx context.Context, path string, size int64) error {
	return k.WithFS(func() error {
		return k.cfg.FS.Create(ctx, path, size)
	})
}

func (k *Kernel) Remove(ctx context.Context, path string) error {
	return k.WithFS(func() error {
		return k.cfg.FS.Remove(ctx, path)
	})
}

// OpenFile opens path into a fresh handle and installs it at the lowest
// free descriptor of t. Nothing is left behind on failure.
func (k *Kernel) OpenFile(ctx context.Context, t *Task, path string) (int, error) {
	files := t.Files()

	fd := -1

	err := k.WithFS(func() error {
		f, err := k.cfg.FS.Open(ctx, path)
		if err != nil {
			return err
		}

		h, err := k.files.Create(f)
		if err != nil {
			f.Close()
			return err
		}

		fd, err = files.Alloc(h)
		if err != nil {
			if rerr := k.files.Release(h); rerr != nil {
				k.L.Error("error releasing handle", "error", rerr)
			}

			return err
		}

		return nil
	})

	if err != nil {
		return -1, err
	}

	return fd, nil
}

func (k *Kernel) fileSlot(t *Task, fd int) (*Handle, error) {
	slot, err := t.Files().Open(fd)
	if err != nil {
		return nil, err
	}

	if slot.Kind != HandleSlot {
		return nil, errors.Wrapf(ErrNotFile, "fd %d is %s", fd, slot.Kind)
	}

	return slot.Handle, nil
}

func (k *Kernel) Filesize(t *Task, fd int) (int64, error) {
	h, err := k.fileSlot(t, fd)
	if err != nil {
		return -1, err
	}

	var size int64

	k.WithFS(func() error {
		size = h.Length()
		return nil
	})

	return size, nil
}

// Read fills p from fd. The console input slot reads the keyboard. fd 1
// and the console output slot cannot be read, whatever fd 1 names.
func (k *Kernel) Read(t *Task, fd int, p []byte) (int, error) {
	if fd == abi.StdoutFileno {
		return -1, ErrWrongDirection
	}

	files := t.Files()

	slot, err := files.Open(fd)
	if err != nil {
		return -1, err
	}

	switch slot.Kind {
	case ConsoleIn:
		if stdin, _ := files.ConsoleRefs(); stdin <= 0 {
			return -1, ErrWrongDirection
		}

		return k.console.Read(p), nil
	case ConsoleOut:
		return -1, ErrWrongDirection
	}

	var n int

	err = k.WithFS(func() error {
		var err error
		n, err = slot.Handle.Read(p)
		return err
	})

	if err != nil {
		return -1, err
	}

	return n, nil
}

// Write writes p to fd. The console output slot writes the terminal. fd 0
// and the console input slot cannot be written, whatever fd 0 names.
func (k *Kernel) Write(t *Task, fd int, p []byte) (int, error) {
	if fd == abi.StdinFileno {
		return -1, ErrWrongDirection
	}

	files := t.Files()

	slot, err := files.Open(fd)
	if err != nil {
		return -1, err
	}

	switch slot.Kind {
	case ConsoleOut:
		if _, stdout := files.ConsoleRefs(); stdout <= 0 {
			return -1, ErrWrongDirection
		}

		k.console.Putbuf(p)
		return len(p), nil
	case ConsoleIn:
		return -1, ErrWrongDirection
	}

	var n int

	err = k.WithFS(func() error {
		var err error
		n, err = slot.Handle.Write(p)
		return err
	})

	if err != nil {
		return -1, err
	}

	return n, nil
}

func (k *Kernel) Seek(t *Task, fd int, pos int64) error {
	h, err := k.fileSlot(t, fd)
	if err != nil {
		return err
	}

	return k.WithFS(func() error {
		return h.Seek(pos)
	})
}

func (k *Kernel) Tell(t *Task, fd int) (int64, error) {
	h, err := k.fileSlot(t, fd)
	if err != nil {
		return -1, err
	}

	var pos int64

	k.WithFS(func() error {
		pos = h.Tell()
		return nil
	})

	return pos, nil
}

func (k *Kernel) Close(t *Task, fd int) error {
	files := t.Files()

	return k.WithFS(func() error {
		return files.Close(fd)
	})
}

func (k *Kernel) Dup2(t *Task, oldfd, newfd int) (int, error) {
	files := t.Files()

	var fd int

	err := k.WithFS(func() error {
		var err error
		fd, err = files.Dup2(oldfd, newfd)
		return err
	})

	return fd, err
}

package fs_test

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/fs/memfs"
)

func TestMountNamespace(t *testing.T) {
	n := neko.Modern(t)

	var (
		ns  *fs.MountNamespace
		ctx = context.Background()
	)

	n.Setup(func() {
		ns = memfs.NewNamespace()
	})

	n.It("creates zero filled files of a fixed size", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "a", 4))

		f, err := ns.Open(ctx, "/a")
		require.NoError(t, err)
		require.Equal(t, int64(4), f.Length())
		require.Equal(t, "/a", f.Name())

		buf := []byte("xxxx")
		n, err := f.ReadAt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, 4, n)
		require.Equal(t, []byte{0, 0, 0, 0}, buf)

		n, err = f.WriteAt([]byte("abcdef"), 2)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.Equal(t, int64(4), f.Length())

		n, err = f.ReadAt(buf, 1)
		require.Equal(t, io.EOF, err)
		require.Equal(t, 3, n)
		require.Equal(t, "\x00ab", string(buf[:n]))
	})

	n.It("refuses to create a file twice", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "a", 0))

		err := ns.Create(ctx, "a", 0)
		require.Equal(t, fs.ErrExists, errors.Cause(err))
	})

	n.It("limits name length", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "fourteen-chars", 0))

		err := ns.Create(ctx, "fifteen-chars!!", 0)
		require.Equal(t, fs.ErrNameTooLong, errors.Cause(err))
	})

	n.It("rejects empty and negative requests", func(t *testing.T) {
		err := ns.Create(ctx, "", 0)
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		err = ns.Create(ctx, "neg", -1)
		require.Equal(t, fs.ErrInvalidArgument, err)

		_, err = ns.Open(ctx, "")
		require.Error(t, err)
	})

	n.It("refuses to open directories or missing files", func(t *testing.T) {
		_, err := ns.Open(ctx, "/")
		require.Equal(t, fs.ErrIsDirectory, errors.Cause(err))

		_, err = ns.Open(ctx, "missing")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))
	})

	n.It("gives every open its own file object", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "a", 1))

		f1, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		f2, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		require.False(t, f1 == f2)

		require.NoError(t, f1.Close())
		require.Equal(t, fs.ErrClosed, f1.Close())

		_, err = f2.ReadAt(make([]byte, 1), 0)
		require.NoError(t, err)
	})

	n.It("keeps removed files readable through open handles", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "a", 2))

		f, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		_, err = f.WriteAt([]byte("hi"), 0)
		require.NoError(t, err)

		require.NoError(t, ns.Remove(ctx, "a"))

		_, err = ns.Open(ctx, "a")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		buf := make([]byte, 2)
		_, err = f.ReadAt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "hi", string(buf))

		err = ns.Remove(ctx, "a")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		require.NoError(t, ns.Create(ctx, "a", 0))
	})

	n.It("denies writes while any file denies them", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "a", 2))

		exe, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		w, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		exe.DenyWrite()
		exe.DenyWrite()

		n, err := w.WriteAt([]byte("no"), 0)
		require.NoError(t, err)
		require.Equal(t, 0, n)

		exe.AllowWrite()

		n, err = w.WriteAt([]byte("ok"), 0)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		exe.DenyWrite()
		require.NoError(t, exe.Close())

		n, err = w.WriteAt([]byte("ok"), 0)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	n.It("rejects negative offsets", func(t *testing.T) {
		require.NoError(t, ns.Create(ctx, "a", 2))

		f, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		_, err = f.ReadAt(make([]byte, 1), -1)
		require.Equal(t, fs.ErrInvalidArgument, err)

		_, err = f.WriteAt(make([]byte, 1), -1)
		require.Equal(t, fs.ErrInvalidArgument, err)
	})

	n.Meow()
}

package host

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/namhoon-kim97/pintos-kaist/fs"
)

func TestHostFS(t *testing.T) {
	n := neko.Modern(t)

	ctx := context.Background()

	mount := func(t *testing.T) (string, *fs.MountNamespace) {
		dir := t.TempDir()

		h, err := NewHostFS(dir)
		require.NoError(t, err)

		return dir, h.Namespace()
	}

	n.It("refuses a path that is not a directory", func(t *testing.T) {
		dir := t.TempDir()

		path := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

		_, err := NewHostFS(path)
		require.Equal(t, fs.ErrNotDirectory, err)
	})

	n.It("reads files already on the host", func(t *testing.T) {
		dir, ns := mount(t)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "hello"), []byte("hello"), 0644))

		f, err := ns.Open(ctx, "hello")
		require.NoError(t, err)
		require.Equal(t, int64(5), f.Length())

		buf := make([]byte, 8)
		n, err := f.ReadAt(buf, 0)
		require.Equal(t, io.EOF, err)
		require.Equal(t, "hello", string(buf[:n]))
	})

	n.It("creates fixed size files that writes never extend", func(t *testing.T) {
		dir, ns := mount(t)

		require.NoError(t, ns.Create(ctx, "new", 3))

		err := ns.Create(ctx, "new", 3)
		require.Equal(t, fs.ErrExists, errors.Cause(err))

		f, err := ns.Open(ctx, "new")
		require.NoError(t, err)

		n, err := f.WriteAt([]byte("abcdef"), 1)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		data, err := os.ReadFile(filepath.Join(dir, "new"))
		require.NoError(t, err)
		require.Equal(t, "\x00ab", string(data))
	})

	n.It("keeps an open file usable after removal", func(t *testing.T) {
		dir, ns := mount(t)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "gone"), []byte("bye"), 0644))

		f, err := ns.Open(ctx, "gone")
		require.NoError(t, err)
		require.Equal(t, int64(3), f.Length())

		require.NoError(t, ns.Remove(ctx, "gone"))

		_, err = os.Stat(filepath.Join(dir, "gone"))
		require.True(t, os.IsNotExist(err))

		buf := make([]byte, 3)
		_, err = f.ReadAt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "bye", string(buf))
	})

	n.It("looks up nested directories", func(t *testing.T) {
		dir, ns := mount(t)

		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "f"), []byte("z"), 0644))

		f, err := ns.Open(ctx, "sub/f")
		require.NoError(t, err)
		require.Equal(t, "/sub/f", f.Name())

		_, err = ns.Open(ctx, "sub")
		require.Equal(t, fs.ErrIsDirectory, errors.Cause(err))

		_, err = ns.Open(ctx, "missing")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))
	})

	n.Meow()
}

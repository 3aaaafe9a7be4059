package tarfs

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/namhoon-kim97/pintos-kaist/fs"
)

func archive(t *testing.T, dirs []string, files ...[2]string) *bytes.Buffer {
	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	for _, dir := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     dir,
			Typeflag: tar.TypeDir,
			Mode:     0755,
		}))
	}

	for _, file := range files {
		name, body := file[0], file[1]

		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(body)),
		}))

		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "a",
	}))

	require.NoError(t, tw.Close())

	return &buf
}

func TestTarFS(t *testing.T) {
	n := neko.Modern(t)

	ctx := context.Background()

	n.It("loads regular files and directories", func(t *testing.T) {
		tfs, err := NewTarFS(archive(t, []string{"./", "bin/"},
			[2]string{"./a", "alpha"},
			[2]string{"bin/echo", "image"},
			[2]string{"/deep/x/y", "why"},
		))
		require.NoError(t, err)

		ns, err := tfs.Namespace()
		require.NoError(t, err)

		f, err := ns.Open(ctx, "a")
		require.NoError(t, err)

		buf := make([]byte, 5)
		_, err = f.ReadAt(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "alpha", string(buf))

		f, err = ns.Open(ctx, "bin/echo")
		require.NoError(t, err)
		require.Equal(t, int64(5), f.Length())

		f, err = ns.Open(ctx, "deep/x/y")
		require.NoError(t, err)
		require.Equal(t, int64(3), f.Length())
	})

	n.It("skips entries it cannot represent", func(t *testing.T) {
		tfs, err := NewTarFS(archive(t, nil, [2]string{"a", "alpha"}))
		require.NoError(t, err)

		ns, err := tfs.Namespace()
		require.NoError(t, err)

		_, err = ns.Open(ctx, "link")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))
	})

	n.It("is writable once loaded", func(t *testing.T) {
		tfs, err := NewTarFS(archive(t, nil, [2]string{"a", "alpha"}))
		require.NoError(t, err)

		ns, err := tfs.Namespace()
		require.NoError(t, err)

		require.NoError(t, ns.Create(ctx, "b", 2))
		require.NoError(t, ns.Remove(ctx, "a"))

		_, err = ns.Open(ctx, "a")
		require.Error(t, err)
	})

	n.It("rejects a file used as a directory", func(t *testing.T) {
		_, err := NewTarFS(archive(t, nil,
			[2]string{"a", "alpha"},
			[2]string{"a/b", "beta"},
		))
		require.Error(t, err)
	})

	n.Meow()
}

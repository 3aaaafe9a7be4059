package kernel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/fs/memfs"
)

func TestRegistry(t *testing.T) {
	n := neko.Modern(t)

	var (
		ns    *fs.MountNamespace
		files *Registry
	)

	n.Setup(func() {
		ns = memfs.NewNamespace()
		files = NewRegistry()
	})

	n.It("creates one handle per file", func(t *testing.T) {
		f := openTestFile(t, ns, "a", "abc")

		h, err := files.Create(f)
		require.NoError(t, err)
		require.Equal(t, 1, files.Refs(h))

		_, err = files.Create(f)
		require.Equal(t, ErrFileRegistered, err)
	})

	n.It("reuses the handle already wrapping a file", func(t *testing.T) {
		f := openTestFile(t, ns, "a", "abc")

		h, err := files.Create(f)
		require.NoError(t, err)

		again := files.AcquireOrCreate(f)
		require.True(t, h == again)
		require.Equal(t, 2, files.Refs(h))
		require.Equal(t, 1, files.Len())
	})

	n.It("closes the file on the last release", func(t *testing.T) {
		f := openTestFile(t, ns, "a", "abc")

		h := files.AcquireOrCreate(f)
		files.AcquireOrCreate(f)

		require.NoError(t, files.Release(h))

		buf := make([]byte, 3)
		_, err := f.ReadAt(buf, 0)
		require.NoError(t, err)

		require.NoError(t, files.Release(h))

		_, err = f.ReadAt(buf, 0)
		require.Equal(t, fs.ErrClosed, err)

		require.Equal(t, ErrHandleReleased, files.Release(h))
		require.Equal(t, 0, files.Refs(h))
	})

	n.Meow()
}

func TestHandle(t *testing.T) {
	n := neko.Modern(t)

	n.It("advances the cursor by what was transferred", func(t *testing.T) {
		ns := memfs.NewNamespace()
		h := NewRegistry().AcquireOrCreate(openTestFile(t, ns, "a", "hello"))

		buf := make([]byte, 3)

		r, err := h.Read(buf)
		require.NoError(t, err)
		require.Equal(t, 3, r)
		require.Equal(t, int64(3), h.Tell())

		r, err = h.Read(buf)
		require.NoError(t, err)
		require.Equal(t, 2, r)
		require.Equal(t, "lo", string(buf[:r]))

		w, err := h.Write([]byte("x"))
		require.NoError(t, err)
		require.Equal(t, 0, w)
		require.Equal(t, int64(5), h.Length())
	})

	n.It("allows seeking past the end but not before the start", func(t *testing.T) {
		ns := memfs.NewNamespace()
		h := NewRegistry().AcquireOrCreate(openTestFile(t, ns, "a", "hello"))

		require.NoError(t, h.Seek(100))
		require.Equal(t, int64(100), h.Tell())

		r, err := h.Read(make([]byte, 4))
		require.NoError(t, err)
		require.Equal(t, 0, r)

		require.Equal(t, ErrInvalidPosition, h.Seek(-1))
	})

	n.Meow()
}

func TestConsole(t *testing.T) {
	n := neko.Modern(t)

	n.It("reads until input runs dry", func(t *testing.T) {
		c := NewConsole(strings.NewReader("ab"), nil)

		b, ok := c.Getc()
		require.True(t, ok)
		require.Equal(t, byte('a'), b)

		buf := make([]byte, 4)
		require.Equal(t, 1, c.Read(buf))
		require.Equal(t, byte('b'), buf[0])

		_, ok = c.Getc()
		require.False(t, ok)
	})

	n.It("reads nothing without an input", func(t *testing.T) {
		c := NewConsole(nil, nil)
		require.Equal(t, 0, c.Read(make([]byte, 4)))
	})

	n.It("writes whole buffers", func(t *testing.T) {
		out := &syncBuffer{}
		c := NewConsole(nil, out)

		c.Putbuf([]byte("one "))
		c.Printf("%s: exit(%d)\n", "two", 2)

		require.Equal(t, "one two: exit(2)\n", out.String())
	})

	n.Meow()
}

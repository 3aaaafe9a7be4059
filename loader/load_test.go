package loader

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/fs/memfs"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/memory"
)

func TestImage(t *testing.T) {
	n := neko.Modern(t)

	n.It("parses what it builds", func(t *testing.T) {
		raw := Build("echo", []byte("data"))

		p, err := Parse(raw)
		require.NoError(t, err)

		require.Equal(t, "echo", p.Entry)
		require.Equal(t, []byte("data"), p.Data)
		require.Equal(t, uint16(Version), p.Version)
		require.Equal(t, raw, p.Raw)
	})

	n.It("rejects things that are not images", func(t *testing.T) {
		_, err := Parse([]byte("ELF"))
		require.Equal(t, ErrBadImage, errors.Cause(err))

		raw := Build("echo", nil)
		raw[0] = 'X'

		_, err = Parse(raw)
		require.Equal(t, ErrBadImage, errors.Cause(err))

		raw = Build("echo", nil)
		binary.LittleEndian.PutUint16(raw[4:], 9)

		_, err = Parse(raw)
		require.Equal(t, ErrBadImage, errors.Cause(err))

		_, err = Parse(Build("", nil))
		require.Equal(t, ErrBadImage, errors.Cause(err))

		raw = Build("echo", []byte("data"))

		_, err = Parse(raw[:len(raw)-1])
		require.Equal(t, ErrBadImage, errors.Cause(err))
	})

	n.Meow()
}

func TestLayout(t *testing.T) {
	n := neko.Modern(t)

	n.It("maps code, data, heap and stack", func(t *testing.T) {
		p, err := Parse(Build("echo", []byte("init")))
		require.NoError(t, err)

		mem, err := Layout(p, 0)
		require.NoError(t, err)

		code, ok := mem.FindKind(memory.Code)
		require.True(t, ok)
		require.Equal(t, CodeBase, code.Start)
		require.False(t, code.Writable)

		data, ok := mem.FindKind(memory.Data)
		require.True(t, ok)
		require.Equal(t, code.End(), data.Start)
		require.True(t, data.Writable)

		buf := make([]byte, 4)
		_, err = mem.ReadAt(buf, data.Start)
		require.NoError(t, err)
		require.Equal(t, "init", string(buf))

		heap, ok := mem.FindKind(memory.Heap)
		require.True(t, ok)
		require.Equal(t, HeapSize, heap.Size)

		stack, ok := mem.FindKind(memory.Stack)
		require.True(t, ok)
		require.Equal(t, StackTop, stack.End())

		magic := make([]byte, 4)
		_, err = mem.ReadAt(magic, CodeBase)
		require.NoError(t, err)
		require.Equal(t, Magic[:], magic)

		require.True(t, memory.IsFault(mem.Validate(CodeBase, 1, true)))
	})

	n.It("puts the stack under a low kernel base", func(t *testing.T) {
		p, err := Parse(Build("echo", nil))
		require.NoError(t, err)

		mem, err := Layout(p, 0x1000000)
		require.NoError(t, err)

		stack, ok := mem.FindKind(memory.Stack)
		require.True(t, ok)
		require.Equal(t, uint64(0x1000000), stack.End())
	})

	n.Meow()
}

func TestPushArgs(t *testing.T) {
	n := neko.Modern(t)

	newMem := func(t *testing.T) *memory.VirtualMemory {
		p, err := Parse(Build("echo", nil))
		require.NoError(t, err)

		mem, err := Layout(p, 0)
		require.NoError(t, err)

		return mem
	}

	word := func(t *testing.T, mem *memory.VirtualMemory, addr uint64) uint64 {
		var buf [8]byte

		_, err := mem.ReadAt(buf[:], addr)
		require.NoError(t, err)

		return binary.LittleEndian.Uint64(buf[:])
	}

	n.It("lays argv out on the stack", func(t *testing.T) {
		mem := newMem(t)

		argv := []string{"echo", "x", "hello"}

		addr, err := PushArgs(mem, argv)
		require.NoError(t, err)
		require.Equal(t, uint64(0), addr%8)

		for i, want := range argv {
			s, err := mem.ReadCString(word(t, mem, addr+uint64(i)*8), 64)
			require.NoError(t, err)
			require.Equal(t, want, s)
		}

		require.Equal(t, uint64(0), word(t, mem, addr+uint64(len(argv))*8))
		require.Equal(t, uint64(0), word(t, mem, addr-8))
	})

	n.It("refuses arguments that overflow the stack page", func(t *testing.T) {
		mem := newMem(t)

		_, err := PushArgs(mem, []string{"echo", strings.Repeat("x", memory.PageSize)})
		require.Equal(t, ErrArgsTooLong, errors.Cause(err))
	})

	n.Meow()
}

func TestLoader(t *testing.T) {
	n := neko.Modern(t)

	var (
		ns    *fs.MountNamespace
		progs *Programs
		cache *LoaderCache
		l     *Loader
		ctx   = context.Background()
	)

	entry := func(cpu kernel.CPU, argc int, argv uint64) int { return argc }

	n.Setup(func() {
		ns = memfs.NewNamespace()

		progs = NewPrograms()
		progs.Register("echo", entry)

		cache = NewLoaderCache()
		l = NewLoader(cache, progs)
	})

	n.It("splits command lines on runs of spaces", func(t *testing.T) {
		argv, err := SplitCommand("  echo   a  b ")
		require.NoError(t, err)
		require.Equal(t, []string{"echo", "a", "b"}, argv)

		_, err = SplitCommand("   ")
		require.Equal(t, ErrEmptyCommand, err)

		_, err = SplitCommand(strings.Repeat("a ", MaxArgs+1))
		require.Equal(t, ErrTooManyArgs, errors.Cause(err))
	})

	n.It("loads an installed program", func(t *testing.T) {
		require.NoError(t, Install(ctx, ns, "echo", Build("echo", nil)))

		img, err := l.Load(ctx, ns, "echo  one two", 0)
		require.NoError(t, err)

		require.Equal(t, "echo", img.Name)
		require.Equal(t, []string{"echo", "one", "two"}, img.Argv)
		require.NotNil(t, img.Mem)
		require.NotZero(t, img.ArgvAddr)
	})

	n.It("denies writes to a loaded executable", func(t *testing.T) {
		image := Build("echo", nil)
		require.NoError(t, Install(ctx, ns, "echo", image))

		_, err := l.Load(ctx, ns, "echo", 0)
		require.NoError(t, err)

		f, err := ns.Open(ctx, "echo")
		require.NoError(t, err)

		n, err := f.WriteAt([]byte("XXXX"), 0)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	n.It("caches parsed images by content", func(t *testing.T) {
		require.NoError(t, Install(ctx, ns, "a", Build("echo", nil)))
		require.NoError(t, Install(ctx, ns, "b", Build("echo", nil)))

		_, err := l.Load(ctx, ns, "a", 0)
		require.NoError(t, err)

		_, err = l.Load(ctx, ns, "b", 0)
		require.NoError(t, err)

		require.Equal(t, 1, cache.Len())
	})

	n.It("fails cleanly", func(t *testing.T) {
		_, err := l.Load(ctx, ns, "missing", 0)
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		require.NoError(t, Install(ctx, ns, "junk", []byte("not an image")))

		_, err = l.Load(ctx, ns, "junk", 0)
		require.Equal(t, ErrBadImage, errors.Cause(err))

		require.NoError(t, Install(ctx, ns, "other", Build("unregistered", nil)))

		_, err = l.Load(ctx, ns, "other", 0)
		require.Equal(t, ErrUnknownEntry, errors.Cause(err))

		f, err := ns.Open(ctx, "other")
		require.NoError(t, err)

		n, err := f.WriteAt([]byte("X"), 0)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	n.It("replaces an existing file on install", func(t *testing.T) {
		require.NoError(t, Install(ctx, ns, "echo", []byte("short")))
		require.NoError(t, Install(ctx, ns, "echo", Build("echo", nil)))

		_, err := l.Load(ctx, ns, "echo", 0)
		require.NoError(t, err)
	})

	n.Meow()
}

func TestPrograms(t *testing.T) {
	n := neko.Modern(t)

	n.It("lists registered names in order", func(t *testing.T) {
		p := NewPrograms()

		e := func(cpu kernel.CPU, argc int, argv uint64) int { return 0 }

		p.Register("b", e)
		p.Register("a", e)

		require.Equal(t, []string{"a", "b"}, p.Names())

		_, ok := p.Lookup("c")
		require.False(t, ok)
	})

	n.Meow()
}

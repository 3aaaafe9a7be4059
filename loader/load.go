package loader

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"strings"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/log"
	"github.com/namhoon-kim97/pintos-kaist/memory"
)

const (
	CodeBase  uint64 = 0x400000
	StackTop  uint64 = 0x47480000
	HeapSize  uint64 = 64 * 1024
	StackSize uint64 = memory.PageSize

	// MaxArgs bounds the words of a command line.
	MaxArgs = 64
)

var (
	ErrEmptyCommand = errors.New("empty command line")
	ErrTooManyArgs  = errors.New("too many arguments")
	ErrArgsTooLong  = errors.New("arguments do not fit on the stack")
	ErrUnknownEntry = errors.New("image names an unknown entry")
)

type LoaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewLoaderCache() *LoaderCache {
	cache, err := lru.NewARC(100)
	if err != nil {
		panic(err)
	}

	return &LoaderCache{cache: cache}
}

func (l *LoaderCache) Lookup(key string) (*Program, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*Program), true
}

func (l *LoaderCache) Set(key string, p *Program) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, p)
}

func (l *LoaderCache) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.cache.Len()
}

func NewLoader(cache *LoaderCache, programs *Programs) *Loader {
	return &Loader{
		L:        log.L.Named("loader"),
		cache:    cache,
		programs: programs,
	}
}

// Loader reads program images out of the filesystem and lays out fresh
// address spaces for them.
type Loader struct {
	L        hclog.Logger
	cache    *LoaderCache
	programs *Programs
}

var _ kernel.Loader = (*Loader)(nil)

// SplitCommand breaks a command line into words on runs of spaces.
func SplitCommand(cmdline string) ([]string, error) {
	argv := strings.Fields(cmdline)

	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	if len(argv) > MaxArgs {
		return nil, errors.Wrapf(ErrTooManyArgs, "%d words", len(argv))
	}

	return argv, nil
}

func readAll(f *fs.File) ([]byte, error) {
	raw := make([]byte, f.Length())

	n, err := f.ReadAt(raw, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}

	if n != len(raw) {
		return nil, errors.Wrapf(ErrBadImage, "short read %d of %d", n, len(raw))
	}

	return raw, nil
}

func (l *Loader) program(raw []byte) (*Program, error) {
	var cacheKey string

	if l.cache != nil {
		sum := blake2b.Sum256(raw)
		cacheKey = base64.URLEncoding.EncodeToString(sum[:])

		l.L.Trace("looking for cached image", "key", cacheKey)

		if p, ok := l.cache.Lookup(cacheKey); ok {
			return p, nil
		}
	}

	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.cache.Set(cacheKey, p)
	}

	return p, nil
}

// Load opens the executable named by the first word of cmdline and builds
// an image for it. The executable stays open and write-denied for as long
// as the image lives.
func (l *Loader) Load(ctx context.Context, fsys fs.FileSystem, cmdline string, kernBase uint64) (*kernel.Image, error) {
	argv, err := SplitCommand(cmdline)
	if err != nil {
		return nil, err
	}

	f, err := fsys.Open(ctx, argv[0])
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", argv[0])
	}

	img, err := l.load(f, argv, kernBase)
	if err != nil {
		f.Close()
		return nil, err
	}

	return img, nil
}

func (l *Loader) load(f *fs.File, argv []string, kernBase uint64) (*kernel.Image, error) {
	raw, err := readAll(f)
	if err != nil {
		return nil, err
	}

	p, err := l.program(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", argv[0])
	}

	entry, ok := l.programs.Lookup(p.Entry)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntry, "%s wants %q", argv[0], p.Entry)
	}

	mem, err := Layout(p, kernBase)
	if err != nil {
		return nil, err
	}

	argvAddr, err := PushArgs(mem, argv)
	if err != nil {
		return nil, err
	}

	l.L.Debug("loaded image", "name", argv[0], "entry", p.Entry, "args", len(argv))

	return kernel.NewImage(argv[0], argv, entry, mem, argvAddr, kernel.NewExecutable(f)), nil
}

func pageUp(x uint64) uint64 {
	return (x + memory.PageSize - 1) &^ (memory.PageSize - 1)
}

// Layout maps the segments of p into a new address space: the image itself
// read-only at CodeBase, its data just above, a heap, and a one page stack
// ending at StackTop or kernBase, whichever is lower.
func Layout(p *Program, kernBase uint64) (*memory.VirtualMemory, error) {
	mem := memory.NewVirtualMemory(kernBase)
	kernBase = mem.KernBase()

	codeSize := uint64(len(p.Raw))
	if codeSize == 0 {
		codeSize = 1
	}

	_, err := mem.NewRegion(CodeBase, codeSize, memory.Code, false)
	if err != nil {
		return nil, err
	}

	err = mem.Poke(p.Raw, CodeBase)
	if err != nil {
		return nil, err
	}

	dataBase := CodeBase + pageUp(codeSize)

	dataSize := uint64(len(p.Data))
	if dataSize == 0 {
		dataSize = 1
	}

	_, err = mem.NewRegion(dataBase, dataSize, memory.Data, true)
	if err != nil {
		return nil, err
	}

	err = mem.Poke(p.Data, dataBase)
	if err != nil {
		return nil, err
	}

	heapBase := dataBase + pageUp(dataSize)

	_, err = mem.NewRegion(heapBase, HeapSize, memory.Heap, true)
	if err != nil {
		return nil, err
	}

	top := StackTop
	if kernBase < top {
		top = kernBase &^ (memory.PageSize - 1)
	}

	_, err = mem.NewRegion(top-StackSize, StackSize, memory.Stack, true)
	if err != nil {
		return nil, err
	}

	return mem, nil
}

// PushArgs lays argv out on the top of the stack region: the strings, then
// padding to a word boundary, a null argv[argc], the argv pointers and a
// fake return address. It returns the address of argv[0].
func PushArgs(mem *memory.VirtualMemory, argv []string) (uint64, error) {
	stack, ok := mem.FindKind(memory.Stack)
	if !ok {
		return 0, errors.Wrap(ErrArgsTooLong, "no stack")
	}

	var need uint64
	for _, arg := range argv {
		need += uint64(len(arg)) + 1
	}

	need = (need + 7) &^ 7
	need += uint64(len(argv)+2) * 8

	if need > stack.Size {
		return 0, errors.Wrapf(ErrArgsTooLong, "%d bytes", need)
	}

	sp := stack.End()

	ptrs := make([]uint64, len(argv)+1)

	for i := len(argv) - 1; i >= 0; i-- {
		sp -= uint64(len(argv[i])) + 1

		err := mem.Poke(append([]byte(argv[i]), 0), sp)
		if err != nil {
			return 0, err
		}

		ptrs[i] = sp
	}

	sp &^= 7

	var word [8]byte

	for i := len(ptrs) - 1; i >= 0; i-- {
		sp -= 8

		binary.LittleEndian.PutUint64(word[:], ptrs[i])

		err := mem.Poke(word[:], sp)
		if err != nil {
			return 0, err
		}
	}

	argvAddr := sp

	// return address
	sp -= 8
	binary.LittleEndian.PutUint64(word[:], 0)

	err := mem.Poke(word[:], sp)
	if err != nil {
		return 0, err
	}

	return argvAddr, nil
}

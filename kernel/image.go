package kernel

import (
	"context"
	"sync"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/memory"
)

// Frame is the register state a user program traps with: the syscall
// number, three argument slots and, for fork, the point the child resumes
// at with 0 in its return register.
type Frame struct {
	Number int64
	Args   [3]uint64

	Resume func(cpu CPU) int
}

// CPU is what a running user program sees: the syscall instruction and
// loads and stores against its own address space. A faulting load or store
// kills the process.
type CPU interface {
	Syscall(f *Frame) int64
	Load(addr uint64, p []byte)
	Store(addr uint64, p []byte)
	Region(kind memory.RegionKind) (start, size uint64, ok bool)
}

// Entry is a program's main. argv points at argc string pointers on the
// user stack.
type Entry func(cpu CPU, argc int, argv uint64) int

// Image is a loaded program: its entry, a fresh address space already
// holding the arguments, and the executable kept write-denied while any
// process runs it.
type Image struct {
	Name     string
	Argv     []string
	Entry    Entry
	Mem      *memory.VirtualMemory
	ArgvAddr uint64

	exe *Executable
}

func (img *Image) start(cpu CPU) int {
	return img.Entry(cpu, len(img.Argv), img.ArgvAddr)
}

// Executable counts the images sharing one executable file.
type Executable struct {
	mu   sync.Mutex
	refs int
	file *fs.File
}

// NewExecutable denies writes to f until the last reference is released.
func NewExecutable(f *fs.File) *Executable {
	f.DenyWrite()
	return &Executable{refs: 1, file: f}
}

func (e *Executable) acquire() *Executable {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.refs++
	return e
}

func (e *Executable) release() error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return nil
	}

	return e.file.Close()
}

// NewImage assembles an image. exe may be nil for programs not backed by a
// file.
func NewImage(name string, argv []string, entry Entry, mem *memory.VirtualMemory, argvAddr uint64, exe *Executable) *Image {
	return &Image{
		Name:     name,
		Argv:     argv,
		Entry:    entry,
		Mem:      mem,
		ArgvAddr: argvAddr,
		exe:      exe,
	}
}

// Loader builds a process image from a command line.
type Loader interface {
	Load(ctx context.Context, fsys fs.FileSystem, cmdline string, kernBase uint64) (*Image, error)
}

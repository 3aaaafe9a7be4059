package kernel

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/log"
)

var (
	ErrBadDescriptor = errors.New("descriptor out of range")
	ErrNotOpen       = errors.New("descriptor not open")
	ErrTableFull     = errors.New("descriptor table full")
)

// DefaultFDCapacity matches the table size of the reference kernel.
const DefaultFDCapacity = 512

// firstFileFD is the lowest descriptor open() may hand out.
const firstFileFD = 2

type SlotKind int

const (
	Empty SlotKind = iota
	ConsoleIn
	ConsoleOut
	HandleSlot
)

func (k SlotKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case ConsoleIn:
		return "console-in"
	case ConsoleOut:
		return "console-out"
	case HandleSlot:
		return "handle"
	default:
		return "unknown"
	}
}

// Slot is one descriptor table entry. Handle is set only for HandleSlot.
type Slot struct {
	Kind   SlotKind
	Handle *Handle
}

// FDTable is a process's descriptor table. Console slots are counted in
// the table itself; file slots are counted in the shared Registry.
type FDTable struct {
	mu    sync.Mutex
	files *Registry
	slots []Slot

	stdinRefs, stdoutRefs int
}

// NewFDTable returns a table with the console streams at 0 and 1.
func NewFDTable(files *Registry, capacity int) *FDTable {
	if capacity <= firstFileFD {
		capacity = DefaultFDCapacity
	}

	t := &FDTable{
		files: files,
		slots: make([]Slot, capacity),
	}

	t.slots[abi.StdinFileno] = Slot{Kind: ConsoleIn}
	t.slots[abi.StdoutFileno] = Slot{Kind: ConsoleOut}
	t.stdinRefs = 1
	t.stdoutRefs = 1

	return t
}

func (t *FDTable) Capacity() int {
	return len(t.slots)
}

func (t *FDTable) inRange(fd int) bool {
	return fd >= 0 && fd < len(t.slots)
}

// Alloc installs h at the lowest free descriptor at or above 2. The table
// takes over the reference the caller holds on h.
func (t *FDTable) Alloc(h *Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd := firstFileFD; fd < len(t.slots); fd++ {
		if t.slots[fd].Kind == Empty {
			t.slots[fd] = Slot{Kind: HandleSlot, Handle: h}
			return fd, nil
		}
	}

	return -1, ErrTableFull
}

func (t *FDTable) Get(fd int) (Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.inRange(fd) {
		return Slot{}, errors.Wrapf(ErrBadDescriptor, "fd %d", fd)
	}

	return t.slots[fd], nil
}

// Open is Get that also rejects empty slots.
func (t *FDTable) Open(fd int) (Slot, error) {
	slot, err := t.Get(fd)
	if err != nil {
		return slot, err
	}

	if slot.Kind == Empty {
		return slot, errors.Wrapf(ErrNotOpen, "fd %d", fd)
	}

	return slot, nil
}

// release drops the reference slot holds. Called with mu held.
func (t *FDTable) release(slot Slot) error {
	switch slot.Kind {
	case ConsoleIn:
		if t.stdinRefs > 0 {
			t.stdinRefs--
		}
	case ConsoleOut:
		if t.stdoutRefs > 0 {
			t.stdoutRefs--
		}
	case HandleSlot:
		return t.files.Release(slot.Handle)
	}

	return nil
}

// alias takes a new reference on whatever slot names. Called with mu held.
func (t *FDTable) alias(slot Slot) Slot {
	switch slot.Kind {
	case ConsoleIn:
		t.stdinRefs++
	case ConsoleOut:
		t.stdoutRefs++
	case HandleSlot:
		slot.Handle = t.files.AcquireOrCreate(slot.Handle.File())
	}

	return slot
}

func (t *FDTable) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.inRange(fd) {
		return errors.Wrapf(ErrBadDescriptor, "fd %d", fd)
	}

	slot := t.slots[fd]
	if slot.Kind == Empty {
		return errors.Wrapf(ErrNotOpen, "fd %d", fd)
	}

	t.slots[fd] = Slot{}

	return t.release(slot)
}

// Dup2 makes newfd name what oldfd names. oldfd == newfd succeeds without
// touching anything, even when the slot is empty.
func (t *FDTable) Dup2(oldfd, newfd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.inRange(oldfd) {
		return -1, errors.Wrapf(ErrBadDescriptor, "oldfd %d", oldfd)
	}

	if oldfd == newfd {
		return newfd, nil
	}

	if !t.inRange(newfd) {
		return -1, errors.Wrapf(ErrBadDescriptor, "newfd %d", newfd)
	}

	src := t.slots[oldfd]

	// Alias before releasing: newfd may already name the same handle.
	if src.Kind != Empty {
		src = t.alias(src)
	}

	prev := t.slots[newfd]
	t.slots[newfd] = src

	// newfd already names src; a failed release cannot undo that.
	if prev.Kind != Empty {
		if err := t.release(prev); err != nil {
			log.L.Error("error releasing replaced descriptor", "fd", newfd, "error", err)
		}
	}

	return newfd, nil
}

// Fork returns a copy of the table for a child process. Every file slot in
// the copy aliases the parent's handle.
func (t *FDTable) Fork() *FDTable {
	t.mu.Lock()
	defer t.mu.Unlock()

	child := &FDTable{
		files:      t.files,
		slots:      make([]Slot, len(t.slots)),
		stdinRefs:  t.stdinRefs,
		stdoutRefs: t.stdoutRefs,
	}

	for fd, slot := range t.slots {
		if slot.Kind == HandleSlot {
			slot.Handle = t.files.AcquireOrCreate(slot.Handle.File())
		}

		child.slots[fd] = slot
	}

	return child
}

// CloseAll releases every open slot in increasing descriptor order.
func (t *FDTable) CloseAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var first error

	for fd, slot := range t.slots {
		if slot.Kind == Empty {
			continue
		}

		t.slots[fd] = Slot{}

		if err := t.release(slot); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// ConsoleRefs reports the live alias counts of the console streams.
func (t *FDTable) ConsoleRefs() (stdin, stdout int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stdinRefs, t.stdoutRefs
}

// OpenCount is the number of non-empty slots.
func (t *FDTable) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, slot := range t.slots {
		if slot.Kind != Empty {
			n++
		}
	}

	return n
}

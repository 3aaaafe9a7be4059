package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
)

type SysArgs struct {
	Index int64
	Args  SyscallRequest

	// Frame is the trap frame itself, which fork needs to resume the child.
	Frame *kernel.Frame
}

type SyscallRequest struct {
	R0, R1, R2 uint64
}

// Arg returns argument slot i.
func (r SyscallRequest) Arg(i int) uint64 {
	switch i {
	case 0:
		return r.R0
	case 1:
		return r.R1
	case 2:
		return r.R2
	default:
		return 0
	}
}

// Int reads slot i as a C int: the low 32 bits, sign extended.
func (r SyscallRequest) Int(i int) int {
	return int(int32(r.Arg(i)))
}

func (r SyscallRequest) Unsigned(i int) uint32 {
	return uint32(r.Arg(i))
}

type ResultKind int

const (
	// Ok and Failed both return Value to the caller.
	Ok ResultKind = iota
	Failed

	// Fatal kills the caller with status -1.
	Fatal

	// Exit terminates the caller with Value as its status.
	Exit

	// Exec resumes the caller in its freshly loaded image.
	Exec

	// Halt powers the machine off.
	Halt
)

func (k ResultKind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Failed:
		return "failed"
	case Fatal:
		return "fatal"
	case Exit:
		return "exit"
	case Exec:
		return "exec"
	case Halt:
		return "halt"
	default:
		return "unknown"
	}
}

type Result struct {
	Kind  ResultKind
	Value int64
	Err   error
}

func ok(v int64) Result {
	return Result{Kind: Ok, Value: v}
}

func failed(v int64, err error) Result {
	return Result{Kind: Failed, Value: v, Err: err}
}

func fatal(err error) Result {
	return Result{Kind: Fatal, Value: -1, Err: err}
}

// Pointer describes a user pointer argument the dispatcher checks before a
// handler runs.
type Pointer struct {
	Slot int

	// String pointers are checked for their first byte here; the handler
	// checks the rest as it copies them in.
	String bool

	// LenSlot is the argument holding the buffer length.
	LenSlot int

	Writable bool
}

type Handler func(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result

type Syscall struct {
	Impl     Handler
	Pointers []Pointer
}

var Syscalls [abi.MaxSyscall]Syscall

package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/log"
)

var ErrUnknownSyscall = errors.New("unknown syscall")

// Dispatcher decodes a trap, checks its pointers, runs the handler and
// carries out whatever termination the result calls for.
type Dispatcher struct {
	Kernel *kernel.Kernel
	L      hclog.Logger
}

func NewDispatcher(k *kernel.Kernel) *Dispatcher {
	return &Dispatcher{
		Kernel: k,
		L:      log.L.Named("syscall"),
	}
}

func requestOf(f *kernel.Frame) SysArgs {
	return SysArgs{
		Index: f.Number,
		Args: SyscallRequest{
			R0: f.Args[0],
			R1: f.Args[1],
			R2: f.Args[2],
		},
		Frame: f,
	}
}

func lookup(n int64) (Syscall, bool) {
	if n < 0 || n >= abi.MaxSyscall {
		return Syscall{}, false
	}

	sc := Syscalls[n]
	return sc, sc.Impl != nil
}

// checkPointers validates every pointer argument sc declares against the
// caller's address space.
func checkPointers(task *kernel.Task, sc Syscall, args SysArgs) error {
	mem := task.Mem()

	for _, p := range sc.Pointers {
		addr := args.Args.Arg(p.Slot)

		length := uint64(1)
		if !p.String {
			length = uint64(args.Args.Unsigned(p.LenSlot))
		}

		err := mem.Validate(addr, length, p.Writable)
		if err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, task *kernel.Task, f *kernel.Frame) Result {
	args := requestOf(f)

	l := d.L.With("pid", task.Pid, "syscall", abi.Name(args.Index))

	l.Trace("syscall", "r0", args.Args.R0, "r1", args.Args.R1, "r2", args.Args.R2)

	var res Result

	sc, found := lookup(args.Index)
	if !found {
		res = fatal(errors.Wrapf(ErrUnknownSyscall, "number %d", args.Index))
	} else if err := checkPointers(task, sc, args); err != nil {
		res = fatal(err)
	} else {
		res = sc.Impl(SetTaskContext(ctx, task), l, task, args)
	}

	switch res.Kind {
	case Fatal:
		l.Debug("killing process", "error", res.Err)
		task.Exit(-1)
	case Exit:
		task.Exit(int(res.Value))
	case Halt:
		d.Kernel.Halt()
	case Failed:
		if res.Err != nil {
			l.Trace("syscall failed", "error", res.Err, "ret", res.Value)
		}
	}

	return res
}

// SetTaskContext attaches task to ctx so code below the handler can find
// the process it runs for.
func SetTaskContext(ctx context.Context, task *kernel.Task) context.Context {
	if cur, ok := kernel.GetTask(ctx); ok && cur == task {
		return ctx
	}

	return kernel.SetTask(ctx, task)
}

// Invoker is the trap gate. It dispatches and then transfers control: the
// user goroutine does not come back from exit, exec, halt or a fatal trap.
type Invoker struct {
	*Dispatcher
}

var _ kernel.TrapHandler = (*Invoker)(nil)

// Install builds an Invoker for k and makes it k's trap handler.
func Install(k *kernel.Kernel) *Invoker {
	i := &Invoker{Dispatcher: NewDispatcher(k)}
	k.SetTrapHandler(i)
	return i
}

func (i *Invoker) HandleTrap(ctx context.Context, task *kernel.Task, f *kernel.Frame) int64 {
	res := i.Dispatch(ctx, task, f)

	switch res.Kind {
	case Fatal, Exit:
		kernel.UnwindExit.Raise()
	case Exec:
		kernel.UnwindExec.Raise()
	case Halt:
		kernel.UnwindHalt.Raise()
	}

	return res.Value
}

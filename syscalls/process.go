package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/memory"
)

// MaxPath bounds every string copied in from user space.
const MaxPath = memory.PageSize

// copyString copies the string at addr into the kernel. A bad pointer is
// fatal; a string that never terminates is an ordinary failure.
func copyString(task *kernel.Task, addr uint64, fail int64) (string, *Result) {
	s, err := task.Mem().ReadCString(addr, MaxPath)
	if err == nil {
		return s, nil
	}

	var res Result
	if memory.IsFault(err) {
		res = fatal(err)
	} else {
		res = failed(fail, err)
	}

	return "", &res
}

func sysHalt(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	return Result{Kind: Halt}
}

func sysExit(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	return Result{Kind: Exit, Value: int64(args.Args.Int(0))}
}

func sysFork(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	name, res := copyString(task, args.Args.R0, -1)
	if res != nil {
		return *res
	}

	child, err := task.Kernel.Fork(task, name, args.Frame)
	if err != nil {
		return failed(-1, err)
	}

	return ok(int64(child.Pid))
}

func sysExec(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	cmdline, res := copyString(task, args.Args.R0, -1)
	if res != nil {
		return *res
	}

	err := task.Kernel.Exec(ctx, task, cmdline)
	if err != nil {
		l.Debug("exec failed", "cmdline", cmdline, "error", err)
		return failed(-1, err)
	}

	return Result{Kind: Exec}
}

func sysWait(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	pid := args.Args.Int(0)

	status, err := task.Kernel.Wait(ctx, task, pid)
	if err != nil {
		return failed(-1, err)
	}

	return ok(int64(status))
}

func init() {
	Syscalls[abi.SysHalt] = Syscall{Impl: sysHalt}
	Syscalls[abi.SysExit] = Syscall{Impl: sysExit}
	Syscalls[abi.SysFork] = Syscall{
		Impl:     sysFork,
		Pointers: []Pointer{{Slot: 0, String: true}},
	}
	Syscalls[abi.SysExec] = Syscall{
		Impl:     sysExec,
		Pointers: []Pointer{{Slot: 0, String: true}},
	}
	Syscalls[abi.SysWait] = Syscall{Impl: sysWait}
}

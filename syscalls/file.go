package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
)

// descriptorResult turns a file service error into a result: naming a
// descriptor the process may not use is fatal, anything else returns fail.
func descriptorResult(err error, fail int64) Result {
	if kernel.IsDescriptorFault(err) {
		return fatal(err)
	}

	return failed(fail, err)
}

func sysCreate(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	path, res := copyString(task, args.Args.R0, 0)
	if res != nil {
		return *res
	}

	size := args.Args.Unsigned(1)

	err := task.Kernel.Create(ctx, path, int64(size))
	if err != nil {
		return failed(0, err)
	}

	return ok(1)
}

func sysRemove(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	path, res := copyString(task, args.Args.R0, 0)
	if res != nil {
		return *res
	}

	err := task.Kernel.Remove(ctx, path)
	if err != nil {
		return failed(0, err)
	}

	return ok(1)
}

func sysOpen(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	path, res := copyString(task, args.Args.R0, -1)
	if res != nil {
		return *res
	}

	fd, err := task.Kernel.OpenFile(ctx, task, path)
	if err != nil {
		return failed(-1, err)
	}

	return ok(int64(fd))
}

func sysFilesize(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	fd := args.Args.Int(0)

	size, err := task.Kernel.Filesize(task, fd)
	if err != nil {
		return descriptorResult(err, -1)
	}

	return ok(size)
}

func sysRead(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	var (
		fd  = args.Args.Int(0)
		ptr = args.Args.R1
		sz  = args.Args.Unsigned(2)
	)

	data := make([]byte, sz)

	n, err := task.Kernel.Read(task, fd, data)
	if err != nil {
		return descriptorResult(err, -1)
	}

	_, err = task.Mem().WriteAt(data[:n], ptr)
	if err != nil {
		return fatal(errors.Wrap(err, "copying read data to user space"))
	}

	return ok(int64(n))
}

func sysWrite(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	var (
		fd  = args.Args.Int(0)
		ptr = args.Args.R1
		sz  = args.Args.Unsigned(2)
	)

	data := make([]byte, sz)

	_, err := task.Mem().ReadAt(data, ptr)
	if err != nil {
		return fatal(errors.Wrap(err, "reading data from user space"))
	}

	n, err := task.Kernel.Write(task, fd, data)
	if err != nil {
		return descriptorResult(err, -1)
	}

	return ok(int64(n))
}

func sysSeek(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	var (
		fd  = args.Args.Int(0)
		pos = args.Args.Unsigned(1)
	)

	err := task.Kernel.Seek(task, fd, int64(pos))
	if err != nil {
		if errors.Cause(err) == kernel.ErrNotFile {
			return ok(0)
		}

		return descriptorResult(err, 0)
	}

	return ok(0)
}

func sysTell(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	fd := args.Args.Int(0)

	pos, err := task.Kernel.Tell(task, fd)
	if err != nil {
		return descriptorResult(err, -1)
	}

	return ok(pos)
}

func sysClose(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	fd := args.Args.Int(0)

	err := task.Kernel.Close(task, fd)
	if err != nil {
		if kernel.IsDescriptorFault(err) {
			return fatal(err)
		}

		l.Error("error closing fd", "error", err, "fd", fd)
	}

	return ok(0)
}

func sysDup2(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) Result {
	var (
		oldfd = args.Args.Int(0)
		newfd = args.Args.Int(1)
	)

	fd, err := task.Kernel.Dup2(task, oldfd, newfd)
	if err != nil {
		return failed(-1, err)
	}

	return ok(int64(fd))
}

func init() {
	str := []Pointer{{Slot: 0, String: true}}

	Syscalls[abi.SysCreate] = Syscall{Impl: sysCreate, Pointers: str}
	Syscalls[abi.SysRemove] = Syscall{Impl: sysRemove, Pointers: str}
	Syscalls[abi.SysOpen] = Syscall{Impl: sysOpen, Pointers: str}
	Syscalls[abi.SysFilesize] = Syscall{Impl: sysFilesize}
	Syscalls[abi.SysRead] = Syscall{
		Impl:     sysRead,
		Pointers: []Pointer{{Slot: 1, LenSlot: 2, Writable: true}},
	}
	Syscalls[abi.SysWrite] = Syscall{
		Impl:     sysWrite,
		Pointers: []Pointer{{Slot: 1, LenSlot: 2}},
	}
	Syscalls[abi.SysSeek] = Syscall{Impl: sysSeek}
	Syscalls[abi.SysTell] = Syscall{Impl: sysTell}
	Syscalls[abi.SysClose] = Syscall{Impl: sysClose}
	Syscalls[abi.SysDup2] = Syscall{Impl: sysDup2}
}

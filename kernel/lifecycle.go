package kernel

import (
	"context"
	"strings"
)

// Fork duplicates the calling process. The child gets a copy of the address
// space, a descriptor table whose file slots alias the parent's handles,
// and starts running at f.Resume.
func (k *Kernel) Fork(parent *Task, name string, f *Frame) (*Process, error) {
	if f == nil || f.Resume == nil {
		return nil, ErrNoResume
	}

	parent.mu.Lock()
	parent.ParentFrame = *f
	mem := parent.mem
	files := parent.files
	img := parent.image
	parent.mu.Unlock()

	child := k.newProcess(name, parent.Process)

	_, err := k.processes.AssignPid(child)
	if err != nil {
		k.L.Debug("fork refused", "pid", parent.Pid, "error", err)
		return nil, err
	}

	child.mem = mem.Fork()
	child.files = files.Fork()

	if img != nil {
		child.image = &Image{
			Name:     img.Name,
			Argv:     img.Argv,
			Entry:    img.Entry,
			Mem:      child.mem,
			ArgvAddr: img.ArgvAddr,
			exe:      img.exe.acquire(),
		}
	}

	parent.children.add(child)

	k.L.Trace("process-fork", "parent", parent.Pid, "child", child.Pid, "name", name)

	resume := f.Resume
	k.start(child, resume)

	return child, nil
}

// Exec replaces the image of t with the program cmdline names. The new
// image is loaded in full before the old one is dropped, so a failed exec
// leaves t untouched. Descriptors survive.
func (k *Kernel) Exec(ctx context.Context, t *Task, cmdline string) error {
	img, err := k.load(ctx, cmdline)
	if err != nil {
		return err
	}

	t.mu.Lock()
	old := t.image
	t.image = img
	t.mem = img.Mem
	t.name = img.Name
	t.mu.Unlock()

	k.L.Trace("process-exec", "pid", t.Pid, "cmdline", strings.TrimSpace(cmdline))

	// The new image is already in place, so exec has succeeded either way.
	if old != nil {
		if err := k.WithFS(old.exe.release); err != nil {
			k.L.Error("error releasing old executable", "pid", t.Pid, "error", err)
		}
	}

	return nil
}

// Wait blocks until the child pid of t exits and returns its status. Each
// child can be waited for once.
func (k *Kernel) Wait(ctx context.Context, t *Task, pid int) (int, error) {
	child, ok := t.children.claim(pid)
	if !ok {
		return -1, ErrNotChild
	}

	status, err := child.Join(ctx)
	if err != nil {
		return -1, err
	}

	t.children.remove(pid)
	k.processes.RemoveProc(child)

	return status, nil
}

// Children is the number of children t has not reaped.
func (t *Task) Children() int {
	return t.children.count()
}

package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestWait(t *testing.T) {
	n := neko.Modern(t)

	n.It("detects another process has exitted", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		parent := newTestProcess(t, k, "parent", nil)
		child := newTestProcess(t, k, "child", parent)

		child.Exit(1)

		ctx := timeout(t, 2*time.Second)

		ret, err := k.Wait(ctx, &Task{parent}, child.Pid)
		require.NoError(t, err)

		require.Equal(t, 1, ret)
	})

	n.It("waits for a child to exit", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		parent := newTestProcess(t, k, "parent", nil)
		child := newTestProcess(t, k, "child", parent)

		go func() {
			time.Sleep(100 * time.Millisecond)
			child.Exit(1)
		}()

		ctx := timeout(t, 5*time.Second)

		ret, err := k.Wait(ctx, &Task{parent}, child.Pid)
		require.NoError(t, err)

		require.Equal(t, 1, ret)
	})

	n.It("reaps a child so it can only be waited for once", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		parent := newTestProcess(t, k, "parent", nil)
		child := newTestProcess(t, k, "child", parent)

		child.Exit(7)

		task := &Task{parent}

		ret, err := k.Wait(context.Background(), task, child.Pid)
		require.NoError(t, err)
		require.Equal(t, 7, ret)

		_, ok := k.Processes().Lookup(child.Pid)
		require.False(t, ok)
		require.Equal(t, 0, task.Children())

		ret, err = k.Wait(context.Background(), task, child.Pid)
		require.Equal(t, ErrNotChild, err)
		require.Equal(t, -1, ret)
	})

	n.It("refuses to wait for a process that is not a child", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		parent := newTestProcess(t, k, "parent", nil)
		other := newTestProcess(t, k, "other", nil)
		grandchild := newTestProcess(t, k, "grandchild", newTestProcess(t, k, "child", parent))

		task := &Task{parent}

		_, err := k.Wait(context.Background(), task, other.Pid)
		require.Equal(t, ErrNotChild, err)

		_, err = k.Wait(context.Background(), task, grandchild.Pid)
		require.Equal(t, ErrNotChild, err)

		_, err = k.Wait(context.Background(), task, 999)
		require.Equal(t, ErrNotChild, err)
	})

	n.It("gives up when the machine halts", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		parent := newTestProcess(t, k, "parent", nil)
		child := newTestProcess(t, k, "child", parent)

		go func() {
			time.Sleep(50 * time.Millisecond)
			k.Halt()
		}()

		ret, err := k.Wait(timeout(t, 5*time.Second), &Task{parent}, child.Pid)
		require.Equal(t, ErrHalted, errors.Cause(err))
		require.Equal(t, -1, ret)
	})

	n.It("removes orphans exactly once", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		parent := newTestProcess(t, k, "parent", nil)
		early := newTestProcess(t, k, "early", parent)
		late := newTestProcess(t, k, "late", parent)

		early.Exit(0)
		require.Equal(t, 3, k.Processes().Count())

		parent.Exit(0)

		_, ok := k.Processes().Lookup(early.Pid)
		require.False(t, ok)

		_, ok = k.Processes().Lookup(late.Pid)
		require.True(t, ok)

		_, hasParent := late.Parent()
		require.False(t, hasParent)

		late.Exit(0)
		require.Equal(t, 0, k.Processes().Count())
	})

	n.It("keeps the first exit status", func(t *testing.T) {
		k, out := newTestKernel(t, entryLoader{})

		p := newTestProcess(t, k, "p", nil)

		p.Exit(4)
		p.Exit(5)

		status, dead := p.ExitStatus()
		require.True(t, dead)
		require.Equal(t, 4, status)

		require.Equal(t, "p: exit(4)\n", out.String())
	})

	n.It("closes every descriptor on exit", func(t *testing.T) {
		k, _ := newTestKernel(t, entryLoader{})

		ctx := context.Background()
		require.NoError(t, k.FS().Create(ctx, "a", 4))

		p := newTestProcess(t, k, "p", nil)
		task := &Task{p}

		for i := 0; i < 3; i++ {
			_, err := k.OpenFile(ctx, task, "a")
			require.NoError(t, err)
		}

		require.Equal(t, 3, k.Files().Len())

		p.Exit(0)

		require.Equal(t, 0, k.Files().Len())
		require.Equal(t, 0, p.Files().OpenCount())
	})

	n.Meow()
}

func TestProcessManager(t *testing.T) {
	n := neko.Modern(t)

	n.It("hands out the lowest free pid", func(t *testing.T) {
		pm := NewProcessManager(0)

		a, b, c := &Process{}, &Process{}, &Process{}

		pid, err := pm.AssignPid(a)
		require.NoError(t, err)
		require.Equal(t, 1, pid)

		pid, err = pm.AssignPid(b)
		require.NoError(t, err)
		require.Equal(t, 2, pid)

		pm.RemoveProc(a)

		pid, err = pm.AssignPid(c)
		require.NoError(t, err)
		require.Equal(t, 1, pid)
	})

	n.It("enforces the process limit", func(t *testing.T) {
		pm := NewProcessManager(1)

		_, err := pm.AssignPid(&Process{})
		require.NoError(t, err)

		_, err = pm.AssignPid(&Process{})
		require.Equal(t, ErrTooManyProcesses, err)
	})

	n.It("only removes the process registered under the pid", func(t *testing.T) {
		pm := NewProcessManager(0)

		a := &Process{}
		_, err := pm.AssignPid(a)
		require.NoError(t, err)

		pm.RemoveProc(&Process{Pid: a.Pid})

		cur, ok := pm.Lookup(a.Pid)
		require.True(t, ok)
		require.True(t, cur == a)
	})

	n.Meow()
}

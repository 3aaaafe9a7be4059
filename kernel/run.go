package kernel

import (
	"fmt"

	"github.com/namhoon-kim97/pintos-kaist/memory"
)

// Unwind abandons the user program running on the current goroutine. The
// trap gate raises it after exit, exec and halt; the process loop catches
// it.
type Unwind int

const (
	UnwindExit Unwind = iota
	UnwindExec
	UnwindHalt
)

func (u Unwind) String() string {
	switch u {
	case UnwindExit:
		return "exit"
	case UnwindExec:
		return "exec"
	case UnwindHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// Raise never returns.
func (u Unwind) Raise() {
	panic(u)
}

func (k *Kernel) run(proc *Process, entry func(CPU) int) {
	cpu := &userCPU{t: &Task{proc}}

	for entry != nil {
		entry = k.runOnce(proc, cpu, entry)
	}
}

// runOnce runs entry until it returns or unwinds and reports what, if
// anything, runs next on this process.
func (k *Kernel) runOnce(proc *Process, cpu CPU, entry func(CPU) int) (next func(CPU) int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if u, ok := r.(Unwind); ok {
			if u == UnwindExec {
				proc.mu.Lock()
				img := proc.image
				proc.mu.Unlock()

				if img != nil {
					next = img.start
				}
			}

			return
		}

		k.L.Error("user program crashed", "pid", proc.Pid, "panic", fmt.Sprint(r))
		proc.Exit(-1)
		next = nil
	}()

	status := entry(cpu)

	// A program returning after power off leaves no record.
	if k.Halted() {
		return nil
	}

	proc.Exit(status)

	return nil
}

type userCPU struct {
	t *Task
}

func (c *userCPU) Syscall(f *Frame) int64 {
	k := c.t.Kernel

	if k.Halted() {
		UnwindHalt.Raise()
	}

	if k.trap == nil {
		k.L.Error("no trap handler installed", "pid", c.t.Pid)
		c.t.Exit(-1)
		UnwindExit.Raise()
	}

	return k.trap.HandleTrap(k.ctx, c.t, f)
}

// fault is a user mode page fault: the process dies with -1.
func (c *userCPU) fault(addr uint64, err error) {
	c.t.Kernel.L.Debug("user page fault", "pid", c.t.Pid, "addr", addr, "error", err)
	c.t.Exit(-1)
	UnwindExit.Raise()
}

func (c *userCPU) Load(addr uint64, p []byte) {
	_, err := c.t.Mem().ReadAt(p, addr)
	if err != nil {
		c.fault(addr, err)
	}
}

func (c *userCPU) Store(addr uint64, p []byte) {
	_, err := c.t.Mem().WriteAt(p, addr)
	if err != nil {
		c.fault(addr, err)
	}
}

func (c *userCPU) Region(kind memory.RegionKind) (uint64, uint64, bool) {
	reg, ok := c.t.Mem().FindKind(kind)
	if !ok {
		return 0, 0, false
	}

	return reg.Start, reg.Size, true
}

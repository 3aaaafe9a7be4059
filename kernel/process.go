package kernel

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/memory"
	"github.com/namhoon-kim97/pintos-kaist/pkg/waiter"
)

var (
	ErrTooManyProcesses = errors.New("process limit reached")
	ErrNotChild         = errors.New("not a waitable child")
	ErrNoResume         = errors.New("fork frame has no resume point")
)

type prockey struct{}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task is the process on whose behalf a syscall runs.
type Task struct {
	*Process
}

type ProcessStatus int

const (
	Init    ProcessStatus = 0
	Running ProcessStatus = 1
	Dead    ProcessStatus = 2
)

const (
	_ waiter.EventType = iota
	ProcessExitted
)

type Process struct {
	Kernel *Kernel
	Pid    int

	// ParentFrame is the trap frame of the last fork this process made.
	ParentFrame Frame

	mu sync.Mutex

	name   string
	parent *Process

	status     ProcessStatus
	exitStatus int
	exiting    bool

	files *FDTable
	mem   *memory.VirtualMemory
	image *Image

	children children
	events   waiter.Waiter
}

func (k *Kernel) newProcess(name string, parent *Process) *Process {
	return &Process{
		Kernel: k,
		name:   name,
		parent: parent,
		status: Running,
	}
}

func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.name
}

func (p *Process) Files() *FDTable {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.files
}

func (p *Process) Mem() *memory.VirtualMemory {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mem
}

func (p *Process) Parent() (*Process, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.parent, p.parent != nil
}

// ExitStatus returns the final status once the process has exited.
func (p *Process) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitStatus, p.status == Dead
}

func (p *Process) Dead() bool {
	_, dead := p.ExitStatus()
	return dead
}

// Exit records status as the process's final status, prints the
// termination record and releases every descriptor. The status becomes
// visible to a waiting parent only after all of that is done. Only the
// first call has any effect.
func (p *Process) Exit(status int) {
	p.mu.Lock()

	if p.exiting {
		p.mu.Unlock()
		return
	}

	p.exiting = true

	name := p.name
	files := p.files
	img := p.image

	p.image = nil

	p.mu.Unlock()

	k := p.Kernel

	k.L.Trace("process-exit", "pid", p.Pid, "status", status)
	k.console.Printf("%s: exit(%d)\n", name, status)

	err := k.WithFS(func() error {
		var first error

		if files != nil {
			first = files.CloseAll()
		}

		if img != nil {
			if err := img.exe.release(); err != nil && first == nil {
				first = err
			}
		}

		return first
	})
	if err != nil {
		k.L.Error("error releasing process files", "pid", p.Pid, "error", err)
	}

	for _, child := range p.children.orphan() {
		if child.detach() {
			k.processes.RemoveProc(child)
		}
	}

	p.mu.Lock()
	p.exitStatus = status
	p.status = Dead
	orphan := p.parent == nil
	p.mu.Unlock()

	if orphan {
		k.processes.RemoveProc(p)
	}

	p.events.Notify(ProcessExitted)
}

// detach drops the parent link and reports whether the process had already
// exited, in which case nobody will ever reap it.
func (p *Process) detach() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.parent = nil
	return p.status == Dead
}

// Join blocks until the process exits and returns its status. It returns
// early only if ctx ends or the machine halts.
func (p *Process) Join(ctx context.Context) (int, error) {
	err := p.events.Until(ctx, ProcessExitted, p.Kernel.Done(), p.Dead)
	if err != nil {
		if err == waiter.ErrAborted {
			err = ErrHalted
		}

		return -1, err
	}

	status, _ := p.ExitStatus()
	return status, nil
}

type ProcessManager struct {
	mu        sync.RWMutex
	max       int
	highWater int
	processes map[int]*Process
}

func NewProcessManager(max int) *ProcessManager {
	return &ProcessManager{
		max:       max,
		processes: make(map[int]*Process),
	}
}

// AssignPid gives proc the lowest unused pid.
func (p *ProcessManager) AssignPid(proc *Process) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.max > 0 && len(p.processes) >= p.max {
		return -1, ErrTooManyProcesses
	}

	for i := 1; i <= p.highWater; i++ {
		if _, ok := p.processes[i]; !ok {
			proc.Pid = i
			p.processes[i] = proc
			return i, nil
		}
	}

	p.highWater++
	pid := p.highWater
	p.processes[pid] = proc
	proc.Pid = pid

	return pid, nil
}

func (p *ProcessManager) RemoveProc(proc *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.processes[proc.Pid]; ok && cur == proc {
		delete(p.processes, proc.Pid)
	}
}

func (p *ProcessManager) Lookup(pid int) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proc, ok := p.processes[pid]
	return proc, ok
}

func (p *ProcessManager) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.processes)
}

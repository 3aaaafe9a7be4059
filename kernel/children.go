package kernel

import (
	"sync"

	"github.com/namhoon-kim97/pintos-kaist/log"
)

type childRef struct {
	proc   *Process
	waited bool
}

// children tracks the direct children of a process until they are reaped.
type children struct {
	mu    sync.Mutex
	procs map[int]*childRef
}

func (c *children) add(p *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.procs == nil {
		c.procs = make(map[int]*childRef)
	}

	c.procs[p.Pid] = &childRef{proc: p}
}

// claim marks pid as being waited for. Only the first claim on a child
// succeeds.
func (c *children) claim(pid int) (*Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.procs[pid]
	if !ok || ref.waited {
		return nil, false
	}

	ref.waited = true

	return ref.proc, true
}

func (c *children) remove(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.procs, pid)
}

// orphan forgets every child and returns them.
func (c *children) orphan() []*Process {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Process
	for _, ref := range c.procs {
		out = append(out, ref.proc)
	}

	log.L.Trace("process-orphan-children", "count", len(out))

	c.procs = nil

	return out
}

func (c *children) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.procs)
}

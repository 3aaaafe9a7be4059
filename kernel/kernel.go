package kernel

import (
	"context"
	"io"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/fs/memfs"
	"github.com/namhoon-kim97/pintos-kaist/log"
	"github.com/namhoon-kim97/pintos-kaist/memory"
)

const DefaultMaxProcesses = 64

var (
	ErrNoLoader = errors.New("kernel needs a program loader")
	ErrHalted   = errors.New("kernel halted")
)

type Config struct {
	// FDCapacity is the number of slots in every descriptor table.
	FDCapacity int

	// MaxProcesses bounds live and unreaped processes; fork fails past it.
	MaxProcesses int

	// KernBase is the first address user pointers may not reach.
	KernBase uint64

	FS     fs.FileSystem
	Loader Loader

	Stdin  io.Reader
	Stdout io.Writer

	// PowerOff runs once when a process halts the machine.
	PowerOff func()

	Logger hclog.Logger
}

func DefaultConfig() Config {
	return Config{
		FDCapacity:   DefaultFDCapacity,
		MaxProcesses: DefaultMaxProcesses,
		KernBase:     memory.KernBase,
	}
}

// TrapHandler receives every syscall a user program makes.
type TrapHandler interface {
	HandleTrap(ctx context.Context, t *Task, f *Frame) int64
}

type Kernel struct {
	cfg Config

	L hclog.Logger

	processes *ProcessManager
	files     *Registry
	console   *Console

	// fsLock serializes every access to the filesystem.
	fsLock sync.Mutex

	trap TrapHandler

	ctx      context.Context
	cancel   context.CancelFunc
	haltOnce sync.Once

	running sync.WaitGroup
}

func NewKernel(cfg Config) (*Kernel, error) {
	def := DefaultConfig()

	if cfg.FDCapacity <= 0 {
		cfg.FDCapacity = def.FDCapacity
	}

	if cfg.MaxProcesses <= 0 {
		cfg.MaxProcesses = def.MaxProcesses
	}

	if cfg.KernBase == 0 {
		cfg.KernBase = def.KernBase
	}

	if cfg.FS == nil {
		cfg.FS = memfs.NewNamespace()
	}

	if cfg.Loader == nil {
		return nil, ErrNoLoader
	}

	if cfg.Logger == nil {
		cfg.Logger = log.L
	}

	ctx, cancel := context.WithCancel(context.Background())

	k := &Kernel{
		cfg:       cfg,
		L:         cfg.Logger,
		processes: NewProcessManager(cfg.MaxProcesses),
		files:     NewRegistry(),
		console:   NewConsole(cfg.Stdin, cfg.Stdout),
		ctx:       ctx,
		cancel:    cancel,
	}

	return k, nil
}

func (k *Kernel) SetTrapHandler(h TrapHandler) {
	k.trap = h
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) FS() fs.FileSystem {
	return k.cfg.FS
}

func (k *Kernel) Files() *Registry {
	return k.files
}

func (k *Kernel) Console() *Console {
	return k.console
}

func (k *Kernel) Processes() *ProcessManager {
	return k.processes
}

// Context is cancelled when the machine halts.
func (k *Kernel) Context() context.Context {
	return k.ctx
}

func (k *Kernel) Done() <-chan struct{} {
	return k.ctx.Done()
}

func (k *Kernel) Halted() bool {
	return k.ctx.Err() != nil
}

// Halt powers the machine off. Running processes are abandoned at their
// next trap.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		k.L.Info("power off")
		k.cancel()

		if k.cfg.PowerOff != nil {
			k.cfg.PowerOff()
		}
	})
}

// WithFS runs fn holding the global filesystem lock.
func (k *Kernel) WithFS(fn func() error) error {
	k.fsLock.Lock()
	defer k.fsLock.Unlock()

	return fn()
}

// Idle blocks until every process goroutine has finished.
func (k *Kernel) Idle() {
	k.running.Wait()
}

func (k *Kernel) load(ctx context.Context, cmdline string) (*Image, error) {
	var img *Image

	err := k.WithFS(func() error {
		var err error
		img, err = k.cfg.Loader.Load(ctx, k.cfg.FS, cmdline, k.cfg.KernBase)
		return err
	})

	return img, err
}

// Spawn loads cmdline and starts it as a process with no parent.
func (k *Kernel) Spawn(ctx context.Context, cmdline string) (*Process, error) {
	img, err := k.load(ctx, cmdline)
	if err != nil {
		return nil, err
	}

	proc := k.newProcess(img.Name, nil)
	proc.image = img
	proc.mem = img.Mem
	proc.files = NewFDTable(k.files, k.cfg.FDCapacity)

	_, err = k.processes.AssignPid(proc)
	if err != nil {
		k.WithFS(img.exe.release)
		return nil, err
	}

	k.L.Trace("process-spawn", "pid", proc.Pid, "cmdline", cmdline)

	k.start(proc, img.start)

	return proc, nil
}

func (k *Kernel) start(proc *Process, entry func(CPU) int) {
	k.running.Add(1)

	go func() {
		defer k.running.Done()
		k.run(proc, entry)
	}()
}

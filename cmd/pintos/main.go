package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/fs/host"
	"github.com/namhoon-kim97/pintos-kaist/fs/memfs"
	"github.com/namhoon-kim97/pintos-kaist/fs/tarfs"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/loader"
	clog "github.com/namhoon-kim97/pintos-kaist/log"
	"github.com/namhoon-kim97/pintos-kaist/programs"
	"github.com/namhoon-kim97/pintos-kaist/syscalls"
)

var (
	fRoot    = pflag.StringP("root", "r", "", "host directory to mount as the root")
	fDisk    = pflag.StringP("disk", "d", "", "tar archive to load as the root")
	fFDs     = pflag.Int("fds", kernel.DefaultFDCapacity, "descriptor table size")
	fProcs   = pflag.Int("procs", kernel.DefaultMaxProcesses, "process limit")
	fInstall = pflag.Bool("install", false, "write the stock program images into --root")
	fFSSize  = pflag.Int64("fs-size", memfs.DefaultCapacity, "bytes of disk for the in-memory filesystem")
)

func namespace() (*fs.MountNamespace, bool, error) {
	switch {
	case *fRoot != "" && *fDisk != "":
		return nil, false, fmt.Errorf("--root and --disk are exclusive")
	case *fRoot != "":
		h, err := host.NewHostFS(*fRoot)
		if err != nil {
			return nil, false, err
		}

		return h.Namespace(), *fInstall, nil
	case *fDisk != "":
		f, err := os.Open(*fDisk)
		if err != nil {
			return nil, false, err
		}

		defer f.Close()

		t, err := tarfs.NewTarFS(f)
		if err != nil {
			return nil, false, err
		}

		ns, err := t.Namespace()
		return ns, true, err
	default:
		return memfs.NewSized(*fFSSize).Namespace(), true, nil
	}
}

func run() (int, error) {
	pflag.Parse()

	cmdline := strings.Join(pflag.Args(), " ")
	if strings.TrimSpace(cmdline) == "" {
		return 1, fmt.Errorf("usage: pintos [-r dir | -d disk.tar] -- cmdline")
	}

	ctx := context.Background()

	ns, install, err := namespace()
	if err != nil {
		return 1, err
	}

	progs := loader.NewPrograms()

	if install {
		err = programs.Install(ctx, ns, progs)
		if err != nil {
			return 1, err
		}
	} else {
		programs.Register(progs)
	}

	cfg := kernel.DefaultConfig()
	cfg.FDCapacity = *fFDs
	cfg.MaxProcesses = *fProcs
	cfg.FS = ns
	cfg.Loader = loader.NewLoader(loader.NewLoaderCache(), progs)
	cfg.Stdin = os.Stdin
	cfg.Stdout = os.Stdout

	k, err := kernel.NewKernel(cfg)
	if err != nil {
		return 1, err
	}

	syscalls.Install(k)

	proc, err := k.Spawn(ctx, cmdline)
	if err != nil {
		return 1, err
	}

	status, err := proc.Join(ctx)
	if err != nil {
		if k.Halted() {
			return 0, nil
		}

		return 1, err
	}

	clog.L.Debug("initial process finished", "pid", proc.Pid, "status", status)

	return status, nil
}

func main() {
	status, err := run()
	if err != nil {
		clog.L.Error("pintos failed", "error", err)
	}

	os.Exit(status)
}

// Package programs holds the stock user programs the pintos command
// installs into its filesystem.
package programs

import (
	"context"
	"strconv"
	"strings"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/loader"
	"github.com/namhoon-kim97/pintos-kaist/user"
)

const chunk = 512

var stock = map[string]kernel.Entry{
	"echo":  user.Main(Echo),
	"cat":   user.Main(Cat),
	"cp":    user.Main(Cp),
	"run":   user.Main(Run),
	"exit":  user.Main(ExitWith),
	"halt":  user.Main(Halt),
	"touch": user.Main(Touch),
	"rm":    user.Main(Rm),
}

// Register makes every stock program runnable through progs.
func Register(progs *loader.Programs) {
	for name, entry := range stock {
		progs.Register(name, entry)
	}
}

// Names lists the stock programs.
func Names() []string {
	progs := loader.NewPrograms()
	Register(progs)
	return progs.Names()
}

// Install registers the stock programs and writes an image for each into
// the root of fsys.
func Install(ctx context.Context, fsys fs.FileSystem, progs *loader.Programs) error {
	Register(progs)

	for _, name := range Names() {
		err := loader.Install(ctx, fsys, name, loader.Build(name, nil))
		if err != nil {
			return err
		}
	}

	return nil
}

func Echo(u *user.User, args []string) int {
	u.Printf("%s\n", strings.Join(args[1:], " "))
	return 0
}

func copyFD(u *user.User, dst, src int) bool {
	buf := make([]byte, chunk)

	for {
		n := u.Read(src, buf)
		if n < 0 {
			return false
		}

		if n == 0 {
			return true
		}

		if u.Write(dst, buf[:n]) != n {
			return false
		}
	}
}

func Cat(u *user.User, args []string) int {
	if len(args) == 1 {
		if !copyFD(u, abi.StdoutFileno, abi.StdinFileno) {
			return 1
		}

		return 0
	}

	status := 0

	for _, path := range args[1:] {
		fd := u.Open(path)
		if fd < 0 {
			u.Printf("%s: open failed\n", path)
			status = 1
			continue
		}

		if !copyFD(u, abi.StdoutFileno, fd) {
			status = 1
		}

		u.Close(fd)
	}

	return status
}

// Cp copies src over dst, creating dst at src's size. Files never grow, so
// an existing dst shorter than src only takes its own length.
func Cp(u *user.User, args []string) int {
	if len(args) != 3 {
		u.Printf("usage: cp SRC DST\n")
		return 1
	}

	src := u.Open(args[1])
	if src < 0 {
		u.Printf("%s: open failed\n", args[1])
		return 1
	}

	u.Create(args[2], uint32(u.Filesize(src)))

	dst := u.Open(args[2])
	if dst < 0 {
		u.Printf("%s: open failed\n", args[2])
		return 1
	}

	buf := make([]byte, chunk)

	for {
		n := u.Read(src, buf)
		if n <= 0 {
			break
		}

		if u.Write(dst, buf[:n]) == 0 {
			break
		}
	}

	u.Close(src)
	u.Close(dst)

	return 0
}

// Run forks a child that execs the rest of its command line and exits with
// the child's status.
func Run(u *user.User, args []string) int {
	if len(args) < 2 {
		u.Printf("usage: run CMD [ARGS...]\n")
		return 1
	}

	cmdline := strings.Join(args[1:], " ")

	pid := u.Fork(args[0], func(c *user.User) int {
		c.Exec(cmdline)
		c.Printf("%s: exec failed\n", args[1])
		return -1
	})

	if pid < 0 {
		return -1
	}

	return u.Wait(pid)
}

func ExitWith(u *user.User, args []string) int {
	if len(args) < 2 {
		return 0
	}

	status, err := strconv.Atoi(args[1])
	if err != nil {
		return -1
	}

	u.Exit(status)
	return status
}

func Halt(u *user.User, args []string) int {
	u.Halt()
	return 0
}

// Touch creates NAME, SIZE bytes long or empty.
func Touch(u *user.User, args []string) int {
	if len(args) < 2 || len(args) > 3 {
		u.Printf("usage: touch NAME [SIZE]\n")
		return 1
	}

	size := 0

	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			u.Printf("%s: bad size\n", args[2])
			return 1
		}

		size = n
	}

	if !u.Create(args[1], uint32(size)) {
		return 1
	}

	return 0
}

func Rm(u *user.User, args []string) int {
	status := 0

	for _, name := range args[1:] {
		if !u.Remove(name) {
			status = 1
		}
	}

	return status
}

// Package user is the library user programs link against: syscall
// wrappers, argument decoding and a bump allocator over the heap segment.
package user

import (
	"encoding/binary"
	"fmt"

	"github.com/namhoon-kim97/pintos-kaist/abi"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
	"github.com/namhoon-kim97/pintos-kaist/memory"
)

type User struct {
	cpu kernel.CPU

	brk, heapEnd uint64
}

func New(cpu kernel.CPU) *User {
	u := &User{cpu: cpu}

	if start, size, ok := cpu.Region(memory.Heap); ok {
		u.brk = start
		u.heapEnd = start + size
	}

	return u
}

// Main adapts fn into an entry point. fn sees its arguments already copied
// out of user memory.
func Main(fn func(u *User, args []string) int) kernel.Entry {
	return func(cpu kernel.CPU, argc int, argv uint64) int {
		u := New(cpu)
		return fn(u, u.Args(argc, argv))
	}
}

func (u *User) CPU() kernel.CPU {
	return u.cpu
}

// Args decodes the argc string pointers at argv.
func (u *User) Args(argc int, argv uint64) []string {
	args := make([]string, 0, argc)

	for i := 0; i < argc; i++ {
		ptr := u.LoadWord(argv + uint64(i)*8)
		args = append(args, u.LoadString(ptr))
	}

	return args
}

func (u *User) LoadWord(addr uint64) uint64 {
	var buf [8]byte
	u.cpu.Load(addr, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

func (u *User) StoreWord(addr, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	u.cpu.Store(addr, buf[:])
}

func (u *User) LoadString(addr uint64) string {
	var (
		out []byte
		b   [1]byte
	)

	for {
		u.cpu.Load(addr, b[:])
		if b[0] == 0 {
			return string(out)
		}

		out = append(out, b[0])
		addr++
	}
}

func (u *User) Load(addr uint64, n int) []byte {
	buf := make([]byte, n)
	u.cpu.Load(addr, buf)
	return buf
}

func (u *User) Store(addr uint64, p []byte) {
	u.cpu.Store(addr, p)
}

// Alloc carves n bytes off the heap. Running out of heap kills the
// program.
func (u *User) Alloc(n int) uint64 {
	size := (uint64(n) + 7) &^ 7
	if size == 0 {
		size = 8
	}

	if u.brk == 0 || u.brk+size > u.heapEnd {
		u.Exit(-1)
	}

	addr := u.brk
	u.brk += size

	return addr
}

// Mark and Release bracket temporary allocations.
func (u *User) Mark() uint64 {
	return u.brk
}

func (u *User) Release(mark uint64) {
	u.brk = mark
}

func (u *User) CString(s string) uint64 {
	addr := u.Alloc(len(s) + 1)
	u.cpu.Store(addr, append([]byte(s), 0))
	return addr
}

// Syscall traps with the raw argument words.
func (u *User) Syscall(n int64, args ...uint64) int64 {
	f := &kernel.Frame{Number: n}
	copy(f.Args[:], args)

	return u.cpu.Syscall(f)
}

func (u *User) Halt() {
	u.Syscall(abi.SysHalt)
	panic("halt returned")
}

func (u *User) Exit(status int) {
	u.Syscall(abi.SysExit, uint64(status))
	panic("exit returned")
}

// Fork starts a child named name that runs child on a copy of this
// program's memory and descriptors. The parent gets the child's pid, or -1.
func (u *User) Fork(name string, child func(u *User) int) int {
	mark := u.Mark()
	defer u.Release(mark)

	brk, heapEnd := u.brk, u.heapEnd

	f := &kernel.Frame{
		Number: abi.SysFork,
		Resume: func(cpu kernel.CPU) int {
			return child(&User{cpu: cpu, brk: brk, heapEnd: heapEnd})
		},
	}

	f.Args[0] = u.CString(name)

	return int(u.cpu.Syscall(f))
}

// Exec only returns on failure.
func (u *User) Exec(cmdline string) int {
	mark := u.Mark()
	defer u.Release(mark)

	return int(u.Syscall(abi.SysExec, u.CString(cmdline)))
}

func (u *User) Wait(pid int) int {
	return int(u.Syscall(abi.SysWait, uint64(pid)))
}

func (u *User) Create(path string, size uint32) bool {
	mark := u.Mark()
	defer u.Release(mark)

	return u.Syscall(abi.SysCreate, u.CString(path), uint64(size)) != 0
}

func (u *User) Remove(path string) bool {
	mark := u.Mark()
	defer u.Release(mark)

	return u.Syscall(abi.SysRemove, u.CString(path)) != 0
}

func (u *User) Open(path string) int {
	mark := u.Mark()
	defer u.Release(mark)

	return int(u.Syscall(abi.SysOpen, u.CString(path)))
}

func (u *User) Filesize(fd int) int {
	return int(u.Syscall(abi.SysFilesize, uint64(fd)))
}

// Read reads into p through a heap bounce buffer.
func (u *User) Read(fd int, p []byte) int {
	mark := u.Mark()
	defer u.Release(mark)

	buf := u.Alloc(len(p))

	n := int(u.Syscall(abi.SysRead, uint64(fd), buf, uint64(len(p))))
	if n > 0 {
		u.cpu.Load(buf, p[:n])
	}

	return n
}

func (u *User) Write(fd int, p []byte) int {
	mark := u.Mark()
	defer u.Release(mark)

	buf := u.Alloc(len(p))
	if len(p) > 0 {
		u.cpu.Store(buf, p)
	}

	return int(u.Syscall(abi.SysWrite, uint64(fd), buf, uint64(len(p))))
}

func (u *User) Seek(fd int, pos uint32) {
	u.Syscall(abi.SysSeek, uint64(fd), uint64(pos))
}

func (u *User) Tell(fd int) int {
	return int(u.Syscall(abi.SysTell, uint64(fd)))
}

func (u *User) Close(fd int) {
	u.Syscall(abi.SysClose, uint64(fd))
}

func (u *User) Dup2(oldfd, newfd int) int {
	return int(u.Syscall(abi.SysDup2, uint64(oldfd), uint64(newfd)))
}

func (u *User) Printf(format string, args ...interface{}) int {
	return u.Write(abi.StdoutFileno, []byte(fmt.Sprintf(format, args...)))
}

// Package abi holds the user/kernel calling convention: syscall numbers and
// the fixed register slots a trap carries.
package abi

// Syscall numbers. The gap between CLOSE and DUP2 is reserved for the
// virtual memory and filesystem projects.
const (
	SysHalt     = 0
	SysExit     = 1
	SysFork     = 2
	SysExec     = 3
	SysWait     = 4
	SysCreate   = 5
	SysRemove   = 6
	SysOpen     = 7
	SysFilesize = 8
	SysRead     = 9
	SysWrite    = 10
	SysSeek     = 11
	SysTell     = 12
	SysClose    = 13

	SysDup2 = 22

	MaxSyscall = 32
)

var SyscallNames = [MaxSyscall]string{
	SysHalt:     "halt",
	SysExit:     "exit",
	SysFork:     "fork",
	SysExec:     "exec",
	SysWait:     "wait",
	SysCreate:   "create",
	SysRemove:   "remove",
	SysOpen:     "open",
	SysFilesize: "filesize",
	SysRead:     "read",
	SysWrite:    "write",
	SysSeek:     "seek",
	SysTell:     "tell",
	SysClose:    "close",
	SysDup2:     "dup2",
}

// Name returns the mnemonic for a syscall number, or "unknown".
func Name(n int64) string {
	if n < 0 || n >= MaxSyscall || SyscallNames[n] == "" {
		return "unknown"
	}

	return SyscallNames[n]
}

// Console descriptors installed in every fresh descriptor table.
const (
	StdinFileno  = 0
	StdoutFileno = 1
)

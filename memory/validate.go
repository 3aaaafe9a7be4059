package memory

import (
	"github.com/pkg/errors"
)

var (
	ErrFault = errors.New("invalid user memory access")

	ErrNullPointer   = errors.Wrap(ErrFault, "null pointer")
	ErrKernelAddress = errors.Wrap(ErrFault, "kernel address")
	ErrUnmapped      = errors.Wrap(ErrFault, "unmapped address")
	ErrReadOnly      = errors.Wrap(ErrFault, "read-only address")
	ErrStringTooLong = errors.New("user string exceeds limit")
)

// IsFault reports whether err came out of a failed address check.
func IsFault(err error) bool {
	return errors.Cause(err) == ErrFault
}

// Validator is the capability the syscall layer needs from an address
// space: a read-only probe of whether a user span may be touched.
type Validator interface {
	Validate(addr, length uint64, writable bool) error
}

var _ Validator = (*VirtualMemory)(nil)

// Validate checks that every byte of [addr, addr+length) is mapped user
// memory, and writable if requested. A zero length is checked as one byte
// so a bare pointer is never accepted unchecked.
func (vm *VirtualMemory) Validate(addr, length uint64, writable bool) error {
	if addr == 0 {
		return ErrNullPointer
	}

	if length == 0 {
		length = 1
	}

	end := addr + length
	if end < addr || addr >= vm.kernBase || end > vm.kernBase {
		return errors.Wrapf(ErrKernelAddress, "span %x+%x", addr, length)
	}

	vm.mu.RLock()
	defer vm.mu.RUnlock()

	for cur := addr; cur < end; {
		reg, ok := vm.findRegion(cur)
		if !ok {
			return errors.Wrapf(ErrUnmapped, "address %x", cur)
		}

		if writable && !reg.Writable {
			return errors.Wrapf(ErrReadOnly, "address %x in %s", cur, reg.Kind)
		}

		cur = reg.End()
	}

	return nil
}

func (vm *VirtualMemory) access(addr uint64, n int, writable bool, fn func(dst []byte, done int)) error {
	if n == 0 {
		return nil
	}

	err := vm.Validate(addr, uint64(n), writable)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	done := 0
	for done < n {
		cur := addr + uint64(done)

		reg, _ := vm.findRegion(cur)

		chunk := reg.End() - cur
		if left := uint64(n - done); chunk > left {
			chunk = left
		}

		fn(reg.Project(cur, chunk), done)

		done += int(chunk)
	}

	return nil
}

// ReadAt copies user memory at addr into p.
func (vm *VirtualMemory) ReadAt(p []byte, addr uint64) (int, error) {
	err := vm.access(addr, len(p), false, func(src []byte, done int) {
		copy(p[done:], src)
	})
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// WriteAt copies p into user memory at addr. The destination must be
// writable.
func (vm *VirtualMemory) WriteAt(p []byte, addr uint64) (int, error) {
	err := vm.access(addr, len(p), true, func(dst []byte, done int) {
		copy(dst, p[done:])
	})
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// Poke writes p regardless of region permissions. The loader uses it to
// fill read-only code pages; the span must still be mapped.
func (vm *VirtualMemory) Poke(p []byte, addr uint64) error {
	return vm.access(addr, len(p), false, func(dst []byte, done int) {
		copy(dst, p[done:])
	})
}

// ReadCString reads a NUL terminated string starting at addr, validating
// each byte before it is read. At most max bytes, terminator included, are
// examined.
func (vm *VirtualMemory) ReadCString(addr uint64, max int) (string, error) {
	var (
		buf []byte
		t   [1]byte
	)

	off := addr

	for i := 0; i < max; i++ {
		_, err := vm.ReadAt(t[:], off)
		if err != nil {
			return "", err
		}

		if t[0] == 0 {
			return string(buf), nil
		}

		buf = append(buf, t[0])
		off += 1
	}

	return "", errors.Wrapf(ErrStringTooLong, "no terminator within %d bytes of %x", max, addr)
}

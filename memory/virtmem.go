package memory

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

const PageSize = 4096

// KernBase is the first kernel-reserved virtual address. Everything at or
// above it is off limits to user pointers.
const KernBase uint64 = 0x8004000000

type RegionKind int

const (
	Code RegionKind = iota
	Data
	Heap
	Stack
)

func (k RegionKind) String() string {
	switch k {
	case Code:
		return "code"
	case Data:
		return "data"
	case Heap:
		return "heap"
	case Stack:
		return "stack"
	default:
		return "unknown"
	}
}

type Region struct {
	Start, Size uint64
	Kind        RegionKind
	Writable    bool

	linear []byte
}

func (reg *Region) dup() *Region {
	child := &Region{}

	// shallow dup
	*child = *reg

	child.linear = make([]byte, len(reg.linear))

	copy(child.linear, reg.linear)

	return child
}

func (reg *Region) End() uint64 {
	return reg.Start + reg.Size
}

func (reg *Region) Contains(x uint64) bool {
	if x < reg.Start {
		return false
	}

	if x >= reg.End() {
		return false
	}

	return true
}

func pageRound(sz uint64) uint64 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	return sz + (PageSize - diff)
}

// Project returns the backing bytes for [addr, addr+sz). The range must lie
// inside the region. Backing storage is allocated lazily.
func (reg *Region) Project(addr, sz uint64) []byte {
	offset := addr - reg.Start

	if uint64(len(reg.linear)) < offset+sz {
		slice := make([]byte, pageRound(offset+sz))
		copy(slice, reg.linear)

		reg.linear = slice
	}

	return reg.linear[offset : offset+sz]
}

type VirtualMemory struct {
	mu      sync.RWMutex
	regions []*Region

	kernBase uint64
}

func NewVirtualMemory(kernBase uint64) *VirtualMemory {
	if kernBase == 0 {
		kernBase = KernBase
	}

	return &VirtualMemory{
		kernBase: kernBase,
	}
}

func (vm *VirtualMemory) KernBase() uint64 {
	return vm.kernBase
}

func (vm *VirtualMemory) Fork() *VirtualMemory {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	child := &VirtualMemory{
		kernBase: vm.kernBase,
		regions:  make([]*Region, len(vm.regions)),
	}

	for i, reg := range vm.regions {
		child.regions[i] = reg.dup()
	}

	return child
}

func (vm *VirtualMemory) findRegion(addr uint64) (*Region, bool) {
	i := sort.Search(len(vm.regions), func(i int) bool {
		return vm.regions[i].End() > addr
	})

	if i < len(vm.regions) && vm.regions[i].Contains(addr) {
		return vm.regions[i], true
	}

	return nil, false
}

func (vm *VirtualMemory) FindRegion(addr uint64) (*Region, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	return vm.findRegion(addr)
}

// FindKind returns the lowest region of the given kind.
func (vm *VirtualMemory) FindKind(kind RegionKind) (*Region, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	for _, reg := range vm.regions {
		if reg.Kind == kind {
			return reg, true
		}
	}

	return nil, false
}

var ErrBadRegionRequest = errors.New("bad region request")

// NewRegion maps [addr, addr+size) rounded out to whole pages. Regions may
// not overlap, may not start at the null page and may not reach kernel
// space.
func (vm *VirtualMemory) NewRegion(addr, size uint64, kind RegionKind, writable bool) (*Region, error) {
	if addr%PageSize != 0 || size == 0 {
		return nil, errors.Wrapf(ErrBadRegionRequest, "unaligned region addr=%x size=%x", addr, size)
	}

	size = pageRound(size)

	if addr < PageSize || addr+size < addr || addr+size > vm.kernBase {
		return nil, errors.Wrapf(ErrBadRegionRequest, "region outside user space addr=%x size=%x", addr, size)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	for _, reg := range vm.regions {
		if addr < reg.End() && reg.Start < addr+size {
			return nil, errors.Wrapf(ErrBadRegionRequest, "region overlaps %s at %x", reg.Kind, reg.Start)
		}
	}

	reg := &Region{
		Start:    addr,
		Size:     size,
		Kind:     kind,
		Writable: writable,
	}

	vm.regions = append(vm.regions, reg)

	sort.Slice(vm.regions, func(i, j int) bool {
		return vm.regions[i].Start < vm.regions[j].Start
	})

	return reg, nil
}

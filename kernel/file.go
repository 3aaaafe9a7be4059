package kernel

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrHandleReleased  = errors.New("release of a freed handle")
	ErrFileRegistered  = errors.New("file already has a handle")
	ErrInvalidPosition = errors.New("invalid file position")
)

// OpenFile is the underlying open file object a Handle owns.
type OpenFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Length() int64
	Close() error
}

// Handle is one open file plus the cursor every slot aliasing it shares.
type Handle struct {
	file OpenFile

	// guarded by the owning Registry's mu
	refs int

	mu  sync.Mutex
	pos int64
}

func (h *Handle) File() OpenFile {
	return h.file
}

func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.ReadAt(p, h.pos)
	h.pos += int64(n)

	if err == io.EOF {
		err = nil
	}

	return n, err
}

func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.WriteAt(p, h.pos)
	h.pos += int64(n)

	return n, err
}

func (h *Handle) Seek(pos int64) error {
	if pos < 0 {
		return ErrInvalidPosition
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.pos = pos

	return nil
}

func (h *Handle) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.pos
}

func (h *Handle) Length() int64 {
	return h.file.Length()
}

// Registry maps each underlying file to the single Handle wrapping it and
// counts the descriptor slots, across all processes, that point at it.
type Registry struct {
	mu      sync.Mutex
	handles map[OpenFile]*Handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[OpenFile]*Handle),
	}
}

// Create wraps a freshly opened file in a new handle with one reference.
func (r *Registry) Create(f OpenFile) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[f]; ok {
		return nil, ErrFileRegistered
	}

	h := &Handle{file: f, refs: 1}
	r.handles[f] = h

	return h, nil
}

// AcquireOrCreate returns the handle already wrapping f with its count
// raised, or a new handle with one reference.
func (r *Registry) AcquireOrCreate(f OpenFile) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[f]; ok {
		h.refs++
		return h
	}

	h := &Handle{file: f, refs: 1}
	r.handles[f] = h

	return h
}

// Release drops one reference. The last release closes the file and
// forgets the handle.
func (r *Registry) Release(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.handles[h.file]
	if !ok || cur != h || h.refs <= 0 {
		return ErrHandleReleased
	}

	h.refs--
	if h.refs > 0 {
		return nil
	}

	delete(r.handles, h.file)

	return h.file.Close()
}

// Refs reports the live reference count of h, 0 once it has been freed.
func (r *Registry) Refs(h *Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[h.file]; !ok || cur != h {
		return 0
	}

	return h.refs
}

// Len is the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

package loader

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/fs"
	"github.com/namhoon-kim97/pintos-kaist/kernel"
)

// Programs maps the entry names images refer to onto the Go functions that
// implement them.
type Programs struct {
	mu      sync.RWMutex
	entries map[string]kernel.Entry
}

func NewPrograms() *Programs {
	return &Programs{
		entries: make(map[string]kernel.Entry),
	}
}

func (p *Programs) Register(name string, entry kernel.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[name] = entry
}

func (p *Programs) Lookup(name string) (kernel.Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.entries[name]
	return entry, ok
}

func (p *Programs) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var names []string
	for name := range p.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Install writes image into fsys at path, replacing whatever is there.
func Install(ctx context.Context, fsys fs.FileSystem, path string, image []byte) error {
	err := fsys.Create(ctx, path, int64(len(image)))
	if errors.Cause(err) == fs.ErrExists {
		err = fsys.Remove(ctx, path)
		if err == nil {
			err = fsys.Create(ctx, path, int64(len(image)))
		}
	}

	if err != nil {
		return errors.Wrapf(err, "installing %s", path)
	}

	f, err := fsys.Open(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "installing %s", path)
	}

	defer f.Close()

	n, err := f.WriteAt(image, 0)
	if err != nil {
		return errors.Wrapf(err, "installing %s", path)
	}

	if n != len(image) {
		return errors.Errorf("installing %s: short write %d of %d", path, n, len(image))
	}

	return nil
}

package waiter

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/namhoon-kim97/pintos-kaist/log"
)

var ErrAborted = errors.New("wait aborted")

type EventType uint64

// Waiter is a set of registered events notified by mask.
type Waiter struct {
	mu sync.RWMutex

	waiters map[*Event]struct{}
}

// Event is one registration. Its channel gets a non-blocking send for
// every matching Notify.
type Event struct {
	Mask EventType
	C    chan struct{}
}

func (w *Waiter) Register(mask EventType) *Event {
	e := &Event{
		Mask: mask,
		C:    make(chan struct{}, 1),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.waiters == nil {
		w.waiters = make(map[*Event]struct{})
	}

	w.waiters[e] = struct{}{}

	return e
}

func (w *Waiter) Unregister(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.waiters, e)
}

func (w *Waiter) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.waiters)
}

func (w *Waiter) Notify(mask EventType) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	log.L.Trace("waiters-notify", "count", len(w.waiters), "mask", mask)

	for e := range w.waiters {
		if mask&e.Mask == 0 {
			continue
		}

		select {
		case e.C <- struct{}{}:
		default:
		}
	}
}

// Until blocks until done reports true, rechecking after every matching
// notification. It gives up when ctx ends or abort closes.
func (w *Waiter) Until(ctx context.Context, mask EventType, abort <-chan struct{}, done func() bool) error {
	e := w.Register(mask)
	defer w.Unregister(e)

	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-abort:
			return ErrAborted
		case <-e.C:
		}
	}

	return nil
}

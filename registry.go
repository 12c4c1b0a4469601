package corosched

import (
	"sync"

	"github.com/joeycumines/go-corosched/internal/gid"
)

// coroutines is the process-wide registry mapping goroutine ids to the live
// coroutines running on them. It is how Current resolves the per-goroutine
// slot: a coroutine registers itself when its goroutine first runs, and
// deregisters on exit, so an entry exists exactly while coroutine code could
// be on that goroutine's stack.
var coroutines = coroutineRegistry{data: make(map[int64]*Coroutine)}

type coroutineRegistry struct {
	data map[int64]*Coroutine
	mu   sync.RWMutex
}

func (r *coroutineRegistry) register(id int64, c *Coroutine) {
	r.mu.Lock()
	r.data[id] = c
	r.mu.Unlock()
}

func (r *coroutineRegistry) deregister(id int64) {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
}

func (r *coroutineRegistry) lookup(id int64) *Coroutine {
	r.mu.RLock()
	c := r.data[id]
	r.mu.RUnlock()
	return c
}

// callerCoroutine returns the coroutine running on the calling goroutine, or
// nil when called from outside any coroutine.
func callerCoroutine() *Coroutine {
	return coroutines.lookup(gid.Get())
}

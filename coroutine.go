package corosched

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/joeycumines/go-corosched/internal/gid"
)

// Options configures a coroutine at spawn time.
type Options struct {
	// Name labels the coroutine for logging and debugging. A unique name is
	// generated if empty.
	Name string
}

// trapFunc is a park continuation. It runs on the processor's own stack with
// exclusive ownership of the coroutine handle, and is expected to arrange for
// the handle to be re-enqueued (or released) once the awaited event fires.
type trapFunc func(*Processor, *Coroutine)

// yieldRecord is what a coroutine hands back to its driver on each control
// transfer: the new state, the park continuation (if parking), and any panic
// captured from the body.
type yieldRecord struct {
	state      State
	trap       trapFunc
	panicked   bool
	panicValue any
}

// errKilled is the sentinel used to unwind a released coroutine's goroutine.
// It never escapes the coroutine's own recovery.
var errKilled = errors.New(`corosched: coroutine released`)

var coroutineSeq atomic.Uint64

// Coroutine is a cooperatively scheduled task: a dedicated goroutine driven
// by strict control handoff, so that at any instant either the driver or the
// coroutine executes, never both.
//
// Ownership of a *Coroutine is exclusive: exactly one party (a run queue, an
// inbox, a processor's current slot, or a park continuation) holds it at any
// time, and transferring it is the fundamental unit of scheduling.
type Coroutine struct {
	name  string
	state coroState

	// resumeCh and yieldCh implement the context switch: the driver sends the
	// resume word and blocks on yieldCh; the coroutine sends its yield record
	// and blocks on resumeCh.
	resumeCh chan uintptr
	yieldCh  chan yieldRecord

	// killCh is closed by release to unwind a coroutine that will never be
	// resumed again.
	killCh   chan struct{}
	killOnce sync.Once

	// processor is the processor currently driving this coroutine. Written by
	// the driver immediately before each resume, read from the coroutine's
	// goroutine via Current; the channel handoff orders the accesses.
	processor *Processor

	preferred weak.Pointer[Processor]
}

// newCoroutine spawns the backing goroutine, which blocks until the first
// resume (or until released without ever running).
func newCoroutine(f func(), opts Options) *Coroutine {
	name := opts.Name
	if name == `` {
		name = fmt.Sprintf(`coroutine-%d`, coroutineSeq.Add(1))
	}
	co := &Coroutine{
		name:     name,
		resumeCh: make(chan uintptr),
		yieldCh:  make(chan yieldRecord),
		killCh:   make(chan struct{}),
	}
	go co.run(f)
	return co
}

func (c *Coroutine) run(f func()) {
	defer func() {
		r := recover()
		c.state.Store(StateFinished)
		if r == errKilled {
			// released; nobody is waiting on yieldCh
			return
		}
		c.yieldCh <- yieldRecord{
			state:      StateFinished,
			panicked:   r != nil,
			panicValue: r,
		}
	}()

	select {
	case <-c.resumeCh:
	case <-c.killCh:
		panic(errKilled)
	}

	id := gid.Get()
	coroutines.register(id, c)
	defer coroutines.deregister(id)

	f()
}

// Name returns the coroutine's debug name.
func (c *Coroutine) Name() string {
	return c.name
}

// State returns the coroutine's current state.
func (c *Coroutine) State() State {
	return c.state.Load()
}

func (c *Coroutine) isFinished() bool {
	return c.state.Load() == StateFinished
}

// resume transfers control into the coroutine, blocking until it yields or
// finishes. Must only be called by the processor thread that owns the handle,
// and never on a finished coroutine.
func (c *Coroutine) resume(v uintptr) yieldRecord {
	c.state.Store(StateRunning)
	c.resumeCh <- v
	return <-c.yieldCh
}

// yieldWith hands control back to the driver with the given state and park
// continuation, blocking until the next resume. Called on the coroutine's own
// goroutine. Panics with the kill sentinel if the coroutine is released while
// suspended.
func (c *Coroutine) yieldWith(s State, trap trapFunc) uintptr {
	c.state.Store(s)
	c.yieldCh <- yieldRecord{state: s, trap: trap}
	select {
	case v := <-c.resumeCh:
		return v
	case <-c.killCh:
		panic(errKilled)
	}
}

// release terminates a coroutine that will never be resumed again, unwinding
// its goroutine. Releasing a finished coroutine is a no-op. The caller must
// hold exclusive ownership; releasing a running coroutine is a contract
// violation (the unwind would race its own execution).
func (c *Coroutine) release() {
	if c.isFinished() {
		return
	}
	if c.state.Load() == StateRunning {
		panic(`corosched: cannot release a running coroutine`)
	}
	c.killOnce.Do(func() {
		close(c.killCh)
	})
}

// setPreferredProcessor records p as the coroutine's preferred home. The
// reference is weak: it does not keep the processor alive, and upgrading
// fails once the processor has been dropped.
func (c *Coroutine) setPreferredProcessor(p *Processor) {
	c.preferred = weak.Make(p)
}

// PreferredProcessor returns the coroutine's preferred processor, or nil if
// none was ever set or the processor has since been dropped.
func (c *Coroutine) PreferredProcessor() *Processor {
	return c.preferred.Value()
}

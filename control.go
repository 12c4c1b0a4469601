package corosched

import (
	"github.com/joeycumines/logiface"
)

// ControlHandle is the ephemeral "I am running on a processor" capability,
// obtainable only from inside a coroutine via Current.
//
// It exists to make suspension points explicit: ParkWith and Sched suspend
// the current coroutine, and when the coroutine is resumed later on it is not
// guaranteed to still be running on the previous processor. Both operations
// therefore consume the handle; any further control requires re-acquiring a
// fresh one from Current. Using a consumed handle panics.
type ControlHandle struct {
	p *Processor
}

// processor returns the underlying processor, panicking if the handle was
// consumed by a suspension point.
func (h *ControlHandle) processor() *Processor {
	if h.p == nil {
		panic(`corosched: control handle used after suspension point`)
	}
	return h.p
}

// consume invalidates the handle, returning the processor one last time.
func (h *ControlHandle) consume() *Processor {
	p := h.processor()
	h.p = nil
	return p
}

// ID returns the processor's id.
func (h *ControlHandle) ID() int {
	return h.processor().ID()
}

// Scheduler returns the owning scheduler.
func (h *ControlHandle) Scheduler() *Scheduler {
	return h.processor().Scheduler()
}

// Handle returns a clone of the processor's outbound send-capability. Unlike
// the ControlHandle itself, the sender remains valid across suspension
// points, and may be retained by external event sources.
func (h *ControlHandle) Handle() ProcMessageSender {
	return h.processor().Handle()
}

// Ready pushes a runnable coroutine onto the local run queue, making it the
// head: the next coroutine this processor resumes.
func (h *ControlHandle) Ready(co *Coroutine) {
	h.processor().Ready(co)
}

// Current returns the coroutine currently running on the processor, i.e. the
// caller's own coroutine, for debug and name access.
func (h *ControlHandle) Current() *Coroutine {
	return h.processor().currentCoroutine()
}

// Logger returns the scheduler's logger.
func (h *ControlHandle) Logger() *logiface.Logger[logiface.Event] {
	return h.processor().Scheduler().Logger()
}

// Spawn creates a fresh coroutine running f and readies it locally. See
// SpawnOpts.
func (h *ControlHandle) Spawn(f func()) {
	h.SpawnOpts(f, Options{})
}

// SpawnOpts creates a fresh coroutine running f, tags it with this processor
// as its preferred home, and readies it at the head of the local run queue.
// An idle peer is woken so the new work can be stolen if this processor
// stays busy.
func (h *ControlHandle) SpawnOpts(f func(), opts Options) {
	p := h.processor()
	co := newCoroutine(f, opts)
	co.setPreferredProcessor(p)
	p.Ready(co)
	p.sched.signalWork()
}

// Sched suspends the current coroutine, yielding to the scheduling loop. The
// coroutine re-enters via its processor's inbox, interleaving with any
// pending work from peers.
//
// Sched consumes the handle: on resume the coroutine may be running on a
// different processor, and the caller must re-acquire via Current.
func (h *ControlHandle) Sched() {
	h.consume().schedYield()
}

// ParkWith suspends the current coroutine with state Parked, transferring
// ownership of its handle to f, which runs on the processor's own stack once
// the yield is interpreted. f is expected to arrange for the handle to be
// re-enqueued elsewhere (e.g. after an external event fires), typically via
// a retained ProcMessageSender.
//
// f must not call back into scheduling-sensitive methods of the processor it
// receives (parking, yielding); Ready on any processor is permitted. It may
// safely cause the coroutine to be released.
//
// ParkWith consumes the handle; see Sched.
func (h *ControlHandle) ParkWith(f func(*Processor, *Coroutine)) {
	h.consume().parkWith(f)
}

// Current returns the control handle for the processor driving the calling
// coroutine, or ok=false when called from outside any coroutine.
func Current() (*ControlHandle, bool) {
	co := callerCoroutine()
	if co == nil || co.processor == nil {
		return nil, false
	}
	return &ControlHandle{p: co.processor}, true
}

// Spawn creates and readies a coroutine on the calling coroutine's
// processor. It panics when called from outside a coroutine.
func Spawn(f func()) {
	SpawnOpts(f, Options{})
}

// SpawnOpts is Spawn with explicit options.
func SpawnOpts(f func(), opts Options) {
	h, ok := Current()
	if !ok {
		panic(`corosched: spawn outside a coroutine`)
	}
	h.SpawnOpts(f, opts)
}

// Sched suspends the calling coroutine. It panics when called from outside a
// coroutine.
func Sched() {
	h, ok := Current()
	if !ok {
		panic(`corosched: sched outside a coroutine`)
	}
	h.Sched()
}

// ParkWith parks the calling coroutine, delivering its handle to f. It
// panics when called from outside a coroutine.
func ParkWith(f func(*Processor, *Coroutine)) {
	h, ok := Current()
	if !ok {
		panic(`corosched: park outside a coroutine`)
	}
	h.ParkWith(f)
}

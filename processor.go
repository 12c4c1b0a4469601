// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package corosched

import (
	"fmt"
	"math/rand/v2"

	"github.com/joeycumines/go-corosched/internal/deque"
	"github.com/joeycumines/logiface"
)

// Processor is the per-thread processing unit of the scheduler: one worker
// goroutine plus the scheduling state bound to it (local run queue, inbox,
// rng, peer stealers). Coroutines execute cooperatively and serially on the
// worker; across processors they run in parallel.
//
// Only the owning worker reads current, pops the local queue, and receives on
// the inbox. Peers only push to the inbox and steal from the queue.
type Processor struct {
	id    int
	sched *Scheduler

	// current is non-empty only between the point a resume begins and the
	// point its yield is interpreted. Owner thread only.
	current *Coroutine

	rng              *rand.Rand
	queueWorker      *deque.Worker[*Coroutine]
	queueStealer     *deque.Stealer[*Coroutine]
	neighborStealers []*deque.Stealer[*Coroutine]

	inbox *inbox
}

// Machine is the construction-time descriptor surfaced to the scheduler when
// a processor is spawned: the worker's join handle, a send-capability onto
// its inbox, and a stealer onto its run queue.
type Machine struct {
	// Handle is the outbound send-capability onto the processor's inbox.
	Handle ProcMessageSender
	// Stealer is the peer-side capability onto the processor's run queue.
	Stealer *deque.Stealer[*Coroutine]

	done chan struct{}
	err  error
}

// join blocks until the worker exits, returning the failure that stopped it,
// if any. Shaped for errgroup.Group.Go.
func (m *Machine) join() error {
	<-m.done
	return m.err
}

// spawnProcessor constructs a processor, starts its worker goroutine, and
// returns the Machine descriptor. The scheduler must outlive the processor.
func spawnProcessor(sched *Scheduler, id int) *Machine {
	worker, stealer := deque.New[*Coroutine]()
	p := &Processor{
		id:           id,
		sched:        sched,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		queueWorker:  worker,
		queueStealer: stealer,
		inbox:        newInbox(),
	}
	m := &Machine{
		Handle:  p.Handle(),
		Stealer: p.Stealer(),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(m.done)
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = &PanicError{Value: r}
				}
				m.err = err
				p.logger().Err().
					Int(`processor`, p.id).
					Err(err).
					Log(`processor failed`)
				p.drain()
				sched.processorFailed(p.id)
			}
		}()
		p.schedule()
	}()
	return m
}

// ID returns the processor's stable id.
func (p *Processor) ID() int {
	return p.id
}

// Scheduler returns the owning scheduler. Valid for the processor's entire
// lifetime by construction.
func (p *Processor) Scheduler() *Scheduler {
	return p.sched
}

// Handle returns a new outbound send-capability onto this processor's inbox.
func (p *Processor) Handle() ProcMessageSender {
	return ProcMessageSender{inbox: p.inbox, processor: p}
}

// Stealer returns a new peer-side capability onto this processor's run queue.
func (p *Processor) Stealer() *deque.Stealer[*Coroutine] {
	return p.queueStealer.Clone()
}

// Ready enqueues a coroutine at the head of the local run queue, making it
// the next to be resumed. Owner thread only; peers must use Handle instead.
func (p *Processor) Ready(co *Coroutine) {
	p.queueWorker.Push(co)
}

// currentCoroutine returns the coroutine currently executing on this
// processor, if any. Owner thread only.
func (p *Processor) currentCoroutine() *Coroutine {
	return p.current
}

func (p *Processor) logger() *logiface.Logger[logiface.Event] {
	return p.sched.logger
}

// schedule runs the worker loop: drain the local queue, absorb the inbox,
// steal from a random peer, else park until re-awakened. Exits on shutdown,
// releasing every coroutine still held by the inbox or the local queue.
func (p *Processor) schedule() {
	p.logger().Trace().Int(`processor`, p.id).Log(`processor started`)

outer:
	for {
		// 1. Run all tasks in the local queue.
		for {
			co, ok := p.queueWorker.Pop()
			if !ok {
				break
			}
			p.resume(co)
		}

		// 2. Absorb the inbox without blocking. A Ready message dirties the
		// queue and restarts the loop immediately: locally enqueued work runs
		// before any steal attempt, and draining one Ready at a time keeps
		// inbox FIFO order observable in execution order (the LIFO queue
		// would invert a batch).
		queueDirty := false
		for !queueDirty {
			msg, ok := p.inbox.tryRecv()
			if !ok {
				break
			}
			switch msg.kind {
			case msgNewNeighbor:
				p.neighborStealers = append(p.neighborStealers, msg.stealer)
			case msgShutdown:
				p.logger().Trace().Int(`processor`, p.id).Log(`shutdown signal`)
				break outer
			case msgReady:
				msg.coro.setPreferredProcessor(p)
				p.Ready(msg.coro)
				queueDirty = true
			}
		}
		if queueDirty {
			continue
		}

		// 3. Steal from a random neighbor as a last measure: one walk around
		// the ring from a random start. Abort is indistinguishable from
		// Empty here.
		if n := len(p.neighborStealers); n > 0 {
			start := p.rng.IntN(n)
			for i := 0; i < n; i++ {
				s := p.neighborStealers[(start+i)%n]
				if co, st := s.Steal(); st == deque.Data {
					p.logger().Trace().
						Int(`processor`, p.id).
						Str(`coroutine`, co.Name()).
						Log(`stole coroutine`)
					p.resume(co)
					continue outer
				}
			}
		}

		// 4. Park until a message (or a scheduler wake) arrives.
		p.sched.parkProcessor(p.id, p.Handle())
		msg, ok := p.inbox.recv()
		if ok {
			switch msg.kind {
			case msgNewNeighbor:
				p.neighborStealers = append(p.neighborStealers, msg.stealer)
			case msgShutdown:
				p.logger().Trace().Int(`processor`, p.id).Log(`shutdown signal`)
				break outer
			case msgReady:
				msg.coro.setPreferredProcessor(p)
				p.Ready(msg.coro)
			}
		}
		p.sched.unparkProcessor(p.id)
	}

	p.drain()

	p.logger().Trace().Int(`processor`, p.id).Log(`processor stopped`)
}

// drain releases every coroutine still held by the inbox or the local queue.
// The inbox goes first, so handles in flight toward this processor cannot
// leak past the join point. Stolen-in-flight handles are the stealer's
// responsibility.
func (p *Processor) drain() {
	p.logger().Trace().Int(`processor`, p.id).Log(`draining inbox`)
	for {
		msg, ok := p.inbox.tryRecv()
		if !ok {
			break
		}
		if msg.kind == msgReady {
			msg.coro.release()
		}
	}
	p.logger().Trace().Int(`processor`, p.id).Log(`draining run queue`)
	for {
		co, ok := p.queueWorker.Pop()
		if !ok {
			break
		}
		co.release()
	}
}

// resume drives one round of a coroutine's execution: install it as current,
// transfer control in, then interpret its yield.
//
// A panic from the coroutine body resurfaces here, on the processor's
// thread, wrapped in PanicError.
func (p *Processor) resume(co *Coroutine) {
	if co.isFinished() {
		panic(`corosched: cannot resume a finished coroutine`)
	}
	p.logger().Trace().
		Int(`processor`, p.id).
		Str(`coroutine`, co.Name()).
		Log(`resuming coroutine`)

	p.current = co
	co.processor = p
	rec := co.resume(0)
	co = p.current
	p.current = nil
	if co == nil {
		panic(`corosched: current coroutine missing after resume`)
	}

	if rec.panicked {
		panic(&PanicError{Coroutine: co.Name(), Value: rec.panicValue})
	}

	switch rec.state {
	case StateFinished:
		// terminal transition; the handle is dropped
	case StateSuspended:
		// Re-post through the inbox rather than directly onto the run queue:
		// the round-trip interleaves the suspender with any inbox-pending
		// work from peers, re-entering the loop's fairness path.
		p.inbox.send(procMessage{kind: msgReady, coro: co})
	case StateParked:
		if rec.trap != nil {
			// The continuation runs on this processor's stack, taking
			// ownership of the handle.
			rec.trap(p, co)
		} else {
			// parking with no continuation abandons the coroutine
			co.release()
		}
	default:
		panic(fmt.Sprintf(`corosched: coroutine %q yielded with invalid state %v`, co.Name(), rec.state))
	}
}

// schedYield suspends the currently running coroutine, returning control to the
// scheduling loop. Called from coroutine code via ControlHandle.Sched.
func (p *Processor) schedYield() {
	if co := p.current; co != nil {
		co.yieldWith(StateSuspended, nil)
	}
}

// parkWith yields the current coroutine with state Parked, delivering f to
// the driver, which invokes it with ownership of the handle.
func (p *Processor) parkWith(f trapFunc) {
	co := p.current
	if co == nil {
		panic(`corosched: park requested with no running coroutine`)
	}
	p.logger().Trace().
		Int(`processor`, p.id).
		Str(`coroutine`, co.Name()).
		Log(`parking coroutine`)
	co.yieldWith(StateParked, f)
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package corosched

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// Scheduler owns a fixed set of processors, tracks the idle ones, and
// brokers shutdown. It outlives every processor it spawns: processor code
// may hold a plain *Scheduler for its entire lifetime.
//
// Instances must be created with New, and are single-use: Run may be called
// at most once.
type Scheduler struct {
	logger     *logiface.Logger[logiface.Event]
	processors int

	// machines is written once by Run before any processor can observe the
	// scheduler, then read-only.
	machines []*Machine

	parkedMu sync.Mutex
	parked   map[int]ProcMessageSender

	// mainDone is closed when the main coroutine's body returns (including
	// by panic unwind); failed is closed if any processor dies, so Run can't
	// hang waiting on a main coroutine its processor abandoned.
	mainDone chan struct{}
	failed   chan struct{}
	failOnce sync.Once

	readySeq atomic.Uint64
	started  atomic.Bool
}

// New creates a Scheduler. See WithProcessors and WithLogger.
func New(opts ...SchedulerOption) (*Scheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		logger:     cfg.logger,
		processors: cfg.processors,
		parked:     make(map[int]ProcMessageSender),
		mainDone:   make(chan struct{}),
		failed:     make(chan struct{}),
	}, nil
}

// Logger returns the scheduler's logger, which may be nil.
func (s *Scheduler) Logger() *logiface.Logger[logiface.Event] {
	return s.logger
}

// Processors returns the number of processors the scheduler runs.
func (s *Scheduler) Processors() int {
	return s.processors
}

// Run spawns the processor machines, introduces them to each other, runs
// main as the first coroutine, and blocks until main finishes. It then
// broadcasts shutdown, joins every machine, and returns the first failure:
// a panic escaping any coroutine (main included) is returned as a
// *PanicError.
func (s *Scheduler) Run(main func()) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSchedulerReused
	}

	s.logger.Debug().Int(`processors`, s.processors).Log(`scheduler starting`)

	s.machines = make([]*Machine, s.processors)
	for i := range s.machines {
		s.machines[i] = spawnProcessor(s, i)
	}
	for i, m := range s.machines {
		for j, n := range s.machines {
			if i == j {
				continue
			}
			m.Handle.sendNewNeighbor(n.Stealer.Clone())
		}
	}

	mainDone := s.mainDone
	s.machines[0].Handle.Ready(newCoroutine(func() {
		defer close(mainDone)
		main()
	}, Options{Name: `main`}))

	select {
	case <-s.mainDone:
	case <-s.failed:
	}

	s.logger.Debug().Log(`scheduler shutting down`)
	for _, m := range s.machines {
		m.Handle.sendShutdown()
	}

	var g errgroup.Group
	for _, m := range s.machines {
		g.Go(m.join)
	}
	err := g.Wait()

	s.parkedMu.Lock()
	clear(s.parked)
	s.parkedMu.Unlock()

	s.logger.Debug().Log(`scheduler stopped`)
	return err
}

// Ready delivers an externally woken coroutine back into the scheduler: to
// its preferred processor when that still upgrades, else to a parked
// processor, else round-robin. Must only be called while Run is executing
// (machines exist for exactly that window).
func (s *Scheduler) Ready(co *Coroutine) {
	if p := co.PreferredProcessor(); p != nil {
		p.Handle().Ready(co)
		return
	}
	s.parkedMu.Lock()
	for _, h := range s.parked {
		s.parkedMu.Unlock()
		h.Ready(co)
		return
	}
	s.parkedMu.Unlock()
	i := int(s.readySeq.Add(1)) % len(s.machines)
	s.machines[i].Handle.Ready(co)
}

// parkProcessor records a processor as idle, retaining its send-capability
// so the scheduler can later wake it.
func (s *Scheduler) parkProcessor(id int, h ProcMessageSender) {
	s.logger.Trace().Int(`processor`, id).Log(`processor parked`)
	s.parkedMu.Lock()
	s.parked[id] = h
	s.parkedMu.Unlock()
}

// unparkProcessor clears a processor's idle record.
func (s *Scheduler) unparkProcessor(id int) {
	s.logger.Trace().Int(`processor`, id).Log(`processor unparked`)
	s.parkedMu.Lock()
	delete(s.parked, id)
	s.parkedMu.Unlock()
}

// signalWork wakes one parked processor, if any, so freshly spawned work can
// be stolen while its home processor stays busy.
func (s *Scheduler) signalWork() {
	s.parkedMu.Lock()
	var h ProcMessageSender
	var found bool
	for _, h = range s.parked {
		found = true
		break
	}
	s.parkedMu.Unlock()
	if found {
		h.wakeup()
	}
}

// processorFailed records that a processor died with a panic, releasing Run
// to begin shutdown even if the main coroutine was lost with it.
func (s *Scheduler) processorFailed(id int) {
	s.logger.Warning().Int(`processor`, id).Log(`processor failure triggered shutdown`)
	s.failOnce.Do(func() {
		close(s.failed)
	})
}

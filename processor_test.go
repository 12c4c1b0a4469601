package corosched

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-corosched/internal/deque"
)

// Spawned coroutines go to the head of the run queue, so children spawned
// before a yield run in reverse-spawn order, and the suspender resumes after
// them via the inbox round-trip.
func TestProcessorSchedOrder(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		results []int
	)
	push := func(v int) {
		mu.Lock()
		results = append(results, v)
		mu.Unlock()
	}

	err = sched.Run(func() {
		for i := 1; i < 4; i++ {
			Spawn(func() { push(i) })
		}
		push(0)
		Sched()
		push(99)
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []int{0, 3, 2, 1, 99}
	if len(results) != len(want) {
		t.Fatalf("results: got %v; want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results: got %v; want %v", results, want)
		}
	}
}

// A coroutine that scheds while a peer Ready sits in the inbox resumes
// behind it: the suspender re-enters via the inbox, and inbox FIFO order is
// preserved in execution order.
func TestSuspendedYieldRoutesThroughInbox(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	err = sched.Run(func() {
		h, ok := Current()
		if !ok {
			t.Error("no control handle inside coroutine")
			return
		}
		sender := h.Handle()

		// deliver "other" straight to the inbox, as a peer would
		other := newCoroutine(func() { record(`other`) }, Options{Name: `other`})
		sender.Ready(other)

		Sched()
		record(`suspender`)
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(order) != 2 || order[0] != `other` || order[1] != `suspender` {
		t.Fatalf("order: got %v; want [other suspender]", order)
	}
}

// A park continuation receives the unique live reference to the coroutine,
// exactly once, and the parked coroutine is not in the local queue.
func TestParkContinuationUniqueOwnership(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	var (
		slot    atomic.Pointer[Coroutine]
		calls   atomic.Int32
		resumed = make(chan struct{})
	)

	err = sched.Run(func() {
		h, ok := Current()
		if !ok {
			t.Error("no control handle inside coroutine")
			return
		}
		sender := h.Handle()

		Spawn(func() {
			ParkWith(func(p *Processor, co *Coroutine) {
				calls.Add(1)
				if !slot.CompareAndSwap(nil, co) {
					t.Error("continuation invoked with a second handle")
					return
				}
				if co.State() != StateParked {
					t.Errorf("parked coroutine state: got %v", co.State())
				}
				if n := p.queueWorker.Len(); n != 0 {
					t.Errorf("local queue holds %d entries while handle is parked", n)
				}
				// external wake, off the processor thread
				go sender.Ready(co)
			})
			close(resumed)
		})

		for {
			select {
			case <-resumed:
				return
			default:
				Sched()
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("continuation calls: got %d; want 1", got)
	}
	if slot.Load() == nil {
		t.Fatal("continuation never stored the handle")
	}
}

// Parking with a nil continuation abandons the coroutine: it is released
// rather than resumed.
func TestParkWithNilTrapAbandons(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	var abandoned *Coroutine
	err = sched.Run(func() {
		h, _ := Current()
		co := newCoroutine(func() {
			p := callerCoroutine().processor
			p.parkWith(nil)
			t.Error("resumed after abandoning itself")
		}, Options{Name: `abandoned`})
		abandoned = co
		h.Ready(co)
		Sched()
	})
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, abandoned, StateFinished)
}

// A coroutine delivered via Ready is tagged with the receiving processor as
// its preferred home.
func TestPreferredProcessorTagging(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	var (
		home *Processor
		ran  = make(chan struct{})
	)
	err = sched.Run(func() {
		h, _ := Current()
		sender := h.Handle()
		home = sender.Processor()

		co := newCoroutine(func() { close(ran) }, Options{Name: `delivered`})
		if co.PreferredProcessor() != nil {
			t.Error("fresh coroutine already has a preferred processor")
		}
		sender.Ready(co)

		for {
			select {
			case <-ran:
				if got := co.PreferredProcessor(); got != home {
					t.Errorf("delivered preferred processor: got %p; want %p", got, home)
				}
				cur, _ := Current()
				if got := cur.Current().PreferredProcessor(); got != home {
					t.Errorf("main preferred processor: got %p; want %p", got, home)
				}
				return
			default:
				Sched()
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Shutdown releases every coroutine still held by the inbox and local queue:
// nothing leaks, nothing runs twice.
func TestShutdownDrainsPendingWork(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	before := runtime.NumGoroutine()

	var count atomic.Int32
	m := spawnProcessor(sched, 0)
	for i := 0; i < 100; i++ {
		m.Handle.Ready(newCoroutine(func() { count.Add(1) }, Options{}))
	}
	m.Handle.sendShutdown()
	if err := m.join(); err != nil {
		t.Fatal(err)
	}

	if got := count.Load(); got < 0 || got > 100 {
		t.Fatalf("count: got %d; want within [0, 100]", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("goroutines did not drain: %d before, %d now", before, runtime.NumGoroutine())
}

// drain releases handles held in both the inbox and the local queue.
func TestDrainReleasesQueueAndInbox(t *testing.T) {
	sched, err := New(WithProcessors(1))
	if err != nil {
		t.Fatal(err)
	}

	worker, stealer := deque.New[*Coroutine]()
	p := &Processor{
		id:           0,
		sched:        sched,
		queueWorker:  worker,
		queueStealer: stealer,
		inbox:        newInbox(),
	}

	queued := newCoroutine(func() {}, Options{Name: `queued`})
	inboxed := newCoroutine(func() {}, Options{Name: `inboxed`})
	p.queueWorker.Push(queued)
	p.inbox.send(procMessage{kind: msgReady, coro: inboxed})

	p.drain()

	waitForState(t, queued, StateFinished)
	waitForState(t, inboxed, StateFinished)
	if got := p.queueWorker.Len(); got != 0 {
		t.Fatalf("queue len after drain: got %d", got)
	}
	if got := p.inbox.len(); got != 0 {
		t.Fatalf("inbox len after drain: got %d", got)
	}
}

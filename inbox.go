package corosched

import (
	"sync"

	"github.com/joeycumines/go-corosched/internal/deque"
)

// procMessageKind discriminates the inbox command variants.
type procMessageKind uint8

const (
	// msgNewNeighbor delivers a stealer onto a newly spawned peer's run queue.
	msgNewNeighbor procMessageKind = iota
	// msgReady delivers ownership of a runnable coroutine.
	msgReady
	// msgShutdown asks the processor to exit its loop and drain.
	msgShutdown
)

// procMessage is the tagged union carried by a processor's inbox. Exactly the
// field selected by kind is meaningful.
type procMessage struct {
	stealer *deque.Stealer[*Coroutine]
	coro    *Coroutine
	kind    procMessageKind
}

const inboxChunkSize = 64

// inboxChunk is a fixed-size node in the inbox's chunked linked list. The
// readPos/pos cursors give O(1) push/pop without shifting.
type inboxChunk struct {
	msgs    [inboxChunkSize]procMessage
	next    *inboxChunk
	readPos int
	pos     int
}

// inboxChunkPool recycles exhausted chunks to avoid GC churn under sustained
// message traffic.
var inboxChunkPool = sync.Pool{
	New: func() any {
		return &inboxChunk{}
	},
}

func newInboxChunk() *inboxChunk {
	c := inboxChunkPool.Get().(*inboxChunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnInboxChunk clears message slots before pooling, so stale coroutine
// references don't outlive their delivery.
func returnInboxChunk(c *inboxChunk) {
	for i := 0; i < c.pos; i++ {
		c.msgs[i] = procMessage{}
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	inboxChunkPool.Put(c)
}

// inbox is the multi-producer single-consumer command channel owned by one
// processor. Producers are peers, the scheduler, and the owning thread
// itself; the sole consumer is the owning worker thread.
//
// The queue is unbounded, so sends never block: a send from the scheduling
// loop's own thread (re-posting a just-yielded coroutine) cannot deadlock
// against the consumer.
type inbox struct {
	mu     sync.Mutex
	head   *inboxChunk
	tail   *inboxChunk
	length int

	// wakeCh carries at most one pending wake token. It is signalled on every
	// send, and directly by wake, which produces a receive with no message
	// (a spurious wakeup, in condition-variable terms).
	wakeCh chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		wakeCh: make(chan struct{}, 1),
	}
}

// send enqueues a message and signals the consumer. Safe for concurrent use.
func (q *inbox) send(m procMessage) {
	q.mu.Lock()
	if q.tail == nil {
		q.tail = newInboxChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.msgs) {
		next := newInboxChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.msgs[q.tail.pos] = m
	q.tail.pos++
	q.length++
	q.mu.Unlock()
	q.signal()
}

// wake signals the consumer without enqueueing a message, so a blocked recv
// returns spuriously and the scheduling loop re-enters its steal path.
func (q *inbox) wake() {
	q.signal()
}

func (q *inbox) signal() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

// tryRecv dequeues the oldest message without blocking.
func (q *inbox) tryRecv() (procMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.length == 0 {
		return procMessage{}, false
	}
	c := q.head
	m := c.msgs[c.readPos]
	c.msgs[c.readPos] = procMessage{}
	c.readPos++
	q.length--
	if c.readPos == c.pos && c.next != nil {
		q.head = c.next
		returnInboxChunk(c)
	} else if q.length == 0 {
		// sole chunk exhausted; reset cursors in place
		c.readPos = 0
		c.pos = 0
	}
	return m, true
}

// recv blocks until a message is available or a wake token arrives. It
// returns ok=false on a spurious wakeup (a wake with no pending message);
// callers treat that as "re-run the loop".
func (q *inbox) recv() (procMessage, bool) {
	if m, ok := q.tryRecv(); ok {
		return m, true
	}
	<-q.wakeCh
	return q.tryRecv()
}

// len reports the number of queued messages.
func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// ProcMessageSender is the clonable send-capability onto a processor's inbox.
// It holds a strong reference to the processor, so a held sender pins the
// receiver alive: a Ready can never be delivered to a vanished processor.
//
// The zero value is invalid; obtain one via Processor.Handle,
// ControlHandle.Handle, or a Machine.
type ProcMessageSender struct {
	inbox     *inbox
	processor *Processor
}

// Ready transfers ownership of a runnable coroutine to the processor. Safe
// for concurrent use from any goroutine, including park continuations firing
// on external event sources.
func (s ProcMessageSender) Ready(co *Coroutine) {
	if s.inbox == nil {
		panic(`corosched: send on zero ProcMessageSender`)
	}
	s.inbox.send(procMessage{kind: msgReady, coro: co})
}

// Processor returns the processor this sender feeds.
func (s ProcMessageSender) Processor() *Processor {
	return s.processor
}

func (s ProcMessageSender) sendNewNeighbor(st *deque.Stealer[*Coroutine]) {
	s.inbox.send(procMessage{kind: msgNewNeighbor, stealer: st})
}

func (s ProcMessageSender) sendShutdown() {
	s.inbox.send(procMessage{kind: msgShutdown})
}

func (s ProcMessageSender) wakeup() {
	s.inbox.wake()
}

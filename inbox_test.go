package corosched

import (
	"sync"
	"testing"
	"time"
)

func TestInboxFIFO(t *testing.T) {
	q := newInbox()
	cos := make([]*Coroutine, 3)
	for i := range cos {
		cos[i] = newCoroutine(func() {}, Options{})
		defer cos[i].release()
		q.send(procMessage{kind: msgReady, coro: cos[i]})
	}
	for i := range cos {
		m, ok := q.tryRecv()
		if !ok || m.kind != msgReady || m.coro != cos[i] {
			t.Fatalf("message %d: got %+v, %v", i, m, ok)
		}
	}
	if _, ok := q.tryRecv(); ok {
		t.Fatal("tryRecv on empty inbox succeeded")
	}
}

func TestInboxChunkRollover(t *testing.T) {
	q := newInbox()
	const n = inboxChunkSize*3 + 7
	for i := 0; i < n; i++ {
		q.send(procMessage{kind: msgNewNeighbor})
	}
	if got := q.len(); got != n {
		t.Fatalf("len: got %d; want %d", got, n)
	}
	for i := 0; i < n; i++ {
		if _, ok := q.tryRecv(); !ok {
			t.Fatalf("tryRecv %d failed", i)
		}
	}
	if got := q.len(); got != 0 {
		t.Fatalf("len after drain: got %d; want 0", got)
	}
}

func TestInboxRecvBlocksUntilSend(t *testing.T) {
	q := newInbox()
	got := make(chan procMessage, 1)
	go func() {
		for {
			m, ok := q.recv()
			if ok {
				got <- m
				return
			}
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.send(procMessage{kind: msgShutdown})
	select {
	case m := <-got:
		if m.kind != msgShutdown {
			t.Fatalf("kind: got %v; want shutdown", m.kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not observe send")
	}
}

func TestInboxWakeIsSpurious(t *testing.T) {
	q := newInbox()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.recv()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.wake()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("wake delivered a message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not return on wake")
	}
}

func TestInboxConcurrentProducers(t *testing.T) {
	q := newInbox()
	const producers = 8
	const perProducer = 1000

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.send(procMessage{kind: msgNewNeighbor})
			}
		}()
	}

	received := 0
	deadline := time.After(5 * time.Second)
	for received < producers*perProducer {
		m, ok := q.recv()
		if ok {
			if m.kind != msgNewNeighbor {
				t.Fatalf("kind: got %v", m.kind)
			}
			received++
			continue
		}
		select {
		case <-deadline:
			t.Fatalf("timed out after %d messages", received)
		default:
		}
	}
	wg.Wait()
	if got := q.len(); got != 0 {
		t.Fatalf("len after drain: got %d; want 0", got)
	}
}

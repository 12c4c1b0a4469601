// Package corosched provides a work-stealing cooperative scheduler for
// stackful coroutines, driving them to completion across a fixed set of
// worker threads.
//
// # Architecture
//
// A [Scheduler] owns N [Processor] workers. Each processor runs a scheduling
// loop over a LIFO-biased local run queue, an MPSC inbox of control messages
// (new peers, newly ready coroutines, shutdown), and a set of stealers onto
// its peers' queues: local work first, then inbox absorption, then a
// randomized steal, else park until re-awakened.
//
// A [Coroutine] is a dedicated goroutine under strict control handoff: it
// executes only while its driving processor is blocked on it, and yields
// control back explicitly. Ownership of a coroutine handle is exclusive, and
// transferring it (queue → processor → inbox → park continuation) is the
// fundamental unit of scheduling.
//
// # Coroutine API
//
// Code inside a coroutine acquires a [ControlHandle] via [Current] (or uses
// the package-level [Spawn], [Sched], and [ParkWith] conveniences). The
// handle is ephemeral: operations that may suspend the coroutine consume it,
// because the coroutine may resume on a different processor; re-acquire a
// fresh handle after every suspension point.
//
//   - [ControlHandle.Spawn] readies a new coroutine at the head of the local
//     queue, so children spawned before a yield run in reverse-spawn order.
//   - [ControlHandle.Sched] yields voluntarily; the coroutine re-enters via
//     its processor's inbox, behind any pending work from peers.
//   - [ControlHandle.ParkWith] suspends until an external event: the
//     continuation receives exclusive ownership of the handle, and re-enqueues
//     it later via a retained [ProcMessageSender] or [Scheduler.Ready].
//
// # Usage
//
//	sched, err := corosched.New(corosched.WithProcessors(4))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = sched.Run(func() {
//		corosched.Spawn(func() {
//			fmt.Println("hello from a coroutine")
//		})
//		corosched.Sched()
//	})
//
// Run returns once the main coroutine finishes; coroutines still pending at
// that point are released during the shutdown drain.
//
// # Logging
//
// Structured logging uses the logiface facade; configure per scheduler with
// [WithLogger], or package-wide with [SetLogger]. All log sites tolerate a
// nil logger.
package corosched

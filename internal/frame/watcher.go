package frame

import (
	"sync"
	"sync/atomic"
	"time"
)

// Watcher is a single-slot, latest-wins handoff between a frame producer and
// the analysis loop. A newly published identity always overwrites an
// unconsumed one; frame loss under load is by design. The consumer is never
// backed up by a queue, it simply sees fewer, fresher frames.
type Watcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending Identity
	hasNew  bool
	closed  bool
	drops   atomic.Uint64
}

func NewWatcher() *Watcher {
	w := &Watcher{}
	w.cond = sync.NewCond(&w.mu)

	return w
}

// Publish stores the identity of a newly available frame and wakes at most
// one waiting consumer. If a previous identity is still unconsumed it is
// silently discarded and the drop counter is incremented.
func (w *Watcher) Publish(id Identity) {
	w.mu.Lock()

	if w.hasNew {
		w.drops.Add(1)
	}

	w.pending = id
	w.hasNew = true
	w.cond.Signal()

	w.mu.Unlock()
}

// AwaitNext blocks until a published identity is present, then takes and
// clears it. It returns false when the timeout elapses or the watcher is
// closed before an identity arrives. Spurious wakeups are absorbed by
// re-checking the condition in a loop.
func (w *Watcher) AwaitNext(timeout time.Duration) (Identity, bool) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer timer.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		if w.hasNew {
			break
		}
		if w.closed {
			return 0, false
		}
		if !time.Now().Before(deadline) {
			return 0, false
		}
		w.cond.Wait()
	}

	id := w.pending
	w.hasNew = false

	return id, true
}

// Close wakes all waiting consumers. A closed watcher still accepts
// publishes but consumers are told to re-check their stop condition.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Drops returns the number of identities discarded because a newer one
// arrived before the consumer took the slot.
func (w *Watcher) Drops() uint64 {
	return w.drops.Load()
}

package sindex

import "sync"

// TicketQueue enforces the "in-line" ordering guarantee of spec §4.5/§9:
// mod-reports generated by writes against a given secondary index must be
// applied to every post-construction consumer of that index in the same
// order the writes themselves were serialized, even though the consumers
// observe them from independent goroutines. This is the classic
// ticket-lock pattern: callers draw a ticket while still holding the
// write they are reporting, then block in turn order until it is their
// ticket's turn to push into the consumer queues.
type TicketQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64 // next ticket to be handed out
	serving uint64 // ticket currently allowed to proceed
}

// NewTicketQueue returns a TicketQueue with no tickets drawn.
func NewTicketQueue() *TicketQueue {
	tq := &TicketQueue{}
	tq.cond = sync.NewCond(&tq.mu)
	return tq
}

// Take draws the next ticket. The caller must eventually call Advance
// exactly once to let the following ticket proceed.
func (q *TicketQueue) Take() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.next
	q.next++
	return t
}

// WaitForTurn blocks until ticket t is the one being served.
func (q *TicketQueue) WaitForTurn(t uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.serving != t {
		q.cond.Wait()
	}
}

// Advance releases ticket t and wakes any waiters for the next one. It is
// the caller's responsibility to have called WaitForTurn(t) first.
func (q *TicketQueue) Advance(t uint64) {
	q.mu.Lock()
	q.serving = t + 1
	q.mu.Unlock()
	q.cond.Broadcast()
}

package session

import (
	"sync"

	"github.com/vertextoedge/download-controller/internal/domain"
	"github.com/vertextoedge/download-controller/internal/port"
)

// queuedEvent is an event and the receivers registered when it was raised
type queuedEvent struct {
	ev    domain.LifecycleEvent
	sinks []port.EventSink
}

// eventQueue is an unbounded FIFO so raising never blocks,
// even from inside a receiver.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queuedEvent
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push returns false once the queue is closed
func (q *eventQueue) push(item queuedEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// pop blocks until an item is available. It returns false when the queue
// is closed and drained.
func (q *eventQueue) pop() (queuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return queuedEvent{}, false
	}
	item := q.items[0]
	q.items[0] = queuedEvent{}
	q.items = q.items[1:]
	return item, true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

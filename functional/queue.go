package functional

import "github.com/Raphine/Raph-Library/internal/rqueue"

// Queue is FunctionalQueue: a Functional whose predicate is "the queue
// is non-empty" and whose handler pops and dispatches exactly one item
// per run. The original's FunctionalQueue leaves popping to the
// registered callback; baking the pop into Queue itself removes a
// footgun (forgetting to pop, which would spin the handler forever)
// without changing the observable self-rescheduling behavior.
type Queue[T any, L Locker] struct {
	*Functional[L]
	queue *rqueue.Queue[T]
}

// NewQueue returns a Queue that calls handle with each popped item, on
// whatever worker Bind later assigns it to.
func NewQueue[T any, L Locker](lock L, handle func(T)) *Queue[T, L] {
	q := &Queue[T, L]{queue: rqueue.New[T]()}
	q.Functional = New[L](
		lock,
		func() bool { return !q.queue.IsEmpty() },
		func() {
			if v, ok := q.queue.Pop(); ok {
				handle(v)
			}
		},
	)
	return q
}

// Push enqueues data and wakes the handler if it wasn't already
// pending, matching FunctionalQueue::Push.
func (q *Queue[T, L]) Push(data T) {
	q.queue.Push(data)
	q.WakeupFunction()
}

// IsEmpty reports whether the queue currently holds no elements.
func (q *Queue[T, L]) IsEmpty() bool {
	return q.queue.IsEmpty()
}

// Package tasksched is the per-worker cooperative task and callout
// scheduler: one goroutine per worker drains a dual main/sub queue of
// Tasks and a sorted list of one-shot Callouts. Grounded line-for-line
// on original_source/rlib/task.cc and task.h/_task.h; "CPU" becomes
// "worker", "IPI" becomes a wakeup.Source send, and "hlt" becomes a
// channel receive — see wakeup and cpuset for those substitutions.
package tasksched

import "github.com/Raphine/Raph-Library/cpuset"

// Status mirrors Task::Status. The zero value is StatusOutOfQueue,
// matching the original's default member initializer.
type Status int

const (
	StatusOutOfQueue Status = iota
	StatusWaitingInQueue
	StatusRunning
	StatusGuard
)

func (s Status) String() string {
	switch s {
	case StatusOutOfQueue:
		return "out-of-queue"
	case StatusWaitingInQueue:
		return "waiting-in-queue"
	case StatusRunning:
		return "running"
	case StatusGuard:
		return "guard"
	default:
		return "status(unknown)"
	}
}

// Task is one unit of scheduled work: a plain function plus the
// intrusive doubly-linked list fields task.cc splices directly, rather
// than routing through rqueue (the original does not use IntQueue for
// this list either — only TaskStruct's raw next/prev pointers).
type Task struct {
	fn       func()
	next     *Task
	prev     *Task
	status   Status
	workerID cpuset.WorkerID
}

// NewTask wraps fn for scheduling. fn must not block: it runs on the
// worker's single dispatcher goroutine and holding it up stalls every
// other task queued on that worker.
func NewTask(fn func()) *Task {
	return &Task{fn: fn}
}

// Status reports the task's current queue state.
func (t *Task) Status() Status {
	return t.status
}

func (t *Task) execute() {
	t.fn()
}

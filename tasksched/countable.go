package tasksched

import (
	"github.com/Raphine/Raph-Library/cpuset"
	"github.com/Raphine/Raph-Library/internal/xspinlock"
)

// CountableTask runs its handler once per Inc call, keeping at most one
// execution pending at a time: Inc calls that arrive while the task is
// already queued or running add to the counter instead of queueing the
// task again. It is safe to call Inc from anywhere, including places that can't
// block (the original's doc comment calls out interrupt context
// specifically), since Inc only ever takes a spinlock and optionally
// enqueues a task.
//
// Grounded on CountableTask in _task.h/task.cc: a 0->1 edge on the
// internal counter triggers registration; the handler itself
// decrements by one and re-registers while the counter is still nonzero.
type CountableTask struct {
	ctrl     *Controller
	mu       *xspinlock.IntSpinLock
	fn       func()
	task     Task
	cnt      int
	workerID cpuset.WorkerID
}

// NewCountableTask wraps fn, which runs once per coalesced batch of
// Inc calls. fn must not block, for the same reason as Task.fn.
func NewCountableTask(fn func()) *CountableTask {
	ct := &CountableTask{
		mu:       xspinlock.NewIntSpinLock(),
		fn:       fn,
		workerID: cpuset.NotFound,
	}
	ct.task.fn = ct.handleSub
	return ct
}

// BindWorker assigns the controller and worker a CountableTask's Inc
// calls will register against, matching CountableTask::SetFunc's
// cpuid/func assignment (split here since fn is supplied at
// construction instead).
func (ct *CountableTask) BindWorker(ctrl *Controller, id cpuset.WorkerID) {
	ct.ctrl = ctrl
	ct.workerID = id
}

// Status reports the underlying task's queue state.
func (ct *CountableTask) Status() Status {
	return ct.task.status
}

// Inc records one more occurrence. If this is the first occurrence
// since the handler last finished (a 0->1 transition), it registers the
// task; otherwise the already-queued or already-running handler will
// pick the increment up when it re-checks the counter. A CountableTask
// that hasn't been BindWorker'd yet silently drops Inc calls, matching
// the original's `if (!cpuid.IsValid()) return;` guard.
func (ct *CountableTask) Inc() {
	if ct.workerID == cpuset.NotFound {
		return
	}
	ct.mu.Lock(lockToken())
	defer ct.mu.Unlock()
	ct.cnt++
	if ct.cnt == 1 {
		ct.ctrl.Register(ct.workerID, &ct.task)
	}
}

func (ct *CountableTask) handleSub() {
	ct.fn()
	ct.mu.Lock(lockToken())
	defer ct.mu.Unlock()
	ct.cnt--
	if ct.cnt != 0 {
		ct.ctrl.Register(ct.workerID, &ct.task)
	}
}

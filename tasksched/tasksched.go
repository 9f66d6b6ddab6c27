package tasksched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Raphine/Raph-Library/clock"
	"github.com/Raphine/Raph-Library/cpuset"
	"github.com/Raphine/Raph-Library/internal/xspinlock"
	"github.com/Raphine/Raph-Library/rlog"
	"github.com/Raphine/Raph-Library/wakeup"
)

// TaskExecutionInterval is kTaskExecutionInterval from task.h: the
// default period the dispatcher re-arms its wakeup timer for while it
// has no work, so it still notices expired callouts without a pending
// IPI. Override per Controller with WithExecutionInterval.
const TaskExecutionInterval = time.Millisecond

// WorkerState mirrors TaskCtrl::TaskQueueState. The zero value is
// StateNotStarted, matching the original's implicit default.
type WorkerState int

const (
	StateNotStarted WorkerState = iota
	StateNotRunning
	StateRunning
	StateSlept
)

func (s WorkerState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateNotRunning:
		return "not-running"
	case StateRunning:
		return "running"
	case StateSlept:
		return "slept"
	default:
		return "state(unknown)"
	}
}

// lockToken hands every xspinlock acquisition in this package a value
// unique to that call, not to the calling goroutine. Go has no cheap
// goroutine-local identity, and several call sites (Register,
// RegisterCallout, the dispatcher loop) legitimately lock the same
// per-worker spinlock from different goroutines; reusing a stable
// per-worker id across goroutines would make IntSpinLock's recursion
// assertion fire on ordinary contention instead of real re-entrancy.
// Minting a fresh token per call sacrifices true recursion detection in
// exchange for never false-triggering it.
var lockTokenSeq atomic.Int64

func lockToken() int64 {
	return lockTokenSeq.Add(1)
}

// workerState is TaskCtrl::TaskStruct: one worker's task queues, callout
// list, and dispatcher state, each independently lockable.
type workerState struct {
	lock          *xspinlock.IntSpinLock
	top, bottom   *Task // main queue, guard-sentinel headed
	topSub, botSub *Task // sub queue, filled by Register while draining
	state         WorkerState

	dlock *xspinlock.IntSpinLock
	dtop  *Callout // sorted callout list, guard-sentinel headed

	wake *wakeup.Source
}

func newWorkerState(wk *wakeup.Source) *workerState {
	top := &Task{status: StatusGuard}
	topSub := &Task{status: StatusGuard}
	dtop := &Callout{state: CalloutStopped}
	return &workerState{
		lock:   xspinlock.NewIntSpinLock(),
		top:    top,
		bottom: top,
		topSub: topSub,
		botSub: topSub,
		dlock:  xspinlock.NewIntSpinLock(),
		dtop:   dtop,
		wake:   wk,
	}
}

// swapQueues trades the main and sub queues, matching the pointer swap
// at the bottom of TaskCtrl::Run's drain loop. Caller must hold lock.
func (ws *workerState) swapQueues() {
	ws.top, ws.topSub = ws.topSub, ws.top
	ws.bottom, ws.botSub = ws.botSub, ws.bottom
}

// popTask removes and returns the head of the main queue, or nil if
// empty. Caller must not hold lock.
func (ws *workerState) popTask() *Task {
	ws.lock.Lock(lockToken())
	defer ws.lock.Unlock()

	tt := ws.top
	t := tt.next
	if t == nil {
		assertf(tt == ws.bottom, "tasksched: main queue head/tail mismatch")
		return nil
	}
	tt.next = t.next
	if t.next == nil {
		assertf(ws.bottom == t, "tasksched: main queue tail mismatch")
		ws.bottom = tt
	} else {
		t.next.prev = tt
	}
	assertf(t.status == StatusWaitingInQueue, "tasksched: popped task had status %v", t.status)
	t.status = StatusRunning
	t.next = nil
	t.prev = nil
	return t
}

// settleAfterExecute returns a just-run task to StatusOutOfQueue unless
// something re-registered it while it ran.
func (ws *workerState) settleAfterExecute(t *Task) {
	ws.lock.Lock(lockToken())
	defer ws.lock.Unlock()
	if t.status == StatusRunning {
		t.status = StatusOutOfQueue
	}
}

// Controller is TaskCtrl: the scheduler owning every worker's task and
// callout state.
type Controller struct {
	clockSrc     clock.Source
	execInterval time.Duration
	wakeups      *wakeup.Controller

	mu      sync.RWMutex
	workers map[cpuset.WorkerID]*workerState
}

// NewController returns a Controller with no workers set up yet; call
// Setup to add them, matching TaskCtrl::Setup's allocation-up-front
// design (here: lazily, per id, rather than for a fixed cpu count known
// only at boot).
func NewController(opts ...Option) *Controller {
	o := options{clockSrc: clock.NewMonotonic(), execInterval: TaskExecutionInterval}
	for _, opt := range opts {
		opt.applyController(&o)
	}
	return &Controller{
		clockSrc:     o.clockSrc,
		execInterval: o.execInterval,
		wakeups:      wakeup.NewController(),
		workers:      make(map[cpuset.WorkerID]*workerState),
	}
}

// Setup registers the given worker ids, matching TaskCtrl::Setup.
func (c *Controller) Setup(ids ...cpuset.WorkerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.workers[id]; ok {
			continue
		}
		c.workers[id] = newWorkerState(c.wakeups.For(int(id)))
	}
}

func (c *Controller) worker(id cpuset.WorkerID) *workerState {
	c.mu.RLock()
	ws, ok := c.workers[id]
	c.mu.RUnlock()
	assertf(ok, "tasksched: worker %d was never Setup", id)
	return ws
}

// GetState reports a worker's dispatcher state, matching
// TaskCtrl::GetState (StateNotStarted if Setup was never called for it).
func (c *Controller) GetState(id cpuset.WorkerID) WorkerState {
	c.mu.RLock()
	ws, ok := c.workers[id]
	c.mu.RUnlock()
	if !ok {
		return StateNotStarted
	}
	ws.lock.Lock(lockToken())
	defer ws.lock.Unlock()
	return ws.state
}

// Register appends task to id's sub queue and wakes the worker if it
// was sleeping, matching TaskCtrl::Register. A task already queued is
// left untouched (idempotent re-registration).
func (c *Controller) Register(id cpuset.WorkerID, task *Task) {
	ws := c.worker(id)
	ws.lock.Lock(lockToken())
	defer ws.lock.Unlock()

	if task.status == StatusWaitingInQueue {
		return
	}
	task.workerID = id
	task.next = nil
	task.status = StatusWaitingInQueue
	ws.botSub.next = task
	task.prev = ws.botSub
	ws.botSub = task

	c.forceWakeupLocked(ws)
}

// Remove pulls task out of whichever queue it's in, matching
// TaskCtrl::Remove. A no-op for a task that's running or already out of
// any queue.
func (c *Controller) Remove(task *Task) {
	assertf(task.status != StatusGuard, "tasksched: Remove called on a guard sentinel")
	ws := c.worker(task.workerID)
	ws.lock.Lock(lockToken())
	defer ws.lock.Unlock()

	switch task.status {
	case StatusWaitingInQueue:
		next := task.next
		prev := task.prev
		task.next = nil
		task.prev = nil
		assertf(prev != nil, "tasksched: queued task had no prev")
		prev.next = next
		if next == nil {
			switch task {
			case ws.bottom:
				ws.bottom = prev
			case ws.botSub:
				ws.botSub = prev
			default:
				assertf(false, "tasksched: dangling tail pointer for removed task")
			}
		} else {
			next.prev = prev
		}
	case StatusRunning, StatusOutOfQueue:
		// already off any list; nothing to unlink
	default:
		assertf(false, "tasksched: unexpected task status %v", task.status)
	}
	task.status = StatusOutOfQueue
}

// ForceWakeup sends an IPI-equivalent to id if it is currently asleep,
// matching TaskCtrl::ForceWakeup. Unlike the original, this never skips
// the send for "the caller is already on that worker" — in userspace a
// self-send is just a harmless buffered channel write, so the
// optimization isn't worth the goroutine-identity plumbing it would
// require.
func (c *Controller) ForceWakeup(id cpuset.WorkerID) {
	ws := c.worker(id)
	ws.lock.Lock(lockToken())
	c.forceWakeupLocked(ws)
	ws.lock.Unlock()
}

// forceWakeupLocked requires ws.lock already held, matching the
// original calling ForceWakeup from within Register's existing Locker
// scope.
func (c *Controller) forceWakeupLocked(ws *workerState) {
	if ws.state == StateSlept {
		ws.wake.Send()
	}
}

// drainDueCallout pulls at most one expired callout off the sorted list
// and registers its task, matching the single-iteration drain at the
// top of TaskCtrl::Run. Only one callout is drained per dispatcher
// round: if many expire at once the rest wait for the next round,
// exactly the starvation task.cc documents with "TODO : FIX THIS".
func (c *Controller) drainDueCallout(ws *workerState, id cpuset.WorkerID, deadline clock.Cnt) {
	dt := ws.dtop
	for {
		ws.dlock.Lock(lockToken())
		dtt := dt.next
		if dtt == nil {
			ws.dlock.Unlock()
			return
		}
		if c.clockSrc.IsGreater(dtt.time, deadline) {
			ws.dlock.Unlock()
			return
		}
		if !dtt.mu.TryLock(lockToken()) {
			ws.dlock.Unlock()
			continue
		}
		dt.next = dtt.next
		ws.dlock.Unlock()

		dtt.next = nil
		dtt.state = CalloutTaskQueued
		c.Register(id, &dtt.task)
		dtt.mu.Unlock()
		return
	}
}

// Run is the per-worker dispatcher loop: it never returns except when
// stop is closed, matching "Run() does not return; call once per
// worker" from task.cc's kernel-level Run(). Callers launch one goroutine
// per Setup'd worker id.
func (c *Controller) Run(stop <-chan struct{}, id cpuset.WorkerID) {
	ws := c.worker(id)

	ws.lock.Lock(lockToken())
	ws.state = StateNotRunning
	ws.lock.Unlock()
	ws.wake.Arm(c.execInterval)

	for {
		ws.lock.Lock(lockToken())
		oldState := ws.state
		if oldState == StateNotRunning {
			ws.wake.Disarm()
		}
		assertf(oldState == StateNotRunning || oldState == StateSlept,
			"tasksched: worker %d woke from unexpected state %v", id, oldState)
		ws.state = StateRunning
		ws.lock.Unlock()

		if oldState == StateNotRunning {
			deadline := c.clockSrc.GetCntAfterPeriod(c.clockSrc.ReadMainCnt(), c.execInterval)
			c.drainDueCallout(ws, id, deadline)
		}

		for {
			for {
				t := ws.popTask()
				if t == nil {
					break
				}
				t.execute()
				ws.settleAfterExecute(t)
			}

			ws.lock.Lock(lockToken())
			if ws.top.next == nil && ws.topSub.next == nil {
				ws.state = StateSlept
				ws.lock.Unlock()
				break
			}
			ws.swapQueues()
			ws.lock.Unlock()
		}

		ws.dlock.Lock(lockToken())
		hasPendingCallout := ws.dtop.next != nil
		ws.dlock.Unlock()

		// ws.state is otherwise only ever written under ws.lock (see the
		// top of this loop and forceWakeupLocked's reader) — route this
		// transition through the same lock instead of ws.dlock so
		// concurrent Register/ForceWakeup callers never observe a state
		// written under the wrong lock.
		ws.lock.Lock(lockToken())
		if hasPendingCallout {
			ws.state = StateNotRunning
		}
		needArm := ws.state == StateNotRunning
		ws.lock.Unlock()

		if needArm {
			ws.wake.Arm(c.execInterval)
		}
		if !ws.wake.Sleep(stop) {
			rlog.Debug().Int("worker", int(id)).Log("tasksched: dispatcher stopped")
			return
		}
	}
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

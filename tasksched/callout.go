package tasksched

import (
	"time"

	"github.com/Raphine/Raph-Library/clock"
	"github.com/Raphine/Raph-Library/cpuset"
	"github.com/Raphine/Raph-Library/internal/xspinlock"
)

// CalloutState mirrors Callout::CalloutState.
type CalloutState int

const (
	CalloutQueued CalloutState = iota
	CalloutTaskQueued
	CalloutHandling
	CalloutStopped
)

func (s CalloutState) String() string {
	switch s {
	case CalloutQueued:
		return "queued"
	case CalloutTaskQueued:
		return "task-queued"
	case CalloutHandling:
		return "handling"
	case CalloutStopped:
		return "stopped"
	default:
		return "calloutstate(unknown)"
	}
}

// Callout is a one-shot delayed task: once SetHandler is called it
// cannot be re-armed until it fires or is Cancel'd, matching the
// original's doc comment "一度登録すると、実行されるかキャンセルするまで
// は再登録はできない" (once registered, it cannot be re-registered until
// it either runs or is canceled).
type Callout struct {
	ctrl     *Controller
	mu       *xspinlock.IntSpinLock
	fn       func()
	task     Task
	time     clock.Cnt
	next     *Callout
	state    CalloutState
	workerID cpuset.WorkerID
}

// NewCallout wraps fn to run once, after SetHandler's delay elapses.
func NewCallout(fn func()) *Callout {
	c := &Callout{
		mu:    xspinlock.NewIntSpinLock(),
		fn:    fn,
		state: CalloutStopped,
	}
	c.task.fn = c.handleSub
	return c
}

// State reports the callout's current lifecycle stage.
func (c *Callout) State() CalloutState {
	return c.state
}

// SetHandler arms the callout to fire on worker id after delay elapses,
// matching Callout::SetHandler. Calling it again before the callout has
// fired or been canceled is a caller error (the original silently
// re-derives _time under the same lock; this port does too, trusting
// callers to respect the "no re-registration while pending" contract).
func (c *Callout) SetHandler(ctrl *Controller, id cpuset.WorkerID, delay time.Duration) {
	c.mu.Lock(lockToken())
	defer c.mu.Unlock()
	c.ctrl = ctrl
	c.time = ctrl.clockSrc.GetCntAfterPeriod(ctrl.clockSrc.ReadMainCnt(), delay)
	c.workerID = id
	ctrl.registerCallout(c)
}

// Cancel stops a pending or queued callout, matching Callout::Cancel. A
// no-op if the callout is already handling or stopped.
func (c *Callout) Cancel() {
	c.mu.Lock(lockToken())
	defer c.mu.Unlock()
	if c.ctrl != nil {
		c.ctrl.cancelCallout(c)
	}
}

func (c *Callout) handleSub() {
	if c.ctrl.clockSrc.IsTimePassed(c.time) {
		c.state = CalloutHandling
		c.fn()
		c.state = CalloutStopped
	} else {
		c.ctrl.Register(c.workerID, &c.task)
	}
}

// registerCallout inserts c into id's sorted callout list. Grounded on
// TaskCtrl::RegisterCallout, with the REDESIGN FLAG fix applied: insert
// before the first node whose fire time is strictly greater than c's,
// appending at the tail otherwise. The original's condition as written
// in task.cc checks `cpuid.IsValid()` backwards (`if (cpuid.IsValid())
// return;`), which would make RegisterCallout a no-op for every valid
// worker id; this port treats that as a transcription bug rather than
// intended behavior and always performs the insertion.
func (c *Controller) registerCallout(callout *Callout) {
	ws := c.worker(callout.workerID)
	ws.dlock.Lock(lockToken())
	dt := ws.dtop
	for {
		dtt := dt.next
		if dtt == nil {
			callout.state = CalloutQueued
			callout.next = nil
			dt.next = callout
			break
		}
		if c.clockSrc.IsGreater(dtt.time, callout.time) {
			callout.state = CalloutQueued
			callout.next = dtt
			dt.next = callout
			break
		}
		dt = dtt
	}
	ws.dlock.Unlock()

	c.ForceWakeup(callout.workerID)
}

// cancelCallout matches TaskCtrl::CancelCallout.
func (c *Controller) cancelCallout(callout *Callout) {
	ws := c.worker(callout.workerID)
	switch callout.state {
	case CalloutQueued:
		ws.dlock.Lock(lockToken())
		dt := ws.dtop
		for dt.next != nil {
			dtt := dt.next
			if dtt == callout {
				dt.next = dtt.next
				break
			}
			dt = dtt
		}
		callout.next = nil
		ws.dlock.Unlock()
	case CalloutTaskQueued:
		c.Remove(&callout.task)
	case CalloutHandling, CalloutStopped:
		// nothing to unlink
	default:
		assertf(false, "tasksched: unexpected callout state %v", callout.state)
	}
	callout.state = CalloutStopped
}

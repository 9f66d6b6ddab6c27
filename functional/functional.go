// Package functional implements the self-rescheduling task pattern from
// original_source/rlib/functional.h: a task that re-registers itself on
// its worker for as long as a predicate (ShouldFunc) says there's work
// to do, coalescing any number of wakeups that arrive while it's
// already pending into a single additional run.
//
// The lock type is a Go generic parameter instead of a C++ template
// parameter, matching spec.md §4.5's note that the lock is
// swappable between a blocking mutex and a spinning one.
package functional

import (
	"sync"
	"sync/atomic"

	"github.com/Raphine/Raph-Library/cpuset"
	"github.com/Raphine/Raph-Library/internal/xspinlock"
	"github.com/Raphine/Raph-Library/tasksched"
)

// Locker is the minimal contract Functional needs from its lock type.
type Locker interface {
	Lock()
	Unlock()
}

// Mutex is a blocking Locker, the analogue of FunctionalBase<SpinLock>
// (original_source's "SpinLock" actually blocks; see spinlock.h).
type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock()   { m.mu.Lock() }
func (m *Mutex) Unlock() { m.mu.Unlock() }

// Spin is a non-blocking, interrupt-safe Locker backed by
// internal/xspinlock, the analogue of IntFunctional = FunctionalBase<IntSpinLock>.
//
// Lock mints a fresh selfID per call via an atomic counter rather than
// a stable per-caller id: Spin is locked from whatever goroutine calls
// WakeupFunction, which has no stable per-call identity to give
// xspinlock's recursion check (see the same tradeoff documented on
// tasksched's lockToken).
type Spin struct {
	lock  *xspinlock.IntSpinLock
	token atomic.Int64
}

// NewSpin returns a ready-to-use Spin lock.
func NewSpin() *Spin {
	return &Spin{lock: xspinlock.NewIntSpinLock()}
}

func (s *Spin) Lock()   { s.lock.Lock(s.token.Add(1)) }
func (s *Spin) Unlock() { s.lock.Unlock() }

// State mirrors FunctionalBase::FunctionState.
type State int

const (
	NotFunctioning State = iota
	Functioning
)

// Functional is FunctionalBase<L>: a task that keeps re-registering
// itself while ShouldFunc reports pending work.
type Functional[L Locker] struct {
	ctrl       *tasksched.Controller
	workerID   cpuset.WorkerID
	task       *tasksched.Task
	fn         func()
	shouldFunc func() bool
	lock       L
	state      State
}

// New returns a Functional that calls fn whenever shouldFunc reports
// true, using lock to guard its internal state transitions.
func New[L Locker](lock L, shouldFunc func() bool, fn func()) *Functional[L] {
	f := &Functional[L]{
		lock:       lock,
		shouldFunc: shouldFunc,
		fn:         fn,
	}
	f.task = tasksched.NewTask(f.handle)
	return f
}

// Bind assigns the controller and worker WakeupFunction registers
// against, matching FunctionalBase::SetFunction's cpuid assignment.
func (f *Functional[L]) Bind(ctrl *tasksched.Controller, id cpuset.WorkerID) {
	f.ctrl = ctrl
	f.workerID = id
}

// WakeupFunction registers the underlying task if it isn't already
// pending, matching FunctionalBase::WakeupFunction.
func (f *Functional[L]) WakeupFunction() {
	f.lock.Lock()
	if f.state == Functioning {
		f.lock.Unlock()
		return
	}
	f.state = Functioning
	f.lock.Unlock()
	f.ctrl.Register(f.workerID, f.task)
}

// handle is FunctionalBase::Handle: run fn once if there's work, then
// either re-register (more work arrived or is still pending) or mark
// itself not-functioning.
func (f *Functional[L]) handle() {
	if f.shouldFunc() {
		f.fn()
	}
	f.lock.Lock()
	if !f.shouldFunc() {
		f.state = NotFunctioning
		f.lock.Unlock()
		return
	}
	f.lock.Unlock()
	f.ctrl.Register(f.workerID, f.task)
}

// Package xspinlock provides an interrupt-aware spinlock.
//
// There are no real interrupts in userspace Go, so "disabling interrupts"
// is modeled through DisableFunc/EnableFunc, a pair of package-level hooks
// a caller may install to track critical sections; nothing in this module
// installs them, so they stay no-ops by default. Holding an
// IntSpinLock must never be combined with a blocking call, matching
// spec.md §5.
package xspinlock

import (
	"fmt"
	"sync/atomic"
)

// DisableFunc and EnableFunc let the caller plug in whatever "interrupt"
// bookkeeping its runtime needs. Both default to no-ops so IntSpinLock is
// usable standalone.
var (
	DisableFunc = func() bool { return false }
	EnableFunc  = func(bool) {}
)

// IntSpinLock is a non-recursive, interrupt-disabling spinlock.
//
// The flag is even when free and odd when held; Lock/Unlock/TryLock all
// operate by CAS on the flag, mirroring the parity trick in
// original_source/rlib/spinlock.cc. Re-entry by the same owner is a fatal
// assertion, not a deadlock: catching the bug at the lock call site is
// more useful than hanging.
type IntSpinLock struct { // betteralign:ignore
	flag    atomic.Uint32
	ownerID atomic.Int64 // -1 when unheld
	didStop bool
}

// NewIntSpinLock returns a free lock.
func NewIntSpinLock() *IntSpinLock {
	l := &IntSpinLock{}
	l.ownerID.Store(-1)
	return l
}

// Lock spins until it acquires the lock, disabling interrupts on success.
// selfID identifies the calling worker/goroutine for the recursion check.
func (l *IntSpinLock) Lock(selfID int64) {
	if l.flag.Load()%2 == 1 {
		assertf(l.ownerID.Load() != selfID, "xspinlock: recursive lock by worker %d", selfID)
	}
	for {
		flag := l.flag.Load()
		if flag%2 == 0 {
			iflag := DisableFunc()
			if l.flag.CompareAndSwap(flag, flag+1) {
				l.didStop = iflag
				l.ownerID.Store(selfID)
				return
			}
			EnableFunc(iflag)
		}
	}
}

// Unlock releases the lock, restoring the interrupt state saved by Lock.
//
// Order matters: the owner is cleared before interrupts are re-enabled, so
// a concurrent Lock never observes a stale owner while still spinning.
func (l *IntSpinLock) Unlock() {
	assertf(l.flag.Load()%2 == 1, "xspinlock: unlock of unheld lock")
	l.ownerID.Store(-1)
	EnableFunc(l.didStop)
	l.flag.Add(1)
}

// TryLock makes one CAS attempt and never leaves interrupts disabled on
// failure.
func (l *IntSpinLock) TryLock(selfID int64) bool {
	flag := l.flag.Load()
	if flag%2 != 0 {
		return false
	}
	iflag := DisableFunc()
	if l.flag.CompareAndSwap(flag, flag+1) {
		l.didStop = iflag
		l.ownerID.Store(selfID)
		return true
	}
	EnableFunc(iflag)
	return false
}

// IsLocked reports whether the lock is currently held.
func (l *IntSpinLock) IsLocked() bool {
	return l.flag.Load()%2 == 1
}

// Locker is a scoped guard: Lock on construction, Unlock on Release.
// Callers should `defer guard.Release()` immediately after Acquire,
// matching original_source/rlib/spinlock.h's RAII Locker.
type Locker struct {
	lock *IntSpinLock
}

// Acquire locks l on behalf of selfID and returns a guard.
func Acquire(l *IntSpinLock, selfID int64) Locker {
	l.Lock(selfID)
	return Locker{lock: l}
}

// Release unlocks the underlying lock. Safe to call exactly once.
func (g Locker) Release() {
	g.lock.Unlock()
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

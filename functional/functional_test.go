package functional

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raphine/Raph-Library/cpuset"
	"github.com/Raphine/Raph-Library/tasksched"
)

func startController(t *testing.T, id cpuset.WorkerID) (*tasksched.Controller, func()) {
	t.Helper()
	ctrl := tasksched.NewController()
	ctrl.Setup(id)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(stop, id)
	}()
	return ctrl, func() {
		close(stop)
		<-done
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestFunctionalRunsWhileShouldFuncTrue(t *testing.T) {
	ctrl, stop := startController(t, cpuset.BootWorker)
	defer stop()

	var mu sync.Mutex
	remaining := 3
	runs := 0

	f := New[*Mutex](&Mutex{}, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return remaining > 0
	}, func() {
		mu.Lock()
		remaining--
		runs++
		mu.Unlock()
	})
	f.Bind(ctrl, cpuset.BootWorker)
	f.WakeupFunction()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return remaining == 0
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, runs)
	assert.Equal(t, NotFunctioning, f.state)
}

func TestFunctionalWakeupIsIdempotentWhilePending(t *testing.T) {
	ctrl := tasksched.NewController()
	ctrl.Setup(cpuset.BootWorker)
	// Do not run the dispatcher: the task should queue exactly once
	// regardless of how many times WakeupFunction is called back to back.
	f := New[*Spin](NewSpin(), func() bool { return true }, func() {})
	f.Bind(ctrl, cpuset.BootWorker)

	f.WakeupFunction()
	firstStatus := f.task.Status()
	f.WakeupFunction()
	f.WakeupFunction()

	assert.Equal(t, firstStatus, f.task.Status())
	assert.Equal(t, Functioning, f.state)
}

func TestFunctionalQueueDrains(t *testing.T) {
	ctrl, stop := startController(t, cpuset.BootWorker)
	defer stop()

	var mu sync.Mutex
	var got []int

	q := NewQueue[int, *Mutex](&Mutex{}, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	q.Bind(ctrl, cpuset.BootWorker)

	q.Push(1)
	q.Push(2)
	q.Push(3)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.True(t, q.IsEmpty())
}

func TestSpinLockMutualExclusion(t *testing.T) {
	s := NewSpin()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Lock()
			counter++
			s.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

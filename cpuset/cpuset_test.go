package cpuset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootWorkerPreassignedLowPriority(t *testing.T) {
	c := NewDefaultController(4)
	assert.True(t, c.IsValid(BootWorker))
	assert.Equal(t, 4, c.HowManyWorkers())

	// Retaining for low priority again should reuse worker 0's slot, not
	// hand out a fresh never-assigned worker, since worker 0 is already
	// PurposeLowPriority.
	id := c.RetainForPurpose(PurposeLowPriority)
	assert.Equal(t, BootWorker, id)
}

func TestRetainPrefersNeverAssigned(t *testing.T) {
	c := NewDefaultController(3)

	a := c.RetainForPurpose(PurposeGeneralPurpose)
	require.True(t, c.IsValid(a))
	assert.NotEqual(t, BootWorker, a, "worker 0 is already low-priority")

	b := c.RetainForPurpose(PurposeGeneralPurpose)
	require.True(t, c.IsValid(b))
	assert.NotEqual(t, a, b, "second retain should pick the other never-assigned worker")
}

func TestRetainFallsBackToLeastLoaded(t *testing.T) {
	c := NewDefaultController(2) // worker 0 low-priority, worker 1 free

	a := c.RetainForPurpose(PurposeGeneralPurpose)
	assert.Equal(t, WorkerID(1), a)

	// No more never-assigned workers exist; must reuse worker 1.
	b := c.RetainForPurpose(PurposeGeneralPurpose)
	assert.Equal(t, WorkerID(1), b)
}

func TestReleaseResetsToNoneAtZeroCount(t *testing.T) {
	c := NewDefaultController(2)
	id := c.RetainForPurpose(PurposeGeneralPurpose)
	c.Release(id)

	// Now unassigned again; a fresh retain for a different purpose must
	// be able to claim it.
	got := c.RetainForPurpose(PurposeHighPerformance)
	assert.Equal(t, id, got)
}

func TestReleaseIsRefcounted(t *testing.T) {
	c := NewDefaultController(2)
	id := c.RetainForPurpose(PurposeGeneralPurpose)
	_ = c.RetainForPurpose(PurposeGeneralPurpose) // same worker, count=2

	c.Release(id)
	// Still retained: a fresh request for a different purpose must not
	// see this worker as available.
	other := c.RetainForPurpose(PurposeHighPerformance)
	assert.NotEqual(t, id, other)
}

func TestAssignUnassignedToGeneralPurpose(t *testing.T) {
	c := NewDefaultController(3)
	c.AssignUnassignedToGeneralPurpose()

	for i := WorkerID(1); i < WorkerID(c.HowManyWorkers()); i++ {
		p, ok := c.purposeOf(i)
		require.True(t, ok)
		assert.Equal(t, PurposeGeneralPurpose, p)
	}
}

func TestRetainForPurposeExhausted(t *testing.T) {
	c := NewDefaultController(1) // only the boot worker exists
	id := c.RetainForPurpose(PurposeHighPerformance)
	assert.Equal(t, NotFound, id, "no never-assigned or same-purpose worker remains")
}

func TestInvalidWorkerOperations(t *testing.T) {
	c := NewDefaultController(2)
	assert.False(t, c.IsValid(NotFound))
	assert.False(t, c.IsValid(WorkerID(99)))

	_, err := c.OSThreadID(WorkerID(99))
	assert.Error(t, err)

	// Release/BindCurrentThread on an invalid id must not panic.
	c.Release(WorkerID(99))
	assert.Error(t, c.BindCurrentThread(WorkerID(99)))
}

// purposeOf is a tiny test-only accessor; the production API only
// exposes retain/release, never raw purpose reads, since nothing in
// SPEC_FULL.md's dispatcher needs to query purpose without retaining it.
func (c *DefaultController) purposeOf(id WorkerID) (Purpose, bool) {
	if !c.IsValid(id) {
		return PurposeNone, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purpose[id], true
}

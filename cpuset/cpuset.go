// Package cpuset models worker identity and the CPU purpose map spec.md
// §6 describes. There is no APIC in userspace, so a "worker" is an OS
// thread pinned via sched_setaffinity rather than a physical core, but
// the purpose bookkeeping — retain/release with reference counting,
// "prefer a never-assigned worker" — is carried unchanged from
// original_source/rlib/cpu.h/cpu.cc.
package cpuset

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// WorkerID identifies a worker the same way CpuId identifies a core:
// an opaque, possibly-invalid integer handle.
type WorkerID int

// NotFound is the zero-value-adjacent sentinel for "no such worker",
// matching CpuId::kCpuIdNotFound.
const NotFound WorkerID = -1

// BootWorker is always present and starts out retained for
// PurposeLowPriority, matching CpuId::kCpuIdBootProcessor.
const BootWorker WorkerID = 0

// Purpose is the role a worker is currently retained for.
type Purpose int

const (
	PurposeNone Purpose = iota
	PurposeLowPriority
	PurposeGeneralPurpose
	PurposeHighPerformance
	purposeCount
)

func (p Purpose) String() string {
	switch p {
	case PurposeNone:
		return "none"
	case PurposeLowPriority:
		return "low-priority"
	case PurposeGeneralPurpose:
		return "general-purpose"
	case PurposeHighPerformance:
		return "high-performance"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

// Controller is the worker-identity collaborator: who am I, how many
// workers exist, and the retain/release purpose map. Grounded on
// CpuCtrlInterface in original_source/rlib/cpu.h.
type Controller interface {
	// CurrentWorker returns the id of the calling worker, or NotFound if
	// the caller is not a registered worker.
	CurrentWorker() WorkerID
	// HowManyWorkers reports the fixed size of the worker set.
	HowManyWorkers() int
	// OSThreadID returns the OS-level thread id backing id, for logging.
	OSThreadID(id WorkerID) (int, error)
	// IsValid reports whether id names a worker in range.
	IsValid(id WorkerID) bool
	// RetainForPurpose picks (or reuses) a worker for p and increments
	// its refcount.
	RetainForPurpose(p Purpose) WorkerID
	// Release decrements id's refcount, resetting it to PurposeNone once
	// the count reaches zero.
	Release(id WorkerID)
	// AssignUnassignedToGeneralPurpose retains every still-unassigned
	// worker for PurposeGeneralPurpose, matching
	// AssignCpusNotAssignedToGeneralPurpose.
	AssignUnassignedToGeneralPurpose()
}

// DefaultController is a fixed-size worker set backed by real OS threads
// on Linux: BindCurrentThread pins the calling goroutine's thread via
// unix.SchedSetaffinity so "worker N" genuinely means "runs on CPU N";
// RetainForPurpose only updates the purpose bookkeeping.
// Worker 0 (BootWorker) starts pre-assigned to PurposeLowPriority,
// matching CpuCtrl's constructor.
type DefaultController struct {
	mu        sync.Mutex
	purpose   []Purpose
	count     []int
	osThreads []int // 0 until a worker has called BindCurrentThread
}

// NewDefaultController returns a controller over numWorkers workers.
func NewDefaultController(numWorkers int) *DefaultController {
	if numWorkers < 1 {
		numWorkers = 1
	}
	c := &DefaultController{
		purpose:   make([]Purpose, numWorkers),
		count:     make([]int, numWorkers),
		osThreads: make([]int, numWorkers),
	}
	c.purpose[BootWorker] = PurposeLowPriority
	c.count[BootWorker] = 1
	return c
}

// BindCurrentThread pins the calling OS thread to id's CPU and records
// its thread id for OSThreadID. Must be called once from the goroutine
// that will act as worker id, locked via runtime.LockOSThread by the
// caller beforehand.
func (c *DefaultController) BindCurrentThread(id WorkerID) error {
	if !c.IsValid(id) {
		return fmt.Errorf("cpuset: invalid worker %d", id)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(int(id))
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("cpuset: SchedSetaffinity worker %d: %w", id, err)
	}
	tid := unix.Gettid()
	c.mu.Lock()
	c.osThreads[id] = tid
	c.mu.Unlock()
	return nil
}

func (c *DefaultController) CurrentWorker() WorkerID {
	tid := unix.Gettid()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.osThreads {
		if t == tid {
			return WorkerID(i)
		}
	}
	return NotFound
}

func (c *DefaultController) HowManyWorkers() int {
	return len(c.purpose)
}

func (c *DefaultController) OSThreadID(id WorkerID) (int, error) {
	if !c.IsValid(id) {
		return 0, fmt.Errorf("cpuset: invalid worker %d", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.osThreads[id], nil
}

func (c *DefaultController) IsValid(id WorkerID) bool {
	return id >= 0 && int(id) < len(c.purpose)
}

// retainID assigns purpose p to id, resetting its count if it was
// previously assigned to something else, matching CpuCtrl::RetainCpuId.
// Caller must hold c.mu.
func (c *DefaultController) retainID(id WorkerID, p Purpose) {
	if c.purpose[id] != p {
		c.purpose[id] = p
		c.count[id] = 0
	}
	c.count[id]++
}

// unassignedID returns the first worker still at PurposeNone, or
// NotFound. Caller must hold c.mu.
func (c *DefaultController) unassignedID() WorkerID {
	for i, p := range c.purpose {
		if p == PurposeNone {
			return WorkerID(i)
		}
	}
	return NotFound
}

// leastAssignedFor returns the worker already retained for p with the
// smallest refcount, or NotFound. Caller must hold c.mu.
func (c *DefaultController) leastAssignedFor(p Purpose) WorkerID {
	minCount := -1
	minID := NotFound
	for i, pp := range c.purpose {
		if pp == p && (minCount == -1 || c.count[i] < minCount) {
			minCount = c.count[i]
			minID = WorkerID(i)
		}
	}
	return minID
}

// RetainForPurpose prefers a never-assigned worker; failing that, the
// least-loaded worker already assigned to p; failing both, it returns
// NotFound without retaining anything. PurposeLowPriority always
// maps to BootWorker, matching CpuCtrl::RetainCpuIdForPurpose's
// kLowPriority -> kCpuIdBootProcessor special case.
func (c *DefaultController) RetainForPurpose(p Purpose) WorkerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p == PurposeLowPriority {
		c.retainID(BootWorker, p)
		return BootWorker
	}

	id := c.unassignedID()
	if id == NotFound {
		id = c.leastAssignedFor(p)
	}
	if id == NotFound {
		return NotFound
	}
	c.retainID(id, p)
	return id
}

// Release matches CpuCtrl::ReleaseCpuId.
func (c *DefaultController) Release(id WorkerID) {
	if !c.IsValid(id) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count[id] > 0 {
		c.count[id]--
	}
	if c.count[id] == 0 {
		c.purpose[id] = PurposeNone
	}
}

// AssignUnassignedToGeneralPurpose matches
// CpuCtrl::AssignCpusNotAssignedToGeneralPurpose.
func (c *DefaultController) AssignUnassignedToGeneralPurpose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.purpose {
		if p == PurposeNone {
			c.retainID(WorkerID(i), PurposeGeneralPurpose)
		}
	}
}

// Package clock supplies the monotonic time source the scheduler reads
// callout deadlines from. spec.md §6 treats the underlying timer
// hardware as an external collaborator; Source is that collaborator's
// Go-native contract, with a default implementation backed by the
// runtime's monotonic clock.
package clock

import "time"

// Cnt is an opaque monotonic counter value, analogous to the raw HPET/
// TSC count original_source/rlib/task.cc reads via timer->ReadMainCnt().
// Only Source's own comparison operations give it meaning.
type Cnt int64

// Source is the time collaborator original_source passes into
// TaskCtrl::Setup (there: a `Timer*`). Implementations need not use
// wall-clock time; only relative ordering and period arithmetic matter
// to the scheduler.
type Source interface {
	// ReadMainCnt returns the current counter value.
	ReadMainCnt() Cnt
	// GetCntAfterPeriod returns the counter value period after now.
	GetCntAfterPeriod(now Cnt, period time.Duration) Cnt
	// IsGreater reports whether a is strictly later than b.
	IsGreater(a, b Cnt) bool
	// IsTimePassed reports whether ReadMainCnt() has reached or passed
	// deadline.
	IsTimePassed(deadline Cnt) bool
}

// Monotonic is the default Source, backed by time.Now()'s monotonic
// reading. Cnt values are nanoseconds since an epoch fixed when
// NewMonotonic creates the source, matching the counter's "meaningless in
// isolation" contract above.
type Monotonic struct {
	epoch time.Time
}

// NewMonotonic returns a ready-to-use Monotonic source.
func NewMonotonic() *Monotonic {
	return &Monotonic{epoch: time.Now()}
}

func (m *Monotonic) ReadMainCnt() Cnt {
	return Cnt(time.Since(m.epoch))
}

func (m *Monotonic) GetCntAfterPeriod(now Cnt, period time.Duration) Cnt {
	return now + Cnt(period)
}

func (m *Monotonic) IsGreater(a, b Cnt) bool {
	return a > b
}

func (m *Monotonic) IsTimePassed(deadline Cnt) bool {
	return m.ReadMainCnt() >= deadline
}

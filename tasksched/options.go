package tasksched

import (
	"time"

	"github.com/Raphine/Raph-Library/clock"
)

// options holds configuration for a Controller, styled on
// eventloop/options.go's loopOptions.
type options struct {
	clockSrc     clock.Source
	execInterval time.Duration
}

// Option configures a Controller.
type Option interface {
	applyController(*options)
}

// optionFunc implements Option.
type optionFunc func(*options)

func (f optionFunc) applyController(o *options) { f(o) }

// WithClockSource overrides the default clock.Monotonic source,
// primarily for tests that need to control deadline arithmetic
// deterministically.
func WithClockSource(src clock.Source) Option {
	return optionFunc(func(o *options) {
		o.clockSrc = src
	})
}

// WithExecutionInterval overrides TaskExecutionInterval for one
// Controller, matching kTaskExecutionInterval's role as a tunable
// re-arm period rather than a true compile-time constant.
func WithExecutionInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.execInterval = d
	})
}

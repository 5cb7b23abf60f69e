// Package clock abstracts wall-clock time so lifecycle logic is testable
// against a fake clock.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Module wires the system clock for the application.
var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

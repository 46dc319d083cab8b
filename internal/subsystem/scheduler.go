package subsystem

import "time"

// Timer is a pending callback returned by Scheduler.AfterFunc.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was stopped before it fired.
	Stop() bool
}

// Scheduler arms timers and tells the time. Callbacks run on an arbitrary
// goroutine and must only enqueue work.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler returns a Scheduler backed by the time package.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}

type systemScheduler struct{}

func (systemScheduler) Now() time.Time { return time.Now() }

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

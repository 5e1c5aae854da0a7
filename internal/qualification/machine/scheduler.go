package machine

import "time"

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d. The machine uses it for the deferred reset
// after close; tests substitute a manual scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// ClockScheduler returns a Scheduler backed by time.AfterFunc.
func ClockScheduler() Scheduler {
	return clockScheduler{}
}

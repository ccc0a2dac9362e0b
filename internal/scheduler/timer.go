package scheduler

import "time"

// DefaultMaxTimerDelay bounds a single timer arm. Target dates further
// out are reached by chaining timers; the value matches the signed
// 32-bit millisecond ceiling this behavior was designed around.
const DefaultMaxTimerDelay = 2147483647 * time.Millisecond

// Clock abstracts time and single-shot timers so schedules can be
// exercised in tests without waiting.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) TimerHandle
}

// TimerHandle is a stoppable pending timer.
type TimerHandle interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}

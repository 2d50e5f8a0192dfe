package draft

import "time"

// Timer is a pending debounced callback
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

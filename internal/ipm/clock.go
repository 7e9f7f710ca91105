package ipm

import "time"

// Clock supplies timestamps for iteration and solve timing.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return wallClock{} }

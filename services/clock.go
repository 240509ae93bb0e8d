package services

import "time"

// Clock abstracts time so quota windows and cache expiry can be tested
// without real sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used outside of tests.
var SystemClock Clock = systemClock{}

package app

import "time"

// Clock abstracts time retrieval so day boundaries are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current time in Location, or in time.Local when
// Location is nil.
type RealClock struct {
	Location *time.Location
}

func (c RealClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

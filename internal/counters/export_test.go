package counters

import "time"

// SetClock replaces the clock used to stamp the last event time.
func (u *Updater) SetClock(now func() time.Time) {
	u.now = now
}

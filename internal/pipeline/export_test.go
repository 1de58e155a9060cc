package pipeline

import "time"

// SetClock replaces the service clock.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetIDGenerator replaces the decision id generator.
func (s *Service) SetIDGenerator(newID func() string) {
	s.newID = newID
}

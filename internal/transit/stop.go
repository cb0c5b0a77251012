package transit

import (
	"iter"

	"transit-sim/internal/geo"
)

type StopID string

// Stop is a named location holding the passengers waiting there. Waiting
// passengers are kept in arrival order so boarding is deterministic.
type Stop struct {
	ID       StopID
	Name     string
	Position geo.Point

	waiting []*Passenger
	index   map[*Passenger]struct{}
	obs     Observer
}

func NewStop(id StopID, name string, pos geo.Point) *Stop {
	return &Stop{
		ID:       id,
		Name:     name,
		Position: pos,
		index:    make(map[*Passenger]struct{}),
	}
}

// SetObserver installs the sink for WaitingChanged events.
func (s *Stop) SetObserver(o Observer) { s.obs = o }

// AddPassenger adds p to the waiting set. It returns false if p is nil or
// already waiting here.
func (s *Stop) AddPassenger(p *Passenger) bool {
	if p == nil {
		return false
	}
	if _, ok := s.index[p]; ok {
		return false
	}
	s.index[p] = struct{}{}
	s.waiting = append(s.waiting, p)
	s.notify()
	return true
}

// RemovePassenger removes p from the waiting set. It returns false if p was
// not waiting here.
func (s *Stop) RemovePassenger(p *Passenger) bool {
	if _, ok := s.index[p]; !ok {
		return false
	}
	delete(s.index, p)
	for i, w := range s.waiting {
		if w == p {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			break
		}
	}
	s.notify()
	return true
}

func (s *Stop) HasPassenger(p *Passenger) bool {
	_, ok := s.index[p]
	return ok
}

// PassengersBoundFor yields, in arrival order, the waiting passengers whose
// destination is one of candidates. The sequence is lazy: it reads the waiting
// set as it is iterated, so callers must not mutate the stop mid-iteration.
func (s *Stop) PassengersBoundFor(candidates map[StopID]struct{}) iter.Seq[*Passenger] {
	return func(yield func(*Passenger) bool) {
		for _, p := range s.waiting {
			if p.Destination == nil {
				continue
			}
			if _, ok := candidates[p.Destination.ID]; !ok {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Waiting returns a snapshot of the waiting passengers in arrival order.
func (s *Stop) Waiting() []*Passenger {
	out := make([]*Passenger, len(s.waiting))
	copy(out, s.waiting)
	return out
}

func (s *Stop) WaitingCount() int { return len(s.waiting) }

// Clear drops every waiting passenger.
func (s *Stop) Clear() {
	if len(s.waiting) == 0 {
		return
	}
	s.waiting = nil
	s.index = make(map[*Passenger]struct{})
	s.notify()
}

func (s *Stop) notify() {
	if s.obs != nil {
		s.obs.Notify(WaitingChanged{Stop: s.ID, Waiting: len(s.waiting)})
	}
}

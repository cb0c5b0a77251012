package transit

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"transit-sim/internal/geo"
)

type LineID int

func (id LineID) String() string { return strconv.Itoa(int(id)) }

const DefaultLineColor = "#338866"

// Line is an ordered set of stops serviced by exactly one bus. Stop order is
// the traversal order; for a non-looping line the first and last stops are
// the termini.
type Line struct {
	ID    LineID
	Color string
	Loop  bool

	stops  []*Stop
	active bool
	bus    *Bus
}

func NewLine(id LineID, color string, bc BusConfig) *Line {
	if color == "" {
		color = DefaultLineColor
	}
	l := &Line{ID: id, Color: color}
	l.bus = newBus(l, bc)
	return l
}

func (l *Line) Bus() *Bus    { return l.bus }
func (l *Line) Active() bool { return l.active }

// SetObserver routes the bus's events to o.
func (l *Line) SetObserver(o Observer) { l.bus.obs = o }

// Stops returns the stops in traversal order.
func (l *Line) Stops() []*Stop {
	out := make([]*Stop, len(l.stops))
	copy(out, l.stops)
	return out
}

func (l *Line) Len() int { return len(l.stops) }

// IndexOf returns the traversal index of id, or -1.
func (l *Line) IndexOf(id StopID) int {
	for i, s := range l.stops {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (l *Line) HasStop(id StopID) bool { return l.IndexOf(id) >= 0 }

func (l *Line) stopAt(i int) *Stop {
	if i < 0 || i >= len(l.stops) {
		return nil
	}
	return l.stops[i]
}

func (l *Line) stopByID(id StopID) *Stop { return l.stopAt(l.IndexOf(id)) }

// StopIDs returns the set of stop ids served by the line.
func (l *Line) StopIDs() map[StopID]struct{} {
	out := make(map[StopID]struct{}, len(l.stops))
	for _, s := range l.stops {
		out[s.ID] = struct{}{}
	}
	return out
}

// AddStop appends s to the end of the line.
func (l *Line) AddStop(s *Stop) error {
	return l.InsertStop(len(l.stops), s)
}

// InsertStop places s at traversal index i (0 <= i <= Len()).
func (l *Line) InsertStop(i int, s *Stop) error {
	if s == nil {
		return ErrUnknownStop
	}
	if l.HasStop(s.ID) {
		return fmt.Errorf("line %d, stop %s: %w", l.ID, s.ID, ErrDuplicateStop)
	}
	if i < 0 || i > len(l.stops) {
		return fmt.Errorf("line %d: insert index %d out of range", l.ID, i)
	}
	l.stops = append(l.stops, nil)
	copy(l.stops[i+1:], l.stops[i:])
	l.stops[i] = s
	return nil
}

// InsertStopNearest inserts s into the segment of the line closest to it, or
// appends it when the line has fewer than two stops. A looping line also
// considers its closing segment, in which case s becomes the last stop.
func (l *Line) InsertStopNearest(s *Stop) error {
	if s == nil {
		return ErrUnknownStop
	}
	if len(l.stops) < 2 {
		return l.AddStop(s)
	}
	best := math.Inf(1)
	at := len(l.stops)
	segments := len(l.stops) - 1
	if l.Loop {
		segments++
	}
	for i := 0; i < segments; i++ {
		a := l.stops[i]
		b := l.stops[(i+1)%len(l.stops)]
		d := geo.DistanceToSegment(s.Position, a.Position, b.Position)
		if d < best {
			best = d
			at = i + 1
		}
	}
	return l.InsertStop(at, s)
}

// Activate starts the line's bus. It needs at least two stops.
func (l *Line) Activate() error {
	if len(l.stops) < 2 {
		return fmt.Errorf("line %d: %w", l.ID, ErrTooFewStops)
	}
	l.active = true
	return nil
}

// Deactivate stops ticking the bus but keeps its state, so a reactivated line
// resumes where it left off.
func (l *Line) Deactivate() { l.active = false }

// ResetFromDrawing clears the line so it can be drawn again. The line must be
// inactive and its bus empty; on failure nothing changes.
func (l *Line) ResetFromDrawing() error {
	if l.active {
		return fmt.Errorf("line %d: %w", l.ID, ErrLineActive)
	}
	if err := l.bus.RemoveFromMap(); err != nil {
		return fmt.Errorf("line %d: %w", l.ID, err)
	}
	l.stops = nil
	l.Loop = false
	return nil
}

// forceReset empties the bus and the drawing regardless of state.
func (l *Line) forceReset() {
	l.active = false
	l.bus.passengers = nil
	l.bus.reset()
	l.stops = nil
	l.Loop = false
}

// Update advances the bus by one tick when the line is active.
func (l *Line) Update(now time.Time) {
	if !l.active {
		return
	}
	l.bus.Update(now)
}

package transit

import (
	"fmt"
	"math"
	"sort"

	"transit-sim/internal/geo"
)

// StopRecord is the static description of a stop as loaded at startup.
type StopRecord struct {
	ID   StopID
	Name string
	Lat  float64
	Lon  float64
}

// StopRegistry holds every known stop and the subset currently placed on the
// map. Only placed stops spawn passengers and take part in routing.
type StopRegistry struct {
	stops  []*Stop
	byID   map[StopID]*Stop
	placed map[StopID]struct{}
	order  []StopID
}

func NewStopRegistry(records []StopRecord, obs Observer) *StopRegistry {
	r := &StopRegistry{
		byID:   make(map[StopID]*Stop, len(records)),
		placed: make(map[StopID]struct{}),
	}
	for _, rec := range records {
		if _, dup := r.byID[rec.ID]; dup {
			continue
		}
		s := NewStop(rec.ID, rec.Name, geo.Point{Lat: rec.Lat, Lon: rec.Lon})
		s.SetObserver(obs)
		r.stops = append(r.stops, s)
		r.byID[s.ID] = s
	}
	return r
}

func (r *StopRegistry) Get(id StopID) (*Stop, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns every known stop in load order.
func (r *StopRegistry) All() []*Stop {
	out := make([]*Stop, len(r.stops))
	copy(out, r.stops)
	return out
}

// Place puts a known stop on the map. Placing twice is a no-op.
func (r *StopRegistry) Place(id StopID) error {
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("place %s: %w", id, ErrUnknownStop)
	}
	if _, ok := r.placed[id]; ok {
		return nil
	}
	r.placed[id] = struct{}{}
	r.order = append(r.order, id)
	return nil
}

func (r *StopRegistry) IsPlaced(id StopID) bool {
	_, ok := r.placed[id]
	return ok
}

// OnMap returns the placed stops in placement order.
func (r *StopRegistry) OnMap() []*Stop {
	out := make([]*Stop, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Unplaced returns the stops not yet on the map, in load order.
func (r *StopRegistry) Unplaced() []*Stop {
	var out []*Stop
	for _, s := range r.stops {
		if !r.IsPlaced(s.ID) {
			out = append(out, s)
		}
	}
	return out
}

// Closest returns the placed stop nearest to p and its distance in meters.
func (r *StopRegistry) Closest(p geo.Point) (*Stop, float64, bool) {
	var best *Stop
	bestDist := math.MaxFloat64
	for _, s := range r.OnMap() {
		if d := geo.Distance(p, s.Position); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist, best != nil
}

// InBounds returns every known stop inside b.
func (r *StopRegistry) InBounds(b geo.Bounds) []*Stop {
	var out []*Stop
	for _, s := range r.stops {
		if b.Contains(s.Position) {
			out = append(out, s)
		}
	}
	return out
}

// ResetPlacement clears the map and every stop's waiting set.
func (r *StopRegistry) ResetPlacement() {
	for _, s := range r.stops {
		s.Clear()
	}
	r.placed = make(map[StopID]struct{})
	r.order = nil
}

// LineRegistry is the fixed pool of lines available to the player.
type LineRegistry struct {
	lines []*Line
	byID  map[LineID]*Line
}

// NewLineRegistry creates one line per color, with ids starting at 1.
func NewLineRegistry(colors []string, bc BusConfig, obs Observer) *LineRegistry {
	r := &LineRegistry{byID: make(map[LineID]*Line, len(colors))}
	for i, c := range colors {
		l := NewLine(LineID(i+1), c, bc)
		l.SetObserver(obs)
		r.lines = append(r.lines, l)
		r.byID[l.ID] = l
	}
	return r
}

func (r *LineRegistry) Get(id LineID) (*Line, bool) {
	l, ok := r.byID[id]
	return l, ok
}

// All returns the pool ordered by id.
func (r *LineRegistry) All() []*Line {
	out := make([]*Line, len(r.lines))
	copy(out, r.lines)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the active lines ordered by id.
func (r *LineRegistry) Active() []*Line {
	var out []*Line
	for _, l := range r.All() {
		if l.Active() {
			out = append(out, l)
		}
	}
	return out
}

// FreeLine returns the first line that is neither active nor drawn.
func (r *LineRegistry) FreeLine() (*Line, bool) {
	for _, l := range r.All() {
		if !l.Active() && l.Len() == 0 {
			return l, true
		}
	}
	return nil, false
}

// ForceReset returns every line to its undrawn state, dropping onboard passengers.
func (r *LineRegistry) ForceReset() {
	for _, l := range r.lines {
		l.forceReset()
	}
}

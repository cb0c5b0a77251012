package game

import (
	"transit-sim/internal/geo"
	"transit-sim/internal/network"
	"transit-sim/internal/transit"
)

// StopView is the JSON shape of a placed stop.
type StopView struct {
	ID      transit.StopID `json:"id"`
	Name    string         `json:"name"`
	Lat     float64        `json:"lat"`
	Lon     float64        `json:"lon"`
	Waiting int            `json:"waiting"`
}

type HintView struct {
	Passenger   string         `json:"passengerId"`
	Destination transit.StopID `json:"destination"`
	Line        transit.LineID `json:"line"`
	Stop        transit.StopID `json:"stop"`
}

type BusView struct {
	Phase    string         `json:"phase"`
	Position geo.Point      `json:"position"`
	LastStop transit.StopID `json:"lastStop,omitempty"`
	NextStop transit.StopID `json:"nextStop,omitempty"`
	Forward  bool           `json:"forward"`
	Onboard  int            `json:"onboard"`
	Capacity int            `json:"capacity"`
	Hints    []HintView     `json:"transferHints,omitempty"`
}

type LineView struct {
	ID     transit.LineID   `json:"id"`
	Color  string           `json:"color"`
	Loop   bool             `json:"loop"`
	Active bool             `json:"active"`
	Stops  []transit.StopID `json:"stops"`
	Bus    BusView          `json:"bus"`
}

type StateView struct {
	State         string `json:"state"`
	Served        int    `json:"served"`
	Day           int    `json:"day"`
	Week          int    `json:"week"`
	Level         int    `json:"level"`
	NextMilestone int    `json:"nextMilestone,omitempty"`
	Waiting       int    `json:"waiting"`
	ExpiredAt     string `json:"expiredAt,omitempty"`
}

type RouteView struct {
	Stops     []transit.StopID `json:"stops"`
	Lines     []transit.LineID `json:"lines"`
	Meters    float64          `json:"meters"`
	Transfers int              `json:"transfers"`
}

func stopView(s *transit.Stop) StopView {
	return StopView{
		ID:      s.ID,
		Name:    s.Name,
		Lat:     s.Position.Lat,
		Lon:     s.Position.Lon,
		Waiting: s.WaitingCount(),
	}
}

func (w *World) StopViews() []StopView {
	placed := w.stops.OnMap()
	out := make([]StopView, 0, len(placed))
	for _, s := range placed {
		out = append(out, stopView(s))
	}
	return out
}

// StopViewsIn returns the placed stops inside b, in load order.
func (w *World) StopViewsIn(b geo.Bounds) []StopView {
	out := []StopView{}
	for _, s := range w.stops.InBounds(b) {
		if w.stops.IsPlaced(s.ID) {
			out = append(out, stopView(s))
		}
	}
	return out
}

// NearestStop returns the placed stop closest to p with its distance in meters.
func (w *World) NearestStop(p geo.Point) (StopView, float64, bool) {
	s, d, ok := w.stops.Closest(p)
	if !ok {
		return StopView{}, 0, false
	}
	return stopView(s), d, true
}

// FreeLine returns the lowest line id that is neither active nor drawn.
func (w *World) FreeLine() (transit.LineID, bool) {
	l, ok := w.lines.FreeLine()
	if !ok {
		return 0, false
	}
	return l.ID, true
}

func (w *World) LineViews() []LineView {
	lines := w.lines.All()
	out := make([]LineView, 0, len(lines))
	for _, l := range lines {
		b := l.Bus()
		stops := make([]transit.StopID, 0, l.Len())
		for _, s := range l.Stops() {
			stops = append(stops, s.ID)
		}
		var hints []HintView
		for _, h := range b.ConnectedLinesInfos() {
			hints = append(hints, HintView{
				Passenger:   h.Passenger.ID.String(),
				Destination: h.Passenger.Destination.ID,
				Line:        h.Line,
				Stop:        h.Stop,
			})
		}
		out = append(out, LineView{
			ID:     l.ID,
			Color:  l.Color,
			Loop:   l.Loop,
			Active: l.Active(),
			Stops:  stops,
			Bus: BusView{
				Phase:    b.Phase().String(),
				Position: b.Position(),
				LastStop: b.LastStop(),
				NextStop: b.NextOrCurrent(),
				Forward:  b.Forward(),
				Onboard:  b.Onboard(),
				Capacity: b.Capacity(),
				Hints:    hints,
			},
		})
	}
	return out
}

func (w *World) StateView() StateView {
	v := StateView{
		State:  w.state.String(),
		Served: w.served,
		Day:    w.calendar.Day(),
		Week:   w.calendar.Week(),
		Level:  w.milestones.Level(),
	}
	if next, ok := w.milestones.Next(); ok {
		v.NextMilestone = next
	}
	for _, s := range w.stops.OnMap() {
		v.Waiting += s.WaitingCount()
	}
	if ev, ok := w.Expired(); ok {
		v.ExpiredAt = string(ev.Stop)
	}
	return v
}

func NewRouteView(p network.Path) RouteView {
	return RouteView{Stops: p.Stops, Lines: p.Lines, Meters: p.Cost, Transfers: p.Transfers()}
}

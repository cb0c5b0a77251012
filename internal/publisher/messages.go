package publisher

import (
	"time"

	"transit-sim/internal/transit"
)

type PositionMessage struct {
	Line      transit.LineID `json:"line"`
	From      transit.StopID `json:"from"`
	To        transit.StopID `json:"to"`
	Timestamp time.Time      `json:"timestamp"`
	Lat       float64        `json:"lat"`
	Lon       float64        `json:"lon"`
	Bearing   float64        `json:"bearing"`
}

type BusMessage struct {
	Line      transit.LineID `json:"line"`
	Stop      transit.StopID `json:"stop,omitempty"`
	From      transit.StopID `json:"from,omitempty"`
	To        transit.StopID `json:"to,omitempty"`
	Forward   *bool          `json:"forward,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type PassengerMessage struct {
	Passenger   string         `json:"passenger"`
	Line        transit.LineID `json:"line,omitempty"`
	Stop        transit.StopID `json:"stop"`
	Destination transit.StopID `json:"destination,omitempty"`
	Onboard     int            `json:"onboard,omitempty"`
	WaitedMs    int64          `json:"waitedMs,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type StopMessage struct {
	Stop      transit.StopID `json:"stop"`
	Waiting   int            `json:"waiting"`
	Timestamp time.Time      `json:"timestamp"`
}

type GameMessage struct {
	Level      int            `json:"level,omitempty"`
	Threshold  int            `json:"threshold,omitempty"`
	Served     int            `json:"served,omitempty"`
	Day        int            `json:"day,omitempty"`
	Week       int            `json:"week,omitempty"`
	PlacedStop transit.StopID `json:"placedStop,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func passengerMessage(p *transit.Passenger, line transit.LineID, stop transit.StopID, now time.Time) PassengerMessage {
	m := PassengerMessage{Line: line, Stop: stop, Timestamp: now}
	if p != nil {
		m.Passenger = p.ID.String()
		if p.Destination != nil {
			m.Destination = p.Destination.ID
		}
	}
	return m
}

// message maps an event to its subject and payload. Subjects are
// <prefix>.<kind>[.<key>] so consumers can subscribe per line or per stop.
func (p *NATSPublisher) message(ev transit.Event, now time.Time) (string, any, bool) {
	switch e := ev.(type) {
	case transit.BusMoved:
		return p.subject("bus", "position", e.Line.String()), PositionMessage{
			Line: e.Line, From: e.From, To: e.To, Timestamp: now,
			Lat: e.Position.Lat, Lon: e.Position.Lon, Bearing: e.Bearing,
		}, true
	case transit.BusArrived:
		return p.subject("bus", "arrived", e.Line.String()), BusMessage{Line: e.Line, Stop: e.Stop, Timestamp: now}, true
	case transit.BusDeparted:
		fwd := e.Forward
		return p.subject("bus", "departed", e.Line.String()), BusMessage{
			Line: e.Line, From: e.From, To: e.To, Forward: &fwd, Timestamp: now,
		}, true
	case transit.PassengerBoarded:
		m := passengerMessage(e.Passenger, e.Line, e.Stop, now)
		m.Onboard = e.Onboard
		return p.subject("passenger", "boarded", e.Line.String()), m, true
	case transit.PassengerAlighted:
		m := passengerMessage(e.Passenger, e.Line, e.Stop, now)
		m.Onboard = e.Onboard
		return p.subject("passenger", "alighted", e.Line.String()), m, true
	case transit.PassengerExpired:
		m := passengerMessage(e.Passenger, 0, e.Stop, now)
		m.WaitedMs = e.Waited.Milliseconds()
		return p.subject("game", "over"), m, true
	case transit.WaitingChanged:
		return p.subject("stop", "waiting", string(e.Stop)), StopMessage{Stop: e.Stop, Waiting: e.Waiting, Timestamp: now}, true
	case transit.MilestoneReached:
		return p.subject("game", "milestone"), GameMessage{
			Level: e.Level, Threshold: e.Threshold, Served: e.Served, Timestamp: now,
		}, true
	case transit.DayStarted:
		return p.subject("game", "day"), GameMessage{
			Day: e.Day, Week: e.Week, PlacedStop: e.PlacedStop, Timestamp: now,
		}, true
	case transit.WorldReset:
		return p.subject("game", "reset"), GameMessage{Timestamp: now}, true
	}
	return "", nil, false
}

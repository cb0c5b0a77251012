package transit

import (
	"time"

	"transit-sim/internal/geo"
)

// Event is a marker for all notifications emitted by stops, lines and buses.
type Event interface{ isEvent() }

// Observer receives events synchronously, on the tick goroutine, right after
// the mutation that produced them.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Hub fans events out to subscribed observers in subscription order.
type Hub struct {
	observers []Observer
}

func NewHub() *Hub { return &Hub{} }

func (h *Hub) Subscribe(o Observer) {
	if o == nil {
		return
	}
	h.observers = append(h.observers, o)
}

func (h *Hub) Notify(ev Event) {
	if h == nil {
		return
	}
	for _, o := range h.observers {
		o.Notify(ev)
	}
}

// WaitingChanged fires whenever a stop's waiting set gains or loses a passenger.
type WaitingChanged struct {
	Stop    StopID
	Waiting int
}

func (WaitingChanged) isEvent() {}

// PassengerBoarded fires when a bus takes a passenger from a stop.
type PassengerBoarded struct {
	Line      LineID
	Stop      StopID
	Passenger *Passenger
	Onboard   int
}

func (PassengerBoarded) isEvent() {}

// PassengerAlighted fires when a passenger reaches its destination.
type PassengerAlighted struct {
	Line      LineID
	Stop      StopID
	Passenger *Passenger
	Onboard   int
}

func (PassengerAlighted) isEvent() {}

// BusArrived fires when a bus reaches its next stop.
type BusArrived struct {
	Line LineID
	Stop StopID
}

func (BusArrived) isEvent() {}

// BusDeparted fires when a bus leaves a stop.
type BusDeparted struct {
	Line    LineID
	From    StopID
	To      StopID
	Forward bool
}

func (BusDeparted) isEvent() {}

// BusMoved carries the interpolated position of a bus en route.
type BusMoved struct {
	Line     LineID
	From     StopID
	To       StopID
	Position geo.Point
	Bearing  float64
}

func (BusMoved) isEvent() {}

// PassengerExpired is the game-over trigger: a passenger waited too long.
type PassengerExpired struct {
	Stop      StopID
	Passenger *Passenger
	Waited    time.Duration
}

func (PassengerExpired) isEvent() {}

// MilestoneReached fires once per threshold of served passengers.
type MilestoneReached struct {
	Level     int
	Threshold int
	Served    int
}

func (MilestoneReached) isEvent() {}

// DayStarted fires when the simulated calendar rolls over.
type DayStarted struct {
	Day        int
	Week       int
	PlacedStop StopID // empty when no stop was left to place
}

func (DayStarted) isEvent() {}

// WorldReset fires after a new game starts on the same stop data.
type WorldReset struct{}

func (WorldReset) isEvent() {}

package transit

import (
	"time"

	"transit-sim/internal/geo"
)

const (
	DefaultCapacity = 6
	DefaultDwell    = 250 * time.Millisecond
	DefaultStep     = 0.001
	// ArrivalPrecision is the number of decimal digits two positions must
	// share for a bus to count as arrived.
	ArrivalPrecision = 6
)

// BusConfig tunes every bus created by NewLine.
type BusConfig struct {
	Capacity int
	Dwell    time.Duration
	Step     float64
}

func (c BusConfig) withDefaults() BusConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	return c
}

// Phase is the coarse state of a bus.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseAtStop
	PhaseEnRoute
)

func (p Phase) String() string {
	switch p {
	case PhaseAtStop:
		return "at_stop"
	case PhaseEnRoute:
		return "en_route"
	default:
		return "uninitialized"
	}
}

// TransferHint says Passenger, waiting at the bus's current stop, can reach
// its destination by riding this bus to Stop and changing to Line there.
type TransferHint struct {
	Passenger *Passenger
	Line      LineID
	Stop      StopID
}

// Bus travels its line stop to stop. lastStop and nextStop are ids resolved
// against the line on every use; the bus never owns a stop.
type Bus struct {
	line *Line
	cfg  BusConfig
	obs  Observer

	passengers []*Passenger
	phase      Phase
	lastStop   StopID
	nextStop   StopID
	forward    bool
	dwellStart time.Time
	position   geo.Point

	connected []TransferHint
}

func newBus(l *Line, cfg BusConfig) *Bus {
	return &Bus{line: l, cfg: cfg.withDefaults()}
}

func (b *Bus) Phase() Phase          { return b.phase }
func (b *Bus) AtStop() bool          { return b.phase == PhaseAtStop }
func (b *Bus) Position() geo.Point   { return b.position }
func (b *Bus) LastStop() StopID      { return b.lastStop }
func (b *Bus) NextOrCurrent() StopID { return b.nextStop }
func (b *Bus) Forward() bool         { return b.forward }
func (b *Bus) Capacity() int         { return b.cfg.Capacity }
func (b *Bus) Onboard() int          { return len(b.passengers) }

// Passengers returns a snapshot of the onboard passengers in boarding order.
func (b *Bus) Passengers() []*Passenger {
	out := make([]*Passenger, len(b.passengers))
	copy(out, b.passengers)
	return out
}

// ConnectedLinesInfos returns the transfer hints computed at the last call to
// SetConnectedLinesInfos.
func (b *Bus) ConnectedLinesInfos() []TransferHint { return b.connected }

// Update runs one tick of the bus state machine.
func (b *Bus) Update(now time.Time) {
	if b.line.Len() < 2 {
		return
	}
	if b.phase == PhaseUninitialized || b.line.IndexOf(b.nextStop) < 0 {
		b.place()
	}
	if b.phase == PhaseAtStop {
		if !b.serveStop(now) {
			return
		}
		b.depart()
	}
	b.advance()
}

// place puts the bus on the first stop as if it had just come from the last
// one, so a non-looping line flips into the forward direction on departure.
func (b *Bus) place() {
	stops := b.line.stops
	first := stops[0]
	b.lastStop = stops[len(stops)-1].ID
	b.nextStop = first.ID
	b.position = first.Position
	b.forward = false
	b.dwellStart = time.Time{}
	b.phase = PhaseAtStop
}

// serveStop moves at most one passenger per dwell interval, unloading before
// loading. It reports true once nobody is left to move.
func (b *Bus) serveStop(now time.Time) bool {
	if i := b.unloadable(); i >= 0 {
		if b.dwellElapsed(now) {
			b.unload(i)
		}
		return false
	}
	if p := b.loadable(); p != nil {
		if b.dwellElapsed(now) {
			b.load(p)
		}
		return false
	}
	b.dwellStart = time.Time{}
	return true
}

// dwellElapsed starts the dwell timer on first call and reports whether a full
// dwell interval has passed since. A true result resets the timer.
func (b *Bus) dwellElapsed(now time.Time) bool {
	if b.dwellStart.IsZero() {
		b.dwellStart = now
	}
	if now.Sub(b.dwellStart) < b.cfg.Dwell {
		return false
	}
	b.dwellStart = time.Time{}
	return true
}

// unloadable returns the index of the first onboard passenger bound for the
// current stop, or -1.
func (b *Bus) unloadable() int {
	for i, p := range b.passengers {
		if p.Destination != nil && p.Destination.ID == b.nextStop {
			return i
		}
	}
	return -1
}

func (b *Bus) unload(i int) {
	p := b.passengers[i]
	b.passengers = append(b.passengers[:i], b.passengers[i+1:]...)
	b.notify(PassengerAlighted{Line: b.line.ID, Stop: b.nextStop, Passenger: p, Onboard: len(b.passengers)})
}

// loadable returns the longest-waiting passenger at the current stop whose
// destination is on this line, or nil when none waits or the bus is full.
func (b *Bus) loadable() *Passenger {
	if len(b.passengers) >= b.cfg.Capacity {
		return nil
	}
	stop := b.line.stopByID(b.nextStop)
	if stop == nil {
		return nil
	}
	candidates := b.line.StopIDs()
	delete(candidates, stop.ID)
	for p := range stop.PassengersBoundFor(candidates) {
		return p
	}
	return nil
}

func (b *Bus) load(p *Passenger) {
	stop := b.line.stopByID(b.nextStop)
	if stop == nil || !stop.RemovePassenger(p) {
		return
	}
	b.passengers = append(b.passengers, p)
	b.notify(PassengerBoarded{Line: b.line.ID, Stop: stop.ID, Passenger: p, Onboard: len(b.passengers)})
}

// depart picks the next stop and leaves the current one.
func (b *Bus) depart() {
	stops := b.line.stops
	n := len(stops)
	cur := b.line.IndexOf(b.nextStop)
	var next int
	if b.line.Loop {
		next = (cur + 1) % n
	} else {
		if cur == 0 || cur == n-1 {
			b.forward = !b.forward
		}
		if b.forward {
			next = cur + 1
		} else {
			next = cur - 1
		}
		// a stop inserted behind a terminus can leave the direction stale
		if next < 0 || next >= n {
			b.forward = !b.forward
			next = cur + 1
			if !b.forward {
				next = cur - 1
			}
		}
	}
	b.lastStop = stops[cur].ID
	b.nextStop = stops[next].ID
	b.connected = nil
	b.phase = PhaseEnRoute
	b.notify(BusDeparted{Line: b.line.ID, From: b.lastStop, To: b.nextStop, Forward: b.forward})
}

// advance moves a fixed step from the current position toward the next stop.
func (b *Bus) advance() {
	target := b.line.stopByID(b.nextStop)
	if target == nil {
		return
	}
	from := b.position
	b.position = geo.StepToward(from, target.Position, b.cfg.Step)
	if geo.NearlyEqual(b.position, target.Position, ArrivalPrecision) {
		b.position = target.Position
		b.phase = PhaseAtStop
		b.notify(BusArrived{Line: b.line.ID, Stop: target.ID})
		return
	}
	b.notify(BusMoved{
		Line:     b.line.ID,
		From:     b.lastStop,
		To:       b.nextStop,
		Position: b.position,
		Bearing:  geo.Bearing(from, target.Position),
	})
}

// SetConnectedLinesInfos recomputes transfer hints for the current stop from
// the other active lines that share at least one stop with this one.
func (b *Bus) SetConnectedLinesInfos(lines []*Line) {
	b.connected = nil
	if b.phase != PhaseAtStop {
		return
	}
	stop := b.line.stopByID(b.nextStop)
	if stop == nil || stop.WaitingCount() == 0 {
		return
	}
	own := b.line.StopIDs()
	for _, other := range lines {
		if other == nil || other == b.line || !other.Active() {
			continue
		}
		shared, ok := b.firstSharedStop(other)
		if !ok {
			continue
		}
		reachable := other.StopIDs()
		for p := range stop.PassengersBoundFor(reachable) {
			if _, direct := own[p.Destination.ID]; direct {
				continue
			}
			b.connected = append(b.connected, TransferHint{Passenger: p, Line: other.ID, Stop: shared})
		}
	}
}

func (b *Bus) firstSharedStop(other *Line) (StopID, bool) {
	for _, s := range b.line.stops {
		if other.HasStop(s.ID) {
			return s.ID, true
		}
	}
	return "", false
}

// RemoveFromMap detaches the bus from the line's drawing. It fails, leaving
// the bus untouched, while passengers are aboard.
func (b *Bus) RemoveFromMap() error {
	if len(b.passengers) > 0 {
		return ErrPassengersAboard
	}
	b.reset()
	return nil
}

func (b *Bus) reset() {
	b.phase = PhaseUninitialized
	b.lastStop = ""
	b.nextStop = ""
	b.forward = false
	b.dwellStart = time.Time{}
	b.position = geo.Point{}
	b.connected = nil
}

func (b *Bus) notify(ev Event) {
	if b.obs != nil {
		b.obs.Notify(ev)
	}
}

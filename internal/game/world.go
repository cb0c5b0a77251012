// Package game holds the World: the explicit container for stops, lines and
// game state that an external driver advances one tick at a time.
//
// Tick contract: call Tick serially (never concurrently, never overlapping)
// with timestamps from one monotonic clock, roughly at a fixed cadence. Every
// other World method must be called from the same goroutine as Tick. The
// World keeps no timers of its own; a driver that stops calling Tick stops
// the simulation.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"transit-sim/internal/network"
	"transit-sim/internal/transit"
)

type State int

const (
	StateRunning State = iota
	// StatePaused covers the shop/unlock screen: nothing moves and waiting
	// passengers do not lose patience.
	StatePaused
	StateGameOver
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StateGameOver:
		return "game_over"
	default:
		return "running"
	}
}

var (
	ErrGameOver      = errors.New("game over")
	ErrStopNotPlaced = errors.New("stop is not on the map")
)

type World struct {
	cfg Config
	log zerolog.Logger

	hub   *transit.Hub
	stops *transit.StopRegistry
	lines *transit.LineRegistry

	rng        *rand.Rand
	spawner    *Spawner
	calendar   *Calendar
	milestones *Milestones

	state    State
	served   int
	lastTick time.Time
	expired  *transit.PassengerExpired
}

// NewWorld builds the stop and line registries and places the initial stops.
// Observers receive every event after the World's own bookkeeping.
func NewWorld(cfg Config, records []transit.StopRecord, log zerolog.Logger, observers ...transit.Observer) *World {
	cfg = cfg.withDefaults()
	w := &World{
		cfg: cfg,
		log: log.With().Str("component", "world").Logger(),
		hub: transit.NewHub(),
	}
	w.hub.Subscribe(transit.ObserverFunc(w.track))
	for _, o := range observers {
		w.hub.Subscribe(o)
	}
	w.stops = transit.NewStopRegistry(records, w.hub)
	w.lines = transit.NewLineRegistry(cfg.LineColors, cfg.Bus, w.hub)
	w.start()
	return w
}

func (w *World) start() {
	w.rng = rand.New(rand.NewPCG(w.cfg.Seed, w.cfg.Seed^0x9e3779b97f4a7c15))
	w.spawner = newSpawner(w.cfg, w.rng)
	w.calendar = newCalendar(w.cfg.DayLength)
	w.milestones = newMilestones(w.cfg.Milestones)
	w.state = StateRunning
	w.served = 0
	w.lastTick = time.Time{}
	w.expired = nil
	for i := 0; i < w.cfg.InitialStops; i++ {
		if _, ok := w.placeRandomStop(); !ok {
			break
		}
	}
}

// Subscribe adds an observer after construction.
func (w *World) Subscribe(o transit.Observer) { w.hub.Subscribe(o) }

func (w *World) Stops() *transit.StopRegistry { return w.stops }
func (w *World) Lines() *transit.LineRegistry { return w.lines }
func (w *World) State() State                 { return w.state }
func (w *World) Served() int                  { return w.served }
func (w *World) Calendar() *Calendar          { return w.calendar }
func (w *World) Milestones() *Milestones      { return w.milestones }

// Expired returns the event that ended the game, if any.
func (w *World) Expired() (transit.PassengerExpired, bool) {
	if w.expired == nil {
		return transit.PassengerExpired{}, false
	}
	return *w.expired, true
}

// track keeps the served counter in step with the buses.
func (w *World) track(ev transit.Event) {
	if _, ok := ev.(transit.PassengerAlighted); ok {
		w.served++
	}
}

// Tick advances the simulation to now.
func (w *World) Tick(now time.Time) {
	if w.state == StateGameOver {
		return
	}
	var delta time.Duration
	if !w.lastTick.IsZero() {
		delta = now.Sub(w.lastTick)
	}
	w.lastTick = now
	paused := w.state == StatePaused

	for _, s := range w.stops.OnMap() {
		for _, p := range s.Waiting() {
			if p.Tick(now, paused) {
				w.gameOver(s, p, now)
				return
			}
		}
	}
	if paused {
		w.spawner.shift(delta)
		w.calendar.shift(delta)
		return
	}

	if p, origin := w.spawner.Tick(now, w.stops.OnMap()); p != nil {
		w.log.Debug().
			Str("passenger", p.ID.String()).
			Str("origin", string(origin.ID)).
			Str("destination", string(p.Destination.ID)).
			Msg("passenger spawned")
	}
	for n := w.calendar.Tick(now); n > 0; n-- {
		w.newDay()
	}

	active := w.lines.Active()
	for _, l := range active {
		l.Update(now)
		if l.Bus().AtStop() {
			l.Bus().SetConnectedLinesInfos(active)
		}
	}

	if level, threshold, ok := w.milestones.Check(w.served); ok {
		w.state = StatePaused
		w.log.Info().Int("level", level).Int("threshold", threshold).Int("served", w.served).Msg("milestone reached")
		w.hub.Notify(transit.MilestoneReached{Level: level, Threshold: threshold, Served: w.served})
	}
}

func (w *World) gameOver(s *transit.Stop, p *transit.Passenger, now time.Time) {
	w.state = StateGameOver
	ev := transit.PassengerExpired{Stop: s.ID, Passenger: p, Waited: p.Waited(now)}
	w.expired = &ev
	w.log.Warn().
		Str("stop", string(s.ID)).
		Str("passenger", p.ID.String()).
		Dur("waited", ev.Waited).
		Int("served", w.served).
		Msg("passenger waited too long")
	w.hub.Notify(ev)
}

func (w *World) newDay() {
	placed, _ := w.placeRandomStop()
	w.log.Info().Int("day", w.calendar.Day()).Int("week", w.calendar.Week()).Str("placed", string(placed)).Msg("new day")
	w.hub.Notify(transit.DayStarted{Day: w.calendar.Day(), Week: w.calendar.Week(), PlacedStop: placed})
}

func (w *World) placeRandomStop() (transit.StopID, bool) {
	pool := w.stops.Unplaced()
	if len(pool) == 0 {
		return "", false
	}
	s := pool[w.rng.IntN(len(pool))]
	if err := w.stops.Place(s.ID); err != nil {
		return "", false
	}
	return s.ID, true
}

// Pause enters the shop/unlock state.
func (w *World) Pause() error {
	if w.state == StateGameOver {
		return ErrGameOver
	}
	w.state = StatePaused
	return nil
}

// Resume leaves the paused state.
func (w *World) Resume() error {
	if w.state == StateGameOver {
		return ErrGameOver
	}
	w.state = StateRunning
	return nil
}

// Reset starts a new game on the same stop data.
func (w *World) Reset() {
	w.lines.ForceReset()
	w.stops.ResetPlacement()
	w.start()
	w.log.Info().Msg("world reset")
	w.hub.Notify(transit.WorldReset{})
}

func (w *World) line(id transit.LineID) (*transit.Line, error) {
	l, ok := w.lines.Get(id)
	if !ok {
		return nil, fmt.Errorf("line %d: %w", id, transit.ErrUnknownLine)
	}
	return l, nil
}

func (w *World) placedStop(id transit.StopID) (*transit.Stop, error) {
	s, ok := w.stops.Get(id)
	if !ok {
		return nil, fmt.Errorf("stop %s: %w", id, transit.ErrUnknownStop)
	}
	if !w.stops.IsPlaced(id) {
		return nil, fmt.Errorf("stop %s: %w", id, ErrStopNotPlaced)
	}
	return s, nil
}

// DrawStop adds a placed stop to a line, either at the end or into the
// closest segment.
func (w *World) DrawStop(lineID transit.LineID, stopID transit.StopID, nearest bool) error {
	l, err := w.line(lineID)
	if err != nil {
		return err
	}
	s, err := w.placedStop(stopID)
	if err != nil {
		return err
	}
	if nearest {
		return l.InsertStopNearest(s)
	}
	return l.AddStop(s)
}

func (w *World) SetLoop(lineID transit.LineID, loop bool) error {
	l, err := w.line(lineID)
	if err != nil {
		return err
	}
	l.Loop = loop
	return nil
}

func (w *World) Activate(lineID transit.LineID) error {
	l, err := w.line(lineID)
	if err != nil {
		return err
	}
	return l.Activate()
}

func (w *World) Deactivate(lineID transit.LineID) error {
	l, err := w.line(lineID)
	if err != nil {
		return err
	}
	l.Deactivate()
	return nil
}

// ResetLine clears an inactive line's drawing.
func (w *World) ResetLine(lineID transit.LineID) error {
	l, err := w.line(lineID)
	if err != nil {
		return err
	}
	return l.ResetFromDrawing()
}

// Graph builds the routing graph over placed stops and active lines.
func (w *World) Graph() network.Graph {
	return network.Build(w.stops.OnMap(), w.lines.Active())
}

// Route answers a shortest-path query between two placed stops. An
// unreachable destination is reported with ok == false, not an error.
func (w *World) Route(from, to transit.StopID) (path network.Path, ok bool, err error) {
	if _, err := w.placedStop(from); err != nil {
		return network.Path{}, false, err
	}
	if _, err := w.placedStop(to); err != nil {
		return network.Path{}, false, err
	}
	path, ok = network.ShortestPath(w.Graph(), from, to)
	return path, ok, nil
}

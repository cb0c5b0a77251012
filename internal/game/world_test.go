package game

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-sim/internal/clock"
	"transit-sim/internal/transit"
)

const frame = 16 * time.Millisecond

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	events []transit.Event
}

func (r *recorder) Notify(ev transit.Event) { r.events = append(r.events, ev) }

func (r *recorder) count(match func(transit.Event) bool) int {
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func records() []transit.StopRecord {
	return []transit.StopRecord{
		{ID: "A", Name: "Alpha", Lat: 0, Lon: 0},
		{ID: "B", Name: "Bravo", Lat: 0, Lon: 0.005},
		{ID: "C", Name: "Charlie", Lat: 0, Lon: 0.010},
		{ID: "D", Name: "Delta", Lat: 0.005, Lon: 0.010},
	}
}

// quietConfig places every stop and effectively disables spawning and days.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialStops = 4
	cfg.SpawnMin = time.Hour
	cfg.SpawnMax = time.Hour
	cfg.DayLength = 24 * time.Hour
	return cfg
}

func newTestWorld(t *testing.T, cfg Config) (*World, *recorder, *clock.Manual) {
	t.Helper()
	rec := &recorder{}
	w := NewWorld(cfg, records(), zerolog.Nop(), rec)
	return w, rec, clock.NewManual(epoch)
}

func tickFor(w *World, c *clock.Manual, d time.Duration) {
	for end := c.Now().Add(d); c.Now().Before(end); {
		w.Tick(c.Advance(frame))
	}
}

func drawLine(t *testing.T, w *World, id transit.LineID, stops ...transit.StopID) {
	t.Helper()
	for _, s := range stops {
		require.NoError(t, w.DrawStop(id, s, false))
	}
	require.NoError(t, w.Activate(id))
}

func TestNewWorldPlacesInitialStops(t *testing.T) {
	cfg := quietConfig()
	cfg.InitialStops = 2
	w, _, _ := newTestWorld(t, cfg)
	assert.Len(t, w.Stops().OnMap(), 2)
	assert.Len(t, w.Stops().Unplaced(), 2)
	assert.Len(t, w.Lines().All(), len(cfg.LineColors))
	assert.Equal(t, StateRunning, w.State())
}

func TestSpawnerCreatesPassengersAtPlacedStops(t *testing.T) {
	cfg := quietConfig()
	cfg.SpawnMin = time.Second
	cfg.SpawnMax = 2 * time.Second
	w, _, c := newTestWorld(t, cfg)

	tickFor(w, c, 10*time.Second)

	total := 0
	for _, s := range w.Stops().OnMap() {
		for _, p := range s.Waiting() {
			assert.NotEqual(t, s.ID, p.Destination.ID, "destination differs from origin")
			total++
		}
	}
	assert.GreaterOrEqual(t, total, 4)
	assert.LessOrEqual(t, total, 10)
}

func TestSpawnerNeedsTwoStops(t *testing.T) {
	cfg := quietConfig()
	cfg.InitialStops = 1
	cfg.SpawnMin = time.Second
	cfg.SpawnMax = time.Second
	w, _, c := newTestWorld(t, cfg)

	tickFor(w, c, 5*time.Second)
	assert.Zero(t, w.StateView().Waiting)
}

func TestWorldServesPassengersAndReachesMilestone(t *testing.T) {
	w, rec, c := newTestWorld(t, quietConfig())
	drawLine(t, w, 1, "A", "B", "C")
	a, _ := w.Stops().Get("A")
	dest, _ := w.Stops().Get("C")
	a.AddPassenger(transit.NewPassenger(dest, c.Now(), 0))
	a.AddPassenger(transit.NewPassenger(dest, c.Now(), 0))

	tickFor(w, c, 5*time.Second)

	assert.Equal(t, 2, w.Served())
	assert.Equal(t, StatePaused, w.State(), "the first milestone opens the unlock screen")
	assert.Equal(t, 1, w.Milestones().Level())
	assert.Equal(t, 1, rec.count(func(ev transit.Event) bool {
		m, ok := ev.(transit.MilestoneReached)
		return ok && m.Threshold == 2 && m.Level == 1
	}))

	require.NoError(t, w.Resume())
	assert.Equal(t, StateRunning, w.State())
	next, ok := w.Milestones().Next()
	require.True(t, ok)
	assert.Equal(t, 200, next)
}

func TestPauseFreezesTheWorld(t *testing.T) {
	w, _, c := newTestWorld(t, quietConfig())
	drawLine(t, w, 1, "A", "B", "C")
	a, _ := w.Stops().Get("A")
	d, _ := w.Stops().Get("D")
	p := transit.NewPassenger(d, c.Now(), 0)
	a.AddPassenger(p)

	tickFor(w, c, time.Second)
	bus, _ := w.Lines().Get(1)
	pos := bus.Bus().Position()
	deadline := p.Deadline()

	require.NoError(t, w.Pause())
	pauseStart := c.Now()
	tickFor(w, c, 2*time.Minute)
	window := c.Now().Sub(pauseStart)

	assert.Equal(t, pos, bus.Bus().Position())
	assert.Equal(t, deadline.Add(window), p.Deadline())
	assert.Equal(t, StatePaused, w.State(), "pausing longer than MaxWait is not fatal")

	require.NoError(t, w.Resume())
	tickFor(w, c, time.Second)
	assert.Equal(t, StateRunning, w.State())
}

func TestExpiredPassengerEndsTheGame(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxWait = 5 * time.Second
	w, rec, c := newTestWorld(t, cfg)
	a, _ := w.Stops().Get("A")
	d, _ := w.Stops().Get("D")
	a.AddPassenger(transit.NewPassenger(d, c.Now(), cfg.MaxWait))

	tickFor(w, c, 6*time.Second)

	assert.Equal(t, StateGameOver, w.State())
	ev, ok := w.Expired()
	require.True(t, ok)
	assert.Equal(t, transit.StopID("A"), ev.Stop)
	assert.Greater(t, ev.Waited, cfg.MaxWait)
	assert.Equal(t, 1, rec.count(func(ev transit.Event) bool {
		_, ok := ev.(transit.PassengerExpired)
		return ok
	}))

	require.ErrorIs(t, w.Pause(), ErrGameOver)
	require.ErrorIs(t, w.Resume(), ErrGameOver)

	w.Reset()
	assert.Equal(t, StateRunning, w.State())
	assert.Zero(t, w.StateView().Waiting)
}

func TestNewDayPlacesAStop(t *testing.T) {
	cfg := quietConfig()
	cfg.InitialStops = 2
	cfg.DayLength = time.Second
	w, rec, c := newTestWorld(t, cfg)

	tickFor(w, c, 2500*time.Millisecond)

	assert.Equal(t, 3, w.Calendar().Day())
	assert.Equal(t, 1, w.Calendar().Week())
	assert.Len(t, w.Stops().OnMap(), 4)
	assert.Equal(t, 2, rec.count(func(ev transit.Event) bool {
		d, ok := ev.(transit.DayStarted)
		return ok && d.PlacedStop != ""
	}))
}

func TestRouteThroughWorld(t *testing.T) {
	w, _, _ := newTestWorld(t, quietConfig())
	drawLine(t, w, 1, "A", "B", "C")

	path, ok, err := w.Route("A", "C")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []transit.StopID{"A", "B", "C"}, path.Stops)

	_, ok, err = w.Route("A", "D")
	require.NoError(t, err)
	assert.False(t, ok, "D is placed but no active line serves it")

	_, _, err = w.Route("A", "Z")
	require.ErrorIs(t, err, transit.ErrUnknownStop)
}

func TestDrawStopValidation(t *testing.T) {
	cfg := quietConfig()
	cfg.InitialStops = 0
	w, _, _ := newTestWorld(t, cfg)

	require.ErrorIs(t, w.DrawStop(1, "A", false), ErrStopNotPlaced)
	require.ErrorIs(t, w.DrawStop(99, "A", false), transit.ErrUnknownLine)
	require.NoError(t, w.Stops().Place("A"))
	require.NoError(t, w.DrawStop(1, "A", false))
	require.ErrorIs(t, w.Activate(1), transit.ErrTooFewStops)
}

func TestTransferHintsAreRefreshedEachTick(t *testing.T) {
	w, _, c := newTestWorld(t, quietConfig())
	drawLine(t, w, 1, "A", "B", "C")
	drawLine(t, w, 2, "C", "D")
	a, _ := w.Stops().Get("A")
	d, _ := w.Stops().Get("D")
	b, _ := w.Stops().Get("B")
	a.AddPassenger(transit.NewPassenger(b, c.Now(), 0))
	a.AddPassenger(transit.NewPassenger(d, c.Now(), 0))

	w.Tick(c.Advance(frame))

	red, _ := w.Lines().Get(1)
	hints := red.Bus().ConnectedLinesInfos()
	require.Len(t, hints, 1)
	assert.Equal(t, transit.LineID(2), hints[0].Line)
	assert.Equal(t, transit.StopID("C"), hints[0].Stop)

	views := w.LineViews()
	require.NotEmpty(t, views[0].Bus.Hints)
}

package transit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-sim/internal/geo"
)

const frame = 16 * time.Millisecond

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	events []Event
}

func (r *recorder) Notify(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) arrivals() []StopID {
	var out []StopID
	for _, ev := range r.events {
		if a, ok := ev.(BusArrived); ok {
			out = append(out, a.Stop)
		}
	}
	return out
}

func (r *recorder) transfers() []Event {
	var out []Event
	for _, ev := range r.events {
		switch ev.(type) {
		case PassengerBoarded, PassengerAlighted:
			out = append(out, ev)
		}
	}
	return out
}

// testLine builds a line over stops spaced 0.005 degrees apart along the equator.
func testLine(t *testing.T, loop bool, ids ...StopID) (*Line, map[StopID]*Stop, *recorder) {
	t.Helper()
	rec := &recorder{}
	l := NewLine(1, "", BusConfig{})
	l.SetObserver(rec)
	l.Loop = loop
	stops := make(map[StopID]*Stop, len(ids))
	for i, id := range ids {
		s := NewStop(id, string(id), geo.Point{Lat: 0, Lon: float64(i) * 0.005})
		stops[id] = s
		require.NoError(t, l.AddStop(s))
	}
	require.NoError(t, l.Activate())
	return l, stops, rec
}

// run ticks l n times starting at *now and advances *now.
func run(l *Line, now *time.Time, n int) {
	for i := 0; i < n; i++ {
		*now = now.Add(frame)
		l.Update(*now)
	}
}

func TestBusInitializesAtFirstStop(t *testing.T) {
	l, _, _ := testLine(t, false, "X", "Y", "Z")
	b := l.Bus()
	assert.Equal(t, PhaseUninitialized, b.Phase())

	l.Update(epoch)

	assert.Equal(t, PhaseEnRoute, b.Phase(), "an empty first stop departs on the first tick")
	assert.Equal(t, StopID("X"), b.LastStop())
	assert.Equal(t, StopID("Y"), b.NextOrCurrent())
	assert.True(t, b.Forward())
}

func TestBusPlacementBeforeDeparture(t *testing.T) {
	l, stops, _ := testLine(t, false, "X", "Y", "Z")
	stops["X"].AddPassenger(NewPassenger(stops["Z"], epoch, 0))
	b := l.Bus()

	l.Update(epoch)

	assert.Equal(t, PhaseAtStop, b.Phase())
	assert.Equal(t, StopID("Z"), b.LastStop(), "last stop starts as the final stop in traversal order")
	assert.Equal(t, StopID("X"), b.NextOrCurrent())
	assert.Equal(t, stops["X"].Position, b.Position())
}

func TestNonLoopingLineReversesAtTermini(t *testing.T) {
	l, _, rec := testLine(t, false, "A", "B", "C", "D")
	now := epoch
	run(l, &now, 200)

	arrivals := rec.arrivals()
	require.GreaterOrEqual(t, len(arrivals), 8)
	assert.Equal(t, []StopID{"B", "C", "D", "C", "B", "A", "B", "C"}, arrivals[:8])
}

func TestLoopingLineWraps(t *testing.T) {
	l, _, rec := testLine(t, true, "A", "B", "C")
	now := epoch
	run(l, &now, 200)

	arrivals := rec.arrivals()
	require.GreaterOrEqual(t, len(arrivals), 6)
	assert.Equal(t, []StopID{"B", "C", "A", "B", "C", "A"}, arrivals[:6])
}

func TestBusBoardsAtOriginAndAlightsAtDestination(t *testing.T) {
	l, stops, rec := testLine(t, false, "X", "Y", "Z")
	p := NewPassenger(stops["Z"], epoch, 0)
	require.True(t, stops["X"].AddPassenger(p))
	b := l.Bus()

	now := epoch
	l.Update(now)
	for b.Phase() == PhaseAtStop && b.NextOrCurrent() == "X" {
		run(l, &now, 1)
	}
	require.Equal(t, 1, b.Onboard(), "passenger boards before the bus leaves X")
	assert.False(t, stops["X"].HasPassenger(p))

	for i := 0; i < 500 && b.Onboard() > 0; i++ {
		run(l, &now, 1)
	}
	require.Zero(t, b.Onboard())

	moves := rec.transfers()
	require.Len(t, moves, 2)
	boarded, ok := moves[0].(PassengerBoarded)
	require.True(t, ok)
	assert.Equal(t, StopID("X"), boarded.Stop)
	alighted, ok := moves[1].(PassengerAlighted)
	require.True(t, ok)
	assert.Equal(t, StopID("Z"), alighted.Stop)
	assert.Same(t, p, alighted.Passenger)

	// the only arrivals before alighting are Y and Z
	var before []StopID
	for _, ev := range rec.events {
		if _, done := ev.(PassengerAlighted); done {
			break
		}
		if a, ok := ev.(BusArrived); ok {
			before = append(before, a.Stop)
		}
	}
	assert.Equal(t, []StopID{"Y", "Z"}, before)
}

func TestBoardingIsThrottledToOnePerDwell(t *testing.T) {
	l, stops, rec := testLine(t, false, "X", "Y")
	for i := 0; i < 4; i++ {
		stops["X"].AddPassenger(NewPassenger(stops["Y"], epoch, 0))
	}

	var stamps []time.Time
	now := epoch
	for i := 0; i < 200; i++ {
		before := len(rec.transfers())
		run(l, &now, 1)
		moved := len(rec.transfers()) - before
		require.LessOrEqual(t, moved, 1, "at most one passenger crosses per tick")
		if moved == 1 {
			stamps = append(stamps, now)
		}
	}
	require.Len(t, stamps, 8, "four boardings and four alightings")
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), DefaultDwell)
	}
}

func TestUnloadsBeforeLoading(t *testing.T) {
	l, stops, rec := testLine(t, false, "X", "Y", "Z")
	rider := NewPassenger(stops["Y"], epoch, 0)
	stops["X"].AddPassenger(rider)
	waiting := NewPassenger(stops["Z"], epoch, 0)
	stops["Y"].AddPassenger(waiting)

	now := epoch
	run(l, &now, 300)

	moves := rec.transfers()
	require.GreaterOrEqual(t, len(moves), 3)
	assert.IsType(t, PassengerBoarded{}, moves[0])
	alight, ok := moves[1].(PassengerAlighted)
	require.True(t, ok, "the rider leaves at Y before anyone boards there")
	assert.Equal(t, StopID("Y"), alight.Stop)
	board, ok := moves[2].(PassengerBoarded)
	require.True(t, ok)
	assert.Same(t, waiting, board.Passenger)
}

func TestCapacityIsNeverExceeded(t *testing.T) {
	l, stops, _ := testLine(t, false, "X", "Y")
	for i := 0; i < 10; i++ {
		stops["X"].AddPassenger(NewPassenger(stops["Y"], epoch, 0))
	}
	b := l.Bus()
	now := epoch
	for i := 0; i < 400; i++ {
		run(l, &now, 1)
		require.LessOrEqual(t, b.Onboard(), DefaultCapacity)
	}
	assert.Equal(t, 0, stops["X"].WaitingCount(), "the remaining passengers ride a later trip")
}

func TestRemoveFromMapRejectedWithPassengersAboard(t *testing.T) {
	l, stops, _ := testLine(t, false, "X", "Y", "Z")
	stops["X"].AddPassenger(NewPassenger(stops["Z"], epoch, 0))
	b := l.Bus()
	now := epoch
	l.Update(now)
	for b.Onboard() == 0 {
		run(l, &now, 1)
	}
	run(l, &now, 3)

	phase, last, next, pos := b.Phase(), b.LastStop(), b.NextOrCurrent(), b.Position()
	err := b.RemoveFromMap()
	require.ErrorIs(t, err, ErrPassengersAboard)
	assert.Equal(t, phase, b.Phase())
	assert.Equal(t, last, b.LastStop())
	assert.Equal(t, next, b.NextOrCurrent())
	assert.Equal(t, pos, b.Position())
	assert.Equal(t, 1, b.Onboard())
}

func TestRemoveFromMapResetsEmptyBus(t *testing.T) {
	l, _, _ := testLine(t, false, "X", "Y")
	now := epoch
	run(l, &now, 3)

	require.NoError(t, l.Bus().RemoveFromMap())
	assert.Equal(t, PhaseUninitialized, l.Bus().Phase())
	assert.Empty(t, l.Bus().NextOrCurrent())
}

func TestEnRouteMovesFromCurrentPosition(t *testing.T) {
	l, _, _ := testLine(t, false, "X", "Y")
	b := l.Bus()
	l.Update(epoch)
	first := b.Position()
	assert.InDelta(t, 0.001, first.Lon, 1e-12)

	l.Update(epoch.Add(time.Second))
	assert.InDelta(t, 0.002, b.Position().Lon, 1e-12, "a long frame still moves one step")
}

func TestDeactivatedLineKeepsBusState(t *testing.T) {
	l, stops, _ := testLine(t, false, "X", "Y", "Z")
	stops["X"].AddPassenger(NewPassenger(stops["Z"], epoch, 0))
	b := l.Bus()
	now := epoch
	l.Update(now)
	for b.Onboard() == 0 {
		run(l, &now, 1)
	}
	run(l, &now, 2)
	pos := b.Position()

	l.Deactivate()
	run(l, &now, 50)
	assert.Equal(t, pos, b.Position())

	require.NoError(t, l.Activate())
	for i := 0; i < 500 && b.Onboard() > 0; i++ {
		run(l, &now, 1)
	}
	assert.Zero(t, b.Onboard())
}

func TestSetConnectedLinesInfos(t *testing.T) {
	a := NewStop("A", "A", geo.Point{Lon: 0})
	b := NewStop("B", "B", geo.Point{Lon: 0.005})
	c := NewStop("C", "C", geo.Point{Lon: 0.010})
	d := NewStop("D", "D", geo.Point{Lat: 0.005, Lon: 0.010})

	red := NewLine(1, "red", BusConfig{})
	require.NoError(t, red.AddStop(a))
	require.NoError(t, red.AddStop(b))
	require.NoError(t, red.AddStop(c))
	require.NoError(t, red.Activate())

	blue := NewLine(2, "blue", BusConfig{})
	require.NoError(t, blue.AddStop(c))
	require.NoError(t, blue.AddStop(d))
	require.NoError(t, blue.Activate())

	idle := NewLine(3, "idle", BusConfig{})
	require.NoError(t, idle.AddStop(a))
	require.NoError(t, idle.AddStop(d))

	toD := NewPassenger(d, epoch, 0)
	toB := NewPassenger(b, epoch, 0)
	a.AddPassenger(toD)
	a.AddPassenger(toB)

	red.Update(epoch)
	require.True(t, red.Bus().AtStop())
	red.Bus().SetConnectedLinesInfos([]*Line{red, blue, idle})

	hints := red.Bus().ConnectedLinesInfos()
	require.Len(t, hints, 1)
	assert.Same(t, toD, hints[0].Passenger)
	assert.Equal(t, LineID(2), hints[0].Line)
	assert.Equal(t, StopID("C"), hints[0].Stop)
}

func TestResetFromDrawing(t *testing.T) {
	l, stops, _ := testLine(t, false, "X", "Y", "Z")
	require.ErrorIs(t, l.ResetFromDrawing(), ErrLineActive)

	stops["X"].AddPassenger(NewPassenger(stops["Z"], epoch, 0))
	now := epoch
	l.Update(now)
	for l.Bus().Onboard() == 0 {
		run(l, &now, 1)
	}
	l.Deactivate()
	require.ErrorIs(t, l.ResetFromDrawing(), ErrPassengersAboard)
	assert.Equal(t, 3, l.Len(), "a rejected reset leaves the drawing intact")

	require.NoError(t, l.Activate())
	for i := 0; i < 500 && l.Bus().Onboard() > 0; i++ {
		run(l, &now, 1)
	}
	l.Deactivate()
	require.NoError(t, l.ResetFromDrawing())
	assert.Zero(t, l.Len())
	assert.Equal(t, PhaseUninitialized, l.Bus().Phase())
}

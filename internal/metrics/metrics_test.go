package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-sim/internal/transit"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorTracksWorldEvents(t *testing.T) {
	c := NewCollector(16*time.Millisecond, time.Second)

	c.Notify(transit.WaitingChanged{Stop: "A", Waiting: 2})
	c.Notify(transit.WaitingChanged{Stop: "B", Waiting: 3})
	c.Notify(transit.WaitingChanged{Stop: "A", Waiting: 1})
	c.Notify(transit.PassengerBoarded{Line: 1, Stop: "A"})
	c.Notify(transit.PassengerAlighted{Line: 1, Stop: "B"})
	c.Notify(transit.BusArrived{Line: 2, Stop: "B"})
	c.Notify(transit.BusArrived{Line: 2, Stop: "C"})
	c.Notify(transit.DayStarted{Day: 3, Week: 1})
	c.Notify(transit.MilestoneReached{Level: 1, Threshold: 2, Served: 2})
	c.Notify(transit.PassengerExpired{Stop: "A"})

	body := scrape(t, c)
	for _, want := range []string{
		"simulator_waiting_passengers 4",
		"simulator_passengers_boarded_total 1",
		"simulator_passengers_served_total 1",
		"simulator_passengers_expired_total 1",
		`simulator_bus_arrivals_total{line="2"} 2`,
		"simulator_day 3",
		"simulator_milestone_level 1",
		"simulator_game_over 1",
		"simulator_tick_interval_seconds 0.016",
		"simulator_publish_interval_seconds 1",
	} {
		assert.Contains(t, body, want)
	}
}

func TestResetGameClearsPerGameGauges(t *testing.T) {
	c := NewCollector(16*time.Millisecond, time.Second)
	c.Notify(transit.WaitingChanged{Stop: "A", Waiting: 2})
	c.Notify(transit.PassengerAlighted{Line: 1, Stop: "B"})
	c.Notify(transit.PassengerExpired{Stop: "A"})

	c.Notify(transit.WorldReset{})
	body := scrape(t, c)
	assert.Contains(t, body, "simulator_waiting_passengers 0")
	assert.Contains(t, body, "simulator_game_over 0")
	assert.Contains(t, body, "simulator_day 1")
	assert.Contains(t, body, "simulator_passengers_served_total 1", "totals survive a reset")
}

package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"transit-sim/internal/transit"
)

type Collector struct {
	reg *prometheus.Registry

	WaitingPassengers prometheus.Gauge
	Day               prometheus.Gauge
	Level             prometheus.Gauge
	GameOver          prometheus.Gauge
	StopsLoaded       prometheus.Gauge

	PassengersBoarded prometheus.Counter
	PassengersServed  prometheus.Counter
	PassengersExpired prometheus.Counter
	BusArrivals       *prometheus.CounterVec // line label

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	TickInterval    prometheus.Gauge // seconds
	PublishInterval prometheus.Gauge // seconds

	mu      sync.Mutex
	waiting map[transit.StopID]int
}

func NewCollector(tickInterval, publishInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg:     reg,
		waiting: make(map[transit.StopID]int),
		WaitingPassengers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_waiting_passengers",
			Help: "Passengers currently waiting at stops.",
		}),
		Day: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_day",
			Help: "Current simulated day.",
		}),
		Level: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_milestone_level",
			Help: "Number of served-passenger milestones reached.",
		}),
		GameOver: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_game_over",
			Help: "1 once a passenger waited too long, 0 otherwise.",
		}),
		StopsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_stops_loaded",
			Help: "Stops read from the database at startup.",
		}),
		PassengersBoarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_passengers_boarded_total",
			Help: "Total passengers boarded.",
		}),
		PassengersServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_passengers_served_total",
			Help: "Total passengers delivered to their destination.",
		}),
		PassengersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_passengers_expired_total",
			Help: "Total passengers that waited too long.",
		}),
		BusArrivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_bus_arrivals_total",
			Help: "Bus arrivals at stops.",
		}, []string{"line"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_tick_interval_seconds",
			Help: "Tick interval in seconds.",
		}),
		PublishInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_publish_interval_seconds",
			Help: "Publish interval in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.WaitingPassengers, c.Day, c.Level, c.GameOver, c.StopsLoaded,
		c.PassengersBoarded, c.PassengersServed, c.PassengersExpired, c.BusArrivals,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.TickDuration, c.PublishDuration,
		c.TickInterval, c.PublishInterval,
	)

	// Set static/dynamic gauges
	c.Day.Set(1)
	c.TickInterval.Set(tickInterval.Seconds())
	c.PublishInterval.Set(publishInterval.Seconds())

	return c
}

// Notify updates the simulation gauges and counters from world events.
func (c *Collector) Notify(ev transit.Event) {
	switch e := ev.(type) {
	case transit.WaitingChanged:
		c.mu.Lock()
		c.waiting[e.Stop] = e.Waiting
		total := 0
		for _, n := range c.waiting {
			total += n
		}
		c.mu.Unlock()
		c.WaitingPassengers.Set(float64(total))
	case transit.PassengerBoarded:
		c.PassengersBoarded.Inc()
	case transit.PassengerAlighted:
		c.PassengersServed.Inc()
	case transit.BusArrived:
		c.BusArrivals.WithLabelValues(e.Line.String()).Inc()
	case transit.PassengerExpired:
		c.PassengersExpired.Inc()
		c.GameOver.Set(1)
	case transit.MilestoneReached:
		c.Level.Set(float64(e.Level))
	case transit.DayStarted:
		c.Day.Set(float64(e.Day))
	case transit.WorldReset:
		c.ResetGame()
	}
}

// ResetGame clears the per-game gauges after the world is reset.
func (c *Collector) ResetGame() {
	c.mu.Lock()
	clear(c.waiting)
	c.mu.Unlock()
	c.WaitingPassengers.Set(0)
	c.Day.Set(1)
	c.Level.Set(0)
	c.GameOver.Set(0)
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

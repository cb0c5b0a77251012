package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"transit-sim/internal/api"
	"transit-sim/internal/clock"
	"transit-sim/internal/config"
	"transit-sim/internal/db"
	"transit-sim/internal/game"
	"transit-sim/internal/logger"
	"transit-sim/internal/metrics"
	"transit-sim/internal/publisher"
	"transit-sim/internal/sim"
	"transit-sim/internal/transit"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.DefaultConfig())
		boot.Fatal().Err(err).Msg("config error")
	}

	lc := logger.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.FilePath = cfg.LogFile
	log := logger.New(lc)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	records, err := loadStops(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("load stops")
	}
	if len(records) < 2 {
		log.Fatal().Int("stops", len(records)).Msg("need at least two stops to play")
	}
	log.Info().Int("stops", len(records)).Msg("stops loaded")

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickInterval, cfg.PublishInterval)
		mcol.StopsLoaded.Set(float64(len(records)))
		metricsSrv = mcol.Serve(cfg.MetricsAddr, log)
	}

	var observers []transit.Observer
	if mcol != nil {
		observers = append(observers, mcol)
	}

	// Initialize NATS publisher
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, publisher.Options{
			Prefix:           cfg.NATSSubjectPrefix,
			LogSubjects:      cfg.LogNATSSubjects,
			PositionInterval: cfg.PublishInterval,
			Metrics:          wrapPublisherMetrics(mcol),
			Log:              log,
		})
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("nats error")
		}
		defer pub.Close()
		observers = append(observers, pub)
	}

	world := game.NewWorld(cfg.Game, records, log, observers...)
	runner := sim.NewRunner(world, clock.Real{}, cfg.TickInterval, mcol, log)
	runner.Start(ctx)

	handler := api.NewHandler(runner, log)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler.Router(cfg.CORSOrigins)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server error")
			cancel()
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("api listening")

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	runner.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info().Msg("shutdown complete")
}

// loadStops reads stops from SQLITE_PATH, or from Postgres. With CITY set,
// the newest import for that city is resolved through the cluster's
// 'postgres' database first.
func loadStops(ctx context.Context, cfg *config.Config, log zerolog.Logger) ([]transit.StopRecord, error) {
	if cfg.SQLitePath != "" {
		store, err := db.Open(db.SQLite, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite stops")
		return store.FetchStops(ctx)
	}

	finalDSN := cfg.DatabaseURL
	if cfg.City != "" {
		rootDSN, err := db.WithDBName(cfg.DatabaseURL, "postgres")
		if err != nil {
			return nil, err
		}
		meta, err := db.Open(db.Postgres, rootDSN)
		if err != nil {
			return nil, err
		}
		defer meta.Close()
		if err := meta.Ping(ctx); err != nil {
			return nil, err
		}
		name, err := db.ResolveLatestImportDBName(ctx, meta, cfg.City)
		if err != nil {
			return nil, err
		}
		if finalDSN, err = db.WithDBName(cfg.DatabaseURL, name); err != nil {
			return nil, err
		}
		log.Info().Str("database", name).Str("city", cfg.City).Msg("using city database")
	}

	store, err := db.Open(db.Postgres, finalDSN)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	return store.FetchStops(ctx)
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

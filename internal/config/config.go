package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"transit-sim/internal/game"
	"transit-sim/internal/logger"
)

type Config struct {
	DatabaseURL       string
	SQLitePath        string
	City              string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	TickInterval      time.Duration
	PublishInterval   time.Duration
	MetricsAddr       string
	HTTPAddr          string
	CORSOrigins       []string
	LogLevel          zerolog.Level
	LogFile           string
	Game              game.Config
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// A SQLite stop file takes precedence over Postgres
	cfg.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	if cfg.SQLitePath == "" {
		dsn, err := postgresDSN()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = os.Getenv("NATS_URL") // empty disables publishing
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "transit")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	var err error
	if cfg.TickInterval, err = millis("TICK_INTERVAL_MS", 16*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PublishInterval, err = millis("PUBLISH_INTERVAL_MS", time.Second); err != nil {
		return nil, err
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "*"))

	cfg.LogLevel = logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.LogFile = os.Getenv("LOG_FILE")

	if cfg.Game, err = loadGame(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// postgresDSN prefers DATABASE_URL / PG_DSN, else builds one from PG* vars.
func postgresDSN() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")) != "" {
		db = "postgres"
	}
	if db == "" {
		return "", errors.New("SQLITE_PATH, PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func loadGame() (game.Config, error) {
	g := game.DefaultConfig()
	var err error

	if v := os.Getenv("LINE_COLORS"); v != "" {
		g.LineColors = splitList(v)
		if len(g.LineColors) == 0 {
			return g, fmt.Errorf("invalid LINE_COLORS: %q", v)
		}
	}
	if g.Bus.Capacity, err = positiveInt("BUS_CAPACITY", g.Bus.Capacity); err != nil {
		return g, err
	}
	if g.Bus.Dwell, err = millis("DWELL_MS", g.Bus.Dwell); err != nil {
		return g, err
	}
	if v := os.Getenv("BUS_STEP"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return g, fmt.Errorf("invalid BUS_STEP: %q", v)
		}
		g.Bus.Step = f
	}
	if g.MaxWait, err = millis("PASSENGER_MAX_WAIT_MS", g.MaxWait); err != nil {
		return g, err
	}
	if g.SpawnMin, err = millis("SPAWN_MIN_MS", g.SpawnMin); err != nil {
		return g, err
	}
	if g.SpawnMax, err = millis("SPAWN_MAX_MS", g.SpawnMax); err != nil {
		return g, err
	}
	if g.SpawnMax < g.SpawnMin {
		return g, fmt.Errorf("invalid SPAWN_MAX_MS: %s is below SPAWN_MIN_MS", g.SpawnMax)
	}
	if v := os.Getenv("MILESTONES"); v != "" {
		g.Milestones = g.Milestones[:0:0]
		for _, part := range splitList(v) {
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				return g, fmt.Errorf("invalid MILESTONES: %q", v)
			}
			g.Milestones = append(g.Milestones, n)
		}
	}
	if v := os.Getenv("DAY_LENGTH_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return g, fmt.Errorf("invalid DAY_LENGTH_SEC: %q", v)
		}
		g.DayLength = time.Duration(sec) * time.Second
	}
	if v := os.Getenv("INITIAL_STOPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return g, fmt.Errorf("invalid INITIAL_STOPS: %q", v)
		}
		g.InitialStops = n
	}
	if v := os.Getenv("SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return g, fmt.Errorf("invalid SEED: %q", v)
		}
		g.Seed = n
	}
	return g, nil
}

func millis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

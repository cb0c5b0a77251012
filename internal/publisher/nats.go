package publisher

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"transit-sim/internal/clock"
	"transit-sim/internal/transit"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards world events to NATS as JSON. It is a
// transit.Observer and runs on the tick goroutine.
type NATSPublisher struct {
	nc          *nats.Conn
	conn        Conn
	prefix      string
	logSubjects bool
	interval    time.Duration
	clock       clock.Clock
	metrics     PublisherMetrics
	log         zerolog.Logger

	lastMoved map[transit.LineID]time.Time
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type Options struct {
	Prefix      string
	LogSubjects bool
	// PositionInterval throttles BusMoved messages per line. Zero publishes
	// every tick.
	PositionInterval time.Duration
	Clock            clock.Clock
	Metrics          PublisherMetrics
	Log              zerolog.Logger
}

func NewNATSPublisher(url string, opts Options) (*NATSPublisher, error) {
	m := opts.Metrics
	log := opts.Log
	nc, err := nats.Connect(url,
		nats.Name("transit-sim"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := New(nc, opts)
	p.nc = nc
	return p, nil
}

// New wraps an existing connection.
func New(conn Conn, opts Options) *NATSPublisher {
	if opts.Prefix == "" {
		opts.Prefix = "transit"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &NATSPublisher{
		conn:        conn,
		prefix:      subjectToken(opts.Prefix),
		logSubjects: opts.LogSubjects,
		interval:    opts.PositionInterval,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		log:         opts.Log.With().Str("component", "publisher").Logger(),
		lastMoved:   make(map[transit.LineID]time.Time),
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Notify publishes ev. Publish failures are counted and logged, never
// returned to the world.
func (p *NATSPublisher) Notify(ev transit.Event) {
	now := p.clock.Now()
	if _, ok := ev.(transit.WorldReset); ok {
		clear(p.lastMoved)
	}
	if mv, ok := ev.(transit.BusMoved); ok && p.interval > 0 {
		if last, seen := p.lastMoved[mv.Line]; seen && now.Sub(last) < p.interval {
			return
		}
		p.lastMoved[mv.Line] = now
	}
	subject, msg, ok := p.message(ev, now)
	if !ok {
		return
	}
	if err := p.publish(subject, msg); err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("nats publish failed")
	}
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Msg("nats publish")
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func (p *NATSPublisher) subject(tokens ...string) string {
	parts := make([]string, 0, len(tokens)+1)
	parts = append(parts, p.prefix)
	for _, t := range tokens {
		parts = append(parts, subjectToken(t))
	}
	return strings.Join(parts, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

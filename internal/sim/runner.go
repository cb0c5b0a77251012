// Package sim drives a game.World from a single goroutine: a fixed-interval
// ticker advances the world and commands from other goroutines are queued
// onto the same loop.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"transit-sim/internal/clock"
	"transit-sim/internal/game"
	"transit-sim/internal/metrics"
)

var ErrStopped = errors.New("runner stopped")

type command struct {
	fn   func(*game.World) error
	done chan error
}

type Runner struct {
	world    *game.World
	clock    clock.Clock
	interval time.Duration
	metrics  *metrics.Collector
	log      zerolog.Logger

	cmds    chan command
	stopped chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(w *game.World, c clock.Clock, interval time.Duration, m *metrics.Collector, log zerolog.Logger) *Runner {
	if c == nil {
		c = clock.Real{}
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Runner{
		world:    w,
		clock:    c,
		interval: interval,
		metrics:  m,
		log:      log.With().Str("component", "runner").Logger(),
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Start launches the tick loop. It returns immediately; the loop ends when
// ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.stopped)
		r.loop(ctx)
	}()
	r.log.Info().Dur("interval", r.interval).Msg("simulation started")
}

func (r *Runner) loop(ctx context.Context) {
	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	last := r.world.State()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.cmds:
			cmd.done <- cmd.fn(r.world)
		case <-tick.C:
			tickStart := time.Now()
			r.world.Tick(r.clock.Now())
			if r.metrics != nil {
				r.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
			}
		}
		if st := r.world.State(); st != last {
			r.log.Info().Str("from", last.String()).Str("to", st.String()).Int("served", r.world.Served()).Msg("state changed")
			last = st
		}
	}
}

// Do runs fn on the tick goroutine between two ticks and returns its error.
// It is the only safe way to read or mutate the world while the runner is
// started.
func (r *Runner) Do(ctx context.Context, fn func(*game.World) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.cmds <- cmd:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.log.Info().Msg("simulation stopped")
}

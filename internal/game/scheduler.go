package game

import (
	"math/rand/v2"
	"sort"
	"time"

	"transit-sim/internal/transit"
)

// Spawner creates a passenger at a random placed stop every SpawnMin to
// SpawnMax of simulated time.
type Spawner struct {
	min, max time.Duration
	maxWait  time.Duration
	rng      *rand.Rand
	next     time.Time
}

func newSpawner(cfg Config, rng *rand.Rand) *Spawner {
	return &Spawner{min: cfg.SpawnMin, max: cfg.SpawnMax, maxWait: cfg.MaxWait, rng: rng}
}

func (s *Spawner) interval() time.Duration {
	span := s.max - s.min
	if span <= 0 {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int64N(int64(span)+1))
}

func (s *Spawner) start(now time.Time) { s.next = now.Add(s.interval()) }

// shift postpones the next spawn, used while the game is paused.
func (s *Spawner) shift(d time.Duration) {
	if !s.next.IsZero() && d > 0 {
		s.next = s.next.Add(d)
	}
}

// Tick spawns at most one passenger when due. It needs two placed stops: the
// origin and a distinct destination.
func (s *Spawner) Tick(now time.Time, stops []*transit.Stop) (*transit.Passenger, *transit.Stop) {
	if s.next.IsZero() {
		s.start(now)
	}
	if now.Before(s.next) {
		return nil, nil
	}
	s.next = now.Add(s.interval())
	if len(stops) < 2 {
		return nil, nil
	}
	oi := s.rng.IntN(len(stops))
	di := s.rng.IntN(len(stops) - 1)
	if di >= oi {
		di++
	}
	origin := stops[oi]
	p := transit.NewPassenger(stops[di], now, s.maxWait)
	origin.AddPassenger(p)
	return p, origin
}

// Calendar counts simulated days. Paused time does not count.
type Calendar struct {
	length   time.Duration
	dayStart time.Time
	day      int
}

func newCalendar(length time.Duration) *Calendar {
	return &Calendar{length: length, day: 1}
}

func (c *Calendar) Day() int  { return c.day }
func (c *Calendar) Week() int { return (c.day-1)/7 + 1 }

func (c *Calendar) shift(d time.Duration) {
	if !c.dayStart.IsZero() && d > 0 {
		c.dayStart = c.dayStart.Add(d)
	}
}

// Tick returns how many days rolled over since the previous call.
func (c *Calendar) Tick(now time.Time) int {
	if c.dayStart.IsZero() {
		c.dayStart = now
		return 0
	}
	n := 0
	for now.Sub(c.dayStart) >= c.length {
		c.dayStart = c.dayStart.Add(c.length)
		c.day++
		n++
	}
	return n
}

// Milestones tracks served-passenger thresholds, each reached once.
type Milestones struct {
	thresholds []int
	next       int
}

func newMilestones(thresholds []int) *Milestones {
	t := append([]int(nil), thresholds...)
	sort.Ints(t)
	return &Milestones{thresholds: t}
}

// Level is the number of thresholds already reached.
func (m *Milestones) Level() int { return m.next }

// Next returns the next threshold, or false when all are reached.
func (m *Milestones) Next() (int, bool) {
	if m.next >= len(m.thresholds) {
		return 0, false
	}
	return m.thresholds[m.next], true
}

// Check advances past at most one threshold that served has reached.
func (m *Milestones) Check(served int) (level, threshold int, ok bool) {
	t, more := m.Next()
	if !more || served < t {
		return 0, 0, false
	}
	m.next++
	return m.next, t, true
}

package transit

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxWait is how long a passenger tolerates waiting at a stop.
const DefaultMaxWait = 60 * time.Second

// Passenger travels to Destination. CreatedAt moves forward while the game is
// paused, so CreatedAt+MaxWait is always the effective deadline.
type Passenger struct {
	ID          uuid.UUID
	Destination *Stop
	CreatedAt   time.Time
	MaxWait     time.Duration

	lastTick time.Time
}

func NewPassenger(dest *Stop, now time.Time, maxWait time.Duration) *Passenger {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Passenger{
		ID:          uuid.New(),
		Destination: dest,
		CreatedAt:   now,
		MaxWait:     maxWait,
		lastTick:    now,
	}
}

// Deadline is the instant after which the passenger has waited too long.
func (p *Passenger) Deadline() time.Time { return p.CreatedAt.Add(p.MaxWait) }

// Waited is the accrued waiting time at now, excluding paused time.
func (p *Passenger) Waited(now time.Time) time.Duration { return now.Sub(p.CreatedAt) }

// Tick advances the passenger's patience. While paused the creation timestamp
// is shifted by the time elapsed since the previous tick. It reports true when
// the passenger has waited longer than MaxWait.
func (p *Passenger) Tick(now time.Time, paused bool) bool {
	if p.lastTick.IsZero() {
		p.lastTick = now
	}
	elapsed := now.Sub(p.lastTick)
	p.lastTick = now
	if paused {
		if elapsed > 0 {
			p.CreatedAt = p.CreatedAt.Add(elapsed)
		}
		return false
	}
	return p.Deadline().Before(now)
}

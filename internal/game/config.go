package game

import (
	"time"

	"transit-sim/internal/transit"
)

// Config tunes a World. Zero fields fall back to DefaultConfig values.
type Config struct {
	LineColors   []string
	Bus          transit.BusConfig
	MaxWait      time.Duration
	SpawnMin     time.Duration
	SpawnMax     time.Duration
	Milestones   []int
	DayLength    time.Duration
	InitialStops int
	Seed         uint64
}

func DefaultConfig() Config {
	return Config{
		LineColors: []string{"#e53935", "#1e88e5", "#43a047", "#fdd835", "#8e24aa"},
		Bus: transit.BusConfig{
			Capacity: transit.DefaultCapacity,
			Dwell:    transit.DefaultDwell,
			Step:     transit.DefaultStep,
		},
		MaxWait:      transit.DefaultMaxWait,
		SpawnMin:     time.Second,
		SpawnMax:     2 * time.Second,
		Milestones:   []int{2, 200, 1000, 5000},
		DayLength:    time.Minute,
		InitialStops: 3,
		Seed:         1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.LineColors) == 0 {
		c.LineColors = d.LineColors
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.SpawnMin <= 0 {
		c.SpawnMin = d.SpawnMin
	}
	if c.SpawnMax < c.SpawnMin {
		c.SpawnMax = c.SpawnMin
	}
	if c.Milestones == nil {
		c.Milestones = d.Milestones
	}
	if c.DayLength <= 0 {
		c.DayLength = d.DayLength
	}
	if c.InitialStops < 0 {
		c.InitialStops = 0
	}
	return c
}

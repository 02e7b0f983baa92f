package music

import (
	"math"
	"time"
)

// Config bounds a scan.
type Config struct {
	MaxConcurrency int
	CostCeiling    float64
	CostPerHandle  float64
	CostPerPage    float64
	CostPerTrack   float64
	TracksPerPage  float64
	SourceVideoCap int
	CallTimeout    time.Duration
}

// DefaultConfig returns the scan defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		CostCeiling:    400,
		CostPerHandle:  1,
		CostPerPage:    1,
		CostPerTrack:   2,
		TracksPerPage:  0.5,
		SourceVideoCap: 10,
		CallTimeout:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.CostCeiling <= 0 {
		c.CostCeiling = d.CostCeiling
	}
	if c.CostPerHandle <= 0 {
		c.CostPerHandle = d.CostPerHandle
	}
	if c.CostPerPage <= 0 {
		c.CostPerPage = d.CostPerPage
	}
	if c.CostPerTrack <= 0 {
		c.CostPerTrack = d.CostPerTrack
	}
	if c.TracksPerPage <= 0 {
		c.TracksPerPage = d.TracksPerPage
	}
	if c.SourceVideoCap <= 0 {
		c.SourceVideoCap = d.SourceVideoCap
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// EstimateCost is a rough count of backend request units a scan will spend:
// one profile lookup plus depth pages per handle, and a detail fetch for
// every track expected to turn up.
func (c Config) EstimateCost(handles, depth int) float64 {
	h, d := float64(handles), float64(depth)
	tracks := math.Ceil(h * d * c.TracksPerPage)
	return h*(c.CostPerHandle+d*c.CostPerPage) + tracks*c.CostPerTrack
}

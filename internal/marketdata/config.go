package marketdata

import "time"

// Config holds the timing knobs of a Service.
type Config struct {
	FreshnessWindow   time.Duration // Serve the cache without fetching while younger than this (default: 120s)
	PersistenceWindow time.Duration // Max age of a persisted snapshot used as fallback (default: 5m)
	PollInterval      time.Duration // Time between scheduled fetch attempts (default: 5m)
	Cooldown          time.Duration // Polling pause after a rate-limit signal (default: 2m)
	TopTimeout        time.Duration // Bulk list timeout (default: 30s)
	DetailTimeout     time.Duration // Single instrument timeout (default: 20s)
	SeriesTimeout     time.Duration // Series timeout (default: 15s)
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow:   120 * time.Second,
		PersistenceWindow: 5 * time.Minute,
		PollInterval:      5 * time.Minute,
		Cooldown:          2 * time.Minute,
		TopTimeout:        30 * time.Second,
		DetailTimeout:     20 * time.Second,
		SeriesTimeout:     15 * time.Second,
	}
}

// withDefaults fills zero or negative fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.FreshnessWindow, d.FreshnessWindow)
	fill(&c.PersistenceWindow, d.PersistenceWindow)
	fill(&c.PollInterval, d.PollInterval)
	fill(&c.Cooldown, d.Cooldown)
	fill(&c.TopTimeout, d.TopTimeout)
	fill(&c.DetailTimeout, d.DetailTimeout)
	fill(&c.SeriesTimeout, d.SeriesTimeout)
	return c
}

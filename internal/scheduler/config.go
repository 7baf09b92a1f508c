package scheduler

import "time"

// Config tunes the background janitor. Zero values fall back to defaults.
type Config struct {
	Interval         time.Duration
	JobTimeout       time.Duration
	WebhookRetention time.Duration
	DeliveryBatch    int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	if c.WebhookRetention <= 0 {
		c.WebhookRetention = 90 * 24 * time.Hour
	}
	if c.DeliveryBatch <= 0 {
		c.DeliveryBatch = 1000
	}
	return c
}

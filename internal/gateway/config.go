package gateway

import "time"

// Config contains gateway settings. A RequestsPerSecond of zero disables
// rate limiting.
type Config struct {
	MaxRetries        int           `env:"GATEWAY_MAX_RETRIES"         envDefault:"3"`
	RetryDelay        time.Duration `env:"GATEWAY_RETRY_DELAY"         envDefault:"500ms"`
	HistoryWindow     int           `env:"GATEWAY_HISTORY_WINDOW"      envDefault:"10"`
	RequestsPerSecond float64       `env:"GATEWAY_REQUESTS_PER_SECOND" envDefault:"0"`
	Burst             int           `env:"GATEWAY_BURST"               envDefault:"1"`
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.HistoryWindow < 0 {
		c.HistoryWindow = 0
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

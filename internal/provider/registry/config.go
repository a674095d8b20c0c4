package registry

import "time"

// Config contains provider registry settings.
type Config struct {
	DefaultProvider     string        `env:"DEFAULT_PROVIDER"      envDefault:"echo"`
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"60s"`
	AutoSwitchOnError   bool          `env:"AUTO_SWITCH_ON_ERROR"  envDefault:"true"`
	FailureThreshold    uint          `env:"FAILURE_THRESHOLD"     envDefault:"3"`
	BreakerCooldown     time.Duration `env:"BREAKER_COOLDOWN"      envDefault:"30s"`
	SessionCostLimit    float64       `env:"SESSION_COST_LIMIT"    envDefault:"0"`
	SessionTokenLimit   int           `env:"SESSION_TOKEN_LIMIT"   envDefault:"0"`
	CostWarningRatio    float64       `env:"COST_WARNING_RATIO"    envDefault:"0.8"`
	SwitchHistoryLimit  int           `env:"SWITCH_HISTORY_LIMIT"  envDefault:"100"`
}

const (
	defaultFailureThreshold   = 3
	defaultCostWarningRatio   = 0.8
	defaultSwitchHistoryLimit = 100
)

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.CostWarningRatio <= 0 {
		c.CostWarningRatio = defaultCostWarningRatio
	}
	if c.SwitchHistoryLimit <= 0 {
		c.SwitchHistoryLimit = defaultSwitchHistoryLimit
	}
	return c
}

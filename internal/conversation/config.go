package conversation

const (
	defaultTitle         = "New Conversation"
	defaultContextWindow = 10
	defaultMaxHistory    = 50
	defaultMaxSessions   = 50
	minCompactMessages   = 5
	maxTitleLength       = 50
	providerHistoryLimit = 100
)

// Config contains conversation store settings. A CompactionThreshold of zero
// disables compaction. Histories never exceed MaxHistorySize either way.
type Config struct {
	CompactionThreshold int     `env:"COMPACTION_THRESHOLD" envDefault:"20"`
	ContextWindow       int     `env:"CONTEXT_WINDOW"       envDefault:"10"`
	MaxHistorySize      int     `env:"MAX_HISTORY_SIZE"     envDefault:"50"`
	MaxSessions         int     `env:"MAX_SESSIONS"         envDefault:"50"`
	DefaultProvider     string  `env:"DEFAULT_PROVIDER"     envDefault:"echo"`
	DefaultModel        string  `env:"DEFAULT_MODEL"        envDefault:"echo-1"`
	DefaultTemperature  float64 `env:"DEFAULT_TEMPERATURE"  envDefault:"0.7"`
	DefaultMaxTokens    int     `env:"DEFAULT_MAX_TOKENS"   envDefault:"2048"`
}

func (c Config) withDefaults() Config {
	if c.CompactionThreshold < 0 {
		c.CompactionThreshold = 0
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = defaultContextWindow
	}
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = defaultMaxHistory
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = defaultMaxSessions
	}
	return c
}

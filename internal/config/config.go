package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/conversation"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/gateway"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/persistence"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/catalog"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/echo"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/ollama"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/openai"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/registry"
)

// Config represents the engine configuration.
type Config struct {
	Server       ServerConfig
	CORS         CORSConfig
	Registry     registry.Config
	Conversation conversation.Config
	Gateway      gateway.Config
	Events       events.Config
	Persistence  persistence.Config
	Catalog      catalog.Config
	OpenAI       openai.Config
	Ollama       ollama.Config
	Echo         echo.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"0"` // SSE streams stay open
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Server       *ServerConfig
	CORS         *CORSConfig
	Registry     *registry.Config
	Conversation *conversation.Config
	Gateway      *gateway.Config
	Events       *events.Config
	Persistence  *persistence.Config
	Catalog      *catalog.Config
	OpenAI       *openai.Config
	Ollama       *ollama.Config
	Echo         *echo.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:       &cfg.Server,
		CORS:         &cfg.CORS,
		Registry:     &cfg.Registry,
		Conversation: &cfg.Conversation,
		Gateway:      &cfg.Gateway,
		Events:       &cfg.Events,
		Persistence:  &cfg.Persistence,
		Catalog:      &cfg.Catalog,
		OpenAI:       &cfg.OpenAI,
		Ollama:       &cfg.Ollama,
		Echo:         &cfg.Echo,
	}
}

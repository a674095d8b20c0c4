package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/config"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/conversation"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/gateway"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/http"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/http/middleware"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/persistence"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/catalog"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/echo"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/ollama"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/openai"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/registry"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/scheduler"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/tools"
)

const (
	shutdownTimeout = 10 * time.Second
	healthCheckJob  = "health-check"
	autosaveJob     = "autosave"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	container := buildContainer()

	if err := container.Invoke(run); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Event bus
	if err := container.Provide(func(cfg *events.Config) *events.Bus {
		bus := events.New(*cfg)
		bus.Start()
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Pricing and catalog
	if err := container.Provide(func() domain.PricingRegistry {
		return domain.NewInMemoryPricingRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(loadCatalog); err != nil {
		log.Fatalf("Failed to provide provider catalog: %v", err)
	}

	// Provider Registry
	if err := container.Provide(buildRegistry); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Conversations
	if err := container.Provide(func(cfg *conversation.Config, bus *events.Bus, reg *registry.Registry) *conversation.Store {
		return conversation.NewStore(*cfg, bus, reg)
	}); err != nil {
		log.Fatalf("Failed to provide conversation store: %v", err)
	}

	// Tools
	if err := container.Provide(func() (*tools.Registry, error) {
		toolset := tools.NewRegistry()
		if err := tools.RegisterBuiltins(toolset); err != nil {
			return nil, fmt.Errorf("failed to register builtin tools: %w", err)
		}
		return toolset, nil
	}); err != nil {
		log.Fatalf("Failed to provide tools: %v", err)
	}

	// Gateway
	if err := container.Provide(func(
		cfg *gateway.Config,
		reg *registry.Registry,
		store *conversation.Store,
		toolset *tools.Registry,
		pricing domain.PricingRegistry,
		bus *events.Bus,
	) *gateway.Gateway {
		return gateway.NewGateway(*cfg, reg, store, toolset, domain.NewStandardCostCalculator(pricing), bus)
	}); err != nil {
		log.Fatalf("Failed to provide gateway: %v", err)
	}

	// Persistence
	if err := container.Provide(func(cfg *persistence.Config) (persistence.Backend, error) {
		return persistence.Open(context.Background(), *cfg)
	}); err != nil {
		log.Fatalf("Failed to provide persistence: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(cfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

func loadCatalog(cfg *catalog.Config) (catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default(), nil
	}

	cat, err := catalog.Load(cfg.Path)
	if err != nil {
		return catalog.Catalog{}, fmt.Errorf("failed to load provider catalog: %w", err)
	}
	return cat, nil
}

type registryParams struct {
	dig.In

	Config  *registry.Config
	Bus     *events.Bus
	Pricing domain.PricingRegistry
	Catalog catalog.Catalog
	Echo    *echo.Config
	OpenAI  *openai.Config
	Ollama  *ollama.Config
}

// buildRegistry registers every configured provider. Providers without a
// credential are still registered so they can be listed and set up later.
func buildRegistry(p registryParams) (*registry.Registry, error) {
	ctx := context.Background()
	reg := registry.NewRegistry(*p.Config, p.Bus, p.Pricing)

	if err := catalog.RegisterPricing(ctx, p.Catalog, p.Pricing); err != nil {
		return nil, err
	}

	if p.Echo.Enabled {
		if err := echo.RegisterPricing(ctx, p.Pricing); err != nil {
			return nil, fmt.Errorf("failed to register echo pricing: %w", err)
		}
		if err := reg.Register(ctx, registry.Definition{
			ID:            echo.ProviderID,
			DisplayName:   "Echo",
			HasCredential: true,
		}, echo.NewProvider()); err != nil {
			return nil, fmt.Errorf("failed to register echo provider: %w", err)
		}
	}

	openaiDef := definition(p.Catalog, openai.ProviderID, openai.DefaultModels())
	var openaiClient domain.ProviderClient
	if p.OpenAI.APIKey != "" {
		provider, err := openai.NewProvider(*p.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
		}
		openaiClient = provider
		openaiDef.HasCredential = true
	}
	if err := reg.Register(ctx, openaiDef, openaiClient); err != nil {
		return nil, fmt.Errorf("failed to register OpenAI provider: %w", err)
	}

	if p.Ollama.Enabled {
		def := definition(p.Catalog, ollama.ProviderID, nil)
		def.HasCredential = true
		if err := reg.Register(ctx, def, ollama.NewClient(*p.Ollama, def.Models)); err != nil {
			return nil, fmt.Errorf("failed to register Ollama provider: %w", err)
		}
	}

	return reg, nil
}

func definition(cat catalog.Catalog, id string, fallback []domain.Model) registry.Definition {
	if entry, ok := cat.Lookup(id); ok {
		return entry.Definition()
	}
	return registry.Definition{ID: id, Models: fallback}
}

type appParams struct {
	dig.In

	Registry    *registry.Registry
	Store       *conversation.Store
	Bus         *events.Bus
	Backend     persistence.Backend
	Pricing     domain.PricingRegistry
	Server      *http.Server
	RegistryCfg *registry.Config
	StorageCfg  *persistence.Config
	CatalogCfg  *catalog.Config
}

func run(p appParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.FromContext(ctx)

	detachLogger := events.AttachLogger(p.Bus)
	defer detachLogger()

	if err := p.Registry.Restore(ctx, p.Backend); err != nil {
		return err
	}
	if err := p.Store.Restore(ctx, p.Backend); err != nil {
		return err
	}
	if err := p.Registry.Initialize(ctx); err != nil {
		return err
	}

	jobs := scheduler.New()
	if err := jobs.Every(healthCheckJob, p.RegistryCfg.HealthCheckInterval, func(ctx context.Context) error {
		p.Registry.CheckHealth(ctx)
		return nil
	}); err != nil {
		return err
	}
	if p.StorageCfg.AutosaveInterval > 0 {
		if err := jobs.Every(autosaveJob, p.StorageCfg.AutosaveInterval, func(ctx context.Context) error {
			return save(ctx, p)
		}); err != nil {
			return err
		}
	}
	jobs.Start(ctx)

	if p.CatalogCfg.Watch && p.CatalogCfg.Path != "" {
		watcher, err := catalog.NewWatcher(p.CatalogCfg.Path, 0, func(ctx context.Context, cat catalog.Catalog) {
			if err := catalog.RegisterPricing(ctx, cat, p.Pricing); err != nil {
				observability.FromContext(ctx).Error("failed to register reloaded pricing", observability.Error(err))
				return
			}
			updated := p.Registry.ApplyCatalog(ctx, cat.Definitions())
			observability.FromContext(ctx).Info("provider catalog reloaded", observability.Int("providers", updated))
		})
		if err != nil {
			return err
		}
		watcher.Start(ctx)
		defer func() { _ = watcher.Close() }()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- p.Server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server stopped", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, p.Server.Shutdown(shutdownCtx))
	jobs.Stop()
	errs = append(errs, save(shutdownCtx, p))
	errs = append(errs, p.Backend.Close())
	p.Store.Close()
	p.Bus.Stop()

	return errors.Join(errs...)
}

func save(ctx context.Context, p appParams) error {
	return errors.Join(
		p.Registry.Save(ctx, p.Backend),
		p.Store.Save(ctx, p.Backend),
	)
}

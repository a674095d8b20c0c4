package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/mocks"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/persistence/memory"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/registry"
)

var errProbe = errors.New("connection refused")

// recorder collects every published event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]events.Name, 0, len(r.events))
	for _, evt := range r.events {
		names = append(names, evt.Name)
	}
	return names
}

func (r *recorder) count(name events.Name) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name events.Name) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func healthyClient() *mocks.MockProviderClient {
	client := &mocks.MockProviderClient{}
	client.On("Probe", mock.Anything).Return(nil)
	return client
}

func failingClient() *mocks.MockProviderClient {
	client := &mocks.MockProviderClient{}
	client.On("Probe", mock.Anything).Return(errProbe)
	return client
}

func definition(id string, models ...string) registry.Definition {
	def := registry.Definition{ID: id, DisplayName: id, HasCredential: true}
	for _, m := range models {
		def.Models = append(def.Models, domain.Model{ID: m, DisplayName: m})
	}
	if len(def.Models) == 0 {
		def.Models = []domain.Model{{ID: id + "-model", DisplayName: id}}
	}
	return def
}

func newRegistry(t *testing.T, cfg registry.Config, ids ...string) (*registry.Registry, *recorder) {
	t.Helper()

	bus := events.New(events.Config{})
	bus.Start()
	rec := &recorder{}
	bus.SubscribeAll(rec.handle, "test")

	reg := registry.NewRegistry(cfg, bus, domain.NewInMemoryPricingRegistry())
	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, reg.Register(ctx, definition(id), healthyClient()))
	}
	return reg, rec
}

func defaultConfig() registry.Config {
	return registry.Config{
		DefaultProvider:   "openai",
		AutoSwitchOnError: true,
		FailureThreshold:  3,
		CostWarningRatio:  0.8,
	}
}

func TestRegistry_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject an empty id", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())

		err := reg.Register(ctx, registry.Definition{}, healthyClient())

		require.Error(t, err)
		require.Contains(t, err.Error(), "provider id cannot be empty")
	})

	t.Run("should reject a duplicate id", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai")

		err := reg.Register(ctx, definition("openai"), healthyClient())

		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})

	t.Run("should take models from the client when none are defined", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())
		client := healthyClient()
		client.On("Models").Return([]domain.Model{{ID: "llama3"}, {ID: "mistral"}})

		require.NoError(t, reg.Register(ctx, registry.Definition{ID: "ollama", HasCredential: true}, client))

		p, err := reg.Get("ollama")
		require.NoError(t, err)
		require.Equal(t, "llama3", p.Model)
		require.Len(t, p.AvailableModels, 2)
		require.Equal(t, domain.StatusDisconnected, p.Status)
		require.Equal(t, "closed", p.BreakerState)
	})

	t.Run("should register pricing from the definition", func(t *testing.T) {
		pricing := domain.NewInMemoryPricingRegistry()
		reg := registry.NewRegistry(defaultConfig(), nil, pricing)
		def := definition("openai", "gpt-4o")
		def.Pricing = map[string]domain.PricingConfig{"gpt-4o": {InputCostPer1K: 0.005, OutputCostPer1K: 0.015}}

		require.NoError(t, reg.Register(ctx, def, healthyClient()))

		got, err := pricing.GetPricing(ctx, "gpt-4o")
		require.NoError(t, err)
		require.Equal(t, 0.015, got.OutputCostPer1K)
	})

	t.Run("should never mark a provider without client as credentialed", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())

		require.NoError(t, reg.Register(ctx, definition("openai"), nil))

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.False(t, p.HasCredential)
		_, err = reg.Client("openai")
		require.ErrorIs(t, err, domain.ErrMissingCredential)
	})
}

func TestRegistry_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("should connect credentialed providers and activate the default", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai", "echo")

		require.NoError(t, reg.Initialize(ctx))

		for _, p := range reg.List() {
			require.Equal(t, domain.StatusConnected, p.Status, p.ID)
		}
		require.Equal(t, "openai", reg.ActiveID())
		require.Equal(t, 1, rec.count(events.ProviderActivated))
		require.Equal(t, 4, rec.count(events.ProviderStatusChanged))
	})

	t.Run("should mark providers with failing probes as error", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())
		require.NoError(t, reg.Register(ctx, definition("openai"), failingClient()))
		require.NoError(t, reg.Register(ctx, definition("echo"), healthyClient()))

		require.NoError(t, reg.Initialize(ctx))

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.Equal(t, domain.StatusError, p.Status)
		require.Equal(t, errProbe.Error(), p.LastError)
	})

	t.Run("should skip providers without credential", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())
		def := definition("openai")
		def.HasCredential = false
		client := &mocks.MockProviderClient{}
		require.NoError(t, reg.Register(ctx, def, client))

		require.NoError(t, reg.Initialize(ctx))

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.Equal(t, domain.StatusDisconnected, p.Status)
		client.AssertNotCalled(t, "Probe", mock.Anything)
	})

	t.Run("should fall back to the first connected provider", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.DefaultProvider = "missing"
		reg, _ := newRegistry(t, cfg)
		require.NoError(t, reg.Register(ctx, definition("openai"), failingClient()))
		require.NoError(t, reg.Register(ctx, definition("echo"), healthyClient()))

		require.NoError(t, reg.Initialize(ctx))

		require.Equal(t, "echo", reg.ActiveID())
	})
}

func TestRegistry_SwitchActiveProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("should leave state unchanged for an unknown provider", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))
		historyBefore := reg.SwitchHistory()
		rec.reset()

		_, err := reg.SwitchActiveProvider(ctx, "missing", "user", "")

		require.ErrorIs(t, err, domain.ErrUnknownProvider)
		require.Equal(t, "openai", reg.ActiveID())
		require.Equal(t, historyBefore, reg.SwitchHistory())
		require.Empty(t, rec.names())
	})

	t.Run("should record the switch and emit events in order", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))
		rec.reset()

		record, err := reg.SwitchActiveProvider(ctx, "echo", "user", "conv-1")

		require.NoError(t, err)
		require.Equal(t, "openai", record.From)
		require.Equal(t, "echo", record.To)
		require.Equal(t, "conv-1", record.ConversationID)
		require.Equal(t, "echo", reg.ActiveID())
		require.Equal(t, []events.Name{
			events.ActiveProviderChanged,
			events.ProviderActivated,
			events.ProviderDeactivated,
		}, rec.names())

		evt, ok := rec.last(events.ActiveProviderChanged)
		require.True(t, ok)
		payload := evt.Data.(events.ActiveProviderChangedPayload)
		require.Equal(t, "openai", payload.PreviousProvider)
		require.Equal(t, "conv-1", payload.ConversationID)
	})

	t.Run("should use an empty from on the first switch", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai")

		record, err := reg.SwitchActiveProvider(ctx, "openai", "user", "")

		require.NoError(t, err)
		require.Empty(t, record.From)
		require.Zero(t, rec.count(events.ProviderDeactivated))
	})

	t.Run("should warn but switch to a provider that is not connected", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai")

		_, err := reg.SwitchActiveProvider(ctx, "openai", "user", "")

		require.NoError(t, err)
		require.Equal(t, "openai", reg.ActiveID())
		names := rec.names()
		require.Equal(t, events.ProviderSwitchWarning, names[0])
		require.Equal(t, events.ActiveProviderChanged, names[1])
	})

	t.Run("should cap the switch history", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.SwitchHistoryLimit = 3
		reg, _ := newRegistry(t, cfg, "openai", "echo")

		targets := []string{"openai", "echo", "openai", "echo", "openai"}
		for _, id := range targets {
			_, err := reg.SwitchActiveProvider(ctx, id, "user", "")
			require.NoError(t, err)
		}

		history := reg.SwitchHistory()
		require.Len(t, history, 3)
		require.Equal(t, "openai", history[0].To)
		require.Equal(t, "echo", history[1].To)
		require.Equal(t, "openai", history[2].To)
	})
}

func TestRegistry_Models(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		provider string
		model    string
		wantErr  error
	}{
		{name: "should select a known model", provider: "openai", model: "gpt-4o-mini"},
		{name: "should reject an unknown model", provider: "openai", model: "gpt-2", wantErr: domain.ErrUnknownModel},
		{name: "should reject an unknown provider", provider: "missing", model: "gpt-4o", wantErr: domain.ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := newRegistry(t, defaultConfig())
			require.NoError(t, reg.Register(ctx, definition("openai", "gpt-4o", "gpt-4o-mini"), healthyClient()))

			err := reg.SetModel(ctx, tt.provider, tt.model)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				p, getErr := reg.Get("openai")
				require.NoError(t, getErr)
				require.Equal(t, "gpt-4o", p.Model)
				return
			}
			require.NoError(t, err)
			p, err := reg.Get(tt.provider)
			require.NoError(t, err)
			require.Equal(t, tt.model, p.Model)
		})
	}
}

func TestRegistry_SetCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("should disconnect a provider that loses its credential", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai")
		require.NoError(t, reg.Initialize(ctx))
		rec.reset()

		require.NoError(t, reg.SetCredential(ctx, "openai", false))

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.False(t, p.HasCredential)
		require.Equal(t, domain.StatusDisconnected, p.Status)
		require.Equal(t, []events.Name{events.ProviderCredentialChange, events.ProviderStatusChanged}, rec.names())
		_, err = reg.Client("openai")
		require.ErrorIs(t, err, domain.ErrMissingCredential)
	})

	t.Run("should restore the credential", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai")
		require.NoError(t, reg.SetCredential(ctx, "openai", false))

		require.NoError(t, reg.SetCredential(ctx, "openai", true))

		client, err := reg.Client("openai")
		require.NoError(t, err)
		require.NotNil(t, client)
	})

	t.Run("should reject an unknown provider", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())

		err := reg.SetCredential(ctx, "missing", true)

		require.ErrorIs(t, err, domain.ErrUnknownProvider)
	})
}

func TestRegistry_TrackUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("should sum usage on the provider and globally", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai")

		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 10, Cost: 0.01}))
		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 10, Cost: 0.01}))

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.InDelta(t, 0.02, p.CostTracking.TotalCost, 1e-9)
		require.InDelta(t, 0.02, p.CostTracking.SessionCost, 1e-9)
		require.Equal(t, 20, p.CostTracking.TotalTokens)
		require.InDelta(t, 0.02, reg.GlobalCostTracking().TotalCost, 1e-9)
		require.Equal(t, 2, rec.count(events.ProviderUsageTracked))
	})

	t.Run("should keep totals when the session resets", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 100, Cost: 0.5}))
		require.NoError(t, reg.TrackUsage(ctx, "echo", domain.UsageReport{Tokens: 50, Cost: 0.25}))

		reg.ResetSessionUsage(ctx)

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.Zero(t, p.CostTracking.SessionCost)
		require.Zero(t, p.CostTracking.SessionTokens)
		require.InDelta(t, 0.5, p.CostTracking.TotalCost, 1e-9)
		global := reg.GlobalCostTracking()
		require.Zero(t, global.SessionCost)
		require.InDelta(t, 0.75, global.TotalCost, 1e-9)
		require.Equal(t, 150, global.TotalTokens)
	})

	t.Run("should reject an unknown provider", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig())

		err := reg.TrackUsage(ctx, "missing", domain.UsageReport{Tokens: 1})

		require.ErrorIs(t, err, domain.ErrUnknownProvider)
		require.Zero(t, reg.GlobalCostTracking().TotalTokens)
	})

	t.Run("should warn once per session when crossing a limit", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.SessionCostLimit = 1.0
		cfg.SessionTokenLimit = 1000
		reg, rec := newRegistry(t, cfg, "openai")

		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 100, Cost: 0.5}))
		require.Zero(t, rec.count(events.CostLimitWarning))

		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 100, Cost: 0.4}))
		require.Equal(t, 1, rec.count(events.CostLimitWarning))
		evt, ok := rec.last(events.CostLimitWarning)
		require.True(t, ok)
		payload := evt.Data.(events.CostLimitWarningPayload)
		require.Equal(t, events.LimitTypeCost, payload.Type)
		require.InDelta(t, 90.0, payload.Percentage, 1e-6)

		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 700, Cost: 0.05}))
		require.Equal(t, 2, rec.count(events.CostLimitWarning))
		evt, _ = rec.last(events.CostLimitWarning)
		require.Equal(t, events.LimitTypeTokens, evt.Data.(events.CostLimitWarningPayload).Type)

		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 10, Cost: 0.01}))
		require.Equal(t, 2, rec.count(events.CostLimitWarning))

		reg.ResetSessionUsage(ctx)
		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 10, Cost: 0.9}))
		require.Equal(t, 3, rec.count(events.CostLimitWarning))
	})
}

func TestRegistry_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("should auto switch after reaching the failure threshold", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))
		require.Equal(t, "openai", reg.ActiveID())

		reg.RecordFailure(ctx, "openai", errProbe)
		p, _ := reg.Get("openai")
		require.Equal(t, domain.StatusDegraded, p.Status)
		reg.RecordFailure(ctx, "openai", errProbe)
		require.Equal(t, "openai", reg.ActiveID())
		reg.RecordFailure(ctx, "openai", errProbe)

		require.Equal(t, "echo", reg.ActiveID())
		p, _ = reg.Get("openai")
		require.Equal(t, domain.StatusError, p.Status)
		require.Equal(t, uint(3), p.ConsecutiveFailures)

		evt, ok := rec.last(events.ProviderAutoSwitched)
		require.True(t, ok)
		payload := evt.Data.(events.ProviderAutoSwitchedPayload)
		require.Equal(t, "openai", payload.From)
		require.Equal(t, "echo", payload.To)
		history := reg.SwitchHistory()
		require.Equal(t, "error-recovery", history[len(history)-1].Reason)
	})

	t.Run("should not switch when a non-active provider fails", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))

		for range 3 {
			reg.RecordFailure(ctx, "echo", errProbe)
		}

		require.Equal(t, "openai", reg.ActiveID())
		require.Zero(t, rec.count(events.ProviderAutoSwitched))
	})

	t.Run("should not switch when auto switching is disabled", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.AutoSwitchOnError = false
		reg, _ := newRegistry(t, cfg, "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))

		for range 3 {
			reg.RecordFailure(ctx, "openai", errProbe)
		}

		require.Equal(t, "openai", reg.ActiveID())
	})

	t.Run("should report a failed auto switch without candidates", func(t *testing.T) {
		reg, rec := newRegistry(t, defaultConfig(), "openai")
		require.NoError(t, reg.Initialize(ctx))

		for range 3 {
			reg.RecordFailure(ctx, "openai", errProbe)
		}

		require.Equal(t, "openai", reg.ActiveID())
		require.Equal(t, 1, rec.count(events.ProviderAutoSwitchFailed))
	})

	t.Run("should open the breaker at the threshold", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai")
		require.NoError(t, reg.Allow("openai"))

		for range 3 {
			reg.RecordFailure(ctx, "openai", errProbe)
		}

		require.ErrorIs(t, reg.Allow("openai"), domain.ErrProviderUnavailable)
		p, _ := reg.Get("openai")
		require.Equal(t, "open", p.BreakerState)
		require.ErrorIs(t, reg.Allow("missing"), domain.ErrUnknownProvider)
	})

	t.Run("should reconnect on success", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))
		for range 3 {
			reg.RecordFailure(ctx, "openai", errProbe)
		}

		reg.RecordSuccess(ctx, "openai")

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.Equal(t, domain.StatusConnected, p.Status)
		require.Zero(t, p.ConsecutiveFailures)
		require.Empty(t, p.LastError)
		require.False(t, p.LastUsedAt.IsZero())
		require.NoError(t, reg.Allow("openai"))
	})
}

func TestRegistry_CheckHealth(t *testing.T) {
	t.Run("should probe credentialed providers and report the summary", func(t *testing.T) {
		ctx := context.Background()
		reg, rec := newRegistry(t, defaultConfig())
		healthy := healthyClient()
		flaky := &mocks.MockProviderClient{}
		flaky.On("Probe", mock.Anything).Return(nil).Once()
		flaky.On("Probe", mock.Anything).Return(errProbe)
		require.NoError(t, reg.Register(ctx, definition("openai"), healthy))
		require.NoError(t, reg.Register(ctx, definition("ollama"), flaky))
		require.NoError(t, reg.Initialize(ctx))

		reg.CheckHealth(ctx)

		p, err := reg.Get("ollama")
		require.NoError(t, err)
		require.Equal(t, domain.StatusDegraded, p.Status)
		evt, ok := rec.last(events.ProviderHealthChecked)
		require.True(t, ok)
		payload := evt.Data.(events.ProviderHealthCheckedPayload)
		require.Equal(t, 2, payload.Checked)
		require.Equal(t, 1, payload.Healthy)
	})

	t.Run("should fail over when the active provider keeps failing health checks", func(t *testing.T) {
		ctx := context.Background()
		reg, rec := newRegistry(t, defaultConfig())
		primary := &mocks.MockProviderClient{}
		primary.On("Probe", mock.Anything).Return(nil).Once()
		primary.On("Probe", mock.Anything).Return(errProbe)
		require.NoError(t, reg.Register(ctx, definition("openai"), primary))
		require.NoError(t, reg.Register(ctx, definition("ollama"), healthyClient()))
		require.NoError(t, reg.Initialize(ctx))
		require.Equal(t, "openai", reg.ActiveID())

		for range 2 {
			reg.CheckHealth(ctx)
		}
		require.Equal(t, "openai", reg.ActiveID())
		require.Zero(t, rec.count(events.ProviderAutoSwitched))

		reg.CheckHealth(ctx)

		require.Equal(t, "ollama", reg.ActiveID())
		evt, ok := rec.last(events.ProviderAutoSwitched)
		require.True(t, ok)
		payload := evt.Data.(events.ProviderAutoSwitchedPayload)
		require.Equal(t, "openai", payload.From)
		require.Equal(t, "ollama", payload.To)
		require.Equal(t, "error-recovery", payload.Reason)

		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.Equal(t, domain.StatusError, p.Status)
		require.Equal(t, "open", p.BreakerState)
	})
}

func TestRegistry_Persistence(t *testing.T) {
	ctx := context.Background()

	t.Run("should restore totals, models, active provider and history", func(t *testing.T) {
		store := memory.New()
		reg, _ := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, reg.Initialize(ctx))
		_, err := reg.SwitchActiveProvider(ctx, "echo", "user", "")
		require.NoError(t, err)
		require.NoError(t, reg.TrackUsage(ctx, "echo", domain.UsageReport{Tokens: 42, Cost: 0.2}))
		require.NoError(t, reg.Save(ctx, store))

		restored, _ := newRegistry(t, defaultConfig(), "openai", "echo")
		require.NoError(t, restored.Restore(ctx, store))

		require.Equal(t, "echo", restored.ActiveID())
		p, err := restored.Get("echo")
		require.NoError(t, err)
		require.InDelta(t, 0.2, p.CostTracking.TotalCost, 1e-9)
		require.Zero(t, p.CostTracking.SessionCost)
		require.Equal(t, 42, restored.GlobalCostTracking().TotalTokens)
		require.Len(t, restored.SwitchHistory(), 2)
	})

	t.Run("should treat missing state as empty", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai")

		require.NoError(t, reg.Restore(ctx, memory.New()))
		require.Empty(t, reg.ActiveID())
	})

	t.Run("should start fresh when state cannot be read", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai", "echo")
		store := &mocks.MockPersistence{}
		store.On("Get", mock.Anything, registry.StateKey).Return(nil, errProbe)

		require.NoError(t, reg.Restore(ctx, store))
		require.NoError(t, reg.Initialize(ctx))
		require.Equal(t, "openai", reg.ActiveID())
		require.NoError(t, reg.TrackUsage(ctx, "openai", domain.UsageReport{Tokens: 10, Cost: 0.01}))
		store.AssertExpectations(t)
	})

	t.Run("should start fresh when state is corrupt", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai")
		backend := memory.New()
		require.NoError(t, backend.Set(ctx, registry.StateKey, []byte("[]")))

		require.NoError(t, reg.Restore(ctx, backend))
		require.Empty(t, reg.SwitchHistory())
		require.NoError(t, reg.Initialize(ctx))
		require.Equal(t, "openai", reg.ActiveID())
	})

	t.Run("should surface persistence errors", func(t *testing.T) {
		reg, _ := newRegistry(t, defaultConfig(), "openai")
		store := &mocks.MockPersistence{}
		store.On("Set", mock.Anything, registry.StateKey, mock.Anything).Return(errProbe)

		err := reg.Save(ctx, store)

		require.ErrorIs(t, err, errProbe)
		store.AssertExpectations(t)
	})
}

func TestRegistry_ApplyCatalog(t *testing.T) {
	t.Run("should refresh known providers and skip unknown ones", func(t *testing.T) {
		ctx := context.Background()
		reg, _ := newRegistry(t, defaultConfig())
		require.NoError(t, reg.Register(ctx, definition("openai", "gpt-4o"), healthyClient()))

		updated := reg.ApplyCatalog(ctx, []registry.Definition{
			{ID: "openai", DisplayName: "OpenAI", DefaultModel: "gpt-4.1", Models: []domain.Model{{ID: "gpt-4.1"}}},
			{ID: "unknown", DisplayName: "Unknown"},
		})

		require.Equal(t, 1, updated)
		p, err := reg.Get("openai")
		require.NoError(t, err)
		require.Equal(t, "OpenAI", p.DisplayName)
		require.Equal(t, "gpt-4.1", p.Model)
		require.False(t, reg.HasProvider("unknown"))
	})
}

func TestRegistry_FailureLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	observability.SetLogger(zap.New(core))
	t.Cleanup(func() { observability.SetLogger(zap.NewNop()) })

	reg, _ := newRegistry(t, defaultConfig(), "openai")
	ctx := context.Background()

	for name, callCtx := range map[string]context.Context{
		"should name the provider once":                         ctx,
		"should name the provider once when the context has it": observability.WithProvider(ctx, "openai"),
	} {
		t.Run(name, func(t *testing.T) {
			before := logs.FilterMessage("provider call failed").Len()

			reg.RecordFailure(callCtx, "openai", errProbe)

			entries := logs.FilterMessage("provider call failed").All()
			require.Len(t, entries, before+1)
			last := entries[len(entries)-1]
			keys := 0
			for _, field := range last.Context {
				if field.Key == "provider" {
					keys++
				}
			}
			require.Equal(t, 1, keys)
			require.Equal(t, "openai", last.ContextMap()["provider"])
		})
	}
}

// Package catalog loads the static provider catalog: display names, models
// and per-model pricing.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/registry"
)

// ErrUnsupportedFormat is returned for catalog files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported catalog format")

// Config contains catalog settings.
type Config struct {
	Path  string `env:"PROVIDER_CATALOG"`
	Watch bool   `env:"PROVIDER_CATALOG_WATCH" envDefault:"false"`
}

// Catalog is the root of a catalog file.
type Catalog struct {
	Providers []Entry `toml:"providers" yaml:"providers"`
}

// Entry describes one provider.
type Entry struct {
	ID           string       `toml:"id"            yaml:"id"`
	DisplayName  string       `toml:"display_name"  yaml:"display_name"`
	DefaultModel string       `toml:"default_model" yaml:"default_model"`
	Models       []ModelEntry `toml:"models"        yaml:"models"`
}

// ModelEntry describes one model and its per-1K token rates.
type ModelEntry struct {
	ID              string  `toml:"id"                 yaml:"id"`
	DisplayName     string  `toml:"display_name"       yaml:"display_name"`
	ContextWindow   int     `toml:"context_window"     yaml:"context_window"`
	InputCostPer1K  float64 `toml:"input_cost_per_1k"  yaml:"input_cost_per_1k"`
	OutputCostPer1K float64 `toml:"output_cost_per_1k" yaml:"output_cost_per_1k"`
}

// Load reads a catalog file, choosing the decoder by extension.
func Load(path string) (Catalog, error) {
	var cat Catalog

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cat); err != nil {
			return Catalog{}, fmt.Errorf("parse catalog %q: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("read catalog %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return Catalog{}, fmt.Errorf("parse catalog %q: %w", path, err)
		}
	default:
		return Catalog{}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// Validate checks ids are present and unique and default models exist.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Providers))

	for i, p := range c.Providers {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("providers[%d]: id must be provided", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.DefaultModel != "" && !p.hasModel(p.DefaultModel) {
			return fmt.Errorf("provider %s: default_model %s is not listed in models", p.ID, p.DefaultModel)
		}
	}

	return nil
}

// Lookup returns the entry for id.
func (c Catalog) Lookup(id string) (Entry, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return Entry{}, false
}

// Definitions converts the catalog into registry definitions. Credentials are
// not part of the catalog and are left unset.
func (c Catalog) Definitions() []registry.Definition {
	defs := make([]registry.Definition, 0, len(c.Providers))
	for _, p := range c.Providers {
		defs = append(defs, p.Definition())
	}
	return defs
}

// Definition converts the entry into a registry definition.
func (e Entry) Definition() registry.Definition {
	def := registry.Definition{
		ID:           e.ID,
		DisplayName:  e.DisplayName,
		DefaultModel: e.DefaultModel,
		Models:       make([]domain.Model, 0, len(e.Models)),
		Pricing:      e.Pricing(),
	}
	for _, m := range e.Models {
		def.Models = append(def.Models, domain.Model{
			ID:            m.ID,
			DisplayName:   m.DisplayName,
			ContextWindow: m.ContextWindow,
		})
	}
	return def
}

// Pricing returns the per-model rates of the entry.
func (e Entry) Pricing() map[string]domain.PricingConfig {
	pricing := make(map[string]domain.PricingConfig, len(e.Models))
	for _, m := range e.Models {
		pricing[m.ID] = domain.PricingConfig{
			InputCostPer1K:  m.InputCostPer1K,
			OutputCostPer1K: m.OutputCostPer1K,
		}
	}
	return pricing
}

func (e Entry) hasModel(id string) bool {
	for _, m := range e.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// RegisterPricing registers every model's rates with the pricing registry.
func RegisterPricing(ctx context.Context, cat Catalog, pricing domain.PricingRegistry) error {
	for _, p := range cat.Providers {
		for model, cfg := range p.Pricing() {
			if err := pricing.RegisterPricing(ctx, model, cfg); err != nil {
				return fmt.Errorf("register pricing for %s/%s: %w", p.ID, model, err)
			}
		}
	}
	return nil
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{Providers: []Entry{
		{
			ID:           "openai",
			DisplayName:  "OpenAI",
			DefaultModel: "gpt-4o-mini",
			Models: []ModelEntry{
				{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", ContextWindow: 128000, InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006},
				{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000, InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
				{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", ContextWindow: 128000, InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
			},
		},
		{
			ID:           "ollama",
			DisplayName:  "Ollama",
			DefaultModel: "llama3.2",
			Models: []ModelEntry{
				{ID: "llama3.2", DisplayName: "Llama 3.2", ContextWindow: 128000},
				{ID: "qwen2.5", DisplayName: "Qwen 2.5", ContextWindow: 32768},
			},
		},
		{
			ID:           "echo",
			DisplayName:  "Echo",
			DefaultModel: "echo-1",
			Models: []ModelEntry{
				{ID: "echo-1", DisplayName: "Echo", ContextWindow: 8192},
			},
		},
	}}
}

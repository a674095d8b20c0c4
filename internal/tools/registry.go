// Package tools holds the tools a model may call, validates their arguments
// against JSON schemas and runs them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// Handler runs a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-described function offered to models.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any // JSON schema of the arguments object; nil accepts anything
	Handler     Handler
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry implements domain.ToolExecutor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registered)}
}

// Register compiles the tool's schema and adds it, replacing any tool of the
// same name. Names are case-insensitive.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s: handler cannot be nil", t.Name)
	}

	var compiled *jsonschema.Schema
	if t.Schema != nil {
		var err error
		compiled, err = compileSchema(t.Name, t.Schema)
		if err != nil {
			return fmt.Errorf("tool %s: failed to compile schema: %w", t.Name, err)
		}
	}

	r.mu.Lock()
	r.tools[strings.ToLower(t.Name)] = &registered{tool: t, schema: compiled}
	r.mu.Unlock()

	return nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	url := "mem://tools/" + strings.ToLower(name) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Invoke validates args against the tool's schema and runs it.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	entry, ok := r.tools[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, domain.ErrUnknownTool)
	}

	if args == nil {
		args = map[string]any{}
	}

	if entry.schema != nil {
		if err := validate(entry.schema, args); err != nil {
			return nil, fmt.Errorf("tool %s: %w: %v", name, domain.ErrInvalidToolArguments, err)
		}
	}

	result, err := entry.tool.Handler(ctx, args)
	if err != nil {
		observability.FromContext(ctx).Warn("tool execution failed",
			observability.String("tool", name),
			observability.Error(err))
		return nil, fmt.Errorf("tool %s: %w: %v", name, domain.ErrToolExecutionFailed, err)
	}

	return result, nil
}

// validate round-trips args through the validator's own decoder so numbers
// reach it in the representation it expects.
func validate(schema *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

// Definitions lists the registered tools by name.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, entry := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        entry.tool.Name,
			Description: entry.tool.Description,
			Parameters:  entry.tool.Schema,
		})
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b domain.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// ParseArguments decodes the raw argument string a model produced. Malformed
// JSON is repaired once before giving up. An empty string yields no arguments.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	err := json.Unmarshal([]byte(raw), &args)
	if err == nil {
		return orEmpty(args), nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToolArguments, err)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToolArguments, err)
	}
	return orEmpty(args), nil
}

func orEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes one tool call. Arguments arrive as the raw JSON object the
// model produced; the returned value must be JSON-serializable. Handlers must
// not touch call-session state.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Definition describes one invokable capability exposed to the model.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the handler's arguments.
	Parameters map[string]any
	Handler    Handler
}

// Registry is the static tool catalog. It is populated once at startup and
// read-only afterwards, so it is safe to share across concurrent sessions.
type Registry struct {
	defs  map[string]Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a tool. Names must be unique within the registry.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %q is already registered", def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Definitions returns all tools in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

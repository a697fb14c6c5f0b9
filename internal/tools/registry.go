// Package tools implements the tool registry: named, JSON-schema-validated
// side effects an agent may invoke during its tool-use loop.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/metrics"
)

type entry struct {
	description string
	schema      *jsonschema.Schema
	handler     contracts.ToolHandler
}

// Registry validates tool-call arguments against a registered JSON schema
// before invoking the tool's handler.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register compiles schema and adds name to the registry. schema must be a
// valid JSON Schema document describing the tool's argument object.
func (r *Registry) Register(name, description string, schema []byte, handler contracts.ToolHandler) error {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return fmt.Errorf("tool %q: parsing schema: %w", name, err)
	}
	resourceName := "tool://" + name
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("tool %q: adding schema resource: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("tool %q: compiling schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = entry{description: description, schema: compiled, handler: handler}
	return nil
}

// Validate checks args against the tool's compiled schema without invoking it.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool %q not registered", name)
	}
	if err := e.schema.Validate(args); err != nil {
		return fmt.Errorf("tool %q: invalid arguments: %w", name, err)
	}
	return nil
}

// Invoke validates args then calls the tool's handler, propagating ctx so
// the handler observes cooperative cancellation.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := r.Validate(name, args); err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return "", err
	}
	r.mu.RLock()
	e := r.tools[name]
	r.mu.RUnlock()
	out, err := e.handler(ctx, args)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
	} else {
		metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	}
	return out, err
}

// Tools lists registered tool names in sorted order.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

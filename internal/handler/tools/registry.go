// Package tools exposes the options order flow operations as callable tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrEmptyName     = errors.New("tool name is empty")
	ErrAlreadyExists = errors.New("tool already registered")
	ErrNotFound      = errors.New("tool not found")
)

// Tool describes a callable operation. Parameters is a JSON Schema object.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"inputSchema"`
}

// Handler runs a tool with its JSON-encoded arguments.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is the tool output. IsError marks a rendered failure document.
type Result struct {
	Content string
	IsError bool
}

type entry struct {
	tool    Tool
	handler Handler
}

// Registry holds tools in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. Names are unique.
func (r *Registry) Register(tool Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}
	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	r.order = append(r.order, tool.Name)
	return nil
}

// List returns tool definitions in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

// Execute dispatches a call by tool name.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	result, err := e.handler(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s execution failed: %w", name, err)
	}
	return result, nil
}

// Package tools defines the tools the model can call while answering.
package tools

import (
	"context"
	"fmt"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	InputSchema map[string]any                                                 `json:"input_schema"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Tool implements Provider, so a bare *Tool can be registered directly.
func (t *Tool) Tool() *Tool { return t }

// Provider supplies a tool definition. Implementations that also satisfy
// sourceTracker contribute to LastSources.
type Provider interface {
	Tool() *Tool
}

// sourceTracker is implemented by tools that record where their last
// answer came from.
type sourceTracker interface {
	LastSources() []Source
	ResetSources()
}

// Source is one retrieval citation surfaced to the user.
type Source struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// Registry holds available tools.
type Registry struct {
	tools     map[string]*Tool
	providers []Provider
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry. Registering the same name again
// replaces the earlier definition.
func (r *Registry) Register(p Provider) {
	t := p.Tool()
	if _, exists := r.tools[t.Name]; !exists {
		r.providers = append(r.providers, p)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tool definitions in registration order, in the shape
// the LLM API expects.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, p := range r.providers {
		t := p.Tool()
		result = append(result, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.InputSchema,
		})
	}
	return result
}

// Execute runs a tool by name with the given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, args)
}

// LastSources collects citations from every tool that tracks them,
// in registration order.
func (r *Registry) LastSources() []Source {
	var sources []Source
	for _, p := range r.providers {
		if st, ok := p.(sourceTracker); ok {
			sources = append(sources, st.LastSources()...)
		}
	}
	return sources
}

// ResetSources clears citations on every tracking tool. Call after the
// sources for a query have been read out.
func (r *Registry) ResetSources() {
	for _, p := range r.providers {
		if st, ok := p.(sourceTracker); ok {
			st.ResetSources()
		}
	}
}

package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// binding pairs a tool with the provider that owns it.
type binding struct {
	provider Provider
	def      ToolDefinition
}

// Registry is the flat tool namespace aggregated from providers.
// It is immutable after Build and safe for concurrent use.
type Registry struct {
	bindings  map[string]binding
	invoke    Invoker
	providers []Provider
	ordered   []ToolDefinition
}

// Option configures registry construction.
type Option func(*buildOptions)

type buildOptions struct {
	middlewares []Middleware
}

// WithMiddleware wraps every dispatched call. Earlier middlewares run first.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *buildOptions) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// Build aggregates providers into one registry.
// Tool order is provider registration order, then declaration order within each provider.
// A tool name declared twice is a ConfigurationError.
func Build(providers []Provider, opts ...Option) (*Registry, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(providers) == 0 {
		return nil, &ConfigurationError{Message: "at least one provider is required"}
	}

	r := &Registry{
		bindings:  make(map[string]binding),
		providers: make([]Provider, 0, len(providers)),
	}
	seenProviders := make(map[string]struct{}, len(providers))

	for i, p := range providers {
		if p == nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("provider at index %d is nil", i)}
		}
		pname := p.Name()
		if pname == "" {
			return nil, &ConfigurationError{Message: fmt.Sprintf("provider at index %d has no name", i)}
		}
		if _, dup := seenProviders[pname]; dup {
			return nil, &ConfigurationError{Message: fmt.Sprintf("provider %q registered twice", pname)}
		}
		seenProviders[pname] = struct{}{}
		r.providers = append(r.providers, p)

		for _, def := range p.ListTools() {
			if def.Name == "" {
				return nil, &ConfigurationError{Message: fmt.Sprintf("provider %q declares a tool with no name", pname)}
			}
			if existing, dup := r.bindings[def.Name]; dup {
				return nil, &ConfigurationError{Message: fmt.Sprintf(
					"tool %q declared by both %q and %q", def.Name, existing.provider.Name(), pname)}
			}
			def.Provider = pname
			def.Category = p.Category()
			if def.InputSchema.Type == "" {
				def.InputSchema.Type = "object"
			}
			r.bindings[def.Name] = binding{provider: p, def: def}
			r.ordered = append(r.ordered, def)
		}
	}

	r.invoke = Chain(r.callProvider, o.middlewares...)
	return r, nil
}

// callProvider terminates the invoker chain.
func (r *Registry) callProvider(ctx context.Context, call Call) (any, error) {
	b := r.bindings[call.Tool]
	result, err := b.provider.Invoke(ctx, call.Tool, call.Args)
	if err != nil {
		return nil, NewProviderError(call.Provider, call.Tool, err)
	}
	return result, nil
}

// Describe returns every descriptor in stable registration order.
func (r *Registry) Describe() []ToolDefinition {
	out := make([]ToolDefinition, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Dispatch invokes the named tool through the middleware chain.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	b, ok := r.bindings[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	return r.invoke(ctx, Call{
		Tool:     name,
		Provider: b.provider.Name(),
		Category: b.provider.Category(),
		Args:     args,
	})
}

// ProviderFor returns the provider that owns a tool.
func (r *Registry) ProviderFor(name string) (string, bool) {
	b, ok := r.bindings[name]
	if !ok {
		return "", false
	}
	return b.provider.Name(), true
}

// Providers returns provider names in registration order.
func (r *Registry) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Grouped returns descriptors keyed by their provider tag.
func (r *Registry) Grouped() map[string][]ToolDefinition {
	out := make(map[string][]ToolDefinition, len(r.providers))
	for i := range r.ordered {
		def := r.ordered[i]
		out[def.Provider] = append(out[def.Provider], def)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// GenerateToolDocumentation renders a markdown list of tools grouped by provider.
func (r *Registry) GenerateToolDocumentation() string {
	if len(r.ordered) == 0 {
		return "No tools available"
	}
	grouped := r.Grouped()
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	var doc strings.Builder
	doc.WriteString("## Available Tools\n")
	for _, provider := range names {
		doc.WriteString(fmt.Sprintf("\n### %s\n\n", provider))
		for _, def := range grouped[provider] {
			doc.WriteString(fmt.Sprintf("- **%s** - %s\n", def.Name, def.Description))
		}
	}
	return doc.String()
}

// Package tools defines tool descriptors, the provider contract, and the aggregated tool registry.
package tools

import "context"

// Category identifies the family of data a provider serves.
// It selects the placeholder shape used when a call degrades to fallback data.
type Category string

// Provider categories.
const (
	CategoryAnalytics Category = "analytics"
	CategoryOdds      Category = "odds"
	CategoryNews      Category = "news"
	CategorySocial    Category = "social"
	CategoryGeneral   Category = "general"
)

// Property describes a single parameter in a tool input schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// InputSchema is the JSON-schema subset used to describe tool parameters.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition describes a tool to the model endpoint.
// Provider and Category are stamped by the registry at build time.
//
//nolint:govet // fieldalignment: logical grouping preferred
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
	Provider    string      `json:"provider,omitempty"`
	Category    Category    `json:"category,omitempty"`
}

// Provider is an independently owned source of tools.
// ListTools must not depend on secrets so the model always learns the capability exists.
type Provider interface {
	Name() string
	Category() Category
	ListTools() []ToolDefinition
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// NewSchema builds an object schema from properties and required names.
func NewSchema(props map[string]Property, required ...string) InputSchema {
	if props == nil {
		props = map[string]Property{}
	}
	return InputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// StringProp is shorthand for a string property.
func StringProp(description string) Property {
	return Property{Type: "string", Description: description}
}

// IntegerProp is shorthand for an integer property with a default.
func IntegerProp(description string, def int) Property {
	return Property{Type: "integer", Description: description, Default: def}
}

// BoolProp is shorthand for a boolean property with a default.
func BoolProp(description string, def bool) Property {
	return Property{Type: "boolean", Description: description, Default: def}
}

// ToMap renders the schema as a plain JSON-schema map for SDKs that take untyped schemas.
func (s InputSchema) ToMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name := range s.Properties {
		props[name] = s.Properties[name].toMap()
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// PropertiesMap returns only the properties as untyped maps.
func (s InputSchema) PropertiesMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name := range s.Properties {
		props[name] = s.Properties[name].toMap()
	}
	return props
}

func (p Property) toMap() map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Default != nil {
		m["default"] = p.Default
	}
	if p.Items != nil {
		m["items"] = p.Items.toMap()
	}
	return m
}

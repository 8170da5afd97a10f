// Package entity drives every admin table from a declarative configuration:
// the fields of an entity, how they are labelled and validated, and how its
// table pages.
package entity

import (
	"fmt"
	"slices"
)

// FieldType is the value type of a field.
type FieldType string

const (
	FieldText  FieldType = "text"
	FieldEmail FieldType = "email"
	FieldDate  FieldType = "date"
	FieldInt   FieldType = "int"
	FieldBool  FieldType = "bool"
	FieldRef   FieldType = "ref"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Field describes one column of an entity.
type Field struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Ref         string    `json:"ref,omitempty"`
	Searchable  bool      `json:"searchable,omitempty"`
	ListVisible bool      `json:"list_visible,omitempty"`
}

// Config describes an entity table.
type Config struct {
	Name        string  `json:"name"`
	Route       string  `json:"route"`
	Title       string  `json:"title"`
	PageSize    int     `json:"page_size"`
	DefaultSort string  `json:"default_sort"`
	Fields      []Field `json:"fields"`
}

// Field returns the named field.
func (c Config) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ListFields returns the fields shown as table columns.
func (c Config) ListFields() []Field {
	out := make([]Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.ListVisible {
			out = append(out, f)
		}
	}
	return out
}

// Registry is the read-only set of configured entities.
type Registry struct {
	byName  map[string]Config
	byRoute map[string]string
	order   []string
}

// NewRegistry validates configs and indexes them by name and route.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Config, len(configs)),
		byRoute: make(map[string]string, len(configs)),
	}
	for _, cfg := range configs {
		if cfg.Name == "" || cfg.Route == "" {
			return nil, fmt.Errorf("entity config requires name and route")
		}
		if _, ok := r.byName[cfg.Name]; ok {
			return nil, fmt.Errorf("duplicate entity %q", cfg.Name)
		}
		if _, ok := r.byRoute[cfg.Route]; ok {
			return nil, fmt.Errorf("duplicate route %q", cfg.Route)
		}
		if cfg.PageSize <= 0 {
			cfg.PageSize = DefaultPageSize
		}
		cfg.Fields = slices.Clone(cfg.Fields)
		r.byName[cfg.Name] = cfg
		r.byRoute[cfg.Route] = cfg.Name
		r.order = append(r.order, cfg.Name)
	}
	for _, cfg := range r.byName {
		for _, f := range cfg.Fields {
			if f.Type != FieldRef {
				continue
			}
			if _, ok := r.byName[f.Ref]; !ok {
				return nil, fmt.Errorf("entity %q field %q references unknown entity %q", cfg.Name, f.Name, f.Ref)
			}
		}
		if cfg.DefaultSort != "" {
			if _, ok := cfg.Field(sortField(cfg.DefaultSort)); !ok {
				return nil, fmt.Errorf("entity %q default sort %q is not a field", cfg.Name, cfg.DefaultSort)
			}
		}
	}
	return r, nil
}

// Lookup returns the config for an entity name.
func (r *Registry) Lookup(name string) (Config, bool) {
	cfg, ok := r.byName[name]
	return cfg, ok
}

// ByRoute returns the config served at route.
func (r *Registry) ByRoute(route string) (Config, bool) {
	name, ok := r.byRoute[route]
	if !ok {
		return Config{}, false
	}
	return r.byName[name], true
}

// All returns every config in registration order.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// sortField strips the descending marker from a sort key.
func sortField(sort string) string {
	if len(sort) > 0 && sort[0] == '-' {
		return sort[1:]
	}
	return sort
}

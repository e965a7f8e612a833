package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/internal/schema"
)

// Registry maps tool names to tools and caches their compiled schemas.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*schema.Validator
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:      map[string]Tool{},
		validators: map[string]*schema.Validator{},
	}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools. Names must be unique and schemas must compile.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if name == "" {
			return fmt.Errorf("register tool: empty name")
		}
		if _, ok := r.tools[name]; ok {
			return fmt.Errorf("register tool %s: duplicate name", name)
		}

		var params any
		if p := t.Parameters(); p != nil {
			params = p
		}
		v, err := schema.Compile(name, params)
		if err != nil {
			return fmt.Errorf("register tool %s: %w", name, err)
		}

		r.tools[name] = t
		r.validators[name] = v
	}

	return nil
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args against the compiled schema of the tool called name.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	v := r.validators[name]
	r.mu.RUnlock()

	if args == nil {
		args = map[string]any{}
	}
	return v.Validate(args)
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Infos describes the registered tools for the planner, sorted by name.
func (r *Registry) Infos() []core.ToolInfo {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.ToolInfo, 0, len(names))
	for _, n := range names {
		t := r.tools[n]
		out = append(out, core.ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

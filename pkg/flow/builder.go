// Package flow builds dialog controllers from declarative flow documents.
//
// A flow document lists node declarations by type tag; the builder resolves
// them through a Registry, validates every route target and wires the result
// into a ready-to-run dialog.Controller. Route validation is strict: a flow
// that references a node nobody declared fails at build time, not mid
// conversation.
package flow

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/parley/pkg/dialog"
)

// fallbackName is the implicit name of an inline fallback declaration.
const fallbackName = "__fallback__"

// Builder assembles a dialog.Controller from a flow Config.
type Builder struct {
	registry *Registry
	sessions dialog.Provider
	options  []dialog.Option
	logger   *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRegistry replaces the default node registry.
func WithRegistry(registry *Registry) BuilderOption {
	return func(b *Builder) { b.registry = registry }
}

// WithControllerOptions forwards options to the built controller.
func WithControllerOptions(opts ...dialog.Option) BuilderOption {
	return func(b *Builder) { b.options = append(b.options, opts...) }
}

// WithLogger sets the logger passed to the built controller.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a builder backed by the given session provider.
func NewBuilder(sessions dialog.Provider, opts ...BuilderOption) *Builder {
	b := &Builder{
		registry: DefaultRegistry(),
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry exposes the builder's registry so applications can register
// custom node types before building.
func (b *Builder) Registry() *Registry { return b.registry }

// LoadFile parses a YAML flow document from disk.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow %s: %w", path, err)
	}
	return Load(raw)
}

// Load parses a YAML flow document.
func Load(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse flow: %w", err)
	}
	return &cfg, nil
}

// BuildFile loads a flow document and builds the controller.
func (b *Builder) BuildFile(path string) (*dialog.Controller, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return b.Build(cfg)
}

// Build constructs every declared node, validates the routing graph and
// returns a wired controller.
func (b *Builder) Build(cfg *Config) (*dialog.Controller, error) {
	if len(cfg.Nodes) == 0 && cfg.Fallback == nil {
		return nil, fmt.Errorf("flow declares no nodes")
	}

	specs := make([]NodeSpec, 0, len(cfg.Nodes)+1)
	specs = append(specs, cfg.Nodes...)
	if cfg.Fallback != nil {
		fb := *cfg.Fallback
		if fb.Name == "" {
			fb.Name = fallbackName
		}
		specs = append(specs, fb)
	}

	built := make(map[string]dialog.Node, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("flow declares a node without a name (type %q)", spec.Type)
		}
		if _, dup := built[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate node name %q", spec.Name)
		}
		node, err := b.registry.Build(spec)
		if err != nil {
			return nil, err
		}
		built[spec.Name] = node
	}

	if err := validateRoutes(built); err != nil {
		return nil, err
	}

	opts := b.options
	if b.logger != nil {
		opts = append(opts, dialog.WithLogger(b.logger))
	}
	controller := dialog.NewController(b.sessions, opts...)

	for _, node := range built {
		controller.AddNode(node)
	}
	for _, spec := range specs {
		if spec.IntentTrigger == "" {
			continue
		}
		if err := controller.AddIntentTrigger(spec.IntentTrigger, spec.Name); err != nil {
			return nil, err
		}
	}
	if cfg.Fallback != nil {
		name := cfg.Fallback.Name
		if name == "" {
			name = fallbackName
		}
		if err := controller.SetFallbackNode(name); err != nil {
			return nil, err
		}
	}
	return controller, nil
}

// referencer is the capability routing nodes expose for validation.
type referencer interface {
	References() []string
}

// validateRoutes checks that every route target names a declared node.
func validateRoutes(built map[string]dialog.Node) error {
	for name, node := range built {
		r, ok := node.(referencer)
		if !ok {
			continue
		}
		for _, target := range r.References() {
			if target == "" {
				continue
			}
			if _, declared := built[target]; !declared {
				return fmt.Errorf("node %q routes to undeclared node %q", name, target)
			}
		}
	}
	return nil
}

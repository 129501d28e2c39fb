// Package parley is the high-level entry point for the dialog engine. It
// bundles the controller, the session providers and the flow builder behind a
// couple of constructors so simple bots need a single import.
package parley

import (
	"log/slog"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/flow"
)

// Version is the library version, surfaced by server info endpoints.
var Version = "0.3.0"

// New creates a controller over an in-memory session provider. Good for
// tests, demos and single-process bots; production deployments pass their own
// provider to NewWithProvider.
func New(opts ...dialog.Option) (*dialog.Controller, *dialog.MemoryProvider) {
	provider := dialog.NewMemoryProvider()
	return dialog.NewController(provider, opts...), provider
}

// NewWithProvider creates a controller over an explicit session provider,
// typically the Redis adapter.
func NewWithProvider(sessions dialog.Provider, opts ...dialog.Option) *dialog.Controller {
	return dialog.NewController(sessions, opts...)
}

// FromFile builds a fully wired controller from a YAML flow document.
func FromFile(path string, sessions dialog.Provider, opts ...flow.BuilderOption) (*dialog.Controller, error) {
	return flow.NewBuilder(sessions, opts...).BuildFile(path)
}

// FromConfig builds a controller from an already parsed flow Config.
func FromConfig(cfg *flow.Config, sessions dialog.Provider, opts ...flow.BuilderOption) (*dialog.Controller, error) {
	return flow.NewBuilder(sessions, opts...).Build(cfg)
}

// WithLogger forwards a logger to the controller. Re-exported so facade users
// do not need the dialog import for the common case.
func WithLogger(logger *slog.Logger) dialog.Option {
	return dialog.WithLogger(logger)
}

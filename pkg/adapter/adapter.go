// Package adapter implements provider clients for local inference servers
// and remote model APIs, behind the calling contracts the routing core
// consumes.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/zen-systems/taskgate/pkg/registry"
)

// Adapter defines the interface for model provider clients.
type Adapter interface {
	// Name returns the adapter's provider identifier.
	Name() string

	// Models returns the adapter's model catalog.
	Models() []registry.Model

	// Generate sends a prompt to the model and returns the text response.
	Generate(ctx context.Context, model string, prompt string) (string, error)
}

// Dispatcher routes model calls to the adapter owning the model's
// provider. It implements the coordinator's ModelCaller contract.
type Dispatcher struct {
	adapters map[string]Adapter
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher over the given adapters.
func NewDispatcher(adapters map[string]Adapter, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Dispatcher{adapters: adapters, timeout: timeout}
}

// CallModel invokes the model on its provider's adapter with the
// dispatcher's timeout applied.
func (d *Dispatcher) CallModel(ctx context.Context, model registry.Model, prompt string) (string, error) {
	a, ok := d.adapters[model.Provider]
	if !ok {
		return "", fmt.Errorf("no adapter for provider %q (model %s)", model.Provider, model.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return a.Generate(ctx, model.ID, prompt)
}

// Catalog is a registry.Registry assembled from adapter catalogs.
type Catalog struct {
	adapters map[string]Adapter
}

// NewCatalog creates a registry backed by the given adapters.
func NewCatalog(adapters map[string]Adapter) *Catalog {
	return &Catalog{adapters: adapters}
}

// AvailableModels merges every adapter's catalog into one snapshot.
func (c *Catalog) AvailableModels(ctx context.Context) ([]registry.Model, error) {
	var models []registry.Model
	for _, a := range c.adapters {
		models = append(models, a.Models()...)
	}
	return models, nil
}

// FreeModels returns the merged catalog's zero-cost subset.
func (c *Catalog) FreeModels(ctx context.Context) ([]registry.Model, error) {
	all, err := c.AvailableModels(ctx)
	if err != nil {
		return nil, err
	}
	var free []registry.Model
	for _, m := range all {
		if m.IsFree() {
			free = append(free, m)
		}
	}
	return free, nil
}

package app

import (
	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/config"
	"github.com/sufield/popc/internal/metrics"
	"github.com/sufield/popc/internal/ports"
)

// Application is the composition root that wires all dependencies.
// Inbound adapters receive the Engine; the Store is exposed for usage
// logging and shutdown.
type Application struct {
	Config  *config.Config
	Engine  *Engine
	Store   ports.Store
	Metrics *metrics.Metrics
	Pool    *bg.Pool
	Logger  zerolog.Logger
}

// Close releases the store.
func (a *Application) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

package http

import (
	"context"

	"github.com/samirrijal/poimap/internal/core/ports"
	"github.com/samirrijal/poimap/internal/core/usecases"
)

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Maps   *usecases.MapService
	Feed   ports.RenderFeed
	NATS   Pinger // nil when NATS is not configured
	Tokens Pinger // nil when tokens are kept in memory
}

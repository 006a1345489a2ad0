package telemetry

import (
	"context"

	"saas-control-plane/internal/telemetry/domain"
)

// EventEmitter emits domain events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Nop discards events.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(context.Context, *domain.Event) error { return nil }

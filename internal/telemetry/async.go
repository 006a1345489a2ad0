package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Errors are logged to log.
//
// emitter and event may be nil; EmitAsync then returns without starting a goroutine.
// The emit context keeps ctx's values but not its cancellation, so a finished request does not abort it.
func EmitAsync(ctx context.Context, emitter EventEmitter, event *domain.Event, log zerolog.Logger) {
	if emitter == nil || event == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Warn().Err(err).Str("event_type", event.Type).Str("org_id", event.OrgID).Msg("telemetry: async emit failed")
		}
	}()
}

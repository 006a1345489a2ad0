package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/platform/metrics"
)

// sendTimeout bounds a single background delivery.
const sendTimeout = 10 * time.Second

// Async wraps a Notifier so each call returns immediately and delivery happens in the background.
// Failures are logged and counted; they never reach the caller.
type Async struct {
	next Notifier
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewAsync returns a fire-and-forget wrapper around next.
func NewAsync(next Notifier, log zerolog.Logger) *Async {
	return &Async{next: next, log: log.With().Str("component", "notification").Logger()}
}

// RoleChanged schedules the role-change notice.
func (a *Async) RoleChanged(ctx context.Context, n RoleChange) error {
	a.run(ctx, "role_changed", n.Email, func(ctx context.Context) error { return a.next.RoleChanged(ctx, n) })
	return nil
}

// AccessRevoked schedules the removal notice.
func (a *Async) AccessRevoked(ctx context.Context, n AccessRevocation) error {
	a.run(ctx, "access_revoked", n.Email, func(ctx context.Context) error { return a.next.AccessRevoked(ctx, n) })
	return nil
}

// Invited schedules the invitation mail.
func (a *Async) Invited(ctx context.Context, n Invite) error {
	a.run(ctx, "invited", n.Email, func(ctx context.Context) error { return a.next.Invited(ctx, n) })
	return nil
}

// Wait blocks until every scheduled delivery has finished. Call on shutdown.
func (a *Async) Wait() {
	a.wg.Wait()
}

func (a *Async) run(ctx context.Context, kind, to string, send func(context.Context) error) {
	if a.next == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := send(sendCtx); err != nil {
			metrics.NotificationFailures.WithLabelValues(kind).Inc()
			a.log.Warn().Err(err).Str("kind", kind).Str("to", to).Msg("notification delivery failed")
		}
	}()
}

package audit

import "context"

type targetKey struct{}

// target is the organization a request acted on, filled in by handlers whose route
// carries no organization id (org creation, session switch, invitation accept).
type target struct {
	orgID string
}

// WithTarget returns a context that records the organization set by SetOrg.
// The returned func reads it back once the handler has run.
func WithTarget(ctx context.Context) (context.Context, func() string) {
	t := &target{}
	return context.WithValue(ctx, targetKey{}, t), func() string { return t.orgID }
}

// SetOrg records orgID as the audited organization. No-op outside WithTarget.
func SetOrg(ctx context.Context, orgID string) {
	if t, ok := ctx.Value(targetKey{}).(*target); ok {
		t.orgID = orgID
	}
}

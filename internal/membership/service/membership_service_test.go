package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/notification"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/rbac"
	"saas-control-plane/internal/policy/engine"
	"saas-control-plane/internal/storetest"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changed []notification.RoleChange
	revoked []notification.AccessRevocation
	invited []notification.Invite
}

func (n *recordingNotifier) RoleChanged(ctx context.Context, rc notification.RoleChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, rc)
	return nil
}

func (n *recordingNotifier) AccessRevoked(ctx context.Context, ar notification.AccessRevocation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revoked = append(n.revoked, ar)
	return nil
}

func (n *recordingNotifier) Invited(ctx context.Context, inv notification.Invite) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invited = append(n.invited, inv)
	return nil
}

type brokenPolicy struct{}

func (brokenPolicy) EvaluateMemberMutation(context.Context, engine.MemberMutation) (engine.Decision, error) {
	return engine.Decision{}, errors.New("policy unavailable")
}

type fixture struct {
	store    *storetest.Store
	svc      *Service
	notifier *recordingNotifier
	orgID    string
	owner    string
	admin    string
	admin2   string
	member   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, nil)
}

func newFixtureWithPolicy(t *testing.T, policy engine.Evaluator) *fixture {
	t.Helper()
	if policy == nil {
		opa, err := engine.NewOPAEvaluator(context.Background())
		if err != nil {
			t.Fatalf("NewOPAEvaluator: %v", err)
		}
		policy = opa
	}
	s := storetest.New()
	org := s.AddOrg("Acme")
	owner := s.AddUser("owner@example.com")
	admin := s.AddUser("admin@example.com")
	admin2 := s.AddUser("admin2@example.com")
	member := s.AddUser("member@example.com")
	s.AddMember(owner.ID, org.ID, domain.RoleOwner, 0)
	s.AddMember(admin.ID, org.ID, domain.RoleAdmin, time.Minute)
	s.AddMember(admin2.ID, org.ID, domain.RoleAdmin, 2*time.Minute)
	s.AddMember(member.ID, org.ID, domain.RoleUser, 3*time.Minute)

	v := s.Repos()
	gate := rbac.NewGate(v.Memberships, rbac.NewSuperAdmins(nil), nil, zerolog.Nop())
	n := &recordingNotifier{}
	return &fixture{
		store:    s,
		svc:      NewService(v.Memberships, v.Users, v.Orgs, gate, policy, n, nil, zerolog.Nop()),
		notifier: n,
		orgID:    org.ID,
		owner:    owner.ID,
		admin:    admin.ID,
		admin2:   admin2.ID,
		member:   member.ID,
	}
}

func as(userID string) context.Context {
	return authctx.WithPrincipal(context.Background(), authctx.Principal{UserID: userID, SessionID: "s"})
}

func (f *fixture) roleOf(t *testing.T, userID string) domain.Role {
	t.Helper()
	m, err := f.store.Repos().Memberships.GetMembershipByUserAndOrg(context.Background(), userID, f.orgID)
	if err != nil {
		t.Fatalf("load membership: %v", err)
	}
	if m == nil {
		return ""
	}
	return m.Role
}

func TestList(t *testing.T) {
	f := newFixture(t)
	members, err := f.svc.List(as(f.member), f.orgID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(members) != 4 {
		t.Fatalf("List returned %d members, want 4", len(members))
	}
	if members[0].Email != "owner@example.com" || members[0].Membership.Role != domain.RoleOwner {
		t.Errorf("first member = %+v", members[0])
	}

	outsider := f.store.AddUser("outsider@example.com")
	if _, err := f.svc.List(as(outsider.ID), f.orgID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("outsider err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.List(context.Background(), f.orgID); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("anonymous err = %v, want ErrUnauthenticated", err)
	}
}

func TestUpdateRole_Succeeds(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.UpdateRole(as(f.admin), f.orgID, f.member, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if m.Role != domain.RoleAdmin || f.roleOf(t, f.member) != domain.RoleAdmin {
		t.Errorf("role = %s, want admin", f.roleOf(t, f.member))
	}
	if len(f.notifier.changed) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.changed))
	}
	rc := f.notifier.changed[0]
	if rc.Email != "member@example.com" || rc.OrgName != "Acme" || rc.OldRole != domain.RoleUser || rc.NewRole != domain.RoleAdmin {
		t.Errorf("notification = %+v", rc)
	}
}

func TestUpdateRole_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.UpdateRole(as(f.member), f.orgID, f.admin, domain.RoleUser); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if f.roleOf(t, f.admin) != domain.RoleAdmin {
		t.Error("role changed despite denial")
	}
}

func TestUpdateRole_InvalidInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.UpdateRole(as(f.admin), f.orgID, f.member, "superuser"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("unknown role err = %v, want ErrInvalidArgument", err)
	}
	if _, err := f.svc.UpdateRole(as(f.admin), f.orgID, "ghost", domain.RoleUser); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing target err = %v, want ErrNotFound", err)
	}
}

func TestSelfProtection(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		name string
		run  func() error
	}{
		{"admin changes own role", func() error {
			_, err := f.svc.UpdateRole(as(f.admin), f.orgID, f.admin, domain.RoleUser)
			return err
		}},
		{"owner changes own role", func() error {
			_, err := f.svc.UpdateRole(as(f.owner), f.orgID, f.owner, domain.RoleAdmin)
			return err
		}},
		{"admin removes self", func() error { return f.svc.RemoveMember(as(f.admin), f.orgID, f.admin) }},
		{"owner removes self", func() error { return f.svc.RemoveMember(as(f.owner), f.orgID, f.owner) }},
		{"admin changes owner role", func() error {
			_, err := f.svc.UpdateRole(as(f.admin), f.orgID, f.owner, domain.RoleUser)
			return err
		}},
		{"admin removes owner", func() error { return f.svc.RemoveMember(as(f.admin), f.orgID, f.owner) }},
		{"owner promotes member to owner", func() error {
			_, err := f.svc.UpdateRole(as(f.owner), f.orgID, f.member, domain.RoleOwner)
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, apperr.ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
		})
	}
	if f.roleOf(t, f.owner) != domain.RoleOwner || f.roleOf(t, f.admin) != domain.RoleAdmin || f.roleOf(t, f.member) != domain.RoleUser {
		t.Error("a denied mutation changed a membership")
	}
	if len(f.notifier.changed)+len(f.notifier.revoked) != 0 {
		t.Error("denied mutations must not notify")
	}
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RemoveMember(as(f.admin), f.orgID, f.admin2); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if f.roleOf(t, f.admin2) != "" {
		t.Error("membership still present")
	}
	if len(f.notifier.revoked) != 1 || f.notifier.revoked[0].Email != "admin2@example.com" {
		t.Errorf("revocations = %+v", f.notifier.revoked)
	}
	if err := f.svc.RemoveMember(as(f.admin), f.orgID, f.admin2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second removal err = %v, want ErrNotFound", err)
	}
}

func TestPolicyErrorDenies(t *testing.T) {
	f := newFixtureWithPolicy(t, brokenPolicy{})
	if err := f.svc.RemoveMember(as(f.admin), f.orgID, f.member); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if f.roleOf(t, f.member) != domain.RoleUser {
		t.Error("member removed despite policy failure")
	}
}

type failingNotifier struct{}

func (failingNotifier) RoleChanged(context.Context, notification.RoleChange) error {
	return errors.New("mail relay down")
}

func (failingNotifier) AccessRevoked(context.Context, notification.AccessRevocation) error {
	return errors.New("mail relay down")
}

func (failingNotifier) Invited(context.Context, notification.Invite) error {
	return errors.New("mail relay down")
}

func TestNotificationFailureIsLoggedNotReturned(t *testing.T) {
	f := newFixture(t)
	opa, err := engine.NewOPAEvaluator(context.Background())
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	var buf bytes.Buffer
	v := f.store.Repos()
	gate := rbac.NewGate(v.Memberships, rbac.NewSuperAdmins(nil), nil, zerolog.Nop())
	svc := NewService(v.Memberships, v.Users, v.Orgs, gate, opa, failingNotifier{}, nil, zerolog.New(&buf))

	if _, err := svc.UpdateRole(as(f.admin), f.orgID, f.member, domain.RoleAdmin); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if err := svc.RemoveMember(as(f.admin), f.orgID, f.admin2); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	logs := buf.String()
	for _, msg := range []string{"role change notification failed", "access revoked notification failed"} {
		if !strings.Contains(logs, msg) {
			t.Errorf("log missing %q:\n%s", msg, logs)
		}
	}
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, "mail relay down") {
		t.Errorf("notification failures should be warnings carrying the error:\n%s", logs)
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/storetest"
)

func newResolver(s *storetest.Store) *Resolver {
	v := s.Repos()
	return NewResolver(v.Sessions, v.Users, v.Memberships, v.Orgs, zerolog.Nop())
}

func future() time.Time {
	return time.Now().Add(time.Hour)
}

func TestResolve_Unauthenticated(t *testing.T) {
	s := storetest.New()
	u := s.AddUser("u@example.com")
	other := s.AddUser("other@example.com")
	live := s.AddSession(u.ID, nil, future())
	expired := s.AddSession(u.ID, nil, time.Now().Add(-time.Minute))
	revoked := s.AddSession(u.ID, nil, future())
	_ = s.Repos().Sessions.Revoke(context.Background(), revoked.ID)

	testCases := []struct {
		name string
		p    authctx.Principal
	}{
		{"empty principal", authctx.Principal{}},
		{"missing session id", authctx.Principal{UserID: u.ID}},
		{"unknown session", authctx.Principal{UserID: u.ID, SessionID: "nope"}},
		{"expired session", authctx.Principal{UserID: u.ID, SessionID: expired.ID}},
		{"revoked session", authctx.Principal{UserID: u.ID, SessionID: revoked.ID}},
		{"session of another user", authctx.Principal{UserID: other.ID, SessionID: live.ID}},
	}
	r := newResolver(s)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.Resolve(context.Background(), tc.p); !errors.Is(err, apperr.ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestResolve_FallsBackToEarliestMembershipAndPersists(t *testing.T) {
	s := storetest.New()
	u := s.AddUser("u@example.com")
	later := s.AddOrg("Later")
	earlier := s.AddOrg("Earlier")
	s.AddMember(u.ID, later.ID, membershipdomain.RoleAdmin, 2*time.Hour)
	s.AddMember(u.ID, earlier.ID, membershipdomain.RoleUser, time.Hour)
	sess := s.AddSession(u.ID, nil, future())
	r := newResolver(s)
	p := authctx.Principal{UserID: u.ID, SessionID: sess.ID}

	sc, err := r.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sc.OrgID() != earlier.ID || sc.Role() != membershipdomain.RoleUser {
		t.Errorf("resolved org=%s role=%s, want %s user", sc.OrgID(), sc.Role(), earlier.ID)
	}
	stored, _ := s.Repos().Sessions.GetByID(context.Background(), sess.ID)
	if stored.CurrentOrgID == nil || *stored.CurrentOrgID != earlier.ID {
		t.Errorf("selection not persisted: %v", stored.CurrentOrgID)
	}

	writes := s.Writes()
	if _, err := r.Resolve(context.Background(), p); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Writes() != writes {
		t.Error("second resolve should not write")
	}
}

func TestResolve_StaleSelectionFallsBack(t *testing.T) {
	s := storetest.New()
	u := s.AddUser("u@example.com")
	gone := s.AddOrg("Gone")
	kept := s.AddOrg("Kept")
	s.AddMember(u.ID, kept.ID, membershipdomain.RoleOwner, 0)
	sess := s.AddSession(u.ID, &gone.ID, future())

	sc, err := newResolver(s).Resolve(context.Background(), authctx.Principal{UserID: u.ID, SessionID: sess.ID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sc.OrgID() != kept.ID {
		t.Errorf("org = %s, want %s", sc.OrgID(), kept.ID)
	}
}

func TestResolve_NoMemberships(t *testing.T) {
	s := storetest.New()
	u := s.AddUser("u@example.com")
	sess := s.AddSession(u.ID, nil, future())
	_, err := newResolver(s).Resolve(context.Background(), authctx.Principal{UserID: u.ID, SessionID: sess.ID})
	if !errors.Is(err, apperr.ErrNoOrganizationSelected) {
		t.Errorf("err = %v, want ErrNoOrganizationSelected", err)
	}
}

func TestSwitch(t *testing.T) {
	s := storetest.New()
	u := s.AddUser("u@example.com")
	a := s.AddOrg("A")
	b := s.AddOrg("B")
	foreign := s.AddOrg("Foreign")
	s.AddMember(u.ID, a.ID, membershipdomain.RoleOwner, 0)
	s.AddMember(u.ID, b.ID, membershipdomain.RoleUser, time.Minute)
	sess := s.AddSession(u.ID, &a.ID, future())
	r := newResolver(s)
	p := authctx.Principal{UserID: u.ID, SessionID: sess.ID}
	ctx := context.Background()

	sc, err := r.Switch(ctx, p, b.ID)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if sc.OrgID() != b.ID || sc.Role() != membershipdomain.RoleUser {
		t.Errorf("switched to %s as %s", sc.OrgID(), sc.Role())
	}
	resolved, err := r.Resolve(ctx, p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.OrgID() != b.ID {
		t.Errorf("resolve after switch = %s, want %s", resolved.OrgID(), b.ID)
	}

	if _, err := r.Switch(ctx, p, foreign.ID); !errors.Is(err, apperr.ErrNotAMember) {
		t.Errorf("foreign switch err = %v, want ErrNotAMember", err)
	}
	if _, err := r.Switch(ctx, p, ""); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty org err = %v, want ErrInvalidArgument", err)
	}
	stored, _ := s.Repos().Sessions.GetByID(ctx, sess.ID)
	if *stored.CurrentOrgID != b.ID {
		t.Errorf("rejected switch changed selection to %s", *stored.CurrentOrgID)
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type mockPinger struct{ err error }

func (m mockPinger) PingContext(ctx context.Context) error { return m.err }

type mockPolicyChecker struct{ err error }

func (m mockPolicyChecker) HealthCheck(ctx context.Context) error { return m.err }

func TestChecker_Readiness(t *testing.T) {
	testCases := []struct {
		name   string
		db     Pinger
		policy PolicyChecker
		want   int
	}{
		{"no dependencies", nil, nil, http.StatusOK},
		{"all healthy", mockPinger{}, mockPolicyChecker{}, http.StatusOK},
		{"db down", mockPinger{err: errors.New("connection refused")}, mockPolicyChecker{}, http.StatusServiceUnavailable},
		{"policy broken", mockPinger{}, mockPolicyChecker{err: errors.New("compile failed")}, http.StatusServiceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker(tc.db, tc.policy, zerolog.Nop())
			rec := httptest.NewRecorder()
			c.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestChecker_Liveness_IgnoresDependencies(t *testing.T) {
	c := NewChecker(mockPinger{err: errors.New("down")}, nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	c.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestChecker_Sync(t *testing.T) {
	hs := health.NewServer()
	ctx := context.Background()

	NewChecker(mockPinger{err: errors.New("down")}, nil, zerolog.Nop()).Sync(ctx, hs)
	resp, err := hs.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.Status)
	}

	NewChecker(mockPinger{}, nil, zerolog.Nop()).Sync(ctx, hs)
	resp, _ = hs.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}
}

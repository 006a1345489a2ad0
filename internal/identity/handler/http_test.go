package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-control-plane/internal/identity/service"
)

type fakeAuth struct {
	loginEmail string
	logouts    int
}

func (f *fakeAuth) Register(ctx context.Context, email, password, name string) (*service.AuthResult, error) {
	if email == "taken@example.com" {
		return nil, service.ErrEmailAlreadyRegistered
	}
	return &service.AuthResult{UserID: "u1"}, nil
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	f.loginEmail = email
	if password != "right" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.AuthResult{AccessToken: "tok", ExpiresAt: time.Unix(100, 0).UTC(), SessionID: "s1", UserID: "u1"}, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.logouts++
	return nil
}

func do(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestHandler_Register(t *testing.T) {
	h := NewHandler(&fakeAuth{}, zerolog.Nop())

	rec := do(h.Register, `{"email":"a@example.com","password":"x","name":"A"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"userId":"u1"}`, rec.Body.String())

	rec = do(h.Register, `{"email":"taken@example.com","password":"x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h.Register, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Login(t *testing.T) {
	auth := &fakeAuth{}
	h := NewHandler(auth, zerolog.Nop())

	rec := do(h.Login, `{"email":"a@example.com","password":"right"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "tok", body.AccessToken)
	assert.Equal(t, "s1", body.SessionID)
	assert.Equal(t, "a@example.com", auth.loginEmail)

	rec = do(h.Login, `{"email":"a@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Logout(t *testing.T) {
	auth := &fakeAuth{}
	h := NewHandler(auth, zerolog.Nop())
	rec := do(h.Logout, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, auth.logouts)
}

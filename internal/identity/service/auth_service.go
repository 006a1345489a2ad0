package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	identitydomain "saas-control-plane/internal/identity/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/security"
	sessiondomain "saas-control-plane/internal/session/domain"
	userdomain "saas-control-plane/internal/user/domain"
)

// Sentinel errors for the auth service. Both wrap apperr kinds so the HTTP edge maps them.
var (
	ErrEmailAlreadyRegistered = fmt.Errorf("email already registered: %w", apperr.ErrConflict)
	ErrInvalidCredentials     = fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthenticated)
)

// AuthResult holds the outcome of Register (UserID only) or Login (token and session).
type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	SessionID   string
	UserID      string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
}

// AuthService implements password register, login, and logout. Login opens a server-side session
// with no organization selected; the session resolver picks one on first use.
type AuthService struct {
	userRepo     UserRepo
	identityRepo IdentityRepo
	sessionRepo  SessionRepo
	hasher       *security.Hasher
	tokens       *security.TokenProvider
	sessionTTL   time.Duration
	audit        audit.AuditLogger
	log          zerolog.Logger
}

// NewAuthService returns an AuthService with the given dependencies. auditLogger may be nil.
func NewAuthService(
	userRepo UserRepo,
	identityRepo IdentityRepo,
	sessionRepo SessionRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	sessionTTL time.Duration,
	auditLogger audit.AuditLogger,
	log zerolog.Logger,
) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{
		userRepo:     userRepo,
		identityRepo: identityRepo,
		sessionRepo:  sessionRepo,
		hasher:       hasher,
		tokens:       tokens,
		sessionTTL:   sessionTTL,
		audit:        auditLogger,
		log:          log.With().Str("component", "auth").Logger(),
	}
}

// Register creates a user and local identity with the given email and password.
// Returns AuthResult with UserID only; the caller must Login to get a token.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument)
	}
	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument)
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	userID := uuid.New().String()
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:        userID,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument)
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	identity := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       userID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	if err := s.identityRepo.Create(ctx, identity); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Msg("user registered")
	return &AuthResult{UserID: userID}, nil
}

// Login authenticates with email and password, creates a session, and returns an access token.
// Unknown users and wrong passwords are indistinguishable to the caller and take comparable time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		_ = s.hasher.CompareDummy(password)
		s.loginFailed(ctx, "", email)
		return nil, ErrInvalidCredentials
	}
	ident, err := s.identityRepo.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if !ident.CanUsePassword() {
		_ = s.hasher.CompareDummy(password)
		s.loginFailed(ctx, user.ID, email)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, password); err != nil {
		s.loginFailed(ctx, user.ID, email)
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	sess := &sessiondomain.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	accessToken, accessExp, err := s.tokens.IssueAccess(sess.ID, user.ID, user.Email, sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, "", user.ID, audit.ActionLogin, "session", "")
	return &AuthResult{
		AccessToken: accessToken,
		ExpiresAt:   accessExp,
		SessionID:   sess.ID,
		UserID:      user.ID,
	}, nil
}

// Logout revokes the session of the principal in ctx. Without a principal it is a no-op.
func (s *AuthService) Logout(ctx context.Context) error {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok || p.SessionID == "" {
		return nil
	}
	if err := s.sessionRepo.Revoke(ctx, p.SessionID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, "", p.UserID, audit.ActionLogout, "session", "")
	return nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID, email string) {
	s.log.Warn().Str("user_id", userID).Msg("login failed")
	s.audit.LogEvent(ctx, "", userID, audit.ActionLoginFailure, "session", fmt.Sprintf(`{"email":%q}`, email))
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	if len(password) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}

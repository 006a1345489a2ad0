// server runs the HTTP API and the gRPC health listener.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"

	"saas-control-plane/internal/audit"
	audithandler "saas-control-plane/internal/audit/handler"
	auditrepo "saas-control-plane/internal/audit/repository"
	"saas-control-plane/internal/config"
	couponhandler "saas-control-plane/internal/coupon/handler"
	couponrepo "saas-control-plane/internal/coupon/repository"
	couponservice "saas-control-plane/internal/coupon/service"
	"saas-control-plane/internal/db"
	"saas-control-plane/internal/entitlement"
	healthhandler "saas-control-plane/internal/health/handler"
	identityhandler "saas-control-plane/internal/identity/handler"
	identityrepo "saas-control-plane/internal/identity/repository"
	identityservice "saas-control-plane/internal/identity/service"
	invitationhandler "saas-control-plane/internal/invitation/handler"
	invitationrepo "saas-control-plane/internal/invitation/repository"
	invitationservice "saas-control-plane/internal/invitation/service"
	"saas-control-plane/internal/logging"
	membershiphandler "saas-control-plane/internal/membership/handler"
	membershiprepo "saas-control-plane/internal/membership/repository"
	membershipservice "saas-control-plane/internal/membership/service"
	"saas-control-plane/internal/notification"
	organizationhandler "saas-control-plane/internal/organization/handler"
	orgrepo "saas-control-plane/internal/organization/repository"
	organizationservice "saas-control-plane/internal/organization/service"
	planrepo "saas-control-plane/internal/plan/repository"
	"saas-control-plane/internal/platform/rbac"
	"saas-control-plane/internal/policy/engine"
	"saas-control-plane/internal/security"
	"saas-control-plane/internal/server"
	sessionhandler "saas-control-plane/internal/session/handler"
	sessionrepo "saas-control-plane/internal/session/repository"
	sessionservice "saas-control-plane/internal/session/service"
	"saas-control-plane/internal/telemetry"
	telemetryotel "saas-control-plane/internal/telemetry/otel"
	userhandler "saas-control-plane/internal/user/handler"
	userrepo "saas-control-plane/internal/user/repository"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 20 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging is not configured yet.
		logging.Init(logging.Config{Component: "server"}).Fatal().Err(err).Msg("config")
	}
	log := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "server"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "saas-control-plane",
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return err
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	policy, err := engine.NewOPAEvaluator(ctx)
	if err != nil {
		return err
	}

	users := userrepo.NewPostgresRepository(conn)
	identities := identityrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	orgs := orgrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	invitations := invitationrepo.NewPostgresRepository(conn)
	plans := planrepo.NewPostgresRepository(conn)
	coupons := couponrepo.NewPostgresRepository(conn)
	auditRepo := auditrepo.NewPostgresRepository(conn)

	auditLogger := audit.NewLogger(auditRepo, server.ClientIPFromContext, log)
	gate := rbac.NewGate(memberships, rbac.NewSuperAdmins(cfg.SuperAdminList()), auditLogger, log)
	resolver := sessionservice.NewResolver(sessions, users, memberships, orgs, log)
	ent := entitlement.NewEngine(
		entitlement.PostgresStores(conn),
		entitlement.NewPostgresUnitOfWork(conn),
		emitter,
		log,
		entitlement.WithConcurrency(cfg.RecalcConcurrency),
	)

	notifier := notification.NewAsync(
		notification.NewMailNotifier(
			notification.NewSender(cfg.SendGridAPIKey, cfg.MailFromAddress, cfg.MailFromName, log),
			cfg.AppBaseURL,
		),
		log,
	)

	authSvc := identityservice.NewAuthService(users, identities, sessions, security.NewHasher(cfg.BcryptCost), tokens, cfg.SessionTTL(), auditLogger, log)
	orgSvc := organizationservice.NewService(orgs, sessions, organizationservice.NewPostgresUnitOfWork(conn), ent, resolver, gate, log)
	memberSvc := membershipservice.NewService(memberships, users, orgs, gate, policy, notifier, auditLogger, log)
	couponSvc := couponservice.NewService(coupons, ent, gate, auditLogger, log)
	invitationSvc := invitationservice.NewService(
		invitationservice.TxRepos{Invitations: invitations, Memberships: memberships, Orgs: orgs, Plans: plans},
		users,
		invitationservice.NewPostgresUnitOfWork(conn),
		gate,
		notifier,
		emitter,
		cfg.InvitationTTL(),
		log,
	)
	checker := healthhandler.NewChecker(conn, policy, log)

	router := server.NewRouter(server.Deps{
		Tokens:        tokens,
		Sessions:      resolver,
		AuditLogger:   auditLogger,
		Auth:          identityhandler.NewHandler(authSvc, log),
		Users:         userhandler.NewHandler(users, memberships, log),
		Session:       sessionhandler.NewHandler(resolver, log),
		Organizations: organizationhandler.NewHandler(orgSvc, log),
		Members:       membershiphandler.NewHandler(memberSvc, log),
		Invitations:   invitationhandler.NewHandler(invitationSvc, log),
		Coupons:       couponhandler.NewHandler(couponSvc, log),
		AuditLogs:     audithandler.NewHandler(auditRepo, gate, log),
		Health:        checker,
		Log:           log,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hs := health.NewServer()
	grpcServer := server.NewGRPCServer(hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go checker.Watch(watchCtx, hs, healthInterval)

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info().Msg("shutting down")
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()

	// Pending notification mail and telemetry emits finish before the exporters close.
	notifier.Wait()
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown")
	}
	log.Info().Msg("server stopped")
	return serveErr
}

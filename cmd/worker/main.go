// worker runs scheduled maintenance: it deletes expired invitations and ended sessions on
// WORKER_SWEEP_SCHEDULE. Pass -once to run every sweep a single time and exit.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"saas-control-plane/internal/config"
	"saas-control-plane/internal/db"
	invitationrepo "saas-control-plane/internal/invitation/repository"
	invitationservice "saas-control-plane/internal/invitation/service"
	"saas-control-plane/internal/logging"
	"saas-control-plane/internal/scheduler"
	sessionrepo "saas-control-plane/internal/session/repository"
	sessionservice "saas-control-plane/internal/session/service"
)

func main() {
	once := flag.Bool("once", false, "Run every sweep once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Component: "worker"}).Fatal().Err(err).Msg("config")
	}
	log := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "worker"})

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	// The sweep touches only the invitation store; no gate, notifier, or transaction is needed.
	invitations := invitationservice.NewService(
		invitationservice.TxRepos{Invitations: invitationrepo.NewPostgresRepository(conn)},
		nil, nil, nil, nil, nil, cfg.InvitationTTL(), log,
	)
	sessions := sessionservice.NewSweeper(sessionrepo.NewPostgresRepository(conn), cfg.SessionRetention(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(ctx, log)
	if err := sched.Add("invitation_sweep", cfg.WorkerSweepSchedule, invitations.Sweep); err != nil {
		log.Fatal().Err(err).Msg("register job")
	}
	if err := sched.Add("session_sweep", cfg.WorkerSweepSchedule, sessions.Sweep); err != nil {
		log.Fatal().Err(err).Msg("register job")
	}

	if *once {
		sched.RunAll()
		return
	}

	sched.Start()
	log.Info().Str("schedule", cfg.WorkerSweepSchedule).Msg("worker started")
	<-ctx.Done()
	log.Info().Msg("worker stopping")
	sched.Stop()
}

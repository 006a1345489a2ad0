// seed applies the plan catalog and development coupons. Idempotent: plans are upserted by
// codename and existing coupon codes are skipped.
package main

import (
	"context"
	"flag"
	"time"

	"saas-control-plane/internal/config"
	couponrepo "saas-control-plane/internal/coupon/repository"
	"saas-control-plane/internal/db"
	"saas-control-plane/internal/logging"
	"saas-control-plane/internal/plan/catalog"
	planrepo "saas-control-plane/internal/plan/repository"
)

func main() {
	path := flag.String("catalog", "deploy/catalog.yaml", "Path to the plan catalog YAML")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Component: "seed"}).Fatal().Err(err).Msg("config")
	}
	log := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "seed"})

	c, err := catalog.LoadFile(*path)
	if err != nil {
		log.Fatal().Err(err).Str("catalog", *path).Msg("load catalog")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var res catalog.Result
	err = db.RunInTx(ctx, conn, func(tx db.DBTX) error {
		res, err = c.Apply(ctx, planrepo.NewPostgresRepository(tx), couponrepo.NewPostgresRepository(tx), time.Now().UTC())
		return err
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	log.Info().Int("plans", res.Plans).Int("coupons_inserted", res.Coupons).Msg("catalog applied")
}

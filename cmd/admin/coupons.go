package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"saas-control-plane/internal/audit"
	auditrepo "saas-control-plane/internal/audit/repository"
	"saas-control-plane/internal/config"
	couponrepo "saas-control-plane/internal/coupon/repository"
	couponservice "saas-control-plane/internal/coupon/service"
	"saas-control-plane/internal/db"
	"saas-control-plane/internal/entitlement"
	"saas-control-plane/internal/logging"
)

var (
	codesFile      string
	generatePrefix string
	generateCount  int
)

// couponAdmin is the coupon service surface the CLI drives.
type couponAdmin interface {
	ExpireBatchTrusted(ctx context.Context, codes []string) (*entitlement.ExpiryReport, error)
	Generate(ctx context.Context, prefix string, n int) ([]string, error)
}

// openCoupons connects to the database and returns the coupon service with a close function.
var openCoupons = func() (couponAdmin, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "admin"})
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	ent := entitlement.NewEngine(
		entitlement.PostgresStores(conn),
		entitlement.NewPostgresUnitOfWork(conn),
		nil,
		log,
		entitlement.WithConcurrency(cfg.RecalcConcurrency),
	)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil, log)
	svc := couponservice.NewService(couponrepo.NewPostgresRepository(conn), ent, nil, auditLogger, log)
	return svc, func() { _ = conn.Close() }, nil
}

var couponsCmd = &cobra.Command{
	Use:   "coupons",
	Short: "Coupon campaign commands",
}

var couponsExpireCmd = &cobra.Command{
	Use:   "expire [CODE...]",
	Short: "Expire coupons and recalculate affected organizations",
	Long: `Marks the given coupons expired and re-derives the plan of every organization that held one.
Codes come from arguments, from --file (one per line, # comments allowed), or both. The report is
printed as JSON.`,
	Example: `  admin coupons expire LTD-AB12CD34 LTD-EF56GH78
  admin coupons expire --file refunds.txt
  cat refunds.txt | admin coupons expire --file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		codes := append([]string(nil), args...)
		if codesFile != "" {
			fromFile, err := readCodes(cmd.InOrStdin(), codesFile)
			if err != nil {
				return err
			}
			codes = append(codes, fromFile...)
		}
		if len(codes) == 0 {
			return errors.New("no coupon codes given")
		}

		svc, closeFn, err := openCoupons()
		if err != nil {
			return err
		}
		defer closeFn()

		report, err := svc.ExpireBatchTrusted(cmd.Context(), codes)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

var couponsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new unused coupon codes",
	Long:  `Creates --count coupons named PREFIX-XXXXXXXX and prints one code per line.`,
	Example: `  admin coupons generate --prefix LTD --count 500 > codes.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount <= 0 || generateCount > couponservice.MaxGenerate {
			return fmt.Errorf("--count must be between 1 and %d", couponservice.MaxGenerate)
		}
		svc, closeFn, err := openCoupons()
		if err != nil {
			return err
		}
		defer closeFn()

		codes, err := svc.Generate(cmd.Context(), generatePrefix, generateCount)
		if err != nil {
			return err
		}
		out := bufio.NewWriter(cmd.OutOrStdout())
		for _, c := range codes {
			fmt.Fprintln(out, c)
		}
		return out.Flush()
	},
}

func init() {
	couponsExpireCmd.Flags().StringVarP(&codesFile, "file", "f", "", "read codes from file, one per line (- for stdin)")
	couponsGenerateCmd.Flags().StringVar(&generatePrefix, "prefix", "", "code prefix, e.g. LTD")
	couponsGenerateCmd.Flags().IntVarP(&generateCount, "count", "n", 0, "number of codes to generate")
	_ = couponsGenerateCmd.MarkFlagRequired("count")

	couponsCmd.AddCommand(couponsExpireCmd)
	couponsCmd.AddCommand(couponsGenerateCmd)
}

func readCodes(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var codes []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		codes = append(codes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return codes, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

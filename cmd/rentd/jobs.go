package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/handler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func generateDueCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "generate-due",
		Short: "Create today's due payments once and exit",
		Long: `Create one pending payment for every active lease due today.

Safe to re-run: payments are unique per lease and due date.

Examples:
  rentd generate-due
  rentd generate-due --date 2024-05-05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadApp()
			defer logger.Sync()

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			today := a.payments.Today()
			if date != "" {
				if today, err = parseDay(date, cfg.Location()); err != nil {
					return err
				}
			}

			ctx, cancel := a.withTimeout()
			defer cancel()

			res, err := a.payments.GenerateDuePayments(ctx, today)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d lease(s) failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "billing day as YYYY-MM-DD (default: today in BILLING_TIMEZONE)")
	return cmd
}

func markPaidCmd() *cobra.Command {
	var txRef string

	cmd := &cobra.Command{
		Use:   "mark-paid [payment-id]",
		Short: "Confirm a payment received outside the payment provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadApp()
			defer logger.Sync()

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := a.withTimeout()
			defer cancel()

			p, err := a.payments.MarkPaid(ctx, args[0], txRef)
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}

	cmd.Flags().StringVar(&txRef, "tx-ref", "", "external transaction reference (default: generated TX-...)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadApp()
			defer logger.Sync()

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if a.sql == nil {
				return errors.New("migrate needs STORE_BACKEND=sql; the managed store is migrated with its own tooling")
			}

			ctx, cancel := a.withTimeout()
			defer cancel()

			if err := a.sql.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with AUTH_JWT_SECRET",
		Long: `Sign a bearer token for calling owner or operator routes.

Examples:
  rentd token --role operator --ttl 1h
  rentd token --sub 7f1c... --role authenticated`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadApp()
			defer logger.Sync()

			auth := handler.NewAuthenticator(cfg.JWTSecret, logger)
			tok, err := auth.IssueToken(subject, role, ttl)
			if err != nil {
				return err
			}
			logger.Debug("token issued", zap.String("sub", subject), zap.String("role", role))
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "operator", "token subject (owner id for owner routes)")
	cmd.Flags().StringVar(&role, "role", handler.RoleOperator, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/repository"
	"github.com/noah-isme/ooak-quotation-api/internal/service"
	"github.com/noah-isme/ooak-quotation-api/pkg/config"
	"github.com/noah-isme/ooak-quotation-api/pkg/database"
	"github.com/noah-isme/ooak-quotation-api/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type scanOptions struct {
	dryRun bool
	asOf   string
}

func newRootCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:          "overdue-scan",
		Short:        "Run one overdue quotation scan and print the report as JSON",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "list overdue quotations without sending notifications or cleaning up")
	cmd.Flags().StringVar(&opts.asOf, "as-of", "", "evaluation instant in RFC3339 (defaults to now)")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	now, err := parseAsOf(opts.asOf, time.Now().UTC())
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Workflow.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Workflow.ScanTimeout)
		defer cancel()
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	notificationSvc := service.NewNotificationService(repository.NewNotificationRepository(db), cfg.Workflow.NotificationTTL, logr,
		service.WithNotificationMetrics(metricsSvc),
	)
	resolver := service.NewStageEntryResolver(repository.NewQuotationApprovalRepository(db), logr)
	overdueSvc := service.NewOverdueService(repository.NewQuotationRepository(db), resolver, notificationSvc, notificationSvc, logr,
		service.WithDefaultRecipient(cfg.Workflow.DefaultRecipient),
		service.WithOverdueMetrics(metricsSvc),
		service.WithOverdueAudit(repository.NewAuditRepository(db)),
	)

	var result interface{}
	if opts.dryRun {
		items, err := overdueSvc.Scan(ctx, now)
		if err != nil {
			return err
		}
		result = items
	} else {
		report, err := overdueSvc.Run(ctx, now)
		if err != nil {
			return err
		}
		result = report
	}

	logr.Info("overdue scan finished", zap.Bool("dry_run", opts.dryRun), zap.Time("as_of", now))
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func parseAsOf(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: %w", raw, err)
	}
	return parsed.UTC(), nil
}

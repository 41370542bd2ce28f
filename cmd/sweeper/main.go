// Command sweeper deletes images in the ImageKit folder that no product
// references, such as uploads whose product save never completed or replaced
// images whose cleanup failed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retailstore/service/internal/asset"
	"github.com/retailstore/service/internal/config"
	"github.com/retailstore/service/internal/db"
	"github.com/retailstore/service/internal/product"
	"github.com/retailstore/service/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dryRun  bool
		grace   time.Duration
		pushURL string
	)
	cmd := &cobra.Command{
		Use:          "sweeper",
		Short:        "Delete stored product images that no product references",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), dryRun, grace, pushURL)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without deleting")
	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "skip files younger than this")
	cmd.Flags().StringVar(&pushURL, "pushgateway", os.Getenv("PUSHGATEWAY_URL"), "push run metrics to this Prometheus Pushgateway")
	return cmd
}

func run(ctx context.Context, dryRun bool, grace time.Duration, pushURL string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if !cfg.ImageKitConfigured() {
		return fmt.Errorf("sweeper needs IMAGEKIT_PRIVATE_KEY and IMAGEKIT_PUBLIC_KEY")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	observer, err := storage.NewPrometheusObserver("sweeper", reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	store := storage.NewImageKitStorage(cfg.ImageKitPrivateKey,
		storage.WithAPIBase(cfg.ImageKitAPIBase),
		storage.WithObserver(observer),
	)

	sweeper := asset.NewSweeper(store, product.NewRepository(pool), log, cfg.ImageKitFolder, grace)
	report, err := sweeper.Sweep(ctx, dryRun)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"dry_run":  dryRun,
		"scanned":  report.Scanned,
		"orphaned": len(report.Orphaned),
		"deleted":  len(report.Deleted),
		"failed":   len(report.Failed),
	}).Info("sweep finished")

	if pushURL != "" {
		if err := push.New(pushURL, "image_sweeper").Gatherer(reg).Push(); err != nil {
			log.WithError(err).Warn("push metrics")
		}
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d orphaned images could not be deleted", len(report.Failed))
	}
	return nil
}

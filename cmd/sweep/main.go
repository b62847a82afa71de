// Command sweep runs one image expiration sweep and prints its stats. It is
// meant for cron; the exit status is 2 when another sweep holds the lock.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/lifecycle"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/notifications"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/service"
	"agora/internal/sweep"

	"gopkg.in/yaml.v3"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Report what would be removed without writing")
	format := flag.String("format", "json", "Output format: json or yaml")
	flag.Parse()

	if *format != "json" && *format != "yaml" {
		log.Fatalf("Unknown format %q (use json or yaml)", *format)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// Logs go to stderr so stdout stays machine readable.
	middleware.ConfigureLogger(observability.LogOptions{
		Level:      cfg.LogLevel,
		JSON:       true,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Console:    os.Stderr,
	})

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := lifecycle.NewPolicy(cfg.ExpiryWindow)
	svc := service.NewSweepService(
		repository.NewPostRepository(db),
		repository.NewCleanupRunRepository(db),
		sweep.New(policy, cfg.LegacyImageEstimateKB),
		notifications.NewNotifier(rdb),
		service.SweepServiceOptions{BatchSize: cfg.SweepBatchSize},
	)

	var out any
	if *dryRun {
		stats, err := svc.Preview(ctx)
		if err != nil {
			log.Fatalf("Sweep preview failed: %v", err)
		}
		out = struct {
			DryRun bool        `json:"dry_run" yaml:"dry_run"`
			Stats  sweep.Stats `json:"stats" yaml:"stats"`
		}{DryRun: true, Stats: stats}
	} else {
		run, err := svc.Run(ctx, service.TriggerCLI)
		if err != nil {
			if models.ErrorCode(err) == models.CodeConflict {
				fmt.Fprintln(os.Stderr, "another sweep is already running")
				os.Exit(2)
			}
			log.Fatalf("Sweep failed: %v", err)
		}
		out = run
	}

	if err := write(os.Stdout, *format, out); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}

func write(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

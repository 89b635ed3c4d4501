package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ignite/bounce-pipeline/internal/config"
	"github.com/ignite/bounce-pipeline/internal/engagement"
	"github.com/ignite/bounce-pipeline/internal/reconciler"
	"github.com/ignite/bounce-pipeline/internal/repository/postgres"
)

// One-shot discrepancy audit. Runs the same read-only checks as the server's
// scheduled worker and prints the report as JSON, for cron jobs and manual
// investigation.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	windowHours := flag.Int("window", 0, "audit lookback window in hours (default from config)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	window := cfg.Reconcile.Window()
	if *windowHours > 0 {
		window = time.Duration(*windowHours) * time.Hour
	}

	aggregator := engagement.NewAggregator(postgres.NewEngagementRepo(db))
	auditor := reconciler.NewAuditor(aggregator, postgres.NewSubscriberRepo(db), cfg.Bounce, cfg.Reconcile.DriftTolerance)

	report, err := auditor.Audit(ctx, window)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Encode report: %v", err)
	}

	if !report.Clean() {
		os.Exit(1)
	}
}

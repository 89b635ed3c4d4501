package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/bounce-pipeline/internal/api"
	"github.com/ignite/bounce-pipeline/internal/archive"
	"github.com/ignite/bounce-pipeline/internal/bounce"
	"github.com/ignite/bounce-pipeline/internal/config"
	"github.com/ignite/bounce-pipeline/internal/engagement"
	"github.com/ignite/bounce-pipeline/internal/eventstore"
	"github.com/ignite/bounce-pipeline/internal/ingest"
	"github.com/ignite/bounce-pipeline/internal/pkg/distlock"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
	"github.com/ignite/bounce-pipeline/internal/reconciler"
	"github.com/ignite/bounce-pipeline/internal/repository/postgres"
	"github.com/ignite/bounce-pipeline/internal/tracking"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// extractHost pulls the host portion out of a postgres DSN for logging
// without exposing credentials.
func extractHost(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	}
	if os.Getenv("LOG_REDACT_PII") == "false" {
		logger.SetRedactPII(false)
	}

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}

	// Guard every statement with server-side timeouts so a stuck query can
	// never wedge a webhook worker.
	dbURL := cfg.Database.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
		sep = "&"
	}
	dbURL += sep + "options=-c%20statement_timeout%3D15000%20-c%20idle_in_transaction_session_timeout%3D15000"
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()
	log.Println("Connected to PostgreSQL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs event dedup and the reconciler's distributed lock. Without
	// it the process falls back to in-memory dedup, which is only safe for a
	// single instance.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisCtx, redisCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(redisCtx).Err(); err != nil {
			log.Fatalf("Redis ping failed (%s): %v", cfg.Redis.Addr, err)
		}
		redisCancel()
		log.Printf("Connected to Redis (%s)", cfg.Redis.Addr)
	} else {
		log.Println("Warning: Redis disabled, using in-memory dedup (single instance only)")
	}

	var dedup bounce.DedupStore
	if redisClient != nil {
		dedup = bounce.NewRedisDedup(redisClient)
	} else {
		dedup = bounce.NewMemoryDedup()
	}

	subscriberRepo := postgres.NewSubscriberRepo(db)
	webhookRepo := postgres.NewWebhookLogRepo(db)
	engagementRepo := postgres.NewEngagementRepo(db)

	events := eventstore.NewService(webhookRepo)
	aggregator := engagement.NewAggregator(engagementRepo)
	engine := bounce.NewEngine(subscriberRepo, dedup, cfg.Bounce)

	pipeline := ingest.New(events, engine, aggregator, cfg.Ingest.Partitions, cfg.Ingest.QueueSize)
	pipeline.Start(ctx)
	log.Printf("Ingest pipeline started (%d partitions, queue %d)", cfg.Ingest.Partitions, cfg.Ingest.QueueSize)

	// Replay events a previous instance appended but never finished.
	if pending, err := events.Unprocessed(ctx, 1000); err != nil {
		log.Printf("Warning: unprocessed event scan failed: %v", err)
	} else if len(pending) > 0 {
		log.Printf("Replaying %d unprocessed webhook events", len(pending))
		for _, entry := range pending {
			if err := pipeline.Reprocess(ctx, entry); err != nil {
				log.Printf("Replay of event %s failed: %v", entry.ID, err)
			}
		}
	}

	// Reconciliation audit. The lock keeps multiple instances from running
	// the same scheduled audit.
	auditor := reconciler.NewAuditor(aggregator, subscriberRepo, cfg.Bounce, cfg.Reconcile.DriftTolerance)
	auditLock := distlock.NewLock(redisClient, db, "reconcile:audit", cfg.Reconcile.Interval())
	reconcileWorker := reconciler.NewWorker(auditor, auditLock, cfg.Reconcile.Interval(), cfg.Reconcile.Window())
	reconcileWorker.Start(ctx)
	log.Printf("Reconcile worker started (every %dm, window %dh)",
		cfg.Reconcile.IntervalMinutes, cfg.Reconcile.WindowHours)

	// Internal engagement tracking: the pixel/click handler publishes to SQS
	// and the consumer drains the queue into the internal counters.
	var trackingHandler *tracking.Handler
	var trackingConsumer *tracking.Consumer
	if cfg.Tracking.Enabled && cfg.Tracking.QueueURL != "" {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Tracking.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Tracking.AWSRegion))
		}
		if cfg.Tracking.AWSProfile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Tracking.AWSProfile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			log.Fatalf("AWS config for tracking failed: %v", err)
		}
		sqsClient := sqs.NewFromConfig(awsCfg)
		pub := tracking.NewPublisher(sqsClient, cfg.Tracking.QueueURL)
		trackingHandler = tracking.NewHandler(pub)
		trackingConsumer = tracking.NewConsumer(sqsClient, cfg.Tracking.QueueURL, aggregator)
		trackingConsumer.Start(ctx)
		log.Printf("Tracking consumer started (queue=%s)", cfg.Tracking.QueueURL)
	} else {
		log.Println("Tracking disabled")
	}

	// Webhook log archival to S3.
	var archiveWorker *archive.Worker
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Archive.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Archive.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			log.Fatalf("AWS config for archive failed: %v", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)
		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		archiver := archive.New(events, s3Client, cfg.Archive.S3Bucket, cfg.Archive.S3Prefix, retention)
		archiveWorker = archive.NewWorker(archiver, cfg.Archive.Interval())
		archiveWorker.Start(ctx)
		log.Printf("Archive worker started (bucket=%s, every %dh, retain %dd)",
			cfg.Archive.S3Bucket, cfg.Archive.IntervalHours, cfg.Archive.RetentionDays)
	} else {
		log.Println("Archival disabled")
	}

	server := api.NewServer(events, subscriberRepo, aggregator, engine, reconcileWorker, pipeline, trackingHandler, cfg.Webhooks)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop background work after the listener drains so in-flight webhook
	// dispatches still land in the pipeline. The pipeline drains its queues
	// before the shared context is cancelled; queued events were already
	// acknowledged to the provider and must not be dropped.
	pipeline.Stop()
	cancel()
	reconcileWorker.Stop()
	if trackingConsumer != nil {
		trackingConsumer.Stop()
	}
	if archiveWorker != nil {
		archiveWorker.Stop()
	}

	log.Println("Server stopped")
}

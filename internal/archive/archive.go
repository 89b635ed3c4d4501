// Package archive moves processed webhook log entries past their retention
// window out of Postgres and into S3 as JSON lines, one object per run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

const exportBatch = 1000

// EventSource is the slice of the event store the archiver uses.
type EventSource interface {
	ProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WebhookEvent, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// s3Putter is the slice of the S3 client the archiver uses.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver exports old processed log entries to S3, then prunes them.
type Archiver struct {
	store  EventSource
	client s3Putter
	bucket string
	prefix string
	keep   time.Duration
}

// New creates an archiver that retains entries for keep before exporting.
func New(store EventSource, client s3Putter, bucket, prefix string, keep time.Duration) *Archiver {
	if prefix == "" {
		prefix = "webhook-logs"
	}
	return &Archiver{store: store, client: client, bucket: bucket, prefix: prefix, keep: keep}
}

// Run performs one archive pass in batches: each batch is uploaded first
// and only then pruned, so a failed upload leaves its rows in place for the
// next run. The prune targets exactly the IDs in the uploaded object; a row
// that becomes prunable mid-pass waits for the next iteration or run, so no
// row is ever deleted without being in an object first.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-a.keep)

	var deleted int64
	for {
		events, err := a.store.ProcessedBefore(ctx, cutoff, exportBatch)
		if err != nil {
			return deleted, fmt.Errorf("archive: load batch: %w", err)
		}
		if len(events) == 0 {
			return deleted, nil
		}

		if err := a.upload(ctx, events); err != nil {
			return deleted, err
		}

		ids := make([]string, len(events))
		for i := range events {
			ids[i] = events[i].ID
		}
		n, err := a.store.Delete(ctx, ids)
		if err != nil {
			return deleted, fmt.Errorf("archive: prune after upload: %w", err)
		}
		deleted += n

		if len(events) < exportBatch {
			return deleted, nil
		}
	}
}

func (a *Archiver) upload(ctx context.Context, events []domain.WebhookEvent) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("archive: encode event %s: %w", e.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%s/%d.jsonl", a.prefix, time.Now().UTC().Format("2006/01/02"), time.Now().UnixNano())
	contentType := "application/x-ndjson"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("archive: S3 PutObject %s/%s: %w", a.bucket, key, err)
	}
	logger.Info("webhook logs archived", "exported", len(events), "key", key, "bytes", buf.Len())
	return nil
}

// Worker runs the archiver on an interval.
type Worker struct {
	archiver *Archiver
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewWorker creates a periodic archive worker.
func NewWorker(archiver *Archiver, interval time.Duration) *Worker {
	return &Worker{
		archiver: archiver,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the archive loop.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				if _, err := w.archiver.Run(ctx); err != nil {
					logger.Error("archive run failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight run.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Package ingest turns decoded webhook payloads into log entries, bounce
// transitions and engagement counts. Events are partitioned by subscriber
// key onto single-consumer channels, so everything about one subscriber is
// processed in arrival order while unrelated subscribers proceed in
// parallel.
package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/ignite/bounce-pipeline/internal/bounce"
	"github.com/ignite/bounce-pipeline/internal/classifier"
	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

// EventLog is the slice of the event store the pipeline needs.
type EventLog interface {
	Append(ctx context.Context, event *domain.WebhookEvent) (string, error)
	MarkProcessed(ctx context.Context, id string, procErr error) error
}

// BounceSink applies classified bounce events.
type BounceSink interface {
	Apply(ctx context.Context, event *domain.BounceEvent) (domain.TransitionOutcome, error)
}

// EngagementSink counts provider-reported engagement.
type EngagementSink interface {
	RecordProvider(ctx context.Context, campaignID string, kind domain.EngagementKind) error
}

// ErrQueueFull means every partition buffer slot for the event's key was
// taken. The webhook handler logs it and still returns 200; the provider
// will retry.
var ErrQueueFull = errors.New("ingest queue full")

// Pipeline fans inbound events across partitioned consumer loops.
type Pipeline struct {
	store      EventLog
	bounces    BounceSink
	engagement EngagementSink

	partitions []chan domain.InboundEvent
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// New creates a pipeline with the given partition count and per-partition
// queue depth.
func New(store EventLog, bounces BounceSink, engagement EngagementSink, partitions, queueSize int) *Pipeline {
	if partitions < 1 {
		partitions = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pipeline{store: store, bounces: bounces, engagement: engagement}
	p.partitions = make([]chan domain.InboundEvent, partitions)
	for i := range p.partitions {
		p.partitions[i] = make(chan domain.InboundEvent, queueSize)
	}
	return p
}

// Start launches one consumer goroutine per partition. Consumers carry the
// caller's context values but not its cancellation: the provider already got
// a 200 for every queued event, so the drain in Stop must finish even after
// the caller's context is cancelled during shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := range p.partitions {
		p.wg.Add(1)
		go p.consume(ctx, p.partitions[i])
	}
}

// Stop closes the partitions and waits until every queued event has been
// processed.
func (p *Pipeline) Stop() {
	for _, ch := range p.partitions {
		close(ch)
	}
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
}

// Dispatch queues an event onto its partition. Events sharing a partition
// key always land on the same partition. Returns ErrQueueFull instead of
// blocking when the partition's buffer is saturated.
func (p *Pipeline) Dispatch(event domain.InboundEvent) error {
	ch := p.partitions[p.partition(event.PartitionKey)]
	select {
	case ch <- event:
		return nil
	default:
		logger.Warn("ingest partition saturated, dropping event",
			"provider", event.Provider, "event_type", event.EventType)
		return ErrQueueFull
	}
}

func (p *Pipeline) partition(key string) int {
	if len(p.partitions) == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.partitions)))
}

func (p *Pipeline) consume(ctx context.Context, ch <-chan domain.InboundEvent) {
	defer p.wg.Done()
	for event := range ch {
		p.process(ctx, event)
	}
}

// process appends the event to the log first, then classifies and routes
// it. A failure after the append is recorded on the log entry and never
// propagated: one bad payload must not stall the partition.
func (p *Pipeline) process(ctx context.Context, inbound domain.InboundEvent) {
	entry := &domain.WebhookEvent{
		WebhookType: inbound.Provider,
		EventType:   inbound.EventType,
		Payload:     inbound.Payload,
		ReceivedAt:  inbound.ReceivedAt,
	}
	id, err := p.store.Append(ctx, entry)
	if err != nil {
		logger.Error("ingest: append failed, event dropped",
			"provider", inbound.Provider, "error", err)
		return
	}

	procErr := p.route(ctx, inbound)
	if err := p.store.MarkProcessed(ctx, id, procErr); err != nil {
		logger.Error("ingest: mark processed failed", "event_id", id, "error", err)
	}
}

// Reprocess routes an already-appended log entry and marks it processed.
// Used at startup to drain events a crashed instance appended but never
// consumed; bounce dedup makes a replay of a half-processed event harmless.
func (p *Pipeline) Reprocess(ctx context.Context, entry domain.WebhookEvent) error {
	inbound := domain.InboundEvent{
		Provider:   entry.WebhookType,
		EventType:  entry.EventType,
		Payload:    entry.Payload,
		ReceivedAt: entry.ReceivedAt,
	}
	procErr := p.route(ctx, inbound)
	if err := p.store.MarkProcessed(ctx, entry.ID, procErr); err != nil {
		return err
	}
	return procErr
}

func (p *Pipeline) route(ctx context.Context, inbound domain.InboundEvent) error {
	result, err := classifier.Classify(inbound.Provider, inbound.Payload, inbound.ReceivedAt)
	if err != nil {
		return err
	}

	switch {
	case result.Bounce != nil:
		_, err := p.bounces.Apply(ctx, result.Bounce)
		if errors.Is(err, bounce.ErrDuplicateEvent) {
			// Redelivery of an already-counted event is a success.
			return nil
		}
		return err
	case result.Engagement != nil:
		e := result.Engagement
		if e.CampaignID == "" {
			logger.Debug("ingest: engagement event without campaign, skipped",
				"provider", inbound.Provider, "event_type", result.EventType)
			return nil
		}
		return p.engagement.RecordProvider(ctx, e.CampaignID, e.Kind)
	default:
		// Deliveries and other informational events are logged only.
		return nil
	}
}

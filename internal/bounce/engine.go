package bounce

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/ignite/bounce-pipeline/internal/config"
	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

// lockShards bounds the keyed-mutex table. Contention is per
// (subscriber, kind) and bounce volume per subscriber is low, so collisions
// across shards only cost unnecessary serialization, never correctness.
const lockShards = 256

// Engine applies bounce events to subscriber state. Safe for concurrent use.
//
// The increment-then-compare sequence for one (subscriber, kind) key runs
// under a keyed mutex: two concurrent events for the same key cannot both
// observe a pre-threshold count and skip the transition.
type Engine struct {
	repo  Repository
	dedup DedupStore
	cfg   config.BounceConfig

	locks [lockShards]sync.Mutex
}

// NewEngine creates a bounce engine. The configuration is loaded once at
// process start and treated as immutable for the engine's lifetime.
func NewEngine(repo Repository, dedup DedupStore, cfg config.BounceConfig) *Engine {
	return &Engine{repo: repo, dedup: dedup, cfg: cfg}
}

// Apply counts a bounce event and performs the configured transition if the
// updated count meets the threshold.
//
// Error semantics mirror the configuration contract: ErrDuplicateEvent is an
// idempotent success, ErrMissingBounceConfig is surfaced after the counter is
// incremented so the event is never lost, and any other error means the event
// was not counted. An uncounted event releases its dedup claim so the
// provider's retry is not rejected as a duplicate.
func (e *Engine) Apply(ctx context.Context, event *domain.BounceEvent) (domain.TransitionOutcome, error) {
	noop := domain.TransitionOutcome{Kind: domain.TransitionNoOp, BounceType: event.Type}

	if !event.Type.Valid() {
		return noop, fmt.Errorf("invalid bounce type %q", event.Type)
	}

	fresh, err := e.dedup.MarkSeen(ctx, event.ID, e.cfg.DedupTTL())
	if err != nil {
		return noop, fmt.Errorf("dedup check: %w", err)
	}
	if !fresh {
		return noop, ErrDuplicateEvent
	}

	sub, err := e.resolveSubscriber(ctx, event)
	if err != nil {
		e.unmark(ctx, event.ID)
		return noop, err
	}
	event.SubscriberID = sub.ID
	noop.SubscriberID = sub.ID

	if err := e.repo.RecordBounce(ctx, event); err != nil {
		e.unmark(ctx, event.ID)
		return noop, fmt.Errorf("record bounce: %w", err)
	}

	lock := &e.locks[shard(sub.ID, event.Type)]
	lock.Lock()
	defer lock.Unlock()

	count, err := e.repo.IncrementBounceCount(ctx, sub.ID, event.Type)
	if err != nil {
		e.unmark(ctx, event.ID)
		return noop, fmt.Errorf("increment bounce count: %w", err)
	}
	noop.Count = count

	rule, ok := e.cfg.Rule(event.Type)
	if !ok {
		return noop, fmt.Errorf("%w: %s", ErrMissingBounceConfig, event.Type)
	}
	noop.Threshold = rule.Threshold

	if rule.Action == domain.ActionNone || count < rule.Threshold {
		return noop, nil
	}

	switch rule.Action {
	case domain.ActionBlocklist:
		if sub.Status == domain.SubscriberBlocklisted {
			return noop, nil
		}
		prior, err := e.repo.UpdateSubscriberStatus(ctx, sub.ID, domain.SubscriberBlocklisted)
		if err != nil {
			return noop, fmt.Errorf("blocklist subscriber: %w", err)
		}
		logger.Info("subscriber blocklisted",
			"subscriber_id", sub.ID, "email", sub.Email,
			"kind", event.Type, "count", count, "threshold", rule.Threshold)
		return domain.TransitionOutcome{
			Kind:         domain.TransitionBlocklisted,
			SubscriberID: sub.ID,
			BounceType:   event.Type,
			Count:        count,
			Threshold:    rule.Threshold,
			PriorStatus:  prior,
			NewStatus:    domain.SubscriberBlocklisted,
		}, nil

	case domain.ActionDelete:
		if err := e.repo.DeleteSubscriber(ctx, sub.ID); err != nil {
			return noop, fmt.Errorf("delete subscriber: %w", err)
		}
		// Deletion is irreversible; log it at WARN so it stands apart from
		// routine blocklist transitions in the stream.
		logger.Warn("subscriber deleted by bounce threshold",
			"subscriber_id", sub.ID, "email", sub.Email,
			"kind", event.Type, "count", count, "threshold", rule.Threshold)
		return domain.TransitionOutcome{
			Kind:         domain.TransitionDeleted,
			SubscriberID: sub.ID,
			BounceType:   event.Type,
			Count:        count,
			Threshold:    rule.Threshold,
			PriorStatus:  sub.Status,
		}, nil
	}

	return noop, nil
}

// BlocklistBounced is the administrative sweep: blocklist every subscriber
// whose hard or complaint counter already meets a blocklist threshold.
// Kinds configured with other actions are left to Apply. Returns the number
// of subscribers transitioned.
func (e *Engine) BlocklistBounced(ctx context.Context) (int, error) {
	thresholds := make(map[domain.BounceType]int)
	for _, kind := range []domain.BounceType{domain.BounceTypeHard, domain.BounceTypeComplaint} {
		if rule, ok := e.cfg.Rule(kind); ok && rule.Action == domain.ActionBlocklist {
			thresholds[kind] = rule.Threshold
		}
	}
	if len(thresholds) == 0 {
		return 0, nil
	}

	subs, err := e.repo.SubscribersAtThreshold(ctx, thresholds)
	if err != nil {
		return 0, fmt.Errorf("query subscribers at threshold: %w", err)
	}

	n := 0
	for i := range subs {
		sub := &subs[i]
		if _, err := e.repo.UpdateSubscriberStatus(ctx, sub.ID, domain.SubscriberBlocklisted); err != nil {
			logger.Error("blocklist sweep failed for subscriber",
				"subscriber_id", sub.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		logger.Info("blocklist sweep complete", "transitioned", n)
	}
	return n, nil
}

// unmark releases the dedup claim for an event that was not counted. Errors
// after the counter moved must NOT unmark: a retry would double-count.
func (e *Engine) unmark(ctx context.Context, eventID string) {
	if err := e.dedup.Unmark(ctx, eventID); err != nil {
		logger.Error("dedup unmark failed, retry of this event will be dropped",
			"event_id", eventID, "error", err)
	}
}

func (e *Engine) resolveSubscriber(ctx context.Context, event *domain.BounceEvent) (*domain.Subscriber, error) {
	if event.SubscriberID != "" {
		return e.repo.GetSubscriber(ctx, event.SubscriberID)
	}
	return e.repo.GetSubscriberByEmail(ctx, event.Email)
}

func shard(subscriberID string, kind domain.BounceType) uint32 {
	h := fnv.New32a()
	h.Write([]byte(subscriberID))
	h.Write([]byte(":"))
	h.Write([]byte(kind))
	return h.Sum32() % lockShards
}

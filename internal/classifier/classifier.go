// Package classifier maps provider-specific webhook payloads to canonical
// pipeline events.
//
// Classification is a pure mapping: no persistence, no side effects. The
// caller (the ingestion pipeline) owns recording the event and applying it.
// Unknown or malformed payloads fail with ErrUnrecognizedFormat rather than
// silently defaulting to a soft bounce — a silent misclassification would
// suppress blocklisting, which is the single most damaging failure mode in
// this subsystem.
package classifier

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// Sentinel errors for classification failures.
var (
	// ErrUnrecognizedFormat means the payload could not be mapped to any
	// known event shape for the given provider.
	ErrUnrecognizedFormat = errors.New("unrecognized webhook payload format")

	// ErrUnknownProvider means no parser exists for the provider name.
	ErrUnknownProvider = errors.New("unknown webhook provider")
)

// Provider names accepted by Classify.
const (
	ProviderSparkPost = "sparkpost"
	ProviderSES       = "ses"
	ProviderMailgun   = "mailgun"
	ProviderGeneric   = "generic"
)

// Engagement is a provider-reported view or click.
type Engagement struct {
	CampaignID string
	Email      string
	Kind       domain.EngagementKind
}

// Result is the canonical form of one classified webhook payload. Exactly one
// of Bounce/Engagement is set, or neither for a plain delivery confirmation.
type Result struct {
	EventType  string
	MessageID  string
	Bounce     *domain.BounceEvent
	Engagement *Engagement
	Delivered  bool
}

// Classify maps a raw provider payload to a canonical Result.
func Classify(provider string, payload []byte, receivedAt time.Time) (Result, error) {
	switch provider {
	case ProviderSparkPost:
		return classifySparkPost(payload, receivedAt)
	case ProviderSES:
		return classifySES(payload, receivedAt)
	case ProviderMailgun:
		return classifyMailgun(payload, receivedAt)
	case ProviderGeneric:
		return classifyGeneric(payload, receivedAt)
	default:
		return Result{}, ErrUnknownProvider
	}
}

// eventID returns the provider-supplied identifier, or a fresh UUID when the
// provider sent none. Without a source ID duplicate deliveries cannot be
// detected, but the event is still processable.
func eventID(sourceID string) string {
	if sourceID != "" {
		return sourceID
	}
	return uuid.New().String()
}

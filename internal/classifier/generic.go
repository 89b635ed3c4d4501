package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// genericEvent is the built-in webhook format for systems that post bounce
// records directly (an upstream MTA, a manual import script). The kind must
// be one of the three canonical values; anything else is rejected instead of
// being coerced to soft.
type genericEvent struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	CampaignID string          `json:"campaign_id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Meta       json.RawMessage `json:"meta"`
}

func classifyGeneric(payload []byte, receivedAt time.Time) (Result, error) {
	var evt genericEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	email := strings.ToLower(strings.TrimSpace(evt.Email))
	if email == "" {
		return Result{}, fmt.Errorf("%w: generic event missing email", ErrUnrecognizedFormat)
	}

	kind := domain.BounceType(evt.Type)
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: generic event kind %q", ErrUnrecognizedFormat, evt.Type)
	}

	source := evt.Source
	if source == "" {
		source = ProviderGeneric
	}

	return Result{
		EventType: evt.Type,
		Bounce: &domain.BounceEvent{
			ID:         eventID(evt.ID),
			Email:      email,
			CampaignID: evt.CampaignID,
			Type:       kind,
			Source:     source,
			Meta:       evt.Meta,
			CreatedAt:  receivedAt,
		},
	}, nil
}

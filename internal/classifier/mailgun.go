package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// mailgunEvent is a Mailgun webhook payload. Mailgun nests everything under
// event-data and reports failures with a severity field.
type mailgunEvent struct {
	EventData struct {
		Event     string  `json:"event"` // failed, complained, delivered, opened, clicked
		ID        string  `json:"id"`
		Severity  string  `json:"severity"` // permanent, temporary
		Recipient string  `json:"recipient"`
		Timestamp float64 `json:"timestamp"`
		Message   struct {
			Headers struct {
				MessageID string `json:"message-id"`
			} `json:"headers"`
		} `json:"message"`
		UserVariables struct {
			CampaignID string `json:"campaign_id"`
		} `json:"user-variables"`
	} `json:"event-data"`
}

func classifyMailgun(payload []byte, receivedAt time.Time) (Result, error) {
	var evt mailgunEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	d := evt.EventData
	if d.Event == "" {
		return Result{}, fmt.Errorf("%w: missing mailgun event-data", ErrUnrecognizedFormat)
	}

	res := Result{EventType: d.Event, MessageID: d.Message.Headers.MessageID}
	email := strings.ToLower(strings.TrimSpace(d.Recipient))
	ts := receivedAt
	if d.Timestamp > 0 {
		ts = time.Unix(int64(d.Timestamp), 0).UTC()
	}

	switch d.Event {
	case "delivered":
		res.Delivered = true
		return res, nil

	case "opened":
		res.Engagement = &Engagement{CampaignID: d.UserVariables.CampaignID, Email: email, Kind: domain.EngagementView}
		return res, nil

	case "clicked":
		res.Engagement = &Engagement{CampaignID: d.UserVariables.CampaignID, Email: email, Kind: domain.EngagementClick}
		return res, nil

	case "failed":
		kind := domain.BounceTypeHard
		if d.Severity == "temporary" {
			kind = domain.BounceTypeSoft
		}
		res.Bounce = &domain.BounceEvent{
			ID:         eventID(d.ID),
			Email:      email,
			CampaignID: d.UserVariables.CampaignID,
			Type:       kind,
			Source:     ProviderMailgun,
			Meta:       json.RawMessage(payload),
			CreatedAt:  ts,
		}
		return res, nil

	case "complained":
		res.Bounce = &domain.BounceEvent{
			ID:         eventID(d.ID),
			Email:      email,
			CampaignID: d.UserVariables.CampaignID,
			Type:       domain.BounceTypeComplaint,
			Source:     ProviderMailgun,
			Meta:       json.RawMessage(payload),
			CreatedAt:  ts,
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("%w: mailgun event %q", ErrUnrecognizedFormat, d.Event)
}

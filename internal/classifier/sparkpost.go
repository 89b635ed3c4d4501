package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// sparkPostEvent is one element of a SparkPost webhook batch. SparkPost wraps
// every event in an msys envelope keyed by event category.
type sparkPostEvent struct {
	MSys struct {
		MessageEvent *sparkPostEventData `json:"message_event"`
		TrackEvent   *sparkPostEventData `json:"track_event"`
	} `json:"msys"`
}

type sparkPostEventData struct {
	Type        string `json:"type"`
	EventID     string `json:"event_id"`
	MessageID   string `json:"message_id"`
	RcptTo      string `json:"rcpt_to"`
	CampaignID  string `json:"campaign_id"`
	BounceClass string `json:"bounce_class"`
	Timestamp   string `json:"timestamp"`
}

// SparkPost bounce classes that are permanent failures. Everything from the
// "block" and "soft" families is transient. See SparkPost bounce
// classification codes: 10 invalid recipient, 30 no RCPT, 90 unsubscribe via
// bounce.
var sparkPostHardClasses = map[string]bool{
	"10": true, "30": true, "90": true,
}

var sparkPostSoftClasses = map[string]bool{
	"20": true, "40": true, "60": true, "70": true, "100": true,
}

func classifySparkPost(payload []byte, receivedAt time.Time) (Result, error) {
	var evt sparkPostEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	data := evt.MSys.MessageEvent
	if data == nil {
		data = evt.MSys.TrackEvent
	}
	if data == nil || data.Type == "" {
		return Result{}, fmt.Errorf("%w: missing msys event data", ErrUnrecognizedFormat)
	}

	res := Result{EventType: data.Type, MessageID: data.MessageID}
	email := strings.ToLower(strings.TrimSpace(data.RcptTo))

	switch data.Type {
	case "delivery":
		res.Delivered = true
		return res, nil

	case "open", "initial_open":
		res.Engagement = &Engagement{CampaignID: data.CampaignID, Email: email, Kind: domain.EngagementView}
		return res, nil

	case "click":
		res.Engagement = &Engagement{CampaignID: data.CampaignID, Email: email, Kind: domain.EngagementClick}
		return res, nil

	case "bounce", "out_of_band":
		res.Bounce = &domain.BounceEvent{
			ID:         eventID(data.EventID),
			Email:      email,
			CampaignID: data.CampaignID,
			Type:       sparkPostBounceType(data.BounceClass),
			Source:     ProviderSparkPost,
			Meta:       json.RawMessage(payload),
			CreatedAt:  sparkPostTime(data.Timestamp, receivedAt),
		}
		return res, nil

	case "spam_complaint":
		res.Bounce = &domain.BounceEvent{
			ID:         eventID(data.EventID),
			Email:      email,
			CampaignID: data.CampaignID,
			Type:       domain.BounceTypeComplaint,
			Source:     ProviderSparkPost,
			Meta:       json.RawMessage(payload),
			CreatedAt:  sparkPostTime(data.Timestamp, receivedAt),
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("%w: sparkpost event type %q", ErrUnrecognizedFormat, data.Type)
}

// sparkPostBounceType maps a bounce class to a canonical kind. Classes not in
// either table are treated as hard: a permanent failure wrongly counted as
// soft suppresses blocklisting, while the reverse at worst blocklists an
// address that was already failing.
func sparkPostBounceType(class string) domain.BounceType {
	switch {
	case sparkPostHardClasses[class]:
		return domain.BounceTypeHard
	case sparkPostSoftClasses[class]:
		return domain.BounceTypeSoft
	default:
		return domain.BounceTypeHard
	}
}

func sparkPostTime(ts string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return fallback
}

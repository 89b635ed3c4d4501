package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

// sesNotification is the SES event JSON carried inside an SNS message body.
// The API layer unwraps the SNS envelope (and handles SubscriptionConfirmation)
// before this parser runs.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"` // configuration-set event publishing uses this key
	Mail             struct {
		MessageID   string   `json:"messageId"`
		Destination []string `json:"destination"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        string `json:"bounceType"` // Permanent, Transient, Undetermined
		FeedbackID        string `json:"feedbackId"`
		Timestamp         string `json:"timestamp"`
		BouncedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		FeedbackID           string `json:"feedbackId"`
		Timestamp            string `json:"timestamp"`
		ComplainedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
	Delivery *struct {
		Timestamp string `json:"timestamp"`
	} `json:"delivery"`
	Open  *struct{} `json:"open"`
	Click *struct{} `json:"click"`
	Tags  struct {
		CampaignID []string `json:"campaign_id"`
	} `json:"tags"`
}

func classifySES(payload []byte, receivedAt time.Time) (Result, error) {
	var n sesNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	kind := n.NotificationType
	if kind == "" {
		kind = n.EventType
	}
	if kind == "" {
		return Result{}, fmt.Errorf("%w: missing SES notification type", ErrUnrecognizedFormat)
	}

	res := Result{EventType: kind, MessageID: n.Mail.MessageID}
	campaignID := ""
	if len(n.Tags.CampaignID) > 0 {
		campaignID = n.Tags.CampaignID[0]
	}
	email := ""
	if len(n.Mail.Destination) > 0 {
		email = strings.ToLower(strings.TrimSpace(n.Mail.Destination[0]))
	}

	switch kind {
	case "Delivery":
		res.Delivered = true
		return res, nil

	case "Open":
		res.Engagement = &Engagement{CampaignID: campaignID, Email: email, Kind: domain.EngagementView}
		return res, nil

	case "Click":
		res.Engagement = &Engagement{CampaignID: campaignID, Email: email, Kind: domain.EngagementClick}
		return res, nil

	case "Bounce":
		if n.Bounce == nil {
			return Result{}, fmt.Errorf("%w: SES bounce notification without bounce data", ErrUnrecognizedFormat)
		}
		if len(n.Bounce.BouncedRecipients) > 0 {
			email = strings.ToLower(strings.TrimSpace(n.Bounce.BouncedRecipients[0].EmailAddress))
		}
		res.Bounce = &domain.BounceEvent{
			ID:         eventID(n.Bounce.FeedbackID),
			Email:      email,
			CampaignID: campaignID,
			Type:       sesBounceType(n.Bounce.BounceType),
			Source:     ProviderSES,
			Meta:       json.RawMessage(payload),
			CreatedAt:  sesTime(n.Bounce.Timestamp, receivedAt),
		}
		return res, nil

	case "Complaint":
		if n.Complaint == nil {
			return Result{}, fmt.Errorf("%w: SES complaint notification without complaint data", ErrUnrecognizedFormat)
		}
		if len(n.Complaint.ComplainedRecipients) > 0 {
			email = strings.ToLower(strings.TrimSpace(n.Complaint.ComplainedRecipients[0].EmailAddress))
		}
		res.Bounce = &domain.BounceEvent{
			ID:         eventID(n.Complaint.FeedbackID),
			Email:      email,
			CampaignID: campaignID,
			Type:       domain.BounceTypeComplaint,
			Source:     ProviderSES,
			Meta:       json.RawMessage(payload),
			CreatedAt:  sesTime(n.Complaint.Timestamp, receivedAt),
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("%w: SES notification type %q", ErrUnrecognizedFormat, kind)
}

// sesBounceType maps AWS bounce types to canonical kinds. Undetermined maps
// to hard for the same reason as unknown SparkPost classes: under-counting
// permanent failures is the costly direction.
func sesBounceType(t string) domain.BounceType {
	if t == "Transient" {
		return domain.BounceTypeSoft
	}
	return domain.BounceTypeHard
}

func sesTime(ts string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return fallback
}

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/bounce-pipeline/internal/classifier"
	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

// maxWebhookBody caps a single webhook request. SparkPost batches run large;
// 10MB covers their documented maximum with room.
const maxWebhookBody = 10 << 20

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// dispatch queues one decoded event. Queue pressure is logged and swallowed;
// the provider sees 200 and retries on its own schedule.
func (s *Server) dispatch(provider, eventType, partitionKey string, payload []byte) {
	err := s.ingest.Dispatch(domain.InboundEvent{
		Provider:     provider,
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		ReceivedAt:   time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("webhook event not queued", "provider", provider, "error", err)
	}
}

// handleSparkPostWebhook accepts a SparkPost batch: a JSON array of msys
// envelopes, split into one event per element.
func (s *Server) handleSparkPostWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	for _, raw := range batch {
		var peek struct {
			MSys struct {
				MessageEvent *struct {
					Type   string `json:"type"`
					RcptTo string `json:"rcpt_to"`
				} `json:"message_event"`
				TrackEvent *struct {
					Type   string `json:"type"`
					RcptTo string `json:"rcpt_to"`
				} `json:"track_event"`
			} `json:"msys"`
		}
		if err := json.Unmarshal(raw, &peek); err != nil {
			continue
		}
		eventType, rcpt := "", ""
		switch {
		case peek.MSys.MessageEvent != nil:
			eventType, rcpt = peek.MSys.MessageEvent.Type, peek.MSys.MessageEvent.RcptTo
		case peek.MSys.TrackEvent != nil:
			eventType, rcpt = peek.MSys.TrackEvent.Type, peek.MSys.TrackEvent.RcptTo
		default:
			continue
		}
		s.dispatch(classifier.ProviderSparkPost, eventType, strings.ToLower(rcpt), raw)
	}
	w.WriteHeader(http.StatusOK)
}

// snsEnvelope is the AWS SNS wrapper around SES notifications.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageId    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	SubscribeURL string `json:"SubscribeURL"`
	Message      string `json:"Message"`
}

// handleSESWebhook accepts SES events delivered through SNS. Subscription
// confirmations are confirmed inline; notifications carry the SES event as
// a JSON string in Message.
func (s *Server) handleSESWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var sns snsEnvelope
	if err := json.Unmarshal(body, &sns); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch sns.Type {
	case "SubscriptionConfirmation":
		s.confirmSNSSubscription(sns)
		w.WriteHeader(http.StatusOK)
		return
	case "Notification":
		body = []byte(sns.Message)
	}
	// Raw SES events (no SNS wrapper) fall through with the original body.

	var peek struct {
		NotificationType string `json:"notificationType"`
		EventType        string `json:"eventType"`
		Mail             struct {
			Destination []string `json:"destination"`
		} `json:"mail"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	eventType := peek.NotificationType
	if eventType == "" {
		eventType = peek.EventType
	}
	partitionKey := ""
	if len(peek.Mail.Destination) > 0 {
		partitionKey = strings.ToLower(peek.Mail.Destination[0])
	}

	s.dispatch(classifier.ProviderSES, eventType, partitionKey, body)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) confirmSNSSubscription(sns snsEnvelope) {
	if !strings.HasPrefix(sns.SubscribeURL, "https://") {
		logger.Warn("ignoring SNS confirmation with non-https subscribe URL", "topic", sns.TopicArn)
		return
	}
	resp, err := http.Get(sns.SubscribeURL)
	if err != nil {
		logger.Error("SNS subscription confirmation failed", "topic", sns.TopicArn, "error", err)
		return
	}
	resp.Body.Close()
	logger.Info("SNS subscription confirmed", "topic", sns.TopicArn)
}

// handleMailgunWebhook accepts a single Mailgun event-data payload.
func (s *Server) handleMailgunWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var peek struct {
		EventData struct {
			Event     string `json:"event"`
			Recipient string `json:"recipient"`
		} `json:"event-data"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.dispatch(classifier.ProviderMailgun, peek.EventData.Event,
		strings.ToLower(peek.EventData.Recipient), body)
	w.WriteHeader(http.StatusOK)
}

// handleGenericWebhook accepts the built-in bounce format posted by an
// upstream MTA or import script.
func (s *Server) handleGenericWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var peek struct {
		Email string `json:"email"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.dispatch(classifier.ProviderGeneric, peek.Type, strings.ToLower(peek.Email), body)
	w.WriteHeader(http.StatusOK)
}

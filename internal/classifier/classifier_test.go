package classifier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClassify_UnknownProvider(t *testing.T) {
	_, err := Classify("postmark", []byte(`{}`), now)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestClassifySparkPost_HardBounce(t *testing.T) {
	payload := []byte(`{"msys":{"message_event":{
		"type":"bounce","bounce_class":"10","event_id":"evt-123",
		"message_id":"msg-1","rcpt_to":"User@Example.com",
		"campaign_id":"camp-1","timestamp":"2026-03-01T11:58:00Z"}}}`)

	res, err := Classify(ProviderSparkPost, payload, now)
	require.NoError(t, err)
	require.NotNil(t, res.Bounce)

	assert.Equal(t, "evt-123", res.Bounce.ID)
	assert.Equal(t, "user@example.com", res.Bounce.Email)
	assert.Equal(t, domain.BounceTypeHard, res.Bounce.Type)
	assert.Equal(t, "camp-1", res.Bounce.CampaignID)
	assert.Equal(t, ProviderSparkPost, res.Bounce.Source)
}

func TestClassifySparkPost_SoftBounceClass(t *testing.T) {
	payload := []byte(`{"msys":{"message_event":{
		"type":"bounce","bounce_class":"20","event_id":"evt-2","rcpt_to":"a@b.com"}}}`)

	res, err := Classify(ProviderSparkPost, payload, now)
	require.NoError(t, err)
	assert.Equal(t, domain.BounceTypeSoft, res.Bounce.Type)
}

func TestClassifySparkPost_UnknownClassIsHard(t *testing.T) {
	payload := []byte(`{"msys":{"message_event":{
		"type":"bounce","bounce_class":"999","event_id":"evt-3","rcpt_to":"a@b.com"}}}`)

	res, err := Classify(ProviderSparkPost, payload, now)
	require.NoError(t, err)
	assert.Equal(t, domain.BounceTypeHard, res.Bounce.Type)
}

func TestClassifySparkPost_SpamComplaint(t *testing.T) {
	payload := []byte(`{"msys":{"message_event":{
		"type":"spam_complaint","event_id":"evt-4","rcpt_to":"a@b.com","campaign_id":"camp-9"}}}`)

	res, err := Classify(ProviderSparkPost, payload, now)
	require.NoError(t, err)
	assert.Equal(t, domain.BounceTypeComplaint, res.Bounce.Type)
}

func TestClassifySparkPost_Engagement(t *testing.T) {
	open := []byte(`{"msys":{"track_event":{
		"type":"open","event_id":"evt-5","rcpt_to":"a@b.com","campaign_id":"camp-1"}}}`)
	click := []byte(`{"msys":{"track_event":{
		"type":"click","event_id":"evt-6","rcpt_to":"a@b.com","campaign_id":"camp-1"}}}`)

	res, err := Classify(ProviderSparkPost, open, now)
	require.NoError(t, err)
	require.NotNil(t, res.Engagement)
	assert.Equal(t, domain.EngagementView, res.Engagement.Kind)

	res, err = Classify(ProviderSparkPost, click, now)
	require.NoError(t, err)
	require.NotNil(t, res.Engagement)
	assert.Equal(t, domain.EngagementClick, res.Engagement.Kind)
	assert.Equal(t, "camp-1", res.Engagement.CampaignID)
}

func TestClassifySparkPost_Delivery(t *testing.T) {
	payload := []byte(`{"msys":{"message_event":{"type":"delivery","event_id":"evt-7"}}}`)

	res, err := Classify(ProviderSparkPost, payload, now)
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Nil(t, res.Bounce)
}

func TestClassifySparkPost_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":       []byte(`<xml/>`),
		"empty msys":     []byte(`{"msys":{}}`),
		"unknown type":   []byte(`{"msys":{"message_event":{"type":"teleported"}}}`),
		"missing type":   []byte(`{"msys":{"message_event":{"event_id":"x"}}}`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Classify(ProviderSparkPost, payload, now)
			assert.ErrorIs(t, err, ErrUnrecognizedFormat)
		})
	}
}

func TestClassifySES_PermanentBounce(t *testing.T) {
	payload := []byte(`{
		"notificationType":"Bounce",
		"mail":{"messageId":"msg-ses-1","destination":["victim@example.com"]},
		"bounce":{"bounceType":"Permanent","feedbackId":"fb-1",
			"timestamp":"2026-03-01T11:00:00Z",
			"bouncedRecipients":[{"emailAddress":"Victim@Example.com"}]}}`)

	res, err := Classify(ProviderSES, payload, now)
	require.NoError(t, err)
	require.NotNil(t, res.Bounce)
	assert.Equal(t, "fb-1", res.Bounce.ID)
	assert.Equal(t, "victim@example.com", res.Bounce.Email)
	assert.Equal(t, domain.BounceTypeHard, res.Bounce.Type)
}

func TestClassifySES_TransientBounce(t *testing.T) {
	payload := []byte(`{
		"notificationType":"Bounce",
		"mail":{"messageId":"m"},
		"bounce":{"bounceType":"Transient","feedbackId":"fb-2",
			"bouncedRecipients":[{"emailAddress":"a@b.com"}]}}`)

	res, err := Classify(ProviderSES, payload, now)
	require.NoError(t, err)
	assert.Equal(t, domain.BounceTypeSoft, res.Bounce.Type)
}

func TestClassifySES_Complaint(t *testing.T) {
	payload := []byte(`{
		"notificationType":"Complaint",
		"mail":{"messageId":"m"},
		"complaint":{"feedbackId":"fb-3",
			"complainedRecipients":[{"emailAddress":"angry@example.com"}]}}`)

	res, err := Classify(ProviderSES, payload, now)
	require.NoError(t, err)
	assert.Equal(t, domain.BounceTypeComplaint, res.Bounce.Type)
	assert.Equal(t, "angry@example.com", res.Bounce.Email)
}

func TestClassifySES_BounceWithoutData(t *testing.T) {
	payload := []byte(`{"notificationType":"Bounce","mail":{"messageId":"m"}}`)
	_, err := Classify(ProviderSES, payload, now)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestClassifyMailgun_PermanentFailure(t *testing.T) {
	payload := []byte(`{"event-data":{
		"event":"failed","id":"mg-1","severity":"permanent",
		"recipient":"Gone@Example.com","timestamp":1767268800,
		"user-variables":{"campaign_id":"camp-7"}}}`)

	res, err := Classify(ProviderMailgun, payload, now)
	require.NoError(t, err)
	require.NotNil(t, res.Bounce)
	assert.Equal(t, domain.BounceTypeHard, res.Bounce.Type)
	assert.Equal(t, "gone@example.com", res.Bounce.Email)
	assert.Equal(t, "camp-7", res.Bounce.CampaignID)
}

func TestClassifyMailgun_TemporaryFailure(t *testing.T) {
	payload := []byte(`{"event-data":{
		"event":"failed","id":"mg-2","severity":"temporary","recipient":"a@b.com"}}`)

	res, err := Classify(ProviderMailgun, payload, now)
	require.NoError(t, err)
	assert.Equal(t, domain.BounceTypeSoft, res.Bounce.Type)
}

func TestClassifyMailgun_Engagement(t *testing.T) {
	payload := []byte(`{"event-data":{
		"event":"clicked","id":"mg-3","recipient":"a@b.com",
		"user-variables":{"campaign_id":"camp-2"}}}`)

	res, err := Classify(ProviderMailgun, payload, now)
	require.NoError(t, err)
	require.NotNil(t, res.Engagement)
	assert.Equal(t, domain.EngagementClick, res.Engagement.Kind)
}

func TestClassifyMailgun_UnknownEvent(t *testing.T) {
	payload := []byte(`{"event-data":{"event":"accepted","id":"mg-4"}}`)
	_, err := Classify(ProviderMailgun, payload, now)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestClassifyGeneric_ValidKinds(t *testing.T) {
	for _, kind := range []string{"hard", "soft", "complaint"} {
		payload := []byte(`{"id":"g-1","email":"x@y.com","type":"` + kind + `"}`)
		res, err := Classify(ProviderGeneric, payload, now)
		require.NoError(t, err, kind)
		assert.Equal(t, domain.BounceType(kind), res.Bounce.Type)
	}
}

func TestClassifyGeneric_RejectsUnknownKind(t *testing.T) {
	// "bounce" is not a canonical kind; coercing it to soft would silently
	// suppress blocklisting.
	payload := []byte(`{"id":"g-2","email":"x@y.com","type":"bounce"}`)
	_, err := Classify(ProviderGeneric, payload, now)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestClassifyGeneric_RequiresEmail(t *testing.T) {
	payload := []byte(`{"id":"g-3","type":"hard"}`)
	_, err := Classify(ProviderGeneric, payload, now)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestClassify_GeneratesIDWhenProviderOmitsOne(t *testing.T) {
	payload := []byte(`{"email":"x@y.com","type":"hard"}`)
	res, err := Classify(ProviderGeneric, payload, now)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Bounce.ID)

	res2, err := Classify(ProviderGeneric, payload, now)
	require.NoError(t, err)
	assert.NotEqual(t, res.Bounce.ID, res2.Bounce.ID)
}

func TestClassify_ErrorsAreDistinguishable(t *testing.T) {
	_, err := Classify(ProviderSparkPost, []byte(`{`), now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))
	assert.False(t, errors.Is(err, ErrUnknownProvider))
}

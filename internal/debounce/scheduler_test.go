package debounce

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

type appendRecorder struct {
	appended []schema.InboundMessage
}

func (r *appendRecorder) Append(_ context.Context, _ Key, msg schema.InboundMessage) error {
	r.appended = append(r.appended, msg)
	return nil
}

func inbound(companyID, text string) schema.InboundMessage {
	return schema.InboundMessage{
		InstanceID:  "inst-1",
		CompanyID:   companyID,
		Channel:     schema.ChannelWhatsApp,
		FromNumber:  "+5511987654321",
		MessageType: schema.MessageTypeText,
		Content:     &text,
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]string{},
	}
}

func TestOnMessageArmsTimerAndPublishes(t *testing.T) {
	store := NewMemoryTimerStore()
	buffer := &appendRecorder{}
	publisher := &events.CollectingPublisher{}
	scheduler := NewScheduler(store, buffer, publisher, func(string) time.Duration { return 5 * time.Second }, nil, logging.Default())

	companyID := uuid.NewString()
	msg := inbound(companyID, "oi")
	require.NoError(t, scheduler.OnMessage(context.Background(), msg))

	require.Len(t, buffer.appended, 1)
	assert.Equal(t, []events.ChannelName{events.ChannelMessageReceived}, publisher.Channels())

	timer, err := store.Get(context.Background(), KeyFor(msg))
	require.NoError(t, err)
	assert.Equal(t, int64(1), timer.Generation)
}

func TestOnMessageBurstKeepsOneTimer(t *testing.T) {
	store := NewMemoryTimerStore()
	buffer := &appendRecorder{}
	publisher := &events.CollectingPublisher{}
	scheduler := NewScheduler(store, buffer, publisher, func(string) time.Duration { return 5 * time.Second }, nil, logging.Default())

	companyID := uuid.NewString()
	for _, text := range []string{"oi", "tudo bem?", "quero o preço"} {
		require.NoError(t, scheduler.OnMessage(context.Background(), inbound(companyID, text)))
	}

	// one live timer at the latest generation; all three messages buffered
	timer, err := store.Get(context.Background(), KeyFor(inbound(companyID, "")))
	require.NoError(t, err)
	assert.Equal(t, int64(3), timer.Generation)
	assert.Len(t, buffer.appended, 3)

	// one message.received per inbound, in arrival order
	assert.Len(t, publisher.Channels(), 3)
}

func TestOnMessagePerCompanyDelay(t *testing.T) {
	store := NewMemoryTimerStore()
	slowCompany := uuid.NewString()
	delays := map[string]time.Duration{slowCompany: 30 * time.Second}
	delayFor := func(companyID string) time.Duration {
		if d, ok := delays[companyID]; ok {
			return d
		}
		return 5 * time.Second
	}
	scheduler := NewScheduler(store, &appendRecorder{}, &events.CollectingPublisher{}, delayFor, nil, logging.Default())

	before := time.Now().UTC()
	require.NoError(t, scheduler.OnMessage(context.Background(), inbound(slowCompany, "oi")))

	timer, err := store.Get(context.Background(), KeyFor(inbound(slowCompany, "")))
	require.NoError(t, err)
	assert.True(t, timer.FireAt.After(before.Add(29*time.Second)))
}

func TestOnMessageRejectsInvalidPayload(t *testing.T) {
	scheduler := NewScheduler(NewMemoryTimerStore(), &appendRecorder{}, &events.CollectingPublisher{}, func(string) time.Duration { return time.Second }, nil, logging.Default())

	msg := inbound("not-a-uuid", "oi")
	err := scheduler.OnMessage(context.Background(), msg)
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)
}

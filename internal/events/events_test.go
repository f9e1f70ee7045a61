package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

func sampleInbound(t *testing.T) schema.InboundMessage {
	t.Helper()
	content := "hello"
	return schema.InboundMessage{
		InstanceID:  "inst-1",
		CompanyID:   uuid.NewString(),
		Channel:     schema.ChannelWhatsApp,
		FromNumber:  "+5511987654321",
		MessageType: schema.MessageTypeText,
		Content:     &content,
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]string{},
	}
}

func sampleLead(t *testing.T) schema.Lead {
	t.Helper()
	return schema.Lead{
		ID:        uuid.NewString(),
		CompanyID: uuid.NewString(),
		Phone:     "+5511987654321",
		Status:    schema.LeadStatusNew,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestValidatePayload(t *testing.T) {
	msg := sampleInbound(t)
	require.NoError(t, ValidatePayload(NewMessageReceived(msg)))

	// payload type must match the channel
	err := ValidatePayload(Event{Channel: ChannelMessageReceived, Payload: "nope"})
	require.Error(t, err)

	// invalid nested payload is rejected
	bad := msg
	bad.CompanyID = "not-a-uuid"
	require.ErrorIs(t, ValidatePayload(NewMessageReceived(bad)), schema.ErrInvalidPayload)

	// unknown channels never pass
	err = ValidatePayload(Event{Channel: "lead.deleted", Payload: msg})
	require.Error(t, err)
}

func TestWrapProducesEnvelope(t *testing.T) {
	evt := NewDebounceTimer("c1:i1:+55", 3, time.Now().UTC())
	env, err := Wrap(evt)
	require.NoError(t, err)
	assert.Equal(t, ChannelDebounceTimer, env.Channel)
	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.NotZero(t, env.TimestampMicros)

	var fired DebounceTimerFired
	require.NoError(t, json.Unmarshal(env.Payload, &fired))
	assert.Equal(t, int64(3), fired.Generation)
}

func TestContractSignedRoundTrip(t *testing.T) {
	signed := schema.ContractSigned{
		ContractID: "ctr-42",
		CompanyID:  uuid.NewString(),
		SignedAt:   time.Now().UTC(),
		Contract:   json.RawMessage(`{"plan":"pro","seats":5}`),
	}

	env, err := Wrap(NewContractSigned(signed))
	require.NoError(t, err)
	assert.Equal(t, ChannelContractSigned, env.Channel)

	decoded, err := schema.DecodeMarketingEvent("contract.signed", env.Payload)
	require.NoError(t, err)
	got, ok := decoded.(schema.ContractSigned)
	require.True(t, ok)
	assert.Equal(t, signed.ContractID, got.ContractID)
	assert.JSONEq(t, string(signed.Contract), string(got.Contract))

	// the external contract body is opaque, but tenant identity is not
	bad := signed
	bad.CompanyID = "not-a-uuid"
	_, err = Wrap(NewContractSigned(bad))
	require.ErrorIs(t, err, schema.ErrInvalidPayload)
}

func TestCollectingPublisherOrder(t *testing.T) {
	pub := &CollectingPublisher{}
	lead := sampleLead(t)
	q := schema.Qualification{
		LeadID:      lead.ID,
		CompanyID:   lead.CompanyID,
		Score:       0.9,
		Criteria:    []string{"intent"},
		QualifiedAt: time.Now().UTC(),
	}

	require.NoError(t, pub.Publish(context.Background(), NewLeadCreated(lead)))
	require.NoError(t, pub.Publish(context.Background(), NewLeadQualified(lead, q)))

	assert.Equal(t, []ChannelName{ChannelLeadCreated, ChannelLeadQualified}, pub.Channels())
}

func TestRedisPublisherDelivers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := NewRedisPublisher(client, logging.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, string(ChannelMessageReceived))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	msg := sampleInbound(t)
	require.NoError(t, pub.Publish(ctx, NewMessageReceived(msg)))

	delivered, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(delivered.Payload), &env))
	assert.Equal(t, ChannelMessageReceived, env.Channel)

	decoded, err := schema.DecodeInboundMessage(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, msg.CompanyID, decoded.CompanyID)
}

func TestRedisPublisherRejectsInvalid(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := NewRedisPublisher(client, logging.Default())

	bad := sampleInbound(t)
	bad.FromNumber = ""
	err := pub.Publish(context.Background(), NewMessageReceived(bad))
	require.ErrorIs(t, err, schema.ErrInvalidPayload)
}

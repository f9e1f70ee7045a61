package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

func TestNormalizeWhatsAppText(t *testing.T) {
	companyID := uuid.NewString()
	raw := fmt.Sprintf(`{
		"instance_id": "inst-1",
		"company_id": %q,
		"data": {
			"key": {"remoteJid": "5511987654321@s.whatsapp.net", "fromMe": false, "id": "wamid.1"},
			"pushName": "Maria",
			"message": {"conversation": "Oi, quero saber o preço"},
			"messageTimestamp": 1756000000
		}
	}`, companyID)

	n := NewNormalizer(logging.Default())
	msg, err := n.Normalize(context.Background(), schema.ChannelWhatsApp, json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, "+5511987654321", msg.FromNumber)
	assert.Equal(t, schema.MessageTypeText, msg.MessageType)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "Oi, quero saber o preço", *msg.Content)
	assert.Equal(t, "wamid.1", msg.Metadata["provider_message_id"])
	assert.Equal(t, schema.ChannelWhatsApp, msg.Channel)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNormalizeWhatsAppImage(t *testing.T) {
	companyID := uuid.NewString()
	raw := fmt.Sprintf(`{
		"instance_id": "inst-1",
		"company_id": %q,
		"data": {
			"key": {"remoteJid": "5511987654321@s.whatsapp.net"},
			"message": {"imageMessage": {"url": "https://cdn.example.com/img.jpg", "caption": "olha isso"}},
			"messageTimestamp": 1756000000
		}
	}`, companyID)

	n := NewNormalizer(logging.Default())
	msg, err := n.Normalize(context.Background(), schema.ChannelWhatsApp, json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, schema.MessageTypeImage, msg.MessageType)
	require.NotNil(t, msg.MediaURL)
	assert.Equal(t, "https://cdn.example.com/img.jpg", *msg.MediaURL)
}

func TestNormalizeWhatsAppRejectsOwnMessage(t *testing.T) {
	raw := fmt.Sprintf(`{
		"instance_id": "inst-1",
		"company_id": %q,
		"data": {"key": {"remoteJid": "5511987654321@s.whatsapp.net", "fromMe": true},
			"message": {"conversation": "eco"}, "messageTimestamp": 1756000000}
	}`, uuid.NewString())

	n := NewNormalizer(logging.Default())
	_, err := n.Normalize(context.Background(), schema.ChannelWhatsApp, json.RawMessage(raw))
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)
}

func TestNormalizeInstagramText(t *testing.T) {
	companyID := uuid.NewString()
	raw := fmt.Sprintf(`{
		"instance_id": "ig-1",
		"company_id": %q,
		"entry": [{"messaging": [{
			"sender": {"id": "17841400000000"},
			"timestamp": 1756000000000,
			"message": {"mid": "m_1", "text": "is this still available?"}
		}]}]
	}`, companyID)

	n := NewNormalizer(logging.Default())
	msg, err := n.Normalize(context.Background(), schema.ChannelInstagram, json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "17841400000000", msg.FromNumber)
	assert.Equal(t, schema.MessageTypeText, msg.MessageType)
	assert.Equal(t, "m_1", msg.Metadata["provider_message_id"])
}

func TestNormalizeTelegramPhoto(t *testing.T) {
	companyID := uuid.NewString()
	raw := fmt.Sprintf(`{
		"instance_id": "tg-1",
		"company_id": %q,
		"update_id": 10,
		"message": {
			"message_id": 55,
			"from": {"id": 987654321, "username": "joao"},
			"date": 1756000000,
			"photo": [{"file_id": "small"}, {"file_id": "large"}],
			"caption": "segue o comprovante"
		}
	}`, companyID)

	n := NewNormalizer(logging.Default())
	msg, err := n.Normalize(context.Background(), schema.ChannelTelegram, json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "987654321", msg.FromNumber)
	assert.Equal(t, schema.MessageTypeImage, msg.MessageType)
	assert.Equal(t, "large", msg.Metadata["file_id"])
	require.NotNil(t, msg.Content)
	assert.Equal(t, "segue o comprovante", *msg.Content)
}

func TestNormalizeTelegramIgnoresBots(t *testing.T) {
	raw := fmt.Sprintf(`{
		"instance_id": "tg-1",
		"company_id": %q,
		"message": {"message_id": 1, "from": {"id": 5, "is_bot": true}, "date": 1756000000, "text": "beep"}
	}`, uuid.NewString())

	n := NewNormalizer(logging.Default())
	_, err := n.Normalize(context.Background(), schema.ChannelTelegram, json.RawMessage(raw))
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)
}

func TestNormalizeUnsupportedChannel(t *testing.T) {
	n := NewNormalizer(logging.Default())
	_, err := n.Normalize(context.Background(), schema.Channel("sms"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}

func TestNormalizeMissingRequiredFields(t *testing.T) {
	// valid shape but no company_id: schema validation rejects it
	raw := `{
		"instance_id": "inst-1",
		"data": {"key": {"remoteJid": "5511987654321@s.whatsapp.net"},
			"message": {"conversation": "oi"}, "messageTimestamp": 1756000000}
	}`

	n := NewNormalizer(logging.Default())
	_, err := n.Normalize(context.Background(), schema.ChannelWhatsApp, json.RawMessage(raw))
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "company_id", verr.Field)
}

func TestNormalizeMalformedJSON(t *testing.T) {
	n := NewNormalizer(logging.Default())
	_, err := n.Normalize(context.Background(), schema.ChannelWhatsApp, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)
}

package schema

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the chat provider a message arrived on.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelTelegram  Channel = "telegram"
)

// Channels lists every supported channel, in a stable order.
func Channels() []Channel {
	return []Channel{ChannelWhatsApp, ChannelInstagram, ChannelTelegram}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram, ChannelTelegram:
		return true
	}
	return false
}

// MessageType classifies the content of an inbound message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeImage    MessageType = "image"
	MessageTypeDocument MessageType = "document"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeAudio, MessageTypeImage, MessageTypeDocument:
		return true
	}
	return false
}

// InboundMessage is the canonical shape of one raw provider event after
// normalization. Immutable once created.
type InboundMessage struct {
	InstanceID  string            `json:"instance_id"`
	CompanyID   string            `json:"company_id"`
	Channel     Channel           `json:"channel"`
	FromNumber  string            `json:"from_number"`
	MessageType MessageType       `json:"message_type"`
	Content     *string           `json:"content"`
	MediaURL    *string           `json:"media_url"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata"`
}

// Validate checks structure and semantics; it returns a *ValidationError
// naming the first offending field.
func (m *InboundMessage) Validate() error {
	if m.InstanceID == "" {
		return invalid("instance_id", m.InstanceID, "must be non-empty")
	}
	if err := validateUUID("company_id", m.CompanyID); err != nil {
		return err
	}
	if !m.Channel.Valid() {
		return invalid("channel", string(m.Channel), "must be one of whatsapp, instagram, telegram")
	}
	if len(m.FromNumber) < 3 {
		return invalid("from_number", m.FromNumber, "must be at least 3 characters")
	}
	if !m.MessageType.Valid() {
		return invalid("message_type", string(m.MessageType), "must be one of text, audio, image, document")
	}
	if m.MediaURL != nil {
		if _, err := url.ParseRequestURI(*m.MediaURL); err != nil {
			return invalid("media_url", *m.MediaURL, "must be a valid URL")
		}
	}
	if m.Timestamp.IsZero() {
		return invalid("timestamp", m.Timestamp, "must be a valid timestamp")
	}
	return nil
}

// DecodeInboundMessage parses and validates a canonical inbound payload.
func DecodeInboundMessage(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, invalid("", truncate(raw), fmt.Sprintf("malformed JSON: %v", err))
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	if err := msg.Validate(); err != nil {
		return InboundMessage{}, err
	}
	return msg, nil
}

func validateUUID(field, value string) error {
	if value == "" {
		return invalid(field, value, "must be non-empty")
	}
	if _, err := uuid.Parse(value); err != nil {
		return invalid(field, value, "must be a UUID")
	}
	return nil
}

func truncate(raw []byte) string {
	const max = 64
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

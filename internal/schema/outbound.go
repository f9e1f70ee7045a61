package schema

import (
	"encoding/json"
	"fmt"
)

// OutboundPart is one entry of an outbound message body. Only text parts
// exist today; delivery adapters fan the parts out in order.
type OutboundPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OutboundMessage is the canonical payload handed to delivery adapters.
// Never mutated after creation.
type OutboundMessage struct {
	InstanceID string            `json:"instance_id"`
	CompanyID  string            `json:"company_id"`
	Channel    Channel           `json:"channel"`
	ToNumber   string            `json:"to_number"`
	Messages   []OutboundPart    `json:"messages"`
	Metadata   map[string]string `json:"metadata"`
}

func (m *OutboundMessage) Validate() error {
	if m.InstanceID == "" {
		return invalid("instance_id", m.InstanceID, "must be non-empty")
	}
	if err := validateUUID("company_id", m.CompanyID); err != nil {
		return err
	}
	if !m.Channel.Valid() {
		return invalid("channel", string(m.Channel), "must be one of whatsapp, instagram, telegram")
	}
	if len(m.ToNumber) < 3 {
		return invalid("to_number", m.ToNumber, "must be at least 3 characters")
	}
	if len(m.Messages) == 0 {
		return invalid("messages", m.Messages, "must contain at least one entry")
	}
	for i, part := range m.Messages {
		if part.Type != "text" {
			return invalid(indexed("messages", i, "type"), part.Type, "must be \"text\"")
		}
		if part.Text == "" {
			return invalid(indexed("messages", i, "text"), part.Text, "must be non-empty")
		}
	}
	return nil
}

// DecodeOutboundMessage parses and validates a canonical outbound payload.
func DecodeOutboundMessage(raw []byte) (OutboundMessage, error) {
	var msg OutboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return OutboundMessage{}, invalid("", truncate(raw), "malformed JSON")
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	if err := msg.Validate(); err != nil {
		return OutboundMessage{}, err
	}
	return msg, nil
}

func indexed(field string, i int, sub string) string {
	return fmt.Sprintf("%s[%d].%s", field, i, sub)
}

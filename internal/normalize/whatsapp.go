package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/leadwire/leadwire/internal/schema"
)

// whatsappPayload is the gateway's WhatsApp webhook shape (Evolution-style:
// event wrapper around a key/message pair, timestamps in unix seconds).
type whatsappPayload struct {
	InstanceID string `json:"instance_id"`
	CompanyID  string `json:"company_id"`
	Data       struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation string `json:"conversation"`
			ImageMessage *struct {
				URL     string `json:"url"`
				Caption string `json:"caption"`
			} `json:"imageMessage"`
			AudioMessage *struct {
				URL string `json:"url"`
			} `json:"audioMessage"`
			DocumentMessage *struct {
				URL      string `json:"url"`
				FileName string `json:"fileName"`
			} `json:"documentMessage"`
		} `json:"message"`
		MessageTimestamp int64 `json:"messageTimestamp"`
	} `json:"data"`
}

// WhatsAppStrategy parses WhatsApp gateway webhooks.
type WhatsAppStrategy struct{}

func (s *WhatsAppStrategy) Normalize(raw json.RawMessage) (schema.InboundMessage, error) {
	var p whatsappPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return schema.InboundMessage{}, &schema.ValidationError{Reason: "malformed WhatsApp payload"}
	}
	if p.Data.Key.FromMe {
		return schema.InboundMessage{}, &schema.ValidationError{Field: "data.key.fromMe", Value: true, Reason: "own messages are not inbound"}
	}

	msg := schema.InboundMessage{
		InstanceID: p.InstanceID,
		CompanyID:  p.CompanyID,
		FromNumber: jidToNumber(p.Data.Key.RemoteJID),
		Timestamp:  time.Unix(p.Data.MessageTimestamp, 0).UTC(),
		Metadata:   map[string]string{},
	}
	if p.Data.Key.ID != "" {
		msg.Metadata["provider_message_id"] = p.Data.Key.ID
	}
	if p.Data.PushName != "" {
		msg.Metadata["push_name"] = p.Data.PushName
	}

	switch {
	case p.Data.Message.ImageMessage != nil:
		msg.MessageType = schema.MessageTypeImage
		msg.MediaURL = optional(p.Data.Message.ImageMessage.URL)
		msg.Content = optional(p.Data.Message.ImageMessage.Caption)
	case p.Data.Message.AudioMessage != nil:
		msg.MessageType = schema.MessageTypeAudio
		msg.MediaURL = optional(p.Data.Message.AudioMessage.URL)
	case p.Data.Message.DocumentMessage != nil:
		msg.MessageType = schema.MessageTypeDocument
		msg.MediaURL = optional(p.Data.Message.DocumentMessage.URL)
		msg.Content = optional(p.Data.Message.DocumentMessage.FileName)
	default:
		msg.MessageType = schema.MessageTypeText
		msg.Content = optional(p.Data.Message.Conversation)
	}
	return msg, nil
}

// jidToNumber strips the JID domain: "5511987654321@s.whatsapp.net" becomes
// "+5511987654321".
func jidToNumber(jid string) string {
	number, _, _ := strings.Cut(jid, "@")
	if number == "" {
		return ""
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return number
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

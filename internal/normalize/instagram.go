package normalize

import (
	"encoding/json"
	"time"

	"github.com/leadwire/leadwire/internal/schema"
)

// instagramPayload is the Meta Graph messaging webhook shape: entries with
// messaging items, timestamps in unix milliseconds.
type instagramPayload struct {
	InstanceID string `json:"instance_id"`
	CompanyID  string `json:"company_id"`
	Entry      []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"`
			Message   struct {
				MID         string `json:"mid"`
				Text        string `json:"text"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// InstagramStrategy parses Instagram direct-message webhooks.
type InstagramStrategy struct{}

func (s *InstagramStrategy) Normalize(raw json.RawMessage) (schema.InboundMessage, error) {
	var p instagramPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return schema.InboundMessage{}, &schema.ValidationError{Reason: "malformed Instagram payload"}
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Messaging) == 0 {
		return schema.InboundMessage{}, &schema.ValidationError{Field: "entry", Reason: "must contain at least one messaging item"}
	}
	item := p.Entry[0].Messaging[0]

	msg := schema.InboundMessage{
		InstanceID: p.InstanceID,
		CompanyID:  p.CompanyID,
		FromNumber: item.Sender.ID,
		Timestamp:  time.UnixMilli(item.Timestamp).UTC(),
		Metadata:   map[string]string{},
	}
	if item.Message.MID != "" {
		msg.Metadata["provider_message_id"] = item.Message.MID
	}

	if len(item.Message.Attachments) > 0 {
		att := item.Message.Attachments[0]
		switch att.Type {
		case "audio":
			msg.MessageType = schema.MessageTypeAudio
		case "file":
			msg.MessageType = schema.MessageTypeDocument
		default:
			msg.MessageType = schema.MessageTypeImage
		}
		msg.MediaURL = optional(att.Payload.URL)
		msg.Content = optional(item.Message.Text)
		return msg, nil
	}

	msg.MessageType = schema.MessageTypeText
	msg.Content = optional(item.Message.Text)
	return msg, nil
}

package normalize

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/leadwire/leadwire/internal/schema"
)

// telegramPayload is the Bot API update shape: one message per update,
// dates in unix seconds, media referenced by file_id rather than URL.
type telegramPayload struct {
	InstanceID string `json:"instance_id"`
	CompanyID  string `json:"company_id"`
	UpdateID   int64  `json:"update_id"`
	Message    *struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID        int64  `json:"id"`
			IsBot     bool   `json:"is_bot"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Date  int64  `json:"date"`
		Text  string `json:"text"`
		Photo []struct {
			FileID string `json:"file_id"`
		} `json:"photo"`
		Caption string `json:"caption"`
		Voice   *struct {
			FileID string `json:"file_id"`
		} `json:"voice"`
		Document *struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
		} `json:"document"`
	} `json:"message"`
}

// TelegramStrategy parses Telegram bot updates.
type TelegramStrategy struct{}

func (s *TelegramStrategy) Normalize(raw json.RawMessage) (schema.InboundMessage, error) {
	var p telegramPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return schema.InboundMessage{}, &schema.ValidationError{Reason: "malformed Telegram payload"}
	}
	if p.Message == nil {
		return schema.InboundMessage{}, &schema.ValidationError{Field: "message", Reason: "update carries no message"}
	}
	if p.Message.From.IsBot {
		return schema.InboundMessage{}, &schema.ValidationError{Field: "message.from.is_bot", Value: true, Reason: "bot messages are not inbound"}
	}

	msg := schema.InboundMessage{
		InstanceID: p.InstanceID,
		CompanyID:  p.CompanyID,
		FromNumber: strconv.FormatInt(p.Message.From.ID, 10),
		Timestamp:  time.Unix(p.Message.Date, 0).UTC(),
		Metadata:   map[string]string{},
	}
	msg.Metadata["provider_message_id"] = strconv.FormatInt(p.Message.MessageID, 10)
	if p.Message.From.Username != "" {
		msg.Metadata["username"] = p.Message.From.Username
	}

	switch {
	case len(p.Message.Photo) > 0:
		msg.MessageType = schema.MessageTypeImage
		msg.Content = optional(p.Message.Caption)
		// bot API exposes file_id, not a URL; the delivery side resolves it
		msg.Metadata["file_id"] = p.Message.Photo[len(p.Message.Photo)-1].FileID
	case p.Message.Voice != nil:
		msg.MessageType = schema.MessageTypeAudio
		msg.Metadata["file_id"] = p.Message.Voice.FileID
	case p.Message.Document != nil:
		msg.MessageType = schema.MessageTypeDocument
		msg.Content = optional(p.Message.Document.FileName)
		msg.Metadata["file_id"] = p.Message.Document.FileID
	default:
		msg.MessageType = schema.MessageTypeText
		msg.Content = optional(p.Message.Text)
	}
	return msg, nil
}

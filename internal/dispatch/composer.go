package dispatch

import (
	"strings"

	"github.com/leadwire/leadwire/internal/schema"
)

// ComposeReply maps the capability's text reply onto the canonical outbound
// payload for the conversation's channel. Paragraph breaks become separate
// message parts so delivery adapters can send them as distinct bubbles.
// Returns a ValidationError when the capability produced an empty reply; an
// outbound message never carries zero parts.
func ComposeReply(reply string, last schema.InboundMessage) (schema.OutboundMessage, error) {
	parts := make([]schema.OutboundPart, 0, 1)
	for _, chunk := range strings.Split(reply, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		parts = append(parts, schema.OutboundPart{Type: "text", Text: chunk})
	}

	msg := schema.OutboundMessage{
		InstanceID: last.InstanceID,
		CompanyID:  last.CompanyID,
		Channel:    last.Channel,
		ToNumber:   last.FromNumber,
		Messages:   parts,
		Metadata:   map[string]string{},
	}
	if err := msg.Validate(); err != nil {
		return schema.OutboundMessage{}, err
	}
	return msg, nil
}

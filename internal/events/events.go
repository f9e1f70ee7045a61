package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadwire/leadwire/internal/schema"
)

// ChannelName identifies a pub/sub channel. The payload shape of every
// event is fully determined by its channel name.
type ChannelName string

const (
	ChannelMessageReceived ChannelName = "message.received"
	ChannelMessageSent     ChannelName = "message.sent"
	ChannelDebounceTimer   ChannelName = "debounce.timer"
	ChannelLeadCreated     ChannelName = "lead.created"
	ChannelLeadQualified   ChannelName = "lead.qualified"
	ChannelContractCreated ChannelName = "contract.created"
	ChannelContractSigned  ChannelName = "contract.signed"
	ChannelInstanceStatus  ChannelName = "instance.status"
)

// Event pairs a channel name with its payload. Construct events through the
// typed helpers below so the payload type always matches the channel.
type Event struct {
	Channel ChannelName
	Payload any
}

// DebounceTimerFired is the payload of the debounce.timer channel.
type DebounceTimerFired struct {
	ConversationKey string    `json:"conversation_key"`
	Generation      int64     `json:"generation"`
	FireAt          time.Time `json:"fire_at"`
}

// NewMessageReceived wraps a canonical inbound message.
func NewMessageReceived(msg schema.InboundMessage) Event {
	return Event{Channel: ChannelMessageReceived, Payload: msg}
}

// NewMessageSent wraps a canonical outbound message.
func NewMessageSent(msg schema.OutboundMessage) Event {
	return Event{Channel: ChannelMessageSent, Payload: msg}
}

// NewDebounceTimer reports a claimed timer fire, mostly for observability.
func NewDebounceTimer(key string, generation int64, fireAt time.Time) Event {
	return Event{Channel: ChannelDebounceTimer, Payload: DebounceTimerFired{
		ConversationKey: key,
		Generation:      generation,
		FireAt:          fireAt,
	}}
}

// NewLeadCreated is published exactly once per lead.
func NewLeadCreated(lead schema.Lead) Event {
	return Event{Channel: ChannelLeadCreated, Payload: schema.LeadCreated{Lead: lead}}
}

// NewLeadQualified is published on the transition into qualified.
func NewLeadQualified(lead schema.Lead, q schema.Qualification) Event {
	return Event{Channel: ChannelLeadQualified, Payload: schema.LeadQualified{Lead: lead, Qualification: q}}
}

// NewContractSigned forwards an externally produced contract event.
func NewContractSigned(evt schema.ContractSigned) Event {
	return Event{Channel: ChannelContractSigned, Payload: evt}
}

// NewInstanceStatus reports an instance going up or down.
func NewInstanceStatus(status schema.InstanceStatus) Event {
	return Event{Channel: ChannelInstanceStatus, Payload: status}
}

// ValidatePayload checks that the payload matches the channel's schema.
// The switch is exhaustive over the channel set; an unknown channel is an
// error so new kinds cannot slip past this boundary unvalidated.
func ValidatePayload(evt Event) error {
	switch evt.Channel {
	case ChannelMessageReceived:
		msg, ok := evt.Payload.(schema.InboundMessage)
		if !ok {
			return payloadTypeError(evt, "schema.InboundMessage")
		}
		return msg.Validate()
	case ChannelMessageSent:
		msg, ok := evt.Payload.(schema.OutboundMessage)
		if !ok {
			return payloadTypeError(evt, "schema.OutboundMessage")
		}
		return msg.Validate()
	case ChannelDebounceTimer:
		fired, ok := evt.Payload.(DebounceTimerFired)
		if !ok {
			return payloadTypeError(evt, "events.DebounceTimerFired")
		}
		if fired.ConversationKey == "" {
			return fmt.Errorf("events: debounce.timer payload missing conversation_key")
		}
		return nil
	case ChannelLeadCreated:
		created, ok := evt.Payload.(schema.LeadCreated)
		if !ok {
			return payloadTypeError(evt, "schema.LeadCreated")
		}
		return created.Lead.Validate()
	case ChannelLeadQualified:
		qualified, ok := evt.Payload.(schema.LeadQualified)
		if !ok {
			return payloadTypeError(evt, "schema.LeadQualified")
		}
		if err := qualified.Lead.Validate(); err != nil {
			return err
		}
		return qualified.Qualification.Validate()
	case ChannelContractCreated, ChannelContractSigned:
		contract, ok := evt.Payload.(schema.ContractSigned)
		if !ok {
			return payloadTypeError(evt, "schema.ContractSigned")
		}
		return contract.Validate()
	case ChannelInstanceStatus:
		status, ok := evt.Payload.(schema.InstanceStatus)
		if !ok {
			return payloadTypeError(evt, "schema.InstanceStatus")
		}
		return status.Validate()
	default:
		return fmt.Errorf("events: unknown channel %q", evt.Channel)
	}
}

func payloadTypeError(evt Event, want string) error {
	return fmt.Errorf("events: channel %s requires %s payload, got %T", evt.Channel, want, evt.Payload)
}

// Envelope captures transport metadata around a published payload.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	Channel         ChannelName     `json:"channel"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

var nowFunc = time.Now

// Wrap validates the event and wraps it in a transport envelope.
func Wrap(evt Event) (Envelope, error) {
	if err := ValidatePayload(evt); err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return Envelope{
		EventID:         uuid.New(),
		Channel:         evt.Channel,
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         payload,
	}, nil
}

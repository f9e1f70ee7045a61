// Package normalize turns provider-specific webhook payloads into the
// canonical inbound message. Parsing per provider is a pluggable strategy
// keyed by channel; every output passes schema validation before it leaves
// this package.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

// ErrUnsupportedChannel is returned when no strategy is registered for the
// requested channel.
var ErrUnsupportedChannel = errors.New("normalize: unsupported channel")

// Strategy parses one provider's webhook shape into the canonical message.
// Implementations do not validate; the Normalizer runs validation afterward.
type Strategy interface {
	Normalize(raw json.RawMessage) (schema.InboundMessage, error)
}

// Normalizer holds the per-channel strategy registry.
type Normalizer struct {
	strategies map[schema.Channel]Strategy
	logger     *logging.Logger
}

// NewNormalizer registers the built-in strategies for whatsapp, instagram
// and telegram.
func NewNormalizer(logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Default()
	}
	n := &Normalizer{
		strategies: make(map[schema.Channel]Strategy),
		logger:     logger,
	}
	n.Register(schema.ChannelWhatsApp, &WhatsAppStrategy{})
	n.Register(schema.ChannelInstagram, &InstagramStrategy{})
	n.Register(schema.ChannelTelegram, &TelegramStrategy{})
	return n
}

// Register installs or replaces the strategy for a channel.
func (n *Normalizer) Register(channel schema.Channel, s Strategy) {
	n.strategies[channel] = s
}

// Normalize parses and validates one provider payload. No side effects; the
// caller decides what to do with the canonical message.
func (n *Normalizer) Normalize(_ context.Context, channel schema.Channel, raw json.RawMessage) (schema.InboundMessage, error) {
	strategy, ok := n.strategies[channel]
	if !ok {
		return schema.InboundMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}

	msg, err := strategy.Normalize(raw)
	if err != nil {
		return schema.InboundMessage{}, err
	}
	msg.Channel = channel
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	if err := msg.Validate(); err != nil {
		return schema.InboundMessage{}, err
	}
	return msg, nil
}

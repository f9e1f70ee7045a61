package debounce

import (
	"context"
	"fmt"
	"time"

	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/observability/metrics"
	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

// MessageBuffer accumulates inbound messages per conversation until the
// dispatcher drains them as one batch.
type MessageBuffer interface {
	Append(ctx context.Context, key Key, msg schema.InboundMessage) error
}

// DelayFunc resolves the coalescing delay for a tenant.
type DelayFunc func(companyID string) time.Duration

// Scheduler owns the trailing-edge debounce: every inbound message re-arms
// the conversation's timer, so a burst of N messages produces one dispatch
// timed delay after the last one.
type Scheduler struct {
	store     TimerStore
	buffer    MessageBuffer
	publisher events.Publisher
	delayFor  DelayFunc
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
}

func NewScheduler(store TimerStore, buffer MessageBuffer, publisher events.Publisher, delayFor DelayFunc, m *metrics.PipelineMetrics, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("debounce: timer store cannot be nil")
	}
	if buffer == nil {
		panic("debounce: message buffer cannot be nil")
	}
	if publisher == nil {
		panic("debounce: publisher cannot be nil")
	}
	if delayFor == nil {
		panic("debounce: delay func cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:     store,
		buffer:    buffer,
		publisher: publisher,
		delayFor:  delayFor,
		metrics:   m,
		logger:    logger,
	}
}

// OnMessage buffers the message and re-arms the conversation timer. The
// message.received event goes out immediately, independent of the debounce,
// so observers see raw traffic in real time.
func (s *Scheduler) OnMessage(ctx context.Context, msg schema.InboundMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	key := KeyFor(msg)

	if err := s.buffer.Append(ctx, key, msg); err != nil {
		return fmt.Errorf("debounce: buffer message: %w", err)
	}

	gen, err := s.store.Reset(ctx, key, s.delayFor(msg.CompanyID))
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events.NewMessageReceived(msg)); err != nil {
		// the timer is armed; a publish failure must not lose the message
		s.logger.Warn("failed to publish message.received", "error", err, "conversation_key", key.String())
	}

	s.metrics.ObserveInbound(string(msg.Channel), "ok")
	s.logger.Debug("timer re-armed",
		"conversation_key", key.String(),
		"generation", gen,
		"company_id", msg.CompanyID,
	)
	return nil
}

// Package dispatch owns the conversation router: it turns a claimed debounce
// fire into exactly one qualification pass, one lead-status decision, and the
// resulting domain events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadwire/leadwire/internal/alerts"
	"github.com/leadwire/leadwire/internal/debounce"
	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/leads"
	"github.com/leadwire/leadwire/internal/observability/metrics"
	"github.com/leadwire/leadwire/internal/qualify"
	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/internal/tenancy"
	"github.com/leadwire/leadwire/pkg/logging"
)

// ConversationBuffer is the slice of the message store the router needs:
// drain the coalesced batch, or put it back when the dispatch cannot finish.
type ConversationBuffer interface {
	Drain(ctx context.Context, key debounce.Key) ([]schema.InboundMessage, error)
	Restore(ctx context.Context, key debounce.Key, batch []schema.InboundMessage) error
}

// Router dispatches one coalesced conversation batch per claimed timer fire.
type Router struct {
	store     debounce.TimerStore
	buffer    ConversationBuffer
	leads     leads.Repository
	qualifier qualify.Qualifier
	publisher events.Publisher
	alerter   alerts.Alerter
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
	threshold float64
	now       func() time.Time
}

// RouterOption customizes router behavior.
type RouterOption func(*Router)

// WithQualifiedThreshold sets the score at or above which a lead qualifies.
func WithQualifiedThreshold(threshold float64) RouterOption {
	return func(r *Router) {
		if threshold > 0 && threshold <= 1 {
			r.threshold = threshold
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.PipelineMetrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func NewRouter(
	store debounce.TimerStore,
	buffer ConversationBuffer,
	repo leads.Repository,
	qualifier qualify.Qualifier,
	publisher events.Publisher,
	alerter alerts.Alerter,
	logger *logging.Logger,
	opts ...RouterOption,
) *Router {
	if store == nil {
		panic("dispatch: timer store required")
	}
	if buffer == nil {
		panic("dispatch: conversation buffer required")
	}
	if repo == nil {
		panic("dispatch: lead repository required")
	}
	if qualifier == nil {
		panic("dispatch: qualifier required")
	}
	if publisher == nil {
		panic("dispatch: publisher required")
	}
	if alerter == nil {
		alerter = alerts.NewLogAlerter(logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		store:     store,
		buffer:    buffer,
		leads:     repo,
		qualifier: qualifier,
		publisher: publisher,
		alerter:   alerter,
		logger:    logger,
		threshold: 0.7,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch runs the full routing pass for one claimed (key, generation).
// A generation mismatch at any checkpoint discards the fire silently; the
// newer generation's own fire carries the conversation forward.
func (r *Router) Dispatch(ctx context.Context, key debounce.Key, generation int64) error {
	started := r.now()
	ctx = tenancy.WithCompanyID(ctx, key.CompanyID)
	log := r.logger.With("conversation_key", key.String(), "generation", generation)

	stale, err := r.isStale(ctx, key, generation)
	if err != nil {
		r.metrics.ObserveDispatch("error", r.since(started))
		return err
	}
	if stale {
		r.metrics.ObserveDispatch("stale", r.since(started))
		log.Debug("discarding stale fire")
		return nil
	}

	batch, err := r.buffer.Drain(ctx, key)
	if err != nil {
		r.metrics.ObserveDispatch("error", r.since(started))
		return fmt.Errorf("dispatch: drain buffer: %w", err)
	}
	if len(batch) == 0 {
		if err := r.complete(ctx, key, generation); err != nil {
			log.Warn("failed to complete empty fire", "error", err)
		}
		r.metrics.ObserveDispatch("empty", r.since(started))
		return nil
	}

	lead, created, err := r.leads.ResolveOrCreate(ctx, key.CompanyID, key.FromNumber)
	if err != nil {
		r.releaseForRetry(ctx, key, generation, batch, log)
		r.metrics.ObserveDispatch("error", r.since(started))
		return fmt.Errorf("dispatch: resolve lead: %w", err)
	}
	if created {
		// published at creation time, not after persist: the row already
		// exists, and a later stale abort or retry must not lose the event
		r.publish(ctx, events.NewLeadCreated(*lead), log)
	}
	if lead.Status.Terminal() {
		// a fresh inbound message reopens a closed conversation
		if err := r.leads.Reopen(ctx, key.CompanyID, key.FromNumber); err != nil {
			log.Warn("failed to reopen lead", "error", err)
		} else {
			lead.Status = schema.LeadStatusInProgress
		}
	}

	result, err := r.qualifier.Qualify(ctx, qualify.Request{
		CompanyID: key.CompanyID,
		Lead:      lead,
		Messages:  batch,
	})
	if err != nil {
		if errors.Is(err, qualify.ErrRetriesExhausted) {
			return r.escalate(ctx, key, generation, lead, batch, started, log)
		}
		r.releaseForRetry(ctx, key, generation, batch, log)
		r.metrics.ObserveDispatch("error", r.since(started))
		return fmt.Errorf("dispatch: qualify: %w", err)
	}

	status := r.decideStatus(lead.Status, result)

	// re-check right before persisting: a reset that landed mid-dispatch
	// means a newer fire owns these messages now
	stale, err = r.isStale(ctx, key, generation)
	if err != nil {
		r.metrics.ObserveDispatch("error", r.since(started))
		return err
	}
	if stale {
		if err := r.buffer.Restore(ctx, key, batch); err != nil {
			log.Error("failed to restore batch after stale detection", "error", err)
		}
		r.metrics.ObserveDispatch("stale", r.since(started))
		log.Debug("discarding fire, generation moved during dispatch")
		return nil
	}

	qualification := schema.Qualification{
		LeadID:      lead.ID,
		CompanyID:   key.CompanyID,
		Score:       result.Score,
		Criteria:    result.Criteria,
		QualifiedAt: r.now().UTC(),
	}
	if result.Summary != "" {
		qualification.Summary = &result.Summary
	}
	if qualification.Criteria == nil {
		qualification.Criteria = []string{}
	}

	updated, err := r.persist(ctx, key, lead, status, qualification)
	if err != nil {
		r.releaseForRetry(ctx, key, generation, batch, log)
		r.metrics.ObserveDispatch("error", r.since(started))
		return fmt.Errorf("dispatch: persist: %w", err)
	}

	if err := r.complete(ctx, key, generation); err != nil {
		log.Warn("failed to complete timer", "error", err)
	}

	if status == schema.LeadStatusQualified && lead.Status != schema.LeadStatusQualified {
		r.publish(ctx, events.NewLeadQualified(*updated, qualification), log)
	}
	r.sendReply(ctx, result.Reply, batch[len(batch)-1], log)

	r.metrics.ObserveDispatch("ok", r.since(started))
	log.Info("dispatch complete",
		"lead_id", updated.ID,
		"status", string(updated.Status),
		"score", result.Score,
		"batch_size", len(batch))
	return nil
}

// escalate handles qualification retry exhaustion: the lead moves to handoff
// and an operator alert is raised instead of a qualification event.
func (r *Router) escalate(ctx context.Context, key debounce.Key, generation int64, lead *schema.Lead, batch []schema.InboundMessage, started time.Time, log *logging.Logger) error {
	stale, err := r.isStale(ctx, key, generation)
	if err != nil {
		r.metrics.ObserveDispatch("error", r.since(started))
		return err
	}
	if stale {
		// the newer generation's fire owns the conversation; give the
		// drained messages back so nothing is lost
		if err := r.buffer.Restore(ctx, key, batch); err != nil {
			log.Error("failed to restore batch after stale detection", "error", err)
		}
		r.metrics.ObserveDispatch("stale", r.since(started))
		return nil
	}

	updated, err := r.leads.UpdateStatus(ctx, key.CompanyID, lead.ID, schema.LeadStatusHandoff)
	if err != nil {
		if !errors.Is(err, leads.ErrInvalidTransition) {
			r.metrics.ObserveDispatch("error", r.since(started))
			return fmt.Errorf("dispatch: mark handoff: %w", err)
		}
		updated = lead
	}

	if err := r.complete(ctx, key, generation); err != nil {
		log.Warn("failed to complete timer", "error", err)
	}

	if err := r.alerter.Raise(ctx, alerts.Alert{
		Severity:  alerts.SeverityCritical,
		CompanyID: key.CompanyID,
		Summary:   "qualification retries exhausted",
		Detail:    fmt.Sprintf("conversation %s handed off after retry budget was spent", key.String()),
		At:        r.now().UTC(),
	}); err != nil {
		log.Error("failed to raise alert", "error", err)
	}

	r.metrics.ObserveDispatch("handoff", r.since(started))
	log.Warn("conversation handed off", "lead_id", updated.ID)
	return nil
}

func (r *Router) decideStatus(current schema.LeadStatus, result qualify.Result) schema.LeadStatus {
	switch {
	case result.Handoff:
		return schema.LeadStatusHandoff
	case result.Disengaged:
		return schema.LeadStatusDisqualified
	case result.Score >= r.threshold:
		return schema.LeadStatusQualified
	case current == schema.LeadStatusNew:
		return schema.LeadStatusInProgress
	default:
		return current
	}
}

// persist writes the status transition and the qualification record. A
// failed write is retried once before the whole dispatch is surfaced as
// fatal.
func (r *Router) persist(ctx context.Context, key debounce.Key, lead *schema.Lead, status schema.LeadStatus, q schema.Qualification) (*schema.Lead, error) {
	var updated *schema.Lead
	err := r.retryOnce(func() error {
		var err error
		updated, err = r.leads.UpdateStatus(ctx, key.CompanyID, lead.ID, status)
		return err
	})
	if err != nil {
		if errors.Is(err, leads.ErrInvalidTransition) {
			updated = lead
		} else {
			return nil, err
		}
	}

	if err := r.retryOnce(func() error {
		return r.leads.AppendQualification(ctx, q)
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Router) retryOnce(op func() error) error {
	err := op()
	if err == nil || errors.Is(err, leads.ErrInvalidTransition) {
		return err
	}
	return op()
}

// isStale re-fetches the timer and compares generations. An absent timer
// means an administrative cancel; the fire is discarded either way.
func (r *Router) isStale(ctx context.Context, key debounce.Key, generation int64) (bool, error) {
	timer, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, debounce.ErrTimerNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("dispatch: fetch timer: %w", err)
	}
	return timer.Generation != generation, nil
}

func (r *Router) complete(ctx context.Context, key debounce.Key, generation int64) error {
	err := r.store.Complete(ctx, key, generation)
	if errors.Is(err, debounce.ErrStaleGeneration) {
		return nil
	}
	return err
}

// releaseForRetry puts both the claim and the drained batch back so a later
// poll retries the whole dispatch.
func (r *Router) releaseForRetry(ctx context.Context, key debounce.Key, generation int64, batch []schema.InboundMessage, log *logging.Logger) {
	if len(batch) > 0 {
		if err := r.buffer.Restore(ctx, key, batch); err != nil {
			log.Error("failed to restore batch", "error", err)
		}
	}
	if err := r.store.Release(ctx, key, generation); err != nil && !errors.Is(err, debounce.ErrStaleGeneration) {
		log.Error("failed to release timer claim", "error", err)
	}
}

func (r *Router) sendReply(ctx context.Context, reply string, last schema.InboundMessage, log *logging.Logger) {
	outbound, err := ComposeReply(reply, last)
	if err != nil {
		log.Warn("capability reply not sendable", "error", err)
		return
	}
	r.publish(ctx, events.NewMessageSent(outbound), log)
}

func (r *Router) publish(ctx context.Context, evt events.Event, log *logging.Logger) {
	if err := r.publisher.Publish(ctx, evt); err != nil {
		log.Error("failed to publish event", "channel", string(evt.Channel), "error", err)
		return
	}
	r.metrics.ObserveEventPublished(string(evt.Channel))
}

func (r *Router) since(started time.Time) float64 {
	return r.now().Sub(started).Seconds()
}

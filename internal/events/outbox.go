package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/pkg/logging"
)

// OutboxEntry is one pending event awaiting delivery.
type OutboxEntry struct {
	ID        uuid.UUID
	CompanyID string
	Channel   ChannelName
	Envelope  json.RawMessage
	CreatedAt time.Time
}

type outboxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists envelopes so delivery survives process crashes.
type OutboxStore struct {
	pool outboxQuerier
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

func newOutboxStoreWithExec(exec outboxQuerier) *OutboxStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &OutboxStore{pool: exec}
}

func (s *OutboxStore) Insert(ctx context.Context, companyID string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	query := `
		INSERT INTO outbox (id, company_id, channel, envelope)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, env.EventID, companyID, string(env.Channel), data); err != nil {
		return fmt.Errorf("events: insert outbox: %w", err)
	}
	return nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, company_id, channel, envelope, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var channel string
		var envelope []byte
		if err := rows.Scan(&entry.ID, &entry.CompanyID, &channel, &envelope, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Channel = ChannelName(channel)
		entry.Envelope = append([]byte(nil), envelope...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// OutboxPublisher stores events durably; a Deliverer forwards them to the
// wrapped transport, giving at-least-once delivery across restarts.
type OutboxPublisher struct {
	store *OutboxStore
}

func NewOutboxPublisher(store *OutboxStore) *OutboxPublisher {
	if store == nil {
		panic("events: outbox store required")
	}
	return &OutboxPublisher{store: store}
}

func (p *OutboxPublisher) Publish(ctx context.Context, evt Event) error {
	env, err := Wrap(evt)
	if err != nil {
		return err
	}
	return p.store.Insert(ctx, companyIDOf(evt), env)
}

func companyIDOf(evt Event) string {
	switch payload := evt.Payload.(type) {
	case schema.InboundMessage:
		return payload.CompanyID
	case schema.OutboundMessage:
		return payload.CompanyID
	case schema.LeadCreated:
		return payload.Lead.CompanyID
	case schema.LeadQualified:
		return payload.Lead.CompanyID
	case schema.ContractSigned:
		return payload.CompanyID
	case schema.InstanceStatus:
		return payload.CompanyID
	case DebounceTimerFired:
		// the conversation key is company|instance|from
		companyID, _, _ := strings.Cut(payload.ConversationKey, "|")
		return companyID
	}
	return ""
}

// Deliverer polls the outbox and forwards entries to the next publisher.
type Deliverer struct {
	store     *OutboxStore
	next      rawPublisher
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

type rawPublisher interface {
	publishRaw(ctx context.Context, channel ChannelName, envelope []byte) error
}

func NewDeliverer(store *OutboxStore, next rawPublisher, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		next:      next,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.next == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.next.publishRaw(ctx, entry.Channel, entry.Envelope); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "channel", entry.Channel)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "channel", entry.Channel)
		}
	}
}

package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/pkg/logging"
)

// Dispatcher handles one claimed timer fire. Implementations must treat a
// stale generation as a silent no-op.
type Dispatcher interface {
	Dispatch(ctx context.Context, key Key, generation int64) error
}

// Poller drives the timer store on a fixed tick and fans claimed fires out
// to a bounded set of dispatch workers. Tests call the store's PollElapsed
// directly; the poller only owns the wall-clock loop.
type Poller struct {
	store     TimerStore
	dispatch  Dispatcher
	publisher events.Publisher
	logger    *logging.Logger

	interval time.Duration
	workers  int

	fires chan Elapsed
	wg    sync.WaitGroup
}

// PollerOption customizes poller behavior.
type PollerOption func(*Poller)

// WithPollInterval sets the tick interval between PollElapsed calls.
func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithDispatchWorkers sets the number of concurrent dispatch goroutines.
func WithDispatchWorkers(count int) PollerOption {
	return func(p *Poller) {
		if count > 0 {
			p.workers = count
		}
	}
}

func NewPoller(store TimerStore, dispatch Dispatcher, publisher events.Publisher, logger *logging.Logger, opts ...PollerOption) *Poller {
	if store == nil {
		panic("debounce: timer store cannot be nil")
	}
	if dispatch == nil {
		panic("debounce: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Poller{
		store:     store,
		dispatch:  dispatch,
		publisher: publisher,
		logger:    logger,
		interval:  500 * time.Millisecond,
		workers:   2,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.fires = make(chan Elapsed, p.workers*4)
	return p
}

// Start launches the poll loop and dispatch workers until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i+1)
	}
	p.wg.Add(1)
	go p.runLoop(ctx)
}

// Wait blocks until the loop and all workers exit.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) runLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.fires)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	elapsed, err := p.store.PollElapsed(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Error("poll elapsed failed", "error", err)
		return
	}
	for _, fire := range elapsed {
		select {
		case p.fires <- fire:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	p.logger.Debug("dispatch worker started", "worker_id", workerID)

	for fire := range p.fires {
		if p.publisher != nil {
			evt := events.NewDebounceTimer(fire.Key.String(), fire.Generation, fire.FireAt)
			if err := p.publisher.Publish(ctx, evt); err != nil {
				p.logger.Warn("failed to publish debounce.timer", "error", err)
			}
		}
		if err := p.dispatch.Dispatch(ctx, fire.Key, fire.Generation); err != nil {
			p.logger.Error("dispatch failed",
				"error", err,
				"conversation_key", fire.Key.String(),
				"generation", fire.Generation,
				"worker_id", workerID,
			)
		}
	}
}

package msgstore

import (
	"context"
	"sync"

	"github.com/leadwire/leadwire/internal/debounce"
	"github.com/leadwire/leadwire/internal/schema"
)

// MemoryBuffer is an in-process message buffer for tests and single-node
// deployments.
type MemoryBuffer struct {
	mu      sync.Mutex
	batches map[string][]schema.InboundMessage
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{batches: make(map[string][]schema.InboundMessage)}
}

func (b *MemoryBuffer) Append(_ context.Context, key debounce.Key, msg schema.InboundMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches[key.String()] = append(b.batches[key.String()], msg)
	return nil
}

func (b *MemoryBuffer) Drain(_ context.Context, key debounce.Key) ([]schema.InboundMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.batches[key.String()]
	delete(b.batches, key.String())
	return batch, nil
}

func (b *MemoryBuffer) Restore(_ context.Context, key debounce.Key, batch []schema.InboundMessage) error {
	if len(batch) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches[key.String()] = append(append([]schema.InboundMessage(nil), batch...), b.batches[key.String()]...)
	return nil
}

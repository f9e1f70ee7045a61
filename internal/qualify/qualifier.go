// Package qualify defines the qualification capability consumed by the
// dispatcher. The scoring engine itself is an external collaborator; this
// package owns the request/result contract and the retry policy around it.
package qualify

import (
	"context"
	"errors"

	"github.com/leadwire/leadwire/internal/schema"
)

// ErrRetriesExhausted is returned once the retry budget for a qualification
// call is spent. The dispatcher treats it as a handoff signal.
var ErrRetriesExhausted = errors.New("qualify: retries exhausted")

// Request carries everything the capability needs to score a conversation:
// the coalesced inbound batch plus the lead's prior state.
type Request struct {
	CompanyID string
	Lead      *schema.Lead
	Messages  []schema.InboundMessage
}

// Result is the capability's verdict for one coalesced batch.
type Result struct {
	Score      float64
	Criteria   []string
	Summary    string
	Reply      string
	Disengaged bool
	Handoff    bool
}

// Qualifier scores a conversation. Implementations live outside this core;
// tests use a stub.
type Qualifier interface {
	Qualify(ctx context.Context, req Request) (Result, error)
}

// QualifierFunc adapts a function to the Qualifier interface.
type QualifierFunc func(ctx context.Context, req Request) (Result, error)

func (f QualifierFunc) Qualify(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadwire/leadwire/internal/schema"
)

// Repository defines lead storage. Every operation is scoped to a company;
// implementations must never read or mutate leads across tenants.
type Repository interface {
	// ResolveOrCreate finds the lead for (companyID, phone) or creates one
	// with status new. The second return is true when the lead was created.
	ResolveOrCreate(ctx context.Context, companyID, phone string) (*schema.Lead, bool, error)

	// UpdateStatus moves the lead to the given status, enforcing the
	// forward-only transition rule. Returns ErrInvalidTransition otherwise.
	UpdateStatus(ctx context.Context, companyID, leadID string, status schema.LeadStatus) (*schema.Lead, error)

	// Reopen moves a terminal lead back to in_progress; no-op otherwise.
	// Called when a new inbound message arrives for a closed conversation.
	Reopen(ctx context.Context, companyID, phone string) error

	// AppendQualification records one scoring pass. Records are append-only.
	AppendQualification(ctx context.Context, q schema.Qualification) error

	// GetByPhone fetches the lead for (companyID, phone).
	GetByPhone(ctx context.Context, companyID, phone string) (*schema.Lead, error)
}

// InMemoryRepository is a Repository backed by maps, for tests and local
// development.
type InMemoryRepository struct {
	mu             sync.RWMutex
	leads          map[string]*schema.Lead // companyID|phone
	qualifications map[string][]schema.Qualification
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:          make(map[string]*schema.Lead),
		qualifications: make(map[string][]schema.Qualification),
	}
}

func leadKey(companyID, phone string) string { return companyID + "|" + phone }

func (r *InMemoryRepository) ResolveOrCreate(_ context.Context, companyID, phone string) (*schema.Lead, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lead, ok := r.leads[leadKey(companyID, phone)]; ok {
		copied := *lead
		return &copied, false, nil
	}

	now := time.Now().UTC()
	lead := &schema.Lead{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Phone:     phone,
		Status:    schema.LeadStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.leads[leadKey(companyID, phone)] = lead
	copied := *lead
	return &copied, true, nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, companyID, leadID string, status schema.LeadStatus) (*schema.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, lead := range r.leads {
		if lead.CompanyID != companyID || lead.ID != leadID {
			continue
		}
		if !CanTransition(lead.Status, status) {
			return nil, ErrInvalidTransition
		}
		lead.Status = status
		lead.UpdatedAt = time.Now().UTC()
		copied := *lead
		return &copied, nil
	}
	return nil, ErrLeadNotFound
}

func (r *InMemoryRepository) Reopen(_ context.Context, companyID, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadKey(companyID, phone)]
	if !ok {
		return nil
	}
	if reopened := ReopenStatus(lead.Status); reopened != lead.Status {
		lead.Status = reopened
		lead.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *InMemoryRepository) AppendQualification(_ context.Context, q schema.Qualification) error {
	if err := q.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qualifications[q.LeadID] = append(r.qualifications[q.LeadID], q)
	return nil
}

func (r *InMemoryRepository) GetByPhone(_ context.Context, companyID, phone string) (*schema.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[leadKey(companyID, phone)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

// Qualifications returns recorded scoring passes for a lead (test helper).
func (r *InMemoryRepository) Qualifications(leadID string) []schema.Qualification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]schema.Qualification(nil), r.qualifications[leadID]...)
}

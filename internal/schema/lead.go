package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// LeadStatus is the lifecycle state of a lead. Transitions are monotonic
// forward; handoff and disqualified are terminal but reopen on a new inbound
// message.
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusInProgress   LeadStatus = "in_progress"
	LeadStatusQualified    LeadStatus = "qualified"
	LeadStatusDisqualified LeadStatus = "disqualified"
	LeadStatusHandoff      LeadStatus = "handoff"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusInProgress, LeadStatusQualified, LeadStatusDisqualified, LeadStatusHandoff:
		return true
	}
	return false
}

// Terminal reports whether the status only reopens via a new inbound message.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusHandoff || s == LeadStatusDisqualified
}

// Lead is the wire shape of a lead, used in lead.created / lead.qualified
// events and by the lead repository.
type Lead struct {
	ID        string            `json:"id"`
	CompanyID string            `json:"company_id"`
	Phone     string            `json:"phone"`
	Name      string            `json:"name,omitempty"`
	Email     string            `json:"email,omitempty"`
	Status    LeadStatus        `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	UTM       map[string]string `json:"utm,omitempty"`
}

func (l *Lead) Validate() error {
	if err := validateUUID("id", l.ID); err != nil {
		return err
	}
	if err := validateUUID("company_id", l.CompanyID); err != nil {
		return err
	}
	if len(l.Phone) < 3 {
		return invalid("phone", l.Phone, "must be at least 3 characters")
	}
	if !l.Status.Valid() {
		return invalid("status", string(l.Status), "must be a known lead status")
	}
	if l.CreatedAt.IsZero() {
		return invalid("created_at", l.CreatedAt, "must be a valid timestamp")
	}
	return nil
}

// Qualification is one scoring pass produced by the qualification
// capability. Appended per invocation, never mutated.
type Qualification struct {
	LeadID      string    `json:"lead_id"`
	CompanyID   string    `json:"company_id"`
	Score       float64   `json:"score"`
	Criteria    []string  `json:"criteria"`
	Summary     *string   `json:"summary"`
	QualifiedAt time.Time `json:"qualified_at"`
}

func (q *Qualification) Validate() error {
	if err := validateUUID("lead_id", q.LeadID); err != nil {
		return err
	}
	if err := validateUUID("company_id", q.CompanyID); err != nil {
		return err
	}
	if q.Score < 0 || q.Score > 1 {
		return invalid("score", q.Score, "must be within [0, 1]")
	}
	for i, c := range q.Criteria {
		if c == "" {
			return invalid(fmt.Sprintf("criteria[%d]", i), c, "must be non-empty")
		}
	}
	if q.QualifiedAt.IsZero() {
		return invalid("qualified_at", q.QualifiedAt, "must be a valid timestamp")
	}
	return nil
}

// DecodeLead parses and validates a lead payload.
func DecodeLead(raw []byte) (Lead, error) {
	var lead Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return Lead{}, invalid("", truncate(raw), "malformed JSON")
	}
	if err := lead.Validate(); err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// DecodeQualification parses and validates a qualification payload.
func DecodeQualification(raw []byte) (Qualification, error) {
	var q Qualification
	if err := json.Unmarshal(raw, &q); err != nil {
		return Qualification{}, invalid("", truncate(raw), "malformed JSON")
	}
	if q.Criteria == nil {
		q.Criteria = []string{}
	}
	if err := q.Validate(); err != nil {
		return Qualification{}, err
	}
	return q, nil
}

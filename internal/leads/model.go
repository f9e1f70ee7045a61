package leads

import (
	"github.com/leadwire/leadwire/internal/schema"
)

// CanTransition reports whether a lead may move from one status to another
// as the outcome of a dispatch. Transitions only move forward; handoff and
// disqualified are terminal until a fresh inbound message reopens the
// conversation (the Reopen path below).
func CanTransition(from, to schema.LeadStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case schema.LeadStatusNew:
		return true
	case schema.LeadStatusInProgress:
		return to != schema.LeadStatusNew
	case schema.LeadStatusQualified:
		return to == schema.LeadStatusHandoff || to == schema.LeadStatusDisqualified
	case schema.LeadStatusHandoff, schema.LeadStatusDisqualified:
		return false
	}
	return false
}

// ReopenStatus maps a terminal status to the status a new inbound message
// reopens the lead into.
func ReopenStatus(current schema.LeadStatus) schema.LeadStatus {
	if current.Terminal() {
		return schema.LeadStatusInProgress
	}
	return current
}

package schema

import (
	"encoding/json"
	"time"
)

// MarketingEvent is the discriminated union consumed by marketing
// attribution. The payload shape is fully determined by the channel name;
// decoding switches exhaustively over the known kinds.
type MarketingEvent interface {
	MarketingChannel() string
}

// LeadCreated is published once, when a lead is first persisted.
type LeadCreated struct {
	Lead Lead `json:"lead"`
}

func (LeadCreated) MarketingChannel() string { return "lead.created" }

// LeadQualified is published on the transition into qualified.
type LeadQualified struct {
	Lead          Lead          `json:"lead"`
	Qualification Qualification `json:"qualification"`
}

func (LeadQualified) MarketingChannel() string { return "lead.qualified" }

// ContractSigned carries the external contract schema; only the tenant and
// contract identity are validated here.
type ContractSigned struct {
	ContractID string          `json:"contract_id"`
	CompanyID  string          `json:"company_id"`
	SignedAt   time.Time       `json:"signed_at"`
	Contract   json.RawMessage `json:"contract"`
}

func (ContractSigned) MarketingChannel() string { return "contract.signed" }

// DecodeMarketingEvent parses one member of the union by channel name.
func DecodeMarketingEvent(channel string, raw []byte) (MarketingEvent, error) {
	switch channel {
	case LeadCreated{}.MarketingChannel():
		var evt LeadCreated
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, invalid("", truncate(raw), "malformed JSON")
		}
		if err := evt.Lead.Validate(); err != nil {
			return nil, err
		}
		return evt, nil
	case LeadQualified{}.MarketingChannel():
		var evt LeadQualified
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, invalid("", truncate(raw), "malformed JSON")
		}
		if err := evt.Lead.Validate(); err != nil {
			return nil, err
		}
		if err := evt.Qualification.Validate(); err != nil {
			return nil, err
		}
		return evt, nil
	case ContractSigned{}.MarketingChannel():
		var evt ContractSigned
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, invalid("", truncate(raw), "malformed JSON")
		}
		if err := evt.Validate(); err != nil {
			return nil, err
		}
		return evt, nil
	default:
		return nil, invalid("channel_name", channel, "not a marketing event channel")
	}
}

func (c *ContractSigned) Validate() error {
	if c.ContractID == "" {
		return invalid("contract_id", c.ContractID, "must be non-empty")
	}
	if err := validateUUID("company_id", c.CompanyID); err != nil {
		return err
	}
	if c.SignedAt.IsZero() {
		return invalid("signed_at", c.SignedAt, "must be a valid timestamp")
	}
	return nil
}

// InstanceStatus reports a channel instance going up or down.
type InstanceStatus struct {
	InstanceID string `json:"instance_id"`
	CompanyID  string `json:"company_id"`
	Status     string `json:"status"`
}

func (s *InstanceStatus) Validate() error {
	if s.InstanceID == "" {
		return invalid("instance_id", s.InstanceID, "must be non-empty")
	}
	if err := validateUUID("company_id", s.CompanyID); err != nil {
		return err
	}
	if s.Status == "" {
		return invalid("status", s.Status, "must be non-empty")
	}
	return nil
}

package arbitration

import (
	"time"

	"disputeflow/money"
	"disputeflow/principal"
)

// DisputeStatus is the lifecycle state of a dispute.
type DisputeStatus string

// Only Filed, UnderReview and Resolved are assigned; the remaining states are
// representable for a future workflow.
const (
	DisputeFiled            DisputeStatus = "filed"
	DisputeUnderReview      DisputeStatus = "under_review"
	DisputeAwaitingEvidence DisputeStatus = "awaiting_evidence"
	DisputeDeliberating     DisputeStatus = "deliberating"
	DisputeResolved         DisputeStatus = "resolved"
	DisputeAppealed         DisputeStatus = "appealed"
	DisputeClosed           DisputeStatus = "closed"
)

// Valid reports whether s is a declared status.
func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputeFiled, DisputeUnderReview, DisputeAwaitingEvidence, DisputeDeliberating,
		DisputeResolved, DisputeAppealed, DisputeClosed:
		return true
	default:
		return false
	}
}

// Outcome is the ruling on a dispute.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeClaimant   Outcome = "claimant"
	OutcomeRespondent Outcome = "respondent"
	OutcomeSplit      Outcome = "split"
	OutcomeNoAction   Outcome = "no_action"
)

// Valid reports whether o is a declared outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeClaimant, OutcomeRespondent, OutcomeSplit, OutcomeNoAction:
		return true
	default:
		return false
	}
}

// ParseRuling validates o as a ruling an arbitrator or admin may hand down.
// Pending is not a ruling.
func ParseRuling(raw string) (Outcome, error) {
	o := Outcome(raw)
	if !o.Valid() || o == OutcomePending {
		return "", ErrInvalidOutcome
	}
	return o, nil
}

// Dispute is a claim filed by a claimant against a respondent.
type Dispute struct {
	ID              uint64
	Claimant        principal.Principal
	Respondent      principal.Principal
	CampaignID      uint64
	ClaimAmount     money.Amount
	Denomination    string
	Description     string
	EvidencePointer string
	Status          DisputeStatus
	Outcome         Outcome
	ResolutionNotes string
	FiledAt         time.Time
	ResolvedAt      *time.Time
	Arbitrator      *principal.Principal
}

// IsParty reports whether p is the claimant or the respondent.
func (d Dispute) IsParty(p principal.Principal) bool {
	return p == d.Claimant || p == d.Respondent
}

// DisputeFilter narrows a dispute listing. A zero Participant lists every
// dispute.
type DisputeFilter struct {
	Participant principal.Principal
	Page        int
	PageSize    int
}

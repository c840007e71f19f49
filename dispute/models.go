package dispute

import (
	"disputeflow/arbitration"
	"disputeflow/money"
	"disputeflow/principal"
)

// FileParams describes a new claim.
type FileParams struct {
	Claimant        principal.Principal
	Respondent      principal.Principal
	CampaignID      uint64
	ClaimAmount     money.Amount
	Description     string
	EvidencePointer string
}

// ListFilters narrows a dispute listing. Page is 1-based.
type ListFilters struct {
	Participant principal.Principal
	Page        int
	PageSize    int
}

// ListResult is one page of disputes and the total matching count.
type ListResult struct {
	Items []arbitration.Dispute
	Total int
}

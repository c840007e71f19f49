package arbitration

import (
	"time"

	"disputeflow/principal"
)

// AppealStatus is the lifecycle state of an appeal. Resolution only ever
// assigns Upheld; UnderReview, Overturned and Dismissed are reserved.
type AppealStatus string

const (
	AppealPending     AppealStatus = "pending"
	AppealUnderReview AppealStatus = "under_review"
	AppealUpheld      AppealStatus = "upheld"
	AppealOverturned  AppealStatus = "overturned"
	AppealDismissed   AppealStatus = "dismissed"
)

// Valid reports whether s is a declared status.
func (s AppealStatus) Valid() bool {
	switch s {
	case AppealPending, AppealUnderReview, AppealUpheld, AppealOverturned, AppealDismissed:
		return true
	default:
		return false
	}
}

// Appeal is a second, admin-adjudicated round on a resolved dispute.
type Appeal struct {
	ID              uint64
	DisputeID       uint64
	Appellant       principal.Principal
	Reason          string
	EvidencePointer string
	Status          AppealStatus
	FiledAt         time.Time
	ResolvedAt      *time.Time
	NewArbitrator   *principal.Principal
	OriginalOutcome Outcome
	FinalOutcome    Outcome
}

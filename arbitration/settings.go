package arbitration

import (
	"disputeflow/money"
	"disputeflow/principal"
)

// Settings is the singleton configuration aggregate. It is created once by
// initialization and mutated only by privileged operations and id allocation.
type Settings struct {
	Admin          principal.Principal
	PendingAdmin   *principal.Principal
	Denomination   string
	FilingFee      money.Amount
	AppealFee      money.Amount
	DisputeCounter uint64
	AppealCounter  uint64
}

// NextDisputeID advances the dispute counter and returns the new id.
func (s *Settings) NextDisputeID() uint64 {
	s.DisputeCounter++
	return s.DisputeCounter
}

// NextAppealID advances the appeal counter and returns the new id.
func (s *Settings) NextAppealID() uint64 {
	s.AppealCounter++
	return s.AppealCounter
}

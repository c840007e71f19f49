package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"disputeflow/arbitration"
	"disputeflow/auth"
	"disputeflow/money"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid or missing credentials")
}

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, auth.ErrDuplicatePrincipal), errors.Is(err, auth.ErrReservedPrincipal):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, auth.ErrWeakSecret):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, arbitration.KindNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, arbitration.KindUnauthorized):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, arbitration.KindInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, arbitration.KindTransfer):
		return http.StatusPaymentRequired, "TRANSFER_FAILED"
	case errors.Is(err, arbitration.KindInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type disputeResponse struct {
	ID              uint64       `json:"id"`
	Claimant        string       `json:"claimant"`
	Respondent      string       `json:"respondent"`
	CampaignID      uint64       `json:"campaignId"`
	ClaimAmount     money.Amount `json:"claimAmount"`
	Denomination    string       `json:"denomination"`
	Description     string       `json:"description"`
	EvidencePointer string       `json:"evidencePointer"`
	Status          string       `json:"status"`
	Outcome         string       `json:"outcome"`
	ResolutionNotes string       `json:"resolutionNotes"`
	Arbitrator      *string      `json:"arbitrator,omitempty"`
	FiledAt         string       `json:"filedAt"`
	ResolvedAt      *string      `json:"resolvedAt,omitempty"`
}

func toDisputeResponse(d arbitration.Dispute) disputeResponse {
	resp := disputeResponse{
		ID:              d.ID,
		Claimant:        d.Claimant.String(),
		Respondent:      d.Respondent.String(),
		CampaignID:      d.CampaignID,
		ClaimAmount:     d.ClaimAmount,
		Denomination:    d.Denomination,
		Description:     d.Description,
		EvidencePointer: d.EvidencePointer,
		Status:          string(d.Status),
		Outcome:         string(d.Outcome),
		ResolutionNotes: d.ResolutionNotes,
		FiledAt:         formatTime(d.FiledAt),
		ResolvedAt:      formatOptionalTime(d.ResolvedAt),
	}
	if d.Arbitrator != nil {
		arb := d.Arbitrator.String()
		resp.Arbitrator = &arb
	}
	return resp
}

type appealResponse struct {
	ID              uint64  `json:"id"`
	DisputeID       uint64  `json:"disputeId"`
	Appellant       string  `json:"appellant"`
	Reason          string  `json:"reason"`
	EvidencePointer string  `json:"evidencePointer"`
	Status          string  `json:"status"`
	OriginalOutcome string  `json:"originalOutcome"`
	FinalOutcome    string  `json:"finalOutcome"`
	NewArbitrator   *string `json:"newArbitrator,omitempty"`
	FiledAt         string  `json:"filedAt"`
	ResolvedAt      *string `json:"resolvedAt,omitempty"`
}

func toAppealResponse(a arbitration.Appeal) appealResponse {
	resp := appealResponse{
		ID:              a.ID,
		DisputeID:       a.DisputeID,
		Appellant:       a.Appellant.String(),
		Reason:          a.Reason,
		EvidencePointer: a.EvidencePointer,
		Status:          string(a.Status),
		OriginalOutcome: string(a.OriginalOutcome),
		FinalOutcome:    string(a.FinalOutcome),
		FiledAt:         formatTime(a.FiledAt),
		ResolvedAt:      formatOptionalTime(a.ResolvedAt),
	}
	if a.NewArbitrator != nil {
		arb := a.NewArbitrator.String()
		resp.NewArbitrator = &arb
	}
	return resp
}

type settingsResponse struct {
	Admin          string       `json:"admin"`
	PendingAdmin   *string      `json:"pendingAdmin,omitempty"`
	Denomination   string       `json:"denomination"`
	FilingFee      money.Amount `json:"filingFee"`
	AppealFee      money.Amount `json:"appealFee"`
	DisputeCounter uint64       `json:"disputeCounter"`
	AppealCounter  uint64       `json:"appealCounter"`
}

func toSettingsResponse(s arbitration.Settings) settingsResponse {
	resp := settingsResponse{
		Admin:          s.Admin.String(),
		Denomination:   s.Denomination,
		FilingFee:      s.FilingFee,
		AppealFee:      s.AppealFee,
		DisputeCounter: s.DisputeCounter,
		AppealCounter:  s.AppealCounter,
	}
	if s.PendingAdmin != nil {
		p := s.PendingAdmin.String()
		resp.PendingAdmin = &p
	}
	return resp
}

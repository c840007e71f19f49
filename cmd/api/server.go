package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"disputeflow/admin"
	"disputeflow/appeal"
	"disputeflow/arbitration"
	"disputeflow/arbitrator"
	"disputeflow/asset"
	"disputeflow/auth"
	"disputeflow/dispute"
	"disputeflow/metrics"
	"disputeflow/money"
	"disputeflow/principal"
)

// Server exposes the arbitration services over HTTP.
type Server struct {
	logger   *slog.Logger
	auth     *auth.Service
	admin    *admin.Service
	registry *arbitrator.Registry
	disputes *dispute.Service
	appeals  *appeal.Service
	assets   *asset.Service
	metrics  *metrics.Recorder
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/settings", s.handleSettings)
		r.Post("/admin/initialize", s.handleInitialize)
		r.Post("/admin/proposal", s.handleProposeAdmin)
		r.Post("/admin/acceptance", s.handleAcceptAdmin)

		r.Get("/arbitrators/{principal}", s.handleArbitratorStatus)
		r.Put("/arbitrators/{principal}", s.handleAuthorizeArbitrator)
		r.Delete("/arbitrators/{principal}", s.handleRevokeArbitrator)

		r.Get("/balances/{principal}", s.handleBalance)

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", s.handleListDisputes)
			r.Post("/", s.handleFileDispute)
			r.Get("/count", s.handleCountDisputes)
			r.Get("/{id}", s.handleGetDispute)
			r.Post("/{id}/arbitrator", s.handleAssignArbitrator)
			r.Post("/{id}/resolution", s.handleResolveDispute)
			r.Get("/{id}/appeals", s.handleListAppeals)
			r.Post("/{id}/appeals", s.handleFileAppeal)
		})

		r.Get("/appeals/{id}", s.handleGetAppeal)
		r.Post("/appeals/{id}/resolution", s.handleResolveAppeal)
	})
	return r
}

func (s *Server) observe(operation string, err error) {
	if s.metrics != nil {
		s.metrics.Observe(operation, err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"module", "api.http",
			"layer", "transport",
			"operation", operation,
			"outcome", "failure",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		msg = "internal server error"
	}
	writeError(w, status, code, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	return id, true
}

func pathPrincipal(w http.ResponseWriter, r *http.Request) (principal.Principal, bool) {
	p, err := principal.Parse(chi.URLParam(r, "principal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid principal")
		return "", false
	}
	return p, true
}

// bodyPrincipal parses a principal named in a request body.
func bodyPrincipal(w http.ResponseWriter, raw, field string) (principal.Principal, bool) {
	p, err := principal.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", field+" is required")
		return "", false
	}
	return p, true
}

func requireCaller(w http.ResponseWriter, r *http.Request) (principal.Principal, bool) {
	p, ok := callerFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
	}
	return p, ok
}

type credentialsRequest struct {
	Principal string `json:"principal"`
	Secret    string `json:"secret"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := principal.Parse(req.Principal); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "principal is required")
		return
	}
	cred, err := s.auth.Register(r.Context(), auth.RegisterRequest{Principal: req.Principal, Secret: req.Secret})
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"principal": cred.Principal.String(),
		"createdAt": formatTime(cred.CreatedAt),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.auth.Login(r.Context(), auth.LoginRequest{Principal: req.Principal, Secret: req.Secret})
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     res.Token,
		"principal": res.Principal.String(),
		"expiresAt": formatTime(res.ExpiresAt),
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.admin.Settings(r.Context())
	if err != nil {
		s.fail(w, r, "get_settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

type initializeRequest struct {
	Admin        string       `json:"admin"`
	Denomination string       `json:"denomination"`
	FilingFee    money.Amount `json:"filingFee"`
	AppealFee    money.Amount `json:"appealFee"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	adminPrincipal := caller
	if req.Admin != "" {
		if adminPrincipal, ok = bodyPrincipal(w, req.Admin, "admin"); !ok {
			return
		}
	}
	settings, err := s.admin.Initialize(r.Context(), admin.InitParams{
		Admin:        adminPrincipal,
		Denomination: req.Denomination,
		FilingFee:    req.FilingFee,
		AppealFee:    req.AppealFee,
	})
	s.observe("initialize", err)
	if err != nil {
		s.fail(w, r, "initialize", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettingsResponse(settings))
}

type proposeAdminRequest struct {
	Proposed string `json:"proposed"`
}

func (s *Server) handleProposeAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req proposeAdminRequest
	if !decodeBody(w, r, &req) {
		return
	}
	proposed, ok := bodyPrincipal(w, req.Proposed, "proposed")
	if !ok {
		return
	}
	err := s.admin.ProposeAdmin(r.Context(), caller, proposed)
	s.observe("propose_admin", err)
	if err != nil {
		s.fail(w, r, "propose_admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	err := s.admin.AcceptAdmin(r.Context(), caller)
	s.observe("accept_admin", err)
	if err != nil {
		s.fail(w, r, "accept_admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArbitratorStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := pathPrincipal(w, r)
	if !ok {
		return
	}
	authorized, err := s.registry.IsAuthorized(r.Context(), p)
	if err != nil {
		s.fail(w, r, "is_authorized_arbitrator", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principal": p.String(), "authorized": authorized})
}

func (s *Server) handleAuthorizeArbitrator(w http.ResponseWriter, r *http.Request) {
	s.setArbitrator(w, r, "authorize_arbitrator", s.registry.Authorize)
}

func (s *Server) handleRevokeArbitrator(w http.ResponseWriter, r *http.Request) {
	s.setArbitrator(w, r, "revoke_arbitrator", s.registry.Revoke)
}

func (s *Server) setArbitrator(w http.ResponseWriter, r *http.Request, operation string, apply func(ctx context.Context, caller, arbitrator principal.Principal) error) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	p, ok := pathPrincipal(w, r)
	if !ok {
		return
	}
	err := apply(r.Context(), caller, p)
	s.observe(operation, err)
	if err != nil {
		s.fail(w, r, operation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := pathPrincipal(w, r)
	if !ok {
		return
	}
	amount, err := s.assets.Balance(r.Context(), p)
	if err != nil {
		s.fail(w, r, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": p.String(), "amount": amount})
}

type fileDisputeRequest struct {
	Respondent      string       `json:"respondent"`
	CampaignID      uint64       `json:"campaignId"`
	ClaimAmount     money.Amount `json:"claimAmount"`
	Description     string       `json:"description"`
	EvidencePointer string       `json:"evidencePointer"`
}

func (s *Server) handleFileDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req fileDisputeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respondent, ok := bodyPrincipal(w, req.Respondent, "respondent")
	if !ok {
		return
	}
	d, err := s.disputes.File(r.Context(), dispute.FileParams{
		Claimant:        caller,
		Respondent:      respondent,
		CampaignID:      req.CampaignID,
		ClaimAmount:     req.ClaimAmount,
		Description:     req.Description,
		EvidencePointer: req.EvidencePointer,
	})
	s.observe("file_dispute", err)
	if err != nil {
		s.fail(w, r, "file_dispute", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	participant, _ := principal.Parse(q.Get("participant"))
	res, err := s.disputes.List(r.Context(), dispute.ListFilters{
		Participant: participant,
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		s.fail(w, r, "list_disputes", err)
		return
	}
	items := make([]disputeResponse, 0, len(res.Items))
	for _, d := range res.Items {
		items = append(items, toDisputeResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": res.Total})
}

func (s *Server) handleCountDisputes(w http.ResponseWriter, r *http.Request) {
	n, err := s.disputes.Count(r.Context())
	if err != nil {
		s.fail(w, r, "dispute_count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": n})
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, found, err := s.disputes.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get_dispute", err)
		return
	}
	if !found {
		s.fail(w, r, "get_dispute", arbitration.ErrDisputeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type assignArbitratorRequest struct {
	Arbitrator string `json:"arbitrator"`
}

func (s *Server) handleAssignArbitrator(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req assignArbitratorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	arb, ok := bodyPrincipal(w, req.Arbitrator, "arbitrator")
	if !ok {
		return
	}
	d, err := s.disputes.AssignArbitrator(r.Context(), caller, id, arb)
	s.observe("assign_arbitrator", err)
	if err != nil {
		s.fail(w, r, "assign_arbitrator", err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.disputes.Resolve(r.Context(), caller, id, arbitration.Outcome(req.Outcome), req.Notes)
	s.observe("resolve_dispute", err)
	if err != nil {
		s.fail(w, r, "resolve_dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type fileAppealRequest struct {
	Reason          string `json:"reason"`
	EvidencePointer string `json:"evidencePointer"`
}

func (s *Server) handleFileAppeal(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req fileAppealRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.appeals.File(r.Context(), appeal.FileParams{
		Appellant:       caller,
		DisputeID:       id,
		Reason:          req.Reason,
		EvidencePointer: req.EvidencePointer,
	})
	s.observe("appeal_dispute", err)
	if err != nil {
		s.fail(w, r, "appeal_dispute", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppealResponse(a))
}

func (s *Server) handleListAppeals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appeals, err := s.appeals.ListByDispute(r.Context(), id)
	if err != nil {
		s.fail(w, r, "list_appeals", err)
		return
	}
	items := make([]appealResponse, 0, len(appeals))
	for _, a := range appeals {
		items = append(items, toAppealResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetAppeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, found, err := s.appeals.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get_appeal", err)
		return
	}
	if !found {
		s.fail(w, r, "get_appeal", arbitration.ErrAppealNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toAppealResponse(a))
}

type resolveAppealRequest struct {
	NewArbitrator string `json:"newArbitrator"`
	FinalOutcome  string `json:"finalOutcome"`
}

func (s *Server) handleResolveAppeal(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveAppealRequest
	if !decodeBody(w, r, &req) {
		return
	}
	newArb, ok := bodyPrincipal(w, req.NewArbitrator, "newArbitrator")
	if !ok {
		return
	}
	a, err := s.appeals.Resolve(r.Context(), appeal.ResolveParams{
		Caller:        caller,
		AppealID:      id,
		NewArbitrator: newArb,
		FinalOutcome:  arbitration.Outcome(req.FinalOutcome),
	})
	s.observe("resolve_appeal", err)
	if err != nil {
		s.fail(w, r, "resolve_appeal", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppealResponse(a))
}

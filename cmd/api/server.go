package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escrowflow/account"
	"escrowflow/admin"
	"escrowflow/arbiter"
	"escrowflow/deal"
	"escrowflow/dispute"
	"escrowflow/metrics"
	"escrowflow/token"
)

type ctxKey string

const (
	ctxKeyAddress   ctxKey = "address"
	ctxKeyRole      ctxKey = "role"
	ctxKeyRequestID ctxKey = "requestID"
)

type accountService interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.Account, error)
	Login(ctx context.Context, req account.LoginRequest) (account.LoginResult, error)
	VerifyToken(tokenString string) (string, account.Role, error)
}

type dealService interface {
	Create(ctx context.Context, caller string, params deal.CreateParams) (int64, error)
	ReleaseMilestone(ctx context.Context, caller string, dealID int64, index int) (deal.ReleaseResult, error)
	RaiseDispute(ctx context.Context, caller string, dealID int64) error
}

type dealReader interface {
	Get(ctx context.Context, dealID int64) (deal.Deal, error)
	GetMilestone(ctx context.Context, dealID int64, index int) (deal.Milestone, error)
}

type disputeService interface {
	Resolve(ctx context.Context, caller string, dealID, payerShare, payeeShare int64) (dispute.Resolution, error)
}

type arbiterService interface {
	Register(ctx context.Context, caller string, amount int64) (arbiter.Profile, error)
	Slash(ctx context.Context, caller, address string, amount int64, reason arbiter.SlashReason) (arbiter.Profile, error)
	Status(ctx context.Context, address string) (arbiter.Profile, error)
}

type adminService interface {
	Admin(ctx context.Context) (string, error)
	TransferAdmin(ctx context.Context, caller, newAdmin string) error
	RegistrySettings(ctx context.Context) (stakingCurrency string, minStake int64, err error)
}

// Server wires the HTTP surface to the settlement services. Handlers only
// translate between JSON and the domain types; every rule lives below.
type Server struct {
	accountService accountService
	dealService    dealService
	dealReader     dealReader
	disputeService disputeService
	arbiterService arbiterService
	adminService   adminService
	listDisputes   func(ctx context.Context, openOnly bool) ([]dispute.Record, error)
	log            *zap.SugaredLogger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)

	mux.HandleFunc("/api/deals", s.requireAuth(s.handleDeals))
	mux.HandleFunc("/api/deals/", s.requireAuth(s.handleDealDetail))
	mux.HandleFunc("/api/disputes", s.requireAuth(s.handleDisputes))
	mux.HandleFunc("/api/arbiters", s.requireAuth(s.handleArbiters))
	mux.HandleFunc("/api/arbiters/", s.requireAuth(s.handleArbiterDetail))
	mux.HandleFunc("/api/admin", s.requireAuth(s.handleAdmin))
	mux.HandleFunc("/api/admin/transfer", s.requireAuth(s.handleAdminTransfer))

	return s.withRequestID(mux)
}

// withRequestID tags every request for log correlation.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// requireAuth verifies the bearer token and stores the caller's settlement
// address and role in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}

		address, role, err := s.accountService.VerifyToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyAddress, address)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func callerAddress(r *http.Request) string {
	addr, _ := r.Context().Value(ctxKeyAddress).(string)
	return addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type accountResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Address   string `json:"address"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toAccountResponse(a account.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Email:     a.Email,
		FullName:  a.FullName,
		Address:   a.Address,
		Role:      string(a.Role),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var req account.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
		return
	}

	acct, err := s.accountService.Register(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(*acct))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var req account.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
		return
	}

	result, err := s.accountService.Login(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   result.Token,
		"account": toAccountResponse(result.Account),
	})
}

type createDealRequest struct {
	RefID         string  `json:"refId"`
	Payee         string  `json:"payee"`
	Arbiter       string  `json:"arbiter"`
	Currency      string  `json:"currency"`
	Amount        int64   `json:"amount"`
	AttachedValue int64   `json:"attachedValue"`
	Milestones    []struct {
		Amount           int64  `json:"amount"`
		EndTime          string `json:"endTime"`
		RequiresApproval bool   `json:"requiresApproval"`
	} `json:"milestones"`
}

type milestoneResponse struct {
	Amount           int64  `json:"amount"`
	Released         bool   `json:"released"`
	EndTime          string `json:"endTime,omitempty"`
	RequiresApproval bool   `json:"requiresApproval"`
}

type dealResponse struct {
	ID              int64               `json:"id"`
	RefID           string              `json:"refId"`
	Payer           string              `json:"payer"`
	Payee           string              `json:"payee"`
	Arbiter         string              `json:"arbiter"`
	Currency        string              `json:"currency"`
	RemainingAmount int64               `json:"remainingAmount"`
	Status          string              `json:"status"`
	Resolved        bool                `json:"resolved"`
	Ruling          string              `json:"ruling"`
	CreatedAt       string              `json:"createdAt"`
	Milestones      []milestoneResponse `json:"milestones"`
}

func toDealResponse(d deal.Deal) dealResponse {
	resp := dealResponse{
		ID:              d.ID,
		RefID:           d.RefID,
		Payer:           d.Payer,
		Payee:           d.Payee,
		Arbiter:         d.Arbiter,
		Currency:        d.Currency,
		RemainingAmount: d.RemainingAmount,
		Status:          d.Status.String(),
		Resolved:        d.Resolved,
		Ruling:          d.Ruling.String(),
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
		Milestones:      make([]milestoneResponse, 0, len(d.Milestones)),
	}
	for _, m := range d.Milestones {
		resp.Milestones = append(resp.Milestones, toMilestoneResponse(m))
	}
	return resp
}

func toMilestoneResponse(m deal.Milestone) milestoneResponse {
	out := milestoneResponse{
		Amount:           m.Amount,
		Released:         m.Released,
		RequiresApproval: m.RequiresApproval,
	}
	if m.EndTime != nil {
		out.EndTime = m.EndTime.Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
		return
	}

	params := deal.CreateParams{
		RefID:         req.RefID,
		Payee:         req.Payee,
		Arbiter:       req.Arbiter,
		Currency:      req.Currency,
		Amount:        req.Amount,
		AttachedValue: req.AttachedValue,
	}
	if params.RefID == "" {
		params.RefID = uuid.NewString()
	}
	if params.Currency == "" {
		params.Currency = token.Native
	}
	for _, m := range req.Milestones {
		params.MilestoneAmounts = append(params.MilestoneAmounts, m.Amount)
		params.MilestoneApprovals = append(params.MilestoneApprovals, m.RequiresApproval)
		if m.EndTime == "" {
			params.MilestoneEndTimes = append(params.MilestoneEndTimes, nil)
			continue
		}
		endTime, err := time.Parse(time.RFC3339, m.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid milestone endTime")
			return
		}
		params.MilestoneEndTimes = append(params.MilestoneEndTimes, &endTime)
	}

	dealID, err := s.dealService.Create(r.Context(), callerAddress(r), params)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": dealID, "refId": params.RefID})
}

// handleDealDetail dispatches /api/deals/{id}[/...] to the per-deal
// operations.
func (s *Server) handleDealDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/deals/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "BAD_INDEX", "missing deal id")
		return
	}
	dealID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_INDEX", "deal id must be an integer")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleGetDeal(w, r, dealID)
	case len(parts) == 2 && parts[1] == "dispute":
		s.handleRaiseDispute(w, r, dealID)
	case len(parts) == 2 && parts[1] == "resolve":
		s.handleResolve(w, r, dealID)
	case len(parts) >= 3 && parts[1] == "milestones":
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_INDEX", "milestone index must be an integer")
			return
		}
		if len(parts) == 3 {
			s.handleGetMilestone(w, r, dealID, index)
			return
		}
		if len(parts) == 4 && parts[3] == "release" {
			s.handleRelease(w, r, dealID, index)
			return
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request, dealID int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}
	d, err := s.dealReader.Get(r.Context(), dealID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealResponse(d))
}

func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request, dealID int64, index int) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}
	m, err := s.dealReader.GetMilestone(r.Context(), dealID, index)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneResponse(m))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, dealID int64, index int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}
	result, err := s.dealService.ReleaseMilestone(r.Context(), callerAddress(r), dealID, index)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payout": result.Payout,
		"fee":    result.Fee,
		"status": result.Status.String(),
	})
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request, dealID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}
	if err := s.dealService.RaiseDispute(r.Context(), callerAddress(r), dealID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": deal.StatusDisputed.String()})
}

type resolveRequest struct {
	PayerShare int64 `json:"payerShare"`
	PayeeShare int64 `json:"payeeShare"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, dealID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
		return
	}
	res, err := s.disputeService.Resolve(r.Context(), callerAddress(r), dealID, req.PayerShare, req.PayeeShare)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payerAmount": res.NetPayer,
		"payeeAmount": res.NetPayee,
		"arbiterFee":  res.Fee,
		"ruling":      res.Ruling.String(),
	})
}

type disputeResponse struct {
	DealID    int64  `json:"dealId"`
	Payer     string `json:"payer"`
	Payee     string `json:"payee"`
	Arbiter   string `json:"arbiter"`
	Status    string `json:"status"`
	Resolved  bool   `json:"resolved"`
	Ruling    string `json:"ruling"`
	UpdatedAt string `json:"updatedAt"`
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}
	openOnly := r.URL.Query().Get("open") == "true"
	records, err := s.listDisputes(r.Context(), openOnly)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, disputeResponse{
			DealID:    rec.DealID,
			Payer:     rec.Payer,
			Payee:     rec.Payee,
			Arbiter:   rec.Arbiter,
			Status:    rec.Status.String(),
			Resolved:  rec.Resolved,
			Ruling:    rec.Ruling.String(),
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type arbiterResponse struct {
	Address          string `json:"address"`
	Stake            int64  `json:"stake"`
	Reputation       int    `json:"reputation"`
	DisputesResolved int    `json:"disputesResolved"`
	Active           bool   `json:"active"`
}

func toArbiterResponse(p arbiter.Profile) arbiterResponse {
	return arbiterResponse{
		Address:          p.Address,
		Stake:            p.Stake,
		Reputation:       p.Reputation,
		DisputesResolved: p.DisputesResolved,
		Active:           p.Active,
	}
}

type stakeRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleArbiters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}
	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
		return
	}
	profile, err := s.arbiterService.Register(r.Context(), callerAddress(r), req.Amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toArbiterResponse(profile))
}

type slashRequest struct {
	Amount int64 `json:"amount"`
	Reason int   `json:"reason"`
}

// handleArbiterDetail serves /api/arbiters/{address} and
// /api/arbiters/{address}/slash.
func (s *Server) handleArbiterDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/arbiters/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "ZERO_ADDRESS", "missing arbiter address")
		return
	}
	address := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		profile, err := s.arbiterService.Status(r.Context(), address)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toArbiterResponse(profile))
	case len(parts) == 2 && parts[1] == "slash":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
			return
		}
		var req slashRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
			return
		}
		profile, err := s.arbiterService.Slash(r.Context(), callerAddress(r), address, req.Amount, arbiter.SlashReason(req.Reason))
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toArbiterResponse(profile))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}
	adminAddr, err := s.adminService.Admin(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	currency, minStake, err := s.adminService.RegistrySettings(r.Context())
	if err != nil && !errors.Is(err, admin.ErrNotInitialized) {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"admin":           adminAddr,
		"stakingCurrency": currency,
		"minStake":        minStake,
	})
}

type transferAdminRequest struct {
	NewAdmin string `json:"newAdmin"`
}

func (s *Server) handleAdminTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}
	var req transferAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid request body")
		return
	}
	if err := s.adminService.TransferAdmin(r.Context(), callerAddress(r), req.NewAdmin); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"admin": req.NewAdmin})
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}

// writeDomainError maps domain sentinels to their stable short codes. Unknown
// errors are logged and surfaced as opaque 500s.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, deal.ErrNotFound), errors.Is(err, arbiter.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, deal.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "NOT_AUTHORIZED", err.Error())
	case errors.Is(err, admin.ErrNotAdmin):
		writeError(w, http.StatusForbidden, "NOT_ADMIN", err.Error())
	case errors.Is(err, dispute.ErrNotArbiter):
		writeError(w, http.StatusForbidden, "NOT_ARBITER", err.Error())
	case errors.Is(err, deal.ErrBadStatus), errors.Is(err, dispute.ErrNotDisputed):
		writeError(w, http.StatusConflict, "BAD_STATUS", err.Error())
	case errors.Is(err, deal.ErrAlreadyReleased):
		writeError(w, http.StatusConflict, "ALREADY_RELEASED", err.Error())
	case errors.Is(err, dispute.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, deal.ErrTimeLocked):
		writeError(w, http.StatusConflict, "TIME_LOCKED", err.Error())
	case errors.Is(err, deal.ErrBadIndex):
		writeError(w, http.StatusBadRequest, "BAD_INDEX", err.Error())
	case errors.Is(err, deal.ErrZeroAmount), errors.Is(err, arbiter.ErrBadAmount), errors.Is(err, dispute.ErrBadShare):
		writeError(w, http.StatusBadRequest, "ZERO_AMOUNT", err.Error())
	case errors.Is(err, deal.ErrZeroAddress), errors.Is(err, admin.ErrZeroAddress):
		writeError(w, http.StatusBadRequest, "ZERO_ADDRESS", err.Error())
	case errors.Is(err, deal.ErrLengthMismatch):
		writeError(w, http.StatusBadRequest, "LENGTH_MISMATCH", err.Error())
	case errors.Is(err, deal.ErrNoMilestones):
		writeError(w, http.StatusBadRequest, "NO_MILESTONES", err.Error())
	case errors.Is(err, deal.ErrSumMismatch):
		writeError(w, http.StatusBadRequest, "SUM_MISMATCH", err.Error())
	case errors.Is(err, deal.ErrValueMismatch):
		writeError(w, http.StatusBadRequest, "VALUE_MISMATCH", err.Error())
	case errors.Is(err, dispute.ErrOverRemaining):
		writeError(w, http.StatusBadRequest, "OVER_REMAINING", err.Error())
	case errors.Is(err, arbiter.ErrLowStake):
		writeError(w, http.StatusBadRequest, "LOW_STAKE", err.Error())
	case errors.Is(err, deal.ErrTransferFailed), errors.Is(err, arbiter.ErrTransferFailed),
		errors.Is(err, token.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "TRANSFER_FAILED", err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, account.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
	case errors.Is(err, account.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "DUPLICATE_EMAIL", err.Error())
	default:
		requestID, _ := r.Context().Value(ctxKeyRequestID).(string)
		if s.log != nil {
			s.log.Errorw("unhandled error", "path", r.URL.Path, "request_id", requestID, "err", err)
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

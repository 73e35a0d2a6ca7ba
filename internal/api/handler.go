package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/rules"
	"github.com/opensource-finance/kite/internal/session"
	"github.com/opensource-finance/kite/internal/verify"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	engine       *rules.Engine
	orchestrator *session.Orchestrator
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, orchestrator *session.Orchestrator, version string) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		engine:       engine,
		orchestrator: orchestrator,
		version:      version,
	}
}

// AssessRequest is the request body for POST /assess and POST /verify.
type AssessRequest struct {
	Amount   float64 `json:"amount"`
	Location string  `json:"location"`
	Merchant int     `json:"merchantCategory"`

	// Answers supplies verification challenge responses. Keys are challenge
	// field names: surname, dob, securityCode, pin, factorChoice. Only used
	// by POST /verify.
	Answers map[string]string `json:"answers,omitempty"`
}

// AssessResponse is the response for POST /assess and POST /verify.
type AssessResponse struct {
	Transaction *domain.Transaction    `json:"transaction,omitempty"`
	Assessment  *domain.RiskAssessment `json:"assessment,omitempty"`

	AutoApproved bool `json:"autoApproved,omitempty"`

	VerificationRequired bool                    `json:"verificationRequired"`
	Tier                 domain.VerificationTier `json:"tier,omitempty"`
	VerificationPassed   bool                    `json:"verificationPassed,omitempty"`
	PendingVerification  bool                    `json:"pendingVerification,omitempty"`

	AccountStatus domain.AccountStatus `json:"accountStatus,omitempty"`
	Halted        bool                 `json:"halted,omitempty"`
	Messages      []string             `json:"messages,omitempty"`

	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Assess handles POST /assess requests. Verification challenges cannot be
// answered over a one-shot HTTP call, so a submission that trips the
// verification trigger comes back pending with the selected tier; the caller
// re-submits it to POST /verify with answers.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, false)
}

// Verify handles POST /verify requests: the same submission as POST /assess
// plus the challenge answers for the selected tier.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, true)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, withResponder bool) {
	start := time.Now()
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	traceID := GetTraceID(ctx)

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	sub := &session.Submission{
		AccountID: accountID,
		Amount:    req.Amount,
		Location:  req.Location,
		Merchant:  domain.MerchantCategory(req.Merchant),
		TraceID:   traceID,
	}
	if withResponder {
		answers := make(map[domain.ChallengeField]string, len(req.Answers))
		for field, answer := range req.Answers {
			answers[domain.ChallengeField(field)] = answer
		}
		sub.Responder = &verify.MapResponder{Answers: answers}
	}

	result, err := h.orchestrator.Process(ctx, sub)
	switch {
	case errors.Is(err, session.ErrAccountHalted):
		resp := &AssessResponse{
			AccountStatus: result.AccountStatus,
			Halted:        true,
		}
		resp.Metadata.TraceID = traceID
		resp.Metadata.TotalMs = time.Since(start).Milliseconds()
		resp.Metadata.Version = h.version
		writeJSON(w, http.StatusLocked, resp)
		return
	case errors.Is(err, session.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	case err != nil:
		slog.Error("submission processing failed",
			"account_id", accountID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to process submission",
		})
		return
	}

	resp := &AssessResponse{
		Transaction:          result.Transaction,
		Assessment:           result.Assessment,
		AutoApproved:         result.AutoApproved,
		VerificationRequired: result.VerificationRequired,
		Tier:                 result.Tier,
		VerificationPassed:   result.VerificationPassed,
		PendingVerification:  result.PendingVerification,
		AccountStatus:        result.AccountStatus,
		Halted:               result.Halted,
		Messages:             result.Messages,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	status := http.StatusOK
	if result.PendingVerification {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAssessment retrieves an assessment by ID, preferring the cache.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	assessmentID := chi.URLParam(r, "id")

	if assessmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.cache != nil {
		if a, err := h.cache.GetAssessment(ctx, accountID, assessmentID); err == nil && a != nil {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, accountID, assessmentID)
	if err != nil {
		slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, accountID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetAccount returns the escalation state for an account. The path account
// must match the authenticated account header.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := GetAccountID(ctx)
	pathID := chi.URLParam(r, "id")

	if pathID != accountID {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": "account id mismatch",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	state, err := h.repo.GetAccountState(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		// Unknown accounts are active with no history
		writeJSON(w, http.StatusOK, domain.NewAccountState(accountID))
		return
	}
	if err != nil {
		slog.Error("failed to get account state", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load account state",
		})
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	// Return rules currently loaded in the engine (sourced from database)
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	// Check rules loaded in the engine (from database)
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Reason      string  `json:"reason,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Weight:      req.Weight,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

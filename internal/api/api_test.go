package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/opensource-finance/kite/internal/bus"
	"github.com/opensource-finance/kite/internal/cache"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/geo"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/rules"
	"github.com/opensource-finance/kite/internal/session"
	"github.com/opensource-finance/kite/internal/velocity"
	"github.com/opensource-finance/kite/internal/verify"
)

var accountSeq atomic.Int64

// nextAccountID returns a fresh account so velocity and escalation state
// never leak between subtests.
func nextAccountID() string {
	return fmt.Sprintf("acct-%03d", accountSeq.Add(1))
}

// newTestServer wires a server against a temp SQLite database, in-memory
// cache and channel bus.
//
// The handler stamps submissions with the wall clock, so fixtures stay on the
// "ab" home region and keep amounts far enough from the decision and
// verification cutoffs that the late-night factor cannot flip an expected
// status.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kite.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })

	engine, err := rules.NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	resolver, err := geo.NewResolver()
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	verifier := verify.New(domain.SimCredentials())
	vel := velocity.NewService(repo, c)
	orch := session.New(repo, c, b, engine, resolver, verifier, vel)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, repo, c, b, engine, orch, "test-v1")
}

func postJSON(t *testing.T, server *Server, path, accountID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		req.Header.Set(AccountIDHeader, accountID)
	}
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestAssessEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("AutoApproved", func(t *testing.T) {
		accountID := nextAccountID()
		rr := postJSON(t, server, "/assess", accountID, AssessRequest{
			Amount:   100,
			Location: "Calgary, AB",
			Merchant: 1,
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.AutoApproved {
			t.Error("expected autoApproved")
		}
		if resp.Assessment == nil || resp.Assessment.Decision != domain.DecisionApproved {
			t.Errorf("expected APPROVED assessment, got %+v", resp.Assessment)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("ApprovedWithoutVerification", func(t *testing.T) {
		accountID := nextAccountID()
		rr := postJSON(t, server, "/assess", accountID, AssessRequest{
			Amount:   800,
			Location: "Calgary, AB",
			Merchant: 1,
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.VerificationRequired {
			t.Error("did not expect verification for low-risk submission")
		}
		if resp.Assessment == nil || resp.Assessment.Score >= 0.50 {
			t.Errorf("unexpected assessment: %+v", resp.Assessment)
		}
	})

	t.Run("PendingVerification", func(t *testing.T) {
		accountID := nextAccountID()
		rr := postJSON(t, server, "/assess", accountID, AssessRequest{
			Amount:   1500,
			Location: "Calgary, AB",
			Merchant: 1,
		})

		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.VerificationRequired || !resp.PendingVerification {
			t.Errorf("expected pending verification, got %+v", resp)
		}
		if resp.Tier != domain.TierPINOnly {
			t.Errorf("expected PIN_ONLY tier, got %s", resp.Tier)
		}

		// Nothing was persisted for a pending submission
		req := httptest.NewRequest(http.MethodGet, "/transactions/"+resp.Transaction.ID, nil)
		req.Header.Set(AccountIDHeader, accountID)
		rr2 := httptest.NewRecorder()
		server.Router().ServeHTTP(rr2, req)
		if rr2.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unpersisted transaction, got %d", rr2.Code)
		}
	})

	t.Run("MissingAccountID", func(t *testing.T) {
		rr := postJSON(t, server, "/assess", "", AssessRequest{Amount: 100})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(AccountIDHeader, nextAccountID())

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		rr := postJSON(t, server, "/assess", nextAccountID(), AssessRequest{
			Amount:   -50,
			Location: "Calgary, AB",
			Merchant: 1,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := postJSON(t, server, "/assess", nextAccountID(), AssessRequest{
			Amount:   100,
			Location: "Calgary, AB",
			Merchant: 1,
		})

		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestVerifyEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("VerificationPassed", func(t *testing.T) {
		accountID := nextAccountID()
		rr := postJSON(t, server, "/verify", accountID, AssessRequest{
			Amount:   1500,
			Location: "Calgary, AB",
			Merchant: 1,
			Answers:  map[string]string{"pin": "1234"},
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.VerificationRequired || !resp.VerificationPassed {
			t.Errorf("expected passed verification, got %+v", resp)
		}
		if resp.Assessment == nil || resp.Assessment.Decision == domain.DecisionDeclined {
			t.Errorf("unexpected assessment: %+v", resp.Assessment)
		}

		// Persisted assessment is retrievable
		req := httptest.NewRequest(http.MethodGet, "/assessments/"+resp.Assessment.ID, nil)
		req.Header.Set(AccountIDHeader, accountID)
		rr2 := httptest.NewRecorder()
		server.Router().ServeHTTP(rr2, req)
		if rr2.Code != http.StatusOK {
			t.Errorf("expected 200 for persisted assessment, got %d", rr2.Code)
		}
	})

	t.Run("VerificationFailed", func(t *testing.T) {
		accountID := nextAccountID()
		rr := postJSON(t, server, "/verify", accountID, AssessRequest{
			Amount:   1500,
			Location: "Calgary, AB",
			Merchant: 1,
			Answers:  map[string]string{"pin": "9999"},
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp AssessResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.VerificationPassed {
			t.Error("expected failed verification")
		}
		if resp.Assessment == nil || resp.Assessment.Decision != domain.DecisionDeclined {
			t.Errorf("expected DECLINED assessment, got %+v", resp.Assessment)
		}
	})

	t.Run("FreezeAfterRepeatedFailures", func(t *testing.T) {
		accountID := nextAccountID()

		var last AssessResponse
		for i := 0; i < 5; i++ {
			rr := postJSON(t, server, "/verify", accountID, AssessRequest{
				Amount:   1500,
				Location: "Calgary, AB",
				Merchant: 1,
				Answers:  map[string]string{"pin": "0000"},
			})
			if rr.Code != http.StatusOK {
				t.Fatalf("attempt %d: expected 200, got %d: %s", i+1, rr.Code, rr.Body.String())
			}
			last = AssessResponse{}
			json.Unmarshal(rr.Body.Bytes(), &last)
		}

		if !last.Halted || last.AccountStatus != domain.AccountFrozen {
			t.Errorf("expected frozen account after 5 failures, got %+v", last)
		}

		// Further submissions are rejected
		rr := postJSON(t, server, "/assess", accountID, AssessRequest{
			Amount:   100,
			Location: "Calgary, AB",
			Merchant: 1,
		})
		if rr.Code != http.StatusLocked {
			t.Errorf("expected status 423 for halted account, got %d", rr.Code)
		}
	})
}

func TestAccountEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("UnknownAccountIsActive", func(t *testing.T) {
		accountID := nextAccountID()
		req := httptest.NewRequest(http.MethodGet, "/accounts/"+accountID, nil)
		req.Header.Set(AccountIDHeader, accountID)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var state domain.AccountState
		json.Unmarshal(rr.Body.Bytes(), &state)
		if state.Status != domain.AccountActive {
			t.Errorf("expected ACTIVE, got %s", state.Status)
		}
	})

	t.Run("AccountMismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/accounts/other-account", nil)
		req.Header.Set(AccountIDHeader, nextAccountID())

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := newTestServer(t)
	accountID := nextAccountID()

	t.Run("CreateAndReload", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", accountID, CreateRuleRequest{
			ID:         "rule-gift-cards",
			Name:       "Gift card watch",
			Expression: `merchant == "Gift Cards / Crypto / Reloadables" ? 1.0 : 0.0`,
			Weight:     0.2,
			Reason:     "Gift card purchase pattern",
			Enabled:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		// Not in the engine until reloaded
		req := httptest.NewRequest(http.MethodGet, "/rules/rule-gift-cards", nil)
		req.Header.Set(AccountIDHeader, accountID)
		rr2 := httptest.NewRecorder()
		server.Router().ServeHTTP(rr2, req)
		if rr2.Code != http.StatusNotFound {
			t.Errorf("expected 404 before reload, got %d", rr2.Code)
		}

		rr3 := postJSON(t, server, "/rules/reload", accountID, struct{}{})
		if rr3.Code != http.StatusOK {
			t.Fatalf("expected status 200 on reload, got %d: %s", rr3.Code, rr3.Body.String())
		}

		rr4 := httptest.NewRecorder()
		server.Router().ServeHTTP(rr4, req)
		if rr4.Code != http.StatusOK {
			t.Errorf("expected 200 after reload, got %d", rr4.Code)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", accountID, CreateRuleRequest{
			ID:         "rule-bad",
			Name:       "Broken",
			Expression: "amount >",
			Weight:     0.2,
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", accountID, CreateRuleRequest{ID: "x"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("AccountMiddlewareExtractsID", func(t *testing.T) {
		var capturedAccountID string

		handler := AccountMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedAccountID = GetAccountID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(AccountIDHeader, "my-account-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedAccountID != "my-account-123" {
			t.Errorf("expected account ID 'my-account-123', got '%s'", capturedAccountID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

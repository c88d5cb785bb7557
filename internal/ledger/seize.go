package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/stake-ledger/internal/account"
	"github.com/atmx/stake-ledger/internal/metrics"
	"github.com/atmx/stake-ledger/internal/model"
	"github.com/atmx/stake-ledger/internal/store"
)

// SeizeRequest is the JSON body for POST /api/v1/enforcement/seize.
// DecisionID ties the seizure back to the enforcement decision that
// ordered it.
type SeizeRequest struct {
	Account    string          `json:"account"`
	Amount     decimal.Decimal `json:"amount"` // base units
	DecisionID string          `json:"decision_id"`
}

// SeizeResponse is returned from POST /api/v1/enforcement/seize.
// Applied is what was actually taken: min(requested, principal), zero
// when no position exists. A short application is reported, never an
// error.
type SeizeResponse struct {
	Account     string          `json:"account"`
	Requested   decimal.Decimal `json:"requested"`
	Applied     decimal.Decimal `json:"applied"`
	Partial     bool            `json:"partial"`
	Principal   decimal.Decimal `json:"principal"`
	TotalStaked decimal.Decimal `json:"total_staked"`
}

// Seize handles POST /api/v1/enforcement/seize. Only the configured
// enforcement identity may call it; seized value is routed to the sink.
func (s *Service) Seize(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedEnforcer(r) {
		writeError(w, ErrNotAuthorized.Error(), http.StatusForbidden)
		return
	}

	var req SeizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, err := account.Normalize(req.Account)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validAmount(req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	pos, err := s.store.GetPosition(ctx, acct)
	if errors.Is(err, store.ErrPositionNotFound) {
		// No position: seize nothing and record the no-op so the
		// enforcement decision still leaves an audit trace.
		s.appendAudit(ctx, model.ActionSeize, acct, "enforcer", req.Amount, decimal.Zero, true, req.DecisionID)
		metrics.SeizuresTotal.WithLabelValues("noop").Inc()

		slog.Info("seizure no-op, no active position",
			"account", acct,
			"requested", req.Amount.String(),
			"decision_id", req.DecisionID,
		)

		writeJSON(w, http.StatusOK, SeizeResponse{
			Account:     acct,
			Requested:   req.Amount,
			Applied:     decimal.Zero,
			Partial:     true,
			Principal:   decimal.Zero,
			TotalStaked: s.totalStaked,
		})
		return
	}
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}

	// Partial application: take min(requested, principal). The cooldown
	// queue is a subset of principal, so it never adds to what is
	// seizable.
	applied := req.Amount
	if applied.GreaterThan(pos.Principal) {
		applied = pos.Principal
	}
	partial := applied.LessThan(req.Amount)

	pos.Principal = pos.Principal.Sub(applied)
	cooldownReduced := decimal.Zero
	if pos.CooldownAmount.GreaterThan(pos.Principal) {
		cooldownReduced = pos.CooldownAmount.Sub(pos.Principal)
		pos.CooldownAmount = pos.Principal
		if pos.CooldownAmount.IsZero() {
			pos.CooldownStart = time.Time{}
		}
	}
	s.refreshMultiplier(pos)
	pos.UpdatedAt = now

	if err := s.persistOrDrop(ctx, pos); err != nil {
		writeError(w, "failed to save position", http.StatusInternalServerError)
		return
	}
	if err := s.vault.RouteToSink(applied); err != nil {
		writeError(w, "failed to route seized value", http.StatusInternalServerError)
		return
	}
	s.totalStaked = s.totalStaked.Sub(applied)
	s.totalCooldown = s.totalCooldown.Sub(cooldownReduced)

	s.appendAudit(ctx, model.ActionSeize, acct, "enforcer", req.Amount, applied, partial, req.DecisionID)
	s.publishGauges()

	outcome := "full"
	if partial {
		outcome = "partial"
	}
	metrics.SeizuresTotal.WithLabelValues(outcome).Inc()

	slog.Info("seizure applied",
		"account", acct,
		"requested", req.Amount.String(),
		"applied", applied.String(),
		"partial", partial,
		"decision_id", req.DecisionID,
		"total_staked", s.totalStaked.String(),
	)

	writeJSON(w, http.StatusOK, SeizeResponse{
		Account:     acct,
		Requested:   req.Amount,
		Applied:     applied,
		Partial:     partial,
		Principal:   pos.Principal,
		TotalStaked: s.totalStaked,
	})
}

// authorizedEnforcer checks the bearer token against the configured
// enforcement identity. An empty configured token disables seizures.
func (s *Service) authorizedEnforcer(r *http.Request) bool {
	if s.enforcerToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.enforcerToken
}

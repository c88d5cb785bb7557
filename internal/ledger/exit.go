package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/stake-ledger/internal/account"
	"github.com/atmx/stake-ledger/internal/exitstate"
	"github.com/atmx/stake-ledger/internal/model"
	"github.com/atmx/stake-ledger/internal/multiplier"
	"github.com/atmx/stake-ledger/internal/store"
)

// ExitRequest is the JSON body shared by the exit endpoints.
type ExitRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"` // base units
}

// ExitResponse is returned from the exit endpoints.
type ExitResponse struct {
	Account        string          `json:"account"`
	Amount         decimal.Decimal `json:"amount"`
	Released       decimal.Decimal `json:"released"`
	Penalty        decimal.Decimal `json:"penalty"`
	Principal      decimal.Decimal `json:"principal"`
	CooldownAmount decimal.Decimal `json:"cooldown_amount"`
	ReadyAt        *time.Time      `json:"ready_at,omitempty"`
	TotalStaked    decimal.Decimal `json:"total_staked"`
}

// InitiateExit handles POST /api/v1/exit/initiate: queues an amount for
// exit and starts (or restarts) the cooldown clock. Initiating again
// while a cooldown is already running adds to the queued amount and
// resets the clock for the whole queue.
func (s *Service) InitiateExit(w http.ResponseWriter, r *http.Request) {
	req, acct, ok := s.decodeExit(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetPosition(ctx, acct)
	if errors.Is(err, store.ErrPositionNotFound) {
		writeError(w, "no active position", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}

	now := s.now()
	if err := exitstate.CanInitiate(pos, now, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	pos.CooldownAmount = pos.CooldownAmount.Add(req.Amount)
	pos.CooldownStart = now
	pos.UpdatedAt = now

	if err := s.store.SavePosition(ctx, pos); err != nil {
		writeError(w, "failed to save position", http.StatusInternalServerError)
		return
	}
	s.totalCooldown = s.totalCooldown.Add(req.Amount)

	s.appendAudit(ctx, model.ActionInitiateExit, acct, acct, req.Amount, req.Amount, false, "")
	s.publishGauges()

	readyAt := pos.CooldownStart.Add(s.params.CooldownPeriod)

	slog.Info("exit initiated",
		"account", acct,
		"amount", req.Amount.String(),
		"cooldown_amount", pos.CooldownAmount.String(),
		"ready_at", readyAt,
	)

	writeJSON(w, http.StatusOK, ExitResponse{
		Account:        acct,
		Amount:         req.Amount,
		Released:       decimal.Zero,
		Penalty:        decimal.Zero,
		Principal:      pos.Principal,
		CooldownAmount: pos.CooldownAmount,
		ReadyAt:        &readyAt,
		TotalStaked:    s.totalStaked,
	})
}

// Withdraw handles POST /api/v1/exit/withdraw: releases an amount whose
// cooldown has fully elapsed. No penalty applies.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, acct, ok := s.decodeExit(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetPosition(ctx, acct)
	if errors.Is(err, store.ErrPositionNotFound) {
		writeError(w, "no active position", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}

	now := s.now()
	if err := exitstate.CanWithdraw(pos, now, s.params.CooldownPeriod, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	pos.Principal = pos.Principal.Sub(req.Amount)
	pos.CooldownAmount = pos.CooldownAmount.Sub(req.Amount)
	if pos.CooldownAmount.IsZero() {
		pos.CooldownStart = time.Time{}
	}
	s.refreshMultiplier(pos)
	pos.UpdatedAt = now

	if err := s.persistOrDrop(ctx, pos); err != nil {
		writeError(w, "failed to save position", http.StatusInternalServerError)
		return
	}
	if err := s.vault.Release(req.Amount); err != nil {
		writeError(w, "failed to release custody", http.StatusInternalServerError)
		return
	}
	s.totalStaked = s.totalStaked.Sub(req.Amount)
	s.totalCooldown = s.totalCooldown.Sub(req.Amount)

	s.appendAudit(ctx, model.ActionWithdraw, acct, acct, req.Amount, req.Amount, false, "")
	s.publishGauges()

	slog.Info("withdrawal released",
		"account", acct,
		"amount", req.Amount.String(),
		"principal", pos.Principal.String(),
		"total_staked", s.totalStaked.String(),
	)

	writeJSON(w, http.StatusOK, ExitResponse{
		Account:        acct,
		Amount:         req.Amount,
		Released:       req.Amount,
		Penalty:        decimal.Zero,
		Principal:      pos.Principal,
		CooldownAmount: pos.CooldownAmount,
		TotalStaked:    s.totalStaked,
	})
}

// EarlyExit handles POST /api/v1/exit/early: releases an amount
// immediately, bypassing lockup and cooldown, with the penalty share
// routed to the sink. The penalty rounds down, so the account never
// pays more than the configured rate.
func (s *Service) EarlyExit(w http.ResponseWriter, r *http.Request) {
	req, acct, ok := s.decodeExit(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetPosition(ctx, acct)
	if errors.Is(err, store.ErrPositionNotFound) {
		writeError(w, "no active position", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}

	if err := exitstate.CanEarlyExit(pos, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// penalty = amount · rate / 10000, floored to whole base units.
	penalty := req.Amount.Mul(decimal.NewFromInt(s.params.PenaltyRateBP)).
		Div(decimal.NewFromInt(multiplier.BasisPoints)).Floor()
	released := req.Amount.Sub(penalty)

	now := s.now()
	pos.Principal = pos.Principal.Sub(req.Amount)
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
	if released.IsPositive() {
		if err := s.vault.Release(released); err != nil {
			writeError(w, "failed to release custody", http.StatusInternalServerError)
			return
		}
	}
	if penalty.IsPositive() {
		if err := s.vault.RouteToSink(penalty); err != nil {
			writeError(w, "failed to route penalty", http.StatusInternalServerError)
			return
		}
	}
	s.totalStaked = s.totalStaked.Sub(req.Amount)
	s.totalCooldown = s.totalCooldown.Sub(cooldownReduced)

	s.appendAudit(ctx, model.ActionEarlyExit, acct, acct, req.Amount, req.Amount, false, "")
	s.publishGauges()

	slog.Info("early exit applied",
		"account", acct,
		"amount", req.Amount.String(),
		"released", released.String(),
		"penalty", penalty.String(),
		"total_staked", s.totalStaked.String(),
	)

	writeJSON(w, http.StatusOK, ExitResponse{
		Account:        acct,
		Amount:         req.Amount,
		Released:       released,
		Penalty:        penalty,
		Principal:      pos.Principal,
		CooldownAmount: pos.CooldownAmount,
		TotalStaked:    s.totalStaked,
	})
}

// decodeExit decodes and validates the shared exit request fields.
func (s *Service) decodeExit(w http.ResponseWriter, r *http.Request) (ExitRequest, string, bool) {
	var req ExitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return req, "", false
	}

	acct, err := account.Normalize(req.Account)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return req, "", false
	}
	if err := validAmount(req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return req, "", false
	}
	return req, acct, true
}

// persistOrDrop saves the position, or deletes it once the principal
// reaches zero. An account with nothing staked has no position.
func (s *Service) persistOrDrop(ctx context.Context, pos *model.Position) error {
	if pos.Principal.IsZero() {
		if err := s.store.DeletePosition(ctx, pos.Account); err != nil {
			return err
		}
		s.positions--
		return nil
	}
	return s.store.SavePosition(ctx, pos)
}

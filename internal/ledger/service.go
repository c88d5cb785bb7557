// Package ledger provides the HTTP handlers and business logic for the
// stake ledger: opening and topping up positions, lockup extension, the
// exit flow, penalty enforcement, and read-only query projections.
//
// All token amounts use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/stake-ledger/internal/account"
	"github.com/atmx/stake-ledger/internal/custody"
	"github.com/atmx/stake-ledger/internal/exitstate"
	"github.com/atmx/stake-ledger/internal/metrics"
	"github.com/atmx/stake-ledger/internal/model"
	"github.com/atmx/stake-ledger/internal/multiplier"
	"github.com/atmx/stake-ledger/internal/store"
)

var (
	// ErrNonPositiveAmount is returned for zero or negative amounts, or
	// amounts that are not whole base units.
	ErrNonPositiveAmount = errors.New("ledger: amount must be a positive integer of base units")

	// ErrBelowMinimumStake is returned when a stake or top-up is below
	// the protocol minimum.
	ErrBelowMinimumStake = errors.New("ledger: amount below protocol minimum stake")

	// ErrUnsupportedDuration is returned when a requested or resulting
	// lockup duration falls outside the supported range.
	ErrUnsupportedDuration = errors.New("ledger: lockup duration outside supported range")

	// ErrBelowMinimumExtend is returned when a lockup extension is
	// shorter than the minimum increment.
	ErrBelowMinimumExtend = errors.New("ledger: extension below minimum increment")

	// ErrNotAuthorized is returned when the caller is not the designated
	// enforcement identity.
	ErrNotAuthorized = errors.New("ledger: caller is not the enforcement identity")
)

// Params holds the protocol parameters governing the exit flow.
type Params struct {
	CooldownPeriod time.Duration
	PenaltyRateBP  int64 // early-exit penalty, basis points of the exited amount
	MinExtend      int64 // minimum lockup extension, seconds
}

// DefaultParams returns the protocol defaults: 7-day cooldown, 20%
// early-exit penalty, 1-day minimum extension.
func DefaultParams() Params {
	return Params{
		CooldownPeriod: 7 * 24 * time.Hour,
		PenaltyRateBP:  2000,
		MinExtend:      int64(24 * time.Hour / time.Second),
	}
}

// Service handles ledger operations. Uses a mutex for serialized
// execution (single-instance): validation and mutation happen within the
// same atomic step, so no caller ever observes a partially-applied
// update. For horizontal scaling, replace with distributed locking or
// database-level optimistic concurrency.
type Service struct {
	store         store.Store
	engine        multiplier.Engine
	vault         *custody.Vault
	params        Params
	enforcerToken string

	mu            sync.Mutex
	totalStaked   decimal.Decimal
	totalCooldown decimal.Decimal
	positions     int

	wsHub *WSHub // optional WebSocket hub for audit broadcasts
	now   func() time.Time
}

// NewService creates a new ledger service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, eng multiplier.Engine, vault *custody.Vault, params Params, enforcerToken string, hub *WSHub) *Service {
	return &Service{
		store:         st,
		engine:        eng,
		vault:         vault,
		params:        params,
		enforcerToken: enforcerToken,
		totalStaked:   decimal.Zero,
		totalCooldown: decimal.Zero,
		wsHub:         hub,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Restore primes the in-memory counters and custody vault from the
// persisted positions. Call once at startup when using a durable store.
func (s *Service) Restore(ctx context.Context) error {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	cooldown := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Principal)
		cooldown = cooldown.Add(p.CooldownAmount)
	}
	s.totalStaked = total
	s.totalCooldown = cooldown
	s.positions = len(positions)

	if total.IsPositive() {
		if err := s.vault.Deposit(total); err != nil {
			return err
		}
	}
	s.publishGauges()
	return nil
}

// --- Request/Response types ---

// StakeRequest is the JSON body for POST /api/v1/stake. A first stake
// opens the position; a later one tops it up and re-weights it.
type StakeRequest struct {
	Account  string          `json:"account"`
	Amount   decimal.Decimal `json:"amount"`   // base units
	Duration int64           `json:"duration"` // requested lockup, seconds
}

// StakeResponse is returned from POST /api/v1/stake.
type StakeResponse struct {
	Account        string          `json:"account"`
	Principal      decimal.Decimal `json:"principal"`
	LockupDuration int64           `json:"lockup_duration"`
	Multiplier     int64           `json:"multiplier"`
	UnlockAt       time.Time       `json:"unlock_at"`
	TotalStaked    decimal.Decimal `json:"total_staked"`
}

// ExtendRequest is the JSON body for POST /api/v1/stake/extend.
type ExtendRequest struct {
	Account  string `json:"account"`
	Duration int64  `json:"duration"` // additional lockup, seconds
}

// --- HTTP Handlers ---

// Stake handles POST /api/v1/stake: opens a position on first deposit,
// re-weights it on top-up.
func (s *Service) Stake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
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
	if req.Amount.LessThan(s.engine.MinStake()) {
		writeError(w, ErrBelowMinimumStake.Error(), http.StatusBadRequest)
		return
	}
	if req.Duration < s.engine.MinDuration() || req.Duration > s.engine.MaxDuration() {
		writeError(w, ErrUnsupportedDuration.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize ledger mutation.
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	action := model.ActionStake

	pos, err := s.store.GetPosition(ctx, acct)
	switch {
	case errors.Is(err, store.ErrPositionNotFound):
		mult := s.engine.Multiplier(req.Amount, req.Duration)
		if mult == 0 {
			writeError(w, ErrUnsupportedDuration.Error(), http.StatusBadRequest)
			return
		}
		pos = &model.Position{
			Account:        acct,
			Principal:      req.Amount,
			LockupDuration: req.Duration,
			StartTime:      now,
			Multiplier:     mult,
			CooldownAmount: decimal.Zero,
			UpdatedAt:      now,
		}
	case err != nil:
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	default:
		action = model.ActionTopUp
		reweighted, ok := reweight(pos, req.Amount, req.Duration, now)
		if !ok {
			writeError(w, "internal error: re-weighted position invalid", http.StatusInternalServerError)
			return
		}
		mult := s.engine.Multiplier(reweighted.Principal, reweighted.LockupDuration)
		if mult == 0 {
			// The blended duration fell below the supported range —
			// the top-up does not carry enough commitment.
			writeError(w, ErrUnsupportedDuration.Error(), http.StatusConflict)
			return
		}
		reweighted.Multiplier = mult
		reweighted.UpdatedAt = now
		pos = reweighted
	}

	if err := s.store.SavePosition(ctx, pos); err != nil {
		writeError(w, "failed to save position", http.StatusInternalServerError)
		return
	}
	if action == model.ActionStake {
		s.positions++
	}
	if err := s.vault.Deposit(req.Amount); err != nil {
		writeError(w, "failed to move value into custody", http.StatusInternalServerError)
		return
	}
	s.totalStaked = s.totalStaked.Add(req.Amount)

	s.appendAudit(ctx, action, acct, acct, req.Amount, req.Amount, false, "")
	s.publishGauges()

	slog.Info("stake applied",
		"action", action,
		"account", acct,
		"amount", req.Amount.String(),
		"lockup_duration", pos.LockupDuration,
		"multiplier", pos.Multiplier,
		"total_staked", s.totalStaked.String(),
	)

	writeJSON(w, http.StatusOK, StakeResponse{
		Account:        acct,
		Principal:      pos.Principal,
		LockupDuration: pos.LockupDuration,
		Multiplier:     pos.Multiplier,
		UnlockAt:       pos.UnlockTime(),
		TotalStaked:    s.totalStaked,
	})
}

// ExtendLockup handles POST /api/v1/stake/extend.
// Extending a position queued for exit is not permitted.
func (s *Service) ExtendLockup(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, err := account.Normalize(req.Account)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Duration < s.params.MinExtend {
		writeError(w, ErrBelowMinimumExtend.Error(), http.StatusBadRequest)
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

	if err := exitstate.CanExtend(pos); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	mult := s.engine.Multiplier(pos.Principal, pos.LockupDuration+req.Duration)
	if mult == 0 {
		// Partial withdrawals can leave a residual principal below the
		// protocol minimum; such a position can only exit, not extend.
		writeError(w, ErrBelowMinimumStake.Error(), http.StatusConflict)
		return
	}

	now := s.now()
	pos.LockupDuration += req.Duration
	pos.Multiplier = mult
	pos.UpdatedAt = now

	if err := s.store.SavePosition(ctx, pos); err != nil {
		writeError(w, "failed to save position", http.StatusInternalServerError)
		return
	}

	// For extensions the requested/applied fields carry the added
	// duration in seconds, so the trail reconstructs the mutation.
	added := decimal.NewFromInt(req.Duration)
	s.appendAudit(ctx, model.ActionExtend, acct, acct, added, added, false, "")

	slog.Info("lockup extended",
		"account", acct,
		"added", req.Duration,
		"lockup_duration", pos.LockupDuration,
		"multiplier", pos.Multiplier,
	)

	writeJSON(w, http.StatusOK, StakeResponse{
		Account:        acct,
		Principal:      pos.Principal,
		LockupDuration: pos.LockupDuration,
		Multiplier:     pos.Multiplier,
		UnlockAt:       pos.UnlockTime(),
		TotalStaked:    s.totalStaked,
	})
}

// GetPosition handles GET /api/v1/positions/{account}.
// Every field is derived at call time — queries are idempotent.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	acct, err := account.Normalize(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	pos, err := s.store.GetPosition(r.Context(), acct)
	if errors.Is(err, store.ErrPositionNotFound) {
		writeError(w, "no active position", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, s.project(pos, s.now()))
}

// GetAudit handles GET /api/v1/positions/{account}/audit.
func (s *Service) GetAudit(w http.ResponseWriter, r *http.Request) {
	acct, err := account.Normalize(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.store.GetAuditRecords(r.Context(), acct)
	if err != nil {
		writeError(w, "failed to load audit trail", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.AuditRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// GetTotals handles GET /api/v1/totals: the reconciliation view.
// Custody equals total staked at all times; the sink accumulates
// penalties routed out of custody.
func (s *Service) GetTotals(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	totalStaked := s.totalStaked
	totalCooldown := s.totalCooldown
	positions := s.positions
	s.mu.Unlock()

	custodyBal, sinkBal := s.vault.Balances()

	writeJSON(w, http.StatusOK, model.Totals{
		TotalStaked:   totalStaked,
		TotalCooldown: totalCooldown,
		Custody:       custodyBal,
		Sink:          sinkBal,
		Positions:     positions,
		AsOf:          s.now(),
	})
}

// PreviewMultiplier handles GET /api/v1/multiplier?amount=&duration=.
func (s *Service) PreviewMultiplier(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, "invalid amount", http.StatusBadRequest)
		return
	}
	duration, err := strconv.ParseInt(r.URL.Query().Get("duration"), 10, 64)
	if err != nil {
		writeError(w, "invalid duration", http.StatusBadRequest)
		return
	}

	bp := s.engine.Multiplier(amount, duration)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"multiplier":   bp,
		"multiplier_x": bpToX(bp),
		"valid":        bp != 0,
	})
}

// --- Core position math ---

// reweight folds a top-up into an existing position using value-weighted
// averages. The start time moves toward now in proportion to the new
// amount; the lockup duration blends the remaining commitment with the
// requested one, floored so the effective unlock instant never moves
// earlier (a top-up must never shorten the account's effective lock).
func reweight(pos *model.Position, amount decimal.Decimal, duration int64, now time.Time) (*model.Position, bool) {
	newPrincipal := pos.Principal.Add(amount)
	if !newPrincipal.IsPositive() {
		return nil, false
	}

	oldUnlock := pos.UnlockTime()

	// newStart = (start·principal + now·amount) / newPrincipal
	startNum := decimal.NewFromInt(pos.StartTime.Unix()).Mul(pos.Principal).
		Add(decimal.NewFromInt(now.Unix()).Mul(amount))
	startQ, _ := startNum.QuoRem(newPrincipal, 0)
	newStart := time.Unix(startQ.IntPart(), 0).UTC()

	remaining := int64(0)
	if oldUnlock.After(now) {
		remaining = int64(oldUnlock.Sub(now) / time.Second)
	}

	// blended = (remaining·principal + requested·amount) / newPrincipal
	durNum := decimal.NewFromInt(remaining).Mul(pos.Principal).
		Add(decimal.NewFromInt(duration).Mul(amount))
	durQ, _ := durNum.QuoRem(newPrincipal, 0)
	newDuration := durQ.IntPart()

	// Floor: the re-weighted unlock instant may not precede the old one.
	if floor := int64(oldUnlock.Sub(newStart) / time.Second); newDuration < floor {
		newDuration = floor
	}

	out := *pos
	out.Principal = newPrincipal
	out.StartTime = newStart
	out.LockupDuration = newDuration
	return &out, true
}

// refreshMultiplier recomputes the cached multiplier after a principal
// change. A residual principal below the protocol minimum keeps its
// last valid multiplier: the engine's 0 sentinel marks inputs to
// reject, never a value to store.
func (s *Service) refreshMultiplier(pos *model.Position) {
	if m := s.engine.Multiplier(pos.Principal, pos.LockupDuration); m != 0 {
		pos.Multiplier = m
	}
}

// project derives the read-only view of a position as of now.
func (s *Service) project(pos *model.Position, now time.Time) model.PositionView {
	state := exitstate.Of(pos, now, s.params.CooldownPeriod)

	locked := decimal.Zero
	if state == exitstate.StateLocked {
		locked = pos.Principal
	}
	unlocked := pos.Principal.Sub(locked).Sub(pos.CooldownAmount)
	if unlocked.IsNegative() {
		unlocked = decimal.Zero
	}

	timeToUnlock := int64(0)
	if unlock := pos.UnlockTime(); unlock.After(now) {
		timeToUnlock = int64(unlock.Sub(now) / time.Second)
	}

	view := model.PositionView{
		Account:        pos.Account,
		Principal:      pos.Principal,
		Locked:         locked,
		Unlocked:       unlocked,
		InCooldown:     pos.CooldownAmount,
		Ready:          exitstate.ReadyAmount(pos, now, s.params.CooldownPeriod),
		Multiplier:     pos.Multiplier,
		MultiplierX:    bpToX(pos.Multiplier),
		LockupDuration: pos.LockupDuration,
		TimeToUnlock:   timeToUnlock,
		UnlockAt:       pos.UnlockTime(),
		State:          string(state),
		AsOf:           now,
	}
	if pos.CooldownAmount.IsPositive() {
		readyAt := pos.CooldownStart.Add(s.params.CooldownPeriod)
		view.CooldownReadyAt = &readyAt
	}
	return view
}

// --- Helpers ---

// appendAudit writes the immutable audit record and broadcasts it.
// Must be called with s.mu held; totals have already been updated.
func (s *Service) appendAudit(ctx context.Context, action, acct, caller string, requested, applied decimal.Decimal, partial bool, decisionID string) {
	rec := &model.AuditRecord{
		ID:          uuid.New().String(),
		Account:     acct,
		Action:      action,
		Requested:   requested,
		Applied:     applied,
		Partial:     partial,
		Caller:      caller,
		DecisionID:  decisionID,
		TotalStaked: s.totalStaked,
		Timestamp:   s.now(),
	}
	if err := s.store.AppendAuditRecord(ctx, rec); err != nil {
		slog.Error("failed to append audit record", "action", action, "account", acct, "err", err)
	}

	metrics.OperationsTotal.WithLabelValues(action).Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        action,
			Account:     acct,
			Requested:   requested.String(),
			Applied:     applied.String(),
			Partial:     partial,
			TotalStaked: s.totalStaked.String(),
		})
	}
}

// publishGauges pushes the in-memory counters to Prometheus.
// Must be called with s.mu held.
func (s *Service) publishGauges() {
	metrics.TotalStaked.Set(s.totalStaked.InexactFloat64())
	metrics.TotalCooldown.Set(s.totalCooldown.InexactFloat64())
	metrics.ActivePositions.Set(float64(s.positions))
	_, sink := s.vault.Balances()
	metrics.SinkBalance.Set(sink.InexactFloat64())
}

// validAmount rejects amounts that are not positive whole base units.
func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return ErrNonPositiveAmount
	}
	return nil
}

// bpToX converts basis points to the human-readable multiple.
func bpToX(bp int64) decimal.Decimal {
	return decimal.NewFromInt(bp).Div(decimal.NewFromInt(multiplier.BasisPoints))
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON success response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

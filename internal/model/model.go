// Package model defines the core domain types shared across the stake ledger.
// All token amounts use shopspring/decimal — never float64 for money. Amounts
// are whole numbers of the token's smallest unit.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Audit action kinds. One per state-changing operation family.
const (
	ActionStake        = "stake"
	ActionTopUp        = "top_up"
	ActionExtend       = "extend"
	ActionInitiateExit = "initiate_exit"
	ActionWithdraw     = "withdraw"
	ActionEarlyExit    = "early_exit"
	ActionSeize        = "seize"
)

// Position is the single active stake record owned by one account.
// Principal covers everything the account has staked, including any
// amount queued for exit: CooldownAmount is a subset of Principal,
// never additional to it.
type Position struct {
	Account        string          `json:"account" db:"account"`
	Principal      decimal.Decimal `json:"principal" db:"principal"`
	LockupDuration int64           `json:"lockup_duration" db:"lockup_duration"` // seconds
	StartTime      time.Time       `json:"start_time" db:"start_time"`
	Multiplier     int64           `json:"multiplier" db:"multiplier"` // basis points, cached
	CooldownAmount decimal.Decimal `json:"cooldown_amount" db:"cooldown_amount"`
	CooldownStart  time.Time       `json:"cooldown_start" db:"cooldown_start"` // zero when nothing queued
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// UnlockTime returns the instant the position's lockup expires.
func (p *Position) UnlockTime() time.Time {
	return p.StartTime.Add(time.Duration(p.LockupDuration) * time.Second)
}

// Unlocked reports whether the lockup has expired as of now.
func (p *Position) Unlocked(now time.Time) bool {
	return !now.Before(p.UnlockTime())
}

// AuditRecord is an immutable record of a state-changing operation.
// Once created, these are never modified or deleted.
type AuditRecord struct {
	ID          string          `json:"id" db:"id"`
	Account     string          `json:"account" db:"account"`
	Action      string          `json:"action" db:"action"`
	Requested   decimal.Decimal `json:"requested" db:"requested"`
	Applied     decimal.Decimal `json:"applied" db:"applied"`
	Partial     bool            `json:"partial" db:"partial"`
	Caller      string          `json:"caller" db:"caller"`
	DecisionID  string          `json:"decision_id,omitempty" db:"decision_id"`
	TotalStaked decimal.Decimal `json:"total_staked" db:"total_staked"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// PositionView is the read-only projection returned by query operations.
// Every field is derived from the Position and the current time — nothing
// here is stored separately.
type PositionView struct {
	Account         string          `json:"account"`
	Principal       decimal.Decimal `json:"principal"`
	Locked          decimal.Decimal `json:"locked"`
	Unlocked        decimal.Decimal `json:"unlocked"`
	InCooldown      decimal.Decimal `json:"in_cooldown"`
	Ready           decimal.Decimal `json:"ready"`
	Multiplier      int64           `json:"multiplier"`   // basis points
	MultiplierX     decimal.Decimal `json:"multiplier_x"` // human-readable, 10000 bp = 1.0
	LockupDuration  int64           `json:"lockup_duration"`
	TimeToUnlock    int64           `json:"time_to_unlock"` // seconds, 0 once unlocked
	UnlockAt        time.Time       `json:"unlock_at"`
	CooldownReadyAt *time.Time      `json:"cooldown_ready_at,omitempty"`
	State           string          `json:"state"`
	AsOf            time.Time       `json:"as_of"`
}

// Totals is the global reconciliation view: custody must equal total
// staked at all times, and the sink accumulates routed penalties.
type Totals struct {
	TotalStaked   decimal.Decimal `json:"total_staked"`
	TotalCooldown decimal.Decimal `json:"total_cooldown"`
	Custody       decimal.Decimal `json:"custody"`
	Sink          decimal.Decimal `json:"sink"`
	Positions     int             `json:"positions"`
	AsOf          time.Time       `json:"as_of"`
}

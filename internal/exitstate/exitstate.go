// Package exitstate implements the exit state machine layered on top of a
// stake position: Locked → Unlocked → Cooldown → Ready, with Withdrawn as
// the terminal condition for a sub-amount.
//
// The package is pure — it classifies a position at an instant and
// validates transitions, but never mutates anything. The ledger applies
// the mutations after a check passes, so validation and mutation land in
// the same serialized step.
package exitstate

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/stake-ledger/internal/model"
)

// State classifies a position in the exit flow.
type State string

const (
	// StateNone means no active position exists.
	StateNone State = "none"

	// StateLocked: now is before startTime + lockupDuration.
	StateLocked State = "locked"

	// StateUnlocked: lockup expired, nothing queued for exit.
	StateUnlocked State = "unlocked"

	// StateCooldown: an amount is queued and the cooldown clock is running.
	StateCooldown State = "cooldown"

	// StateReady: the queued amount has served its full cooldown.
	StateReady State = "ready"
)

var (
	// ErrStillLocked is returned when an exit is initiated before the
	// lockup expires.
	ErrStillLocked = errors.New("exitstate: position is still locked")

	// ErrExceedsAvailable is returned when the initiated amount exceeds
	// the portion of principal not already queued for exit.
	ErrExceedsAvailable = errors.New("exitstate: amount exceeds unqueued principal")

	// ErrNothingQueued is returned when a withdrawal is attempted with no
	// amount in cooldown.
	ErrNothingQueued = errors.New("exitstate: no amount queued for exit")

	// ErrCooldownNotElapsed is returned when a withdrawal is attempted
	// before the cooldown period has fully elapsed.
	ErrCooldownNotElapsed = errors.New("exitstate: cooldown period has not elapsed")

	// ErrExceedsCooldown is returned when a withdrawal exceeds the
	// amount actually queued.
	ErrExceedsCooldown = errors.New("exitstate: amount exceeds queued cooldown amount")

	// ErrExceedsPrincipal is returned when an early exit exceeds the
	// position's principal.
	ErrExceedsPrincipal = errors.New("exitstate: amount exceeds principal")

	// ErrCooldownActive is returned when a lockup extension is attempted
	// while an exit is queued. The queue must be reset first.
	ErrCooldownActive = errors.New("exitstate: position is queued for exit")
)

// Of classifies the position as of now. A nil position is StateNone.
func Of(p *model.Position, now time.Time, cooldownPeriod time.Duration) State {
	if p == nil || p.Principal.IsZero() {
		return StateNone
	}
	if p.CooldownAmount.IsPositive() {
		if !now.Before(p.CooldownStart.Add(cooldownPeriod)) {
			return StateReady
		}
		return StateCooldown
	}
	if !p.Unlocked(now) {
		return StateLocked
	}
	return StateUnlocked
}

// ReadyAmount returns the sub-amount withdrawable as of now: the full
// cooldown amount once the period has elapsed, zero otherwise.
func ReadyAmount(p *model.Position, now time.Time, cooldownPeriod time.Duration) decimal.Decimal {
	if p == nil || !p.CooldownAmount.IsPositive() {
		return decimal.Zero
	}
	if now.Before(p.CooldownStart.Add(cooldownPeriod)) {
		return decimal.Zero
	}
	return p.CooldownAmount
}

// CanInitiate validates queuing `amount` for exit: the position must be
// unlocked and the amount must fit inside the unqueued principal.
// cooldownAmount is a subset of principal, so the headroom is
// principal − cooldownAmount.
func CanInitiate(p *model.Position, now time.Time, amount decimal.Decimal) error {
	if !p.Unlocked(now) {
		return ErrStillLocked
	}
	if amount.GreaterThan(p.Principal.Sub(p.CooldownAmount)) {
		return ErrExceedsAvailable
	}
	return nil
}

// CanWithdraw validates withdrawing `amount`: the queued amount must
// cover it and must have served the full cooldown.
func CanWithdraw(p *model.Position, now time.Time, cooldownPeriod time.Duration, amount decimal.Decimal) error {
	if !p.CooldownAmount.IsPositive() {
		return ErrNothingQueued
	}
	if amount.GreaterThan(p.CooldownAmount) {
		return ErrExceedsCooldown
	}
	if now.Before(p.CooldownStart.Add(cooldownPeriod)) {
		return ErrCooldownNotElapsed
	}
	return nil
}

// CanEarlyExit validates an early exit, which bypasses lockup and
// cooldown gating entirely and is bounded only by principal.
func CanEarlyExit(p *model.Position, amount decimal.Decimal) error {
	if amount.GreaterThan(p.Principal) {
		return ErrExceedsPrincipal
	}
	return nil
}

// CanExtend validates a lockup extension. Extending a position already
// queued for exit is not permitted.
func CanExtend(p *model.Position) error {
	if p.CooldownAmount.IsPositive() {
		return ErrCooldownActive
	}
	return nil
}

package exitstate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/stake-ledger/internal/model"
)

const cooldown = 7 * 24 * time.Hour

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

// pos builds a position that started `age` ago with a 30-day lockup.
func pos(age time.Duration, principal, inCooldown int64, cooldownAge time.Duration) (*model.Position, time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &model.Position{
		Account:        "0x1111111111111111111111111111111111111111",
		Principal:      d(principal),
		LockupDuration: 30 * 24 * 60 * 60,
		StartTime:      now.Add(-age),
		CooldownAmount: d(inCooldown),
	}
	if inCooldown > 0 {
		p.CooldownStart = now.Add(-cooldownAge)
	}
	return p, now
}

// --- Classification ---

func TestOf_Nil(t *testing.T) {
	now := time.Now()
	if got := Of(nil, now, cooldown); got != StateNone {
		t.Errorf("expected none for nil position, got %s", got)
	}
}

func TestOf_Locked(t *testing.T) {
	p, now := pos(10*24*time.Hour, 5000, 0, 0)
	if got := Of(p, now, cooldown); got != StateLocked {
		t.Errorf("expected locked, got %s", got)
	}
}

func TestOf_Unlocked(t *testing.T) {
	p, now := pos(31*24*time.Hour, 5000, 0, 0)
	if got := Of(p, now, cooldown); got != StateUnlocked {
		t.Errorf("expected unlocked, got %s", got)
	}
}

func TestOf_Cooldown(t *testing.T) {
	p, now := pos(31*24*time.Hour, 5000, 2000, 24*time.Hour)
	if got := Of(p, now, cooldown); got != StateCooldown {
		t.Errorf("expected cooldown, got %s", got)
	}
}

func TestOf_Ready(t *testing.T) {
	p, now := pos(40*24*time.Hour, 5000, 2000, cooldown)
	if got := Of(p, now, cooldown); got != StateReady {
		t.Errorf("expected ready, got %s", got)
	}
}

func TestOf_ExactUnlockBoundary(t *testing.T) {
	// now == startTime + lockupDuration counts as unlocked.
	p, now := pos(30*24*time.Hour, 5000, 0, 0)
	if got := Of(p, now, cooldown); got != StateUnlocked {
		t.Errorf("expected unlocked at exact boundary, got %s", got)
	}
}

// --- InitiateExit validation ---

func TestCanInitiate_WhileLocked(t *testing.T) {
	p, now := pos(10*24*time.Hour, 5000, 0, 0)
	if err := CanInitiate(p, now, d(1000)); err != ErrStillLocked {
		t.Errorf("expected ErrStillLocked, got %v", err)
	}
}

func TestCanInitiate_ExceedsUnqueued(t *testing.T) {
	p, now := pos(31*24*time.Hour, 5000, 3000, time.Hour)
	// Only 2000 remains unqueued.
	if err := CanInitiate(p, now, d(2001)); err != ErrExceedsAvailable {
		t.Errorf("expected ErrExceedsAvailable, got %v", err)
	}
	if err := CanInitiate(p, now, d(2000)); err != nil {
		t.Errorf("exact headroom should pass, got %v", err)
	}
}

// --- Withdraw validation ---

func TestCanWithdraw_NothingQueued(t *testing.T) {
	p, now := pos(31*24*time.Hour, 5000, 0, 0)
	if err := CanWithdraw(p, now, cooldown, d(1000)); err != ErrNothingQueued {
		t.Errorf("expected ErrNothingQueued, got %v", err)
	}
}

func TestCanWithdraw_BeforeCooldownElapses(t *testing.T) {
	p, now := pos(40*24*time.Hour, 5000, 2000, cooldown-time.Minute)
	if err := CanWithdraw(p, now, cooldown, d(2000)); err != ErrCooldownNotElapsed {
		t.Errorf("expected ErrCooldownNotElapsed, got %v", err)
	}
}

func TestCanWithdraw_ExceedsQueued(t *testing.T) {
	p, now := pos(40*24*time.Hour, 5000, 2000, cooldown)
	if err := CanWithdraw(p, now, cooldown, d(2001)); err != ErrExceedsCooldown {
		t.Errorf("expected ErrExceedsCooldown, got %v", err)
	}
}

func TestCanWithdraw_ReadyExactAmount(t *testing.T) {
	p, now := pos(40*24*time.Hour, 5000, 2000, cooldown)
	if err := CanWithdraw(p, now, cooldown, d(2000)); err != nil {
		t.Errorf("expected ready withdrawal to pass, got %v", err)
	}
}

func TestReadyAmount(t *testing.T) {
	p, now := pos(40*24*time.Hour, 5000, 2000, cooldown-time.Minute)
	if got := ReadyAmount(p, now, cooldown); !got.IsZero() {
		t.Errorf("expected 0 before cooldown elapses, got %s", got)
	}

	p, now = pos(40*24*time.Hour, 5000, 2000, cooldown)
	if got := ReadyAmount(p, now, cooldown); !got.Equal(d(2000)) {
		t.Errorf("expected 2000 ready, got %s", got)
	}
}

// --- Early exit / extend validation ---

func TestCanEarlyExit_BypassesLockGating(t *testing.T) {
	p, _ := pos(1*24*time.Hour, 5000, 0, 0) // deep in lockup
	if err := CanEarlyExit(p, d(5000)); err != nil {
		t.Errorf("early exit should ignore lockup, got %v", err)
	}
	if err := CanEarlyExit(p, d(5001)); err != ErrExceedsPrincipal {
		t.Errorf("expected ErrExceedsPrincipal, got %v", err)
	}
}

func TestCanExtend_DuringCooldown(t *testing.T) {
	p, _ := pos(31*24*time.Hour, 5000, 1000, time.Hour)
	if err := CanExtend(p); err != ErrCooldownActive {
		t.Errorf("expected ErrCooldownActive, got %v", err)
	}

	p.CooldownAmount = decimal.Zero
	if err := CanExtend(p); err != nil {
		t.Errorf("expected extend to pass without cooldown, got %v", err)
	}
}

// Package custody provides the value-movement capability the ledger
// consumes: a vault tracking the balance held in custody and the penalty
// sink. The ledger keeps custody equal to total staked at all times; the
// vault enforces only that no movement overdraws it.
//
// Actual token transport lives outside the core — this vault is the
// in-process accounting of it.
package custody

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveAmount is returned for zero or negative movements.
	ErrNonPositiveAmount = errors.New("custody: amount must be positive")

	// ErrInsufficientCustody is returned when a release or sink routing
	// would overdraw the custody balance.
	ErrInsufficientCustody = errors.New("custody: insufficient balance in custody")
)

// Vault is the in-process custody ledger. Safe for concurrent use.
type Vault struct {
	mu       sync.Mutex
	custody  decimal.Decimal
	sink     decimal.Decimal
	released decimal.Decimal // cumulative value returned to accounts
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{}
}

// Deposit moves amount from an account into custody.
func (v *Vault) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.custody = v.custody.Add(amount)
	return nil
}

// Release moves amount out of custody back to an account.
func (v *Vault) Release(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount.GreaterThan(v.custody) {
		return ErrInsufficientCustody
	}
	v.custody = v.custody.Sub(amount)
	v.released = v.released.Add(amount)
	return nil
}

// RouteToSink moves amount out of custody into the penalty sink.
func (v *Vault) RouteToSink(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount.GreaterThan(v.custody) {
		return ErrInsufficientCustody
	}
	v.custody = v.custody.Sub(amount)
	v.sink = v.sink.Add(amount)
	return nil
}

// Balances returns the current custody and sink balances.
func (v *Vault) Balances() (custody, sink decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.custody, v.sink
}

// Released returns the cumulative value released back to accounts, for
// off-ledger reconciliation: deposits == custody + sink + released.
func (v *Vault) Released() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released
}

// Package store defines the persistence interface for the stake ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/stake-ledger/internal/model"
)

// ErrPositionNotFound is returned when an account has no active position.
var ErrPositionNotFound = errors.New("store: position not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. One position per account;
// audit records are append-only and never mutated.
type Store interface {
	// --- Position operations ---

	// GetPosition retrieves the account's position.
	// Returns ErrPositionNotFound when none exists.
	GetPosition(ctx context.Context, account string) (*model.Position, error)

	// SavePosition creates or replaces the account's position.
	SavePosition(ctx context.Context, p *model.Position) error

	// DeletePosition removes the account's position after full
	// withdrawal or full seizure.
	DeletePosition(ctx context.Context, account string) error

	// ListPositions returns every active position, for reconciliation.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// --- Immutable audit trail ---

	// AppendAuditRecord appends an immutable audit record.
	AppendAuditRecord(ctx context.Context, rec *model.AuditRecord) error

	// GetAuditRecords returns the account's audit trail in append order.
	GetAuditRecords(ctx context.Context, account string) ([]model.AuditRecord, error)
}

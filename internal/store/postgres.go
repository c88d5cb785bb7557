package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/stake-ledger/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All token amounts are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetPosition(ctx context.Context, account string) (*model.Position, error) {
	var p model.Position
	var principal, cooldownAmount string
	var cooldownStart *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT account, principal::TEXT, lockup_duration, start_time,
		        multiplier, cooldown_amount::TEXT, cooldown_start, updated_at
		 FROM positions WHERE account = $1`, account).
		Scan(&p.Account, &principal, &p.LockupDuration, &p.StartTime,
			&p.Multiplier, &cooldownAmount, &cooldownStart, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", account, err)
	}

	p.Principal, _ = decimal.NewFromString(principal)
	p.CooldownAmount, _ = decimal.NewFromString(cooldownAmount)
	if cooldownStart != nil {
		p.CooldownStart = *cooldownStart
	}

	return &p, nil
}

func (s *PostgresStore) SavePosition(ctx context.Context, p *model.Position) error {
	var cooldownStart *time.Time
	if !p.CooldownStart.IsZero() {
		cooldownStart = &p.CooldownStart
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (account, principal, lockup_duration, start_time,
		                        multiplier, cooldown_amount, cooldown_start, updated_at)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5, $6::NUMERIC, $7, $8)
		 ON CONFLICT (account) DO UPDATE SET
		     principal = EXCLUDED.principal,
		     lockup_duration = EXCLUDED.lockup_duration,
		     start_time = EXCLUDED.start_time,
		     multiplier = EXCLUDED.multiplier,
		     cooldown_amount = EXCLUDED.cooldown_amount,
		     cooldown_start = EXCLUDED.cooldown_start,
		     updated_at = EXCLUDED.updated_at`,
		p.Account, p.Principal.String(), p.LockupDuration, p.StartTime,
		p.Multiplier, p.CooldownAmount.String(), cooldownStart, p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) DeletePosition(ctx context.Context, account string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE account = $1`, account)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPositionNotFound
	}
	return nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account, principal::TEXT, lockup_duration, start_time,
		        multiplier, cooldown_amount::TEXT, cooldown_start, updated_at
		 FROM positions ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var principal, cooldownAmount string
		var cooldownStart *time.Time

		if err := rows.Scan(&p.Account, &principal, &p.LockupDuration, &p.StartTime,
			&p.Multiplier, &cooldownAmount, &cooldownStart, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Principal, _ = decimal.NewFromString(principal)
		p.CooldownAmount, _ = decimal.NewFromString(cooldownAmount)
		if cooldownStart != nil {
			p.CooldownStart = *cooldownStart
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) AppendAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_records (id, account, action, requested, applied,
		                            partial, caller, decision_id, total_staked, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9::NUMERIC, $10)`,
		rec.ID, rec.Account, rec.Action,
		rec.Requested.String(), rec.Applied.String(),
		rec.Partial, rec.Caller, rec.DecisionID,
		rec.TotalStaked.String(), rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetAuditRecords(ctx context.Context, account string) ([]model.AuditRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, action, requested::TEXT, applied::TEXT,
		        partial, caller, decision_id, total_staked::TEXT, timestamp
		 FROM audit_records WHERE account = $1 ORDER BY timestamp`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var requested, applied, totalStaked string

		if err := rows.Scan(&rec.ID, &rec.Account, &rec.Action, &requested, &applied,
			&rec.Partial, &rec.Caller, &rec.DecisionID, &totalStaked, &rec.Timestamp); err != nil {
			return nil, err
		}

		rec.Requested, _ = decimal.NewFromString(requested)
		rec.Applied, _ = decimal.NewFromString(applied)
		rec.TotalStaked, _ = decimal.NewFromString(totalStaked)

		records = append(records, rec)
	}
	return records, rows.Err()
}

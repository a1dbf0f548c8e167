package proof

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed proof store.
// The payment_proofs table is created by migrations (see migrations/).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_proofs (wallet_address, resource_id, tier_index, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address, resource_id, tier_index)
		DO UPDATE SET tx_ref = EXCLUDED.tx_ref, created_at = EXCLUDED.created_at
	`, rec.WalletAddress, rec.ResourceID, rec.TierIndex, rec.TxRef, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("put proof: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, wallet, resourceID string, tierIndex int) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, resource_id, tier_index, tx_ref, created_at
		FROM payment_proofs
		WHERE wallet_address = $1 AND resource_id = $2 AND tier_index = $3
	`, wallet, resourceID, tierIndex).Scan(
		&rec.WalletAddress, &rec.ResourceID, &rec.TierIndex, &rec.TxRef, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proof: %w", err)
	}
	return &rec, nil
}

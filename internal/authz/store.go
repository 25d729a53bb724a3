package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// PgPinSource stores PIN hashes in the step_up_pins table.
type PgPinSource struct {
	pool *pgxpool.Pool
}

// NewPinSource constructs PgPinSource.
func NewPinSource(pool *pgxpool.Pool) *PgPinSource {
	return &PgPinSource{pool: pool}
}

func (s *PgPinSource) PinHash(ctx context.Context, userID int64) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT pin_hash FROM step_up_pins WHERE user_id=$1`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPinNotSet
	}
	return hash, shared.MapPgError(err)
}

func (s *PgPinSource) SavePinHash(ctx context.Context, userID int64, hash string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO step_up_pins (user_id, pin_hash, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (user_id) DO UPDATE SET pin_hash=EXCLUDED.pin_hash, updated_at=NOW()`, userID, hash)
	return shared.MapPgError(err)
}

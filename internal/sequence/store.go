package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// PgTxStore is the postgres TxStore bound to one open transaction.
type PgTxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction.
func NewTxStore(tx pgx.Tx) *PgTxStore {
	return &PgTxStore{tx: tx}
}

// GetConfigForUpdate reads the series row under a row lock.
func (s *PgTxStore) GetConfigForUpdate(ctx context.Context, docType DocType) (Config, error) {
	var cfg Config
	err := s.tx.QueryRow(ctx, `SELECT doc_type, prefix, reset_period, pad_width, last_seq, last_year, last_month, updated_at
FROM doc_number_configs WHERE doc_type=$1 FOR UPDATE`, string(docType)).
		Scan(&cfg.DocType, &cfg.Prefix, &cfg.Reset, &cfg.PadWidth, &cfg.LastSeq, &cfg.LastYear, &cfg.LastMonth, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrConfigNotFound
		}
		return Config{}, shared.MapPgError(err)
	}
	return cfg, nil
}

// SaveConfig persists the advanced counter and period.
func (s *PgTxStore) SaveConfig(ctx context.Context, cfg Config) error {
	_, err := s.tx.Exec(ctx, `UPDATE doc_number_configs
SET last_seq=$2, last_year=$3, last_month=$4, updated_at=$5
WHERE doc_type=$1`, string(cfg.DocType), cfg.LastSeq, cfg.LastYear, cfg.LastMonth, cfg.UpdatedAt)
	return shared.MapPgError(err)
}

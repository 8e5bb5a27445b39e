package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

type CursorRepo struct {
	db *DB
}

func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

func (r *CursorRepo) Get(ctx context.Context, chainID int64, contractAddress string) (*model.IndexerCursor, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var c model.IndexerCursor
	err := r.db.QueryRowContext(ctx, `
		SELECT chain_id, contract_address, last_processed_block, updated_at
		FROM escrow_indexer_cursor
		WHERE chain_id = $1 AND contract_address = $2
	`, chainID, contractAddress).Scan(&c.ChainID, &c.ContractAddress, &c.LastProcessedBlock, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return &c, nil
}

// Advance moves last_processed_block forward. The upsert's WHERE guard
// makes a value lower than the current one a no-op, so the cursor stays
// monotonically non-decreasing.
func (r *CursorRepo) Advance(ctx context.Context, chainID int64, contractAddress string, block int64) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escrow_indexer_cursor (chain_id, contract_address, last_processed_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, contract_address) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			updated_at = now()
		WHERE escrow_indexer_cursor.last_processed_block <= EXCLUDED.last_processed_block
	`, chainID, contractAddress, block)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// Set writes last_processed_block unconditionally, including backward. The
// bootstrap and force-from-block paths use it to rewind; everything else
// goes through Advance.
func (r *CursorRepo) Set(ctx context.Context, chainID int64, contractAddress string, block int64) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escrow_indexer_cursor (chain_id, contract_address, last_processed_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, contract_address) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			updated_at = now()
	`, chainID, contractAddress, block)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"
)

type NonceRepo struct {
	db *DB
}

func NewNonceRepo(db *DB) *NonceRepo {
	return &NonceRepo{db: db}
}

// Seen reports whether nonce is present and its TTL has not yet elapsed.
// Expired rows are left for the periodic sweep in Insert rather than
// deleted eagerly here, keeping this a pure read.
func (r *NonceRepo) Seen(ctx context.Context, nonce string) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM escrow_used_nonces WHERE nonce = $1 AND expires_at > now())
	`, nonce).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check nonce: %w", err)
	}
	return exists, nil
}

// Insert records nonce as consumed and opportunistically sweeps expired
// rows so the table doesn't grow unbounded.
func (r *NonceRepo) Insert(ctx context.Context, nonce string, expiresAt time.Time) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin nonce insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_used_nonces (nonce, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (nonce) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, nonce, expiresAt); err != nil {
		return fmt.Errorf("insert nonce: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM escrow_used_nonces WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("sweep expired nonces: %w", err)
	}

	return tx.Commit()
}

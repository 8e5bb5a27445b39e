package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

type MetadataRepo struct {
	db *DB
}

func NewMetadataRepo(db *DB) *MetadataRepo {
	return &MetadataRepo{db: db}
}

func (r *MetadataRepo) Upsert(ctx context.Context, m *model.OffchainTaskMetadata) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escrow_task_metadata (task_id, spec_hash, title, instructions, created_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (task_id) DO UPDATE SET
			spec_hash    = EXCLUDED.spec_hash,
			title        = EXCLUDED.title,
			instructions = EXCLUDED.instructions,
			updated_at   = now()
	`, m.TaskID, m.SpecHash, m.Title, m.Instructions, m.CreatedBy)
	if err != nil {
		return fmt.Errorf("upsert task metadata: %w", err)
	}
	return nil
}

func (r *MetadataRepo) Get(ctx context.Context, taskID string) (*model.OffchainTaskMetadata, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var m model.OffchainTaskMetadata
	err := r.db.QueryRowContext(ctx, `
		SELECT task_id, spec_hash, title, instructions, created_by, updated_at
		FROM escrow_task_metadata
		WHERE task_id = $1
	`, taskID).Scan(&m.TaskID, &m.SpecHash, &m.Title, &m.Instructions, &m.CreatedBy, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task metadata: %w", err)
	}
	return &m, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store"
)

type SubmissionRepo struct {
	db *DB
}

func NewSubmissionRepo(db *DB) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

// submissionApplySQL upserts the SubmissionProjection row for one
// (task_id, submission_id). agent is set once at Claimed and never
// overwritten afterward since later events pass a nil Agent. Shared with
// projection.go's transactional ApplyLog path.
const submissionApplySQL = `
	INSERT INTO escrow_submissions (
		chain_id, contract_address, task_id, submission_id,
		agent, status, submitted_at, proof_hash,
		created_block, created_tx, updated_block, updated_tx
	) VALUES (
		$1, $2, $3, $4,
		$5, COALESCE($6, 0), $7, $8,
		$9, $10, $11, $12
	)
	ON CONFLICT (chain_id, contract_address, task_id, submission_id) DO UPDATE SET
		agent         = COALESCE(escrow_submissions.agent, EXCLUDED.agent),
		status        = COALESCE($6, escrow_submissions.status),
		submitted_at  = COALESCE(EXCLUDED.submitted_at, escrow_submissions.submitted_at),
		proof_hash    = COALESCE(EXCLUDED.proof_hash, escrow_submissions.proof_hash),
		updated_block = EXCLUDED.updated_block,
		updated_tx    = EXCLUDED.updated_tx
`

func (r *SubmissionRepo) Apply(ctx context.Context, chainID int64, contractAddress, taskID string, submissionID int64, a store.SubmissionApply) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, submissionApplySQL, submissionApplyArgs(chainID, contractAddress, taskID, submissionID, a)...)
	if err != nil {
		return fmt.Errorf("apply submission projection: %w", err)
	}
	return nil
}

func submissionApplyArgs(chainID int64, contractAddress, taskID string, submissionID int64, a store.SubmissionApply) []interface{} {
	var statusArg interface{}
	if a.Status != nil {
		statusArg = int(*a.Status)
	}
	return []interface{}{
		chainID, contractAddress, taskID, submissionID,
		a.Agent, statusArg, a.SubmittedAt, a.ProofHash,
		a.CreatedBlock, a.CreatedTx, a.UpdatedBlock, a.UpdatedTx,
	}
}

func (r *SubmissionRepo) Get(ctx context.Context, chainID int64, contractAddress, taskID string, submissionID int64) (*model.Submission, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, submissionSelectSQL+`
		WHERE chain_id = $1 AND contract_address = $2 AND task_id = $3 AND submission_id = $4
	`, chainID, contractAddress, taskID, submissionID)
	s, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

func (r *SubmissionRepo) ListByTask(ctx context.Context, chainID int64, contractAddress, taskID string, limit, offset int) ([]*model.Submission, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, submissionSelectSQL+`
		WHERE chain_id = $1 AND contract_address = $2 AND task_id = $3
		ORDER BY submission_id ASC
		LIMIT $4 OFFSET $5
	`, chainID, contractAddress, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions by task: %w", err)
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const submissionSelectSQL = `
	SELECT task_id, submission_id, agent, status, submitted_at, proof_hash,
		created_block, created_tx, updated_block, updated_tx
	FROM escrow_submissions
`

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var s model.Submission
	var status int
	if err := row.Scan(
		&s.TaskID, &s.SubmissionID, &s.Agent, &status, &s.SubmittedAt, &s.ProofHash,
		&s.CreatedBlock, &s.CreatedTx, &s.UpdatedBlock, &s.UpdatedTx,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubmissionStatus(status)
	return &s, nil
}

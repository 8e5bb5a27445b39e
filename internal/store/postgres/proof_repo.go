package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

type ProofRepo struct {
	db *DB
}

func NewProofRepo(db *DB) *ProofRepo {
	return &ProofRepo{db: db}
}

// Insert appends an OffchainProof row. The metadata service is the only
// writer; this table is never mutated afterward.
func (r *ProofRepo) Insert(ctx context.Context, p *model.OffchainProof) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escrow_submission_proofs
			(chain_id, contract_address, task_id, submission_id, wallet, proof_text, proof_hash, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, p.ChainID, p.ContractAddress, p.TaskID, p.SubmissionID, p.Wallet, p.ProofText, p.ProofHash, p.TxHash)
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

func (r *ProofRepo) Get(ctx context.Context, chainID int64, contractAddress, taskID string, submissionID int64) (*model.OffchainProof, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var p model.OffchainProof
	err := r.db.QueryRowContext(ctx, `
		SELECT chain_id, contract_address, task_id, submission_id, wallet, proof_text, proof_hash, tx_hash, created_at
		FROM escrow_submission_proofs
		WHERE chain_id = $1 AND contract_address = $2 AND task_id = $3 AND submission_id = $4
		ORDER BY created_at DESC
		LIMIT 1
	`, chainID, contractAddress, taskID, submissionID).Scan(
		&p.ChainID, &p.ContractAddress, &p.TaskID, &p.SubmissionID, &p.Wallet, &p.ProofText, &p.ProofHash, &p.TxHash, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proof: %w", err)
	}
	return &p, nil
}

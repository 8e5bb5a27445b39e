package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store"
)

type TaskRepo struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// taskApplySQL upserts the TaskProjection row for one task. Identity/
// economics/timing fields are only overwritten when the caller supplies
// them (TaskCreated passes all of them; every other event leaves them nil
// so a retroactive re-scan of TaskCreated never clobbers counters and other
// events never clobber identity). Counters are applied as deltas and
// floor-clamped at zero so pending_submissions can never go negative. The
// status CASE implements two rules: when the caller's
// CheckCompletionOnWithdraw flag is set and the post-delta withdrawn_count
// has reached max_winners, status is promoted to Completed (4) regardless
// of what the event itself would have written; and when StatusOnlyIfNew is
// set (TaskCreated), a row that has already advanced past None keeps its
// current status, so a retroactive re-scan refreshes identity fields
// without resetting the lifecycle. Shared with projection.go's
// transactional ApplyLog path.
const taskApplySQL = `
	INSERT INTO escrow_tasks (
		chain_id, contract_address, task_id,
		requester, spec_hash, payout_amount, max_winners, deposit_fee_amount, recipient_fee_amount, balance,
		deadline, review_window, escalation_window,
		approved_count, withdrawn_count, pending_submissions, submission_count, claim_count,
		status, created_block, created_tx, updated_block, updated_tx
	) VALUES (
		$1, $2, $3,
		$4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13,
		GREATEST(0, $14), GREATEST(0, $15), GREATEST(0, $16), GREATEST(0, $17), GREATEST(0, $18),
		COALESCE($19, 0), $20, $21, $22, $23
	)
	ON CONFLICT (chain_id, contract_address, task_id) DO UPDATE SET
		requester            = COALESCE(EXCLUDED.requester, escrow_tasks.requester),
		spec_hash            = COALESCE(EXCLUDED.spec_hash, escrow_tasks.spec_hash),
		payout_amount        = COALESCE(EXCLUDED.payout_amount, escrow_tasks.payout_amount),
		max_winners          = COALESCE(EXCLUDED.max_winners, escrow_tasks.max_winners),
		deposit_fee_amount   = COALESCE(EXCLUDED.deposit_fee_amount, escrow_tasks.deposit_fee_amount),
		recipient_fee_amount = COALESCE(EXCLUDED.recipient_fee_amount, escrow_tasks.recipient_fee_amount),
		balance              = COALESCE(EXCLUDED.balance, escrow_tasks.balance),
		deadline             = COALESCE(EXCLUDED.deadline, escrow_tasks.deadline),
		review_window        = COALESCE(EXCLUDED.review_window, escrow_tasks.review_window),
		escalation_window    = COALESCE(EXCLUDED.escalation_window, escrow_tasks.escalation_window),
		approved_count       = GREATEST(0, escrow_tasks.approved_count + $14),
		withdrawn_count      = GREATEST(0, escrow_tasks.withdrawn_count + $15),
		pending_submissions  = GREATEST(0, escrow_tasks.pending_submissions + $16),
		submission_count     = GREATEST(0, escrow_tasks.submission_count + $17),
		claim_count          = GREATEST(0, escrow_tasks.claim_count + $18),
		status               = CASE
			WHEN $24 AND escrow_tasks.withdrawn_count + 1 >= COALESCE(escrow_tasks.max_winners, EXCLUDED.max_winners)
				THEN 4
			WHEN $25 AND escrow_tasks.status <> 0
				THEN escrow_tasks.status
			ELSE COALESCE($19, escrow_tasks.status)
		END,
		updated_block        = EXCLUDED.updated_block,
		updated_tx           = EXCLUDED.updated_tx
`

func (r *TaskRepo) Apply(ctx context.Context, chainID int64, contractAddress, taskID string, a store.TaskApply) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, taskApplySQL, taskApplyArgs(chainID, contractAddress, taskID, a)...)
	if err != nil {
		return fmt.Errorf("apply task projection: %w", err)
	}
	return nil
}

func taskApplyArgs(chainID int64, contractAddress, taskID string, a store.TaskApply) []interface{} {
	var statusArg interface{}
	if a.Status != nil {
		statusArg = int(*a.Status)
	}
	return []interface{}{
		chainID, contractAddress, taskID,
		a.Requester, a.SpecHash, a.PayoutAmount, a.MaxWinners, a.DepositFeeAmount, a.RecipientFeeAmount, a.Balance,
		a.Deadline, a.ReviewWindow, a.EscalationWindow,
		a.IncrApprovedCount, a.IncrWithdrawnCount, a.IncrPendingSubs, a.IncrSubmissionCount, a.IncrClaimCount,
		statusArg, a.CreatedBlock, a.CreatedTx, a.UpdatedBlock, a.UpdatedTx,
		a.CheckCompletionOnWithdraw, a.StatusOnlyIfNew,
	}
}

func (r *TaskRepo) Get(ctx context.Context, chainID int64, contractAddress, taskID string) (*model.Task, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, taskSelectSQL+` WHERE chain_id = $1 AND contract_address = $2 AND task_id = $3`,
		chainID, contractAddress, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (r *TaskRepo) List(ctx context.Context, chainID int64, contractAddress string, limit, offset int) ([]*model.Task, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, taskSelectSQL+`
		WHERE chain_id = $1 AND contract_address = $2
		ORDER BY created_block DESC
		LIMIT $3 OFFSET $4
	`, chainID, contractAddress, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListByWallet returns tasks where wallet is the requester or the agent on
// any submission under the task.
func (r *TaskRepo) ListByWallet(ctx context.Context, chainID int64, contractAddress, wallet string, limit, offset int) ([]*model.Task, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, taskSelectSQL+`
		WHERE chain_id = $1 AND contract_address = $2
		AND (
			requester = $3
			OR EXISTS (
				SELECT 1 FROM escrow_submissions s
				WHERE s.chain_id = escrow_tasks.chain_id
					AND s.contract_address = escrow_tasks.contract_address
					AND s.task_id = escrow_tasks.task_id
					AND s.agent = $3
			)
		)
		ORDER BY created_block DESC
		LIMIT $4 OFFSET $5
	`, chainID, contractAddress, wallet, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks by wallet: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskSelectSQL = `
	SELECT task_id, requester, spec_hash, payout_amount, max_winners,
		deposit_fee_amount, recipient_fee_amount, balance,
		deadline, review_window, escalation_window,
		approved_count, withdrawn_count, pending_submissions, submission_count, claim_count,
		status, created_block, created_tx, updated_block, updated_tx
	FROM escrow_tasks
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var status int
	if err := row.Scan(
		&t.TaskID, &t.Requester, &t.SpecHash, &t.PayoutAmount, &t.MaxWinners,
		&t.DepositFeeAmount, &t.RecipientFeeAmount, &t.Balance,
		&t.Deadline, &t.ReviewWindow, &t.EscalationWindow,
		&t.ApprovedCount, &t.WithdrawnCount, &t.PendingSubmissions, &t.SubmissionCount, &t.ClaimCount,
		&status, &t.CreatedBlock, &t.CreatedTx, &t.UpdatedBlock, &t.UpdatedTx,
	); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

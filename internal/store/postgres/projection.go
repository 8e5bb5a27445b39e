package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store"
)

// ProjectionWriter applies one decoded log's journal insert and its
// task/submission projection side effects inside a single transaction, so
// an EventRecord never exists without its projection side effect already
// committed alongside it.
type ProjectionWriter struct {
	db *DB
}

func NewProjectionWriter(db *DB) *ProjectionWriter {
	return &ProjectionWriter{db: db}
}

func (w *ProjectionWriter) ApplyLog(ctx context.Context, ev store.AppliedEvent) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin projection tx: %w", err)
	}
	defer tx.Rollback()

	rec := ev.Record
	argsJSON, err := json.Marshal(rec.Args)
	if err != nil {
		return false, fmt.Errorf("marshal event args: %w", err)
	}

	res, err := tx.ExecContext(ctx, eventInsertSQL,
		rec.ChainID, rec.ContractAddress, rec.TxHash, rec.LogIndex,
		rec.BlockNumber, rec.BlockHash, string(rec.EventName), rec.TaskID, argsJSON,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: rows affected: %w", err)
	}
	inserted := rowsAffected > 0

	// A duplicate delivery (already journaled) must be a no-op for the
	// projection, not merely the journal: skip applying side effects a
	// second time.
	if !inserted {
		return false, tx.Commit()
	}

	if ev.TaskUpdate != nil {
		if _, err := tx.ExecContext(ctx, taskApplySQL,
			taskApplyArgs(rec.ChainID, rec.ContractAddress, ev.TaskID, *ev.TaskUpdate)...,
		); err != nil {
			return false, fmt.Errorf("apply task projection: %w", err)
		}
	}

	if ev.HasSubmission && ev.SubmissionUpdate != nil {
		if _, err := tx.ExecContext(ctx, submissionApplySQL,
			submissionApplyArgs(rec.ChainID, rec.ContractAddress, ev.TaskID, ev.SubmissionID, *ev.SubmissionUpdate)...,
		); err != nil {
			return false, fmt.Errorf("apply submission projection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit projection tx: %w", err)
	}
	return true, nil
}

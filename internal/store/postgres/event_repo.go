package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// eventInsertSQL is shared with projection.go's transactional ApplyLog path
// so the idempotence rule lives in exactly one SQL statement.
const eventInsertSQL = `
	INSERT INTO escrow_events
		(chain_id, contract_address, tx_hash, log_index, block_number, block_hash, event_name, task_id, args, observed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	ON CONFLICT (chain_id, contract_address, tx_hash, log_index) DO NOTHING
`

// Insert appends rec to the event journal. A primary-key conflict on
// (chain_id, contract_address, tx_hash, log_index) is treated as already
// journaled and silently ignored, making re-application of an overlapping
// batch window safe. inserted reports whether this call actually added the
// row, so callers can skip re-applying a projection side effect for a
// duplicate delivery.
func (r *EventRepo) Insert(ctx context.Context, rec *model.EventRecord) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	argsJSON, err := json.Marshal(rec.Args)
	if err != nil {
		return false, fmt.Errorf("marshal event args: %w", err)
	}

	res, err := r.db.ExecContext(ctx, eventInsertSQL,
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
	return rowsAffected > 0, nil
}

func (r *EventRepo) ListByTask(ctx context.Context, chainID int64, contractAddress, taskID string, limit, offset int) ([]*model.EventRecord, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT chain_id, contract_address, tx_hash, log_index, block_number, block_hash, event_name, task_id, args, observed_at
		FROM escrow_events
		WHERE chain_id = $1 AND contract_address = $2 AND task_id = $3
		ORDER BY block_number ASC, log_index ASC
		LIMIT $4 OFFSET $5
	`, chainID, contractAddress, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events by task: %w", err)
	}
	defer rows.Close()

	var out []*model.EventRecord
	for rows.Next() {
		var rec model.EventRecord
		var argsJSON []byte
		var eventName string
		if err := rows.Scan(
			&rec.ChainID, &rec.ContractAddress, &rec.TxHash, &rec.LogIndex,
			&rec.BlockNumber, &rec.BlockHash, &eventName, &rec.TaskID, &argsJSON, &rec.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.EventName = model.EventName(eventName)
		if len(argsJSON) > 0 {
			if err := json.Unmarshal(argsJSON, &rec.Args); err != nil {
				return nil, fmt.Errorf("unmarshal event args: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

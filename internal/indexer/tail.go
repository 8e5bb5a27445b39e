package indexer

import (
	"context"
	"fmt"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/metrics"
)

// Topics returns the event topic0 hashes this engine's decoder recognizes,
// for a live tail subscription filter.
func (e *Engine) Topics() []string {
	return e.topics
}

// ContractAddress returns the watched contract address, for a live tail
// subscription filter.
func (e *Engine) ContractAddress() string {
	return e.cfg.ContractAddress
}

// ApplyTailLog decodes and applies one log received from the optional live
// tail push stream, through the same decode -> build -> ApplyLog path
// advance_once uses. Tail delivery is not ordered relative to the polling
// backfill; idempotent insertion and monotonic projection rules make that
// safe. It never advances the cursor (only the polling loop does that), so
// a tail-applied log is simply available sooner.
func (e *Engine) ApplyTailLog(ctx context.Context, log *rpc.Log) error {
	rec, ok, err := e.decoder.Decode(log)
	if err != nil {
		metrics.IndexerUndecodableLogsTotal.WithLabelValues("tail").Inc()
		return fmt.Errorf("decode tail log: %w", err)
	}
	if !ok {
		metrics.IndexerUndecodableLogsTotal.WithLabelValues("tail").Inc()
		return nil
	}

	applied, err := buildAppliedEvent(rec)
	if err != nil {
		metrics.IndexerUndecodableLogsTotal.WithLabelValues("tail").Inc()
		return fmt.Errorf("build tail projection: %w", err)
	}

	inserted, err := e.writer.ApplyLog(ctx, applied)
	if err != nil {
		return fmt.Errorf("apply tail log %s:%d (%s): %w", rec.TxHash, rec.LogIndex, rec.EventName, err)
	}
	if inserted {
		metrics.IndexerLogsAppliedTotal.WithLabelValues(string(rec.EventName)).Inc()
	} else {
		metrics.IndexerDuplicateLogsTotal.WithLabelValues("tail").Inc()
	}
	return nil
}

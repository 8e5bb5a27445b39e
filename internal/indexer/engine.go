// Package indexer implements the polling engine that keeps the projection
// store in sync with the chain: read logs up to head minus confirmations,
// decode them, and apply their projection side effects idempotently.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/ratelimit"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/circuitbreaker"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/decoder"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/metrics"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store"
)

// Config bundles the tunables that drive the bootstrap/windowing algorithm.
// Fields mirror config.EscrowConfig so callers can wire it through directly.
type Config struct {
	ChainID             int64
	ContractAddress     string
	Confirmations       int64
	BatchBlocks         int64
	FarBehindThreshold  int64
	BootstrapTailBlocks int64
	ForceFromBlock      int64 // 0 means unset
}

// Result is the outcome of a single advance_once step.
type Result struct {
	Head      int64
	Target    int64
	From      int64
	To        int64
	Processed int
	Idle      bool
	Bootstrap bool
}

// Status is the snapshot status() exposes to the Read API's
// GET /indexer/status endpoint.
type Status struct {
	Head      int64
	Cursor    int64
	LastStep  string
	LastError string
	UpdatedAt time.Time
}

// Engine runs the chain -> projection sync loop described by advance_once.
// It fails soft: any RPC or decode error is captured into the status snapshot
// and the next tick tries again, rather than the process exiting.
type Engine struct {
	rpcClient  rpc.RPCClient
	decoder    *decoder.Decoder
	cursorRepo store.CursorRepository
	writer     store.ProjectionWriter
	limiter    *ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger

	cfg        Config
	chainLabel string
	topics     []string

	mu           sync.Mutex
	forceApplied bool
	status       Status
}

func New(
	rpcClient rpc.RPCClient,
	dec *decoder.Decoder,
	cursorRepo store.CursorRepository,
	writer store.ProjectionWriter,
	limiter *ratelimit.Limiter,
	breaker *circuitbreaker.Breaker,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	topics := make([]string, 0, len(decoder.KnownEventNames()))
	for _, name := range decoder.KnownEventNames() {
		if topic, ok := decoder.EventTopic(name); ok {
			topics = append(topics, topic.Hex())
		}
	}
	return &Engine{
		rpcClient:  rpcClient,
		decoder:    dec,
		cursorRepo: cursorRepo,
		writer:     writer,
		limiter:    limiter,
		breaker:    breaker,
		logger:     logger.With("component", "indexer_engine"),
		cfg:        cfg,
		chainLabel: strconv.FormatInt(cfg.ChainID, 10),
		topics:     topics,
	}
}

// Status returns the most recent advance_once snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) recordStatus(head, cursor int64, step string, stepErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = Status{Head: head, Cursor: cursor, LastStep: step, UpdatedAt: time.Now()}
	if stepErr != nil {
		e.status.LastError = stepErr.Error()
	}
}

// Run ticks advance_once on interval until ctx is cancelled. A step error
// never stops the loop; it is only recorded into status().
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	e.logger.Info("indexer engine started", "contract", e.cfg.ContractAddress, "chain_id", e.cfg.ChainID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("indexer engine stopping")
			return ctx.Err()
		case <-ticker.C:
			result, err := e.AdvanceOnce(ctx)
			if err != nil {
				e.logger.Warn("advance_once failed", "error", err)
				continue
			}
			if !result.Idle {
				e.logger.Info("advance_once applied batch",
					"from", result.From, "to", result.To, "processed", result.Processed, "bootstrap", result.Bootstrap)
			}
		}
	}
}

// AdvanceOnce runs one step of the bootstrap/windowing/apply algorithm.
func (e *Engine) AdvanceOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	result, err := e.advanceOnce(ctx)

	stepLabel := "applied"
	switch {
	case err != nil:
		stepLabel = "error"
	case result.Idle:
		stepLabel = "idle"
	}
	metrics.IndexerStepsTotal.WithLabelValues(stepLabel).Inc()
	metrics.IndexerStepDuration.WithLabelValues("poll").Observe(time.Since(start).Seconds())
	if result.Head > 0 {
		metrics.IndexerHeadBlock.Set(float64(result.Head))
	}
	metrics.IndexerCircuitState.Set(float64(e.breaker.GetState()))

	cursor := result.To
	if err != nil || result.Idle {
		// On idle or a failed step the cursor did not move past whatever the
		// engine already had on disk; reread it so the gauge and status
		// snapshot reflect reality rather than a stale local variable.
		if cur, cerr := e.cursorRepo.Get(ctx, e.cfg.ChainID, e.cfg.ContractAddress); cerr == nil && cur != nil {
			cursor = cur.LastProcessedBlock
		} else {
			cursor = 0
		}
	}
	metrics.IndexerCursorBlock.Set(float64(cursor))
	e.recordStatus(result.Head, cursor, stepLabel, err)

	return result, err
}

func (e *Engine) advanceOnce(ctx context.Context) (Result, error) {
	head, err := e.fetchHead(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read chain head: %w", err)
	}

	target := head - e.cfg.Confirmations
	if target < 0 {
		target = 0
	}

	cur, err := e.cursorRepo.Get(ctx, e.cfg.ChainID, e.cfg.ContractAddress)
	if err != nil {
		return Result{Head: head}, fmt.Errorf("load cursor: %w", err)
	}
	var last int64
	if cur != nil {
		last = cur.LastProcessedBlock
	}

	bootstrap := false
	if last == 0 || target-last > e.cfg.FarBehindThreshold {
		bootstrap = true
		last = target - e.cfg.BootstrapTailBlocks
		if last < 0 {
			last = 0
		}
		if err := e.cursorRepo.Set(ctx, e.cfg.ChainID, e.cfg.ContractAddress, last); err != nil {
			return Result{Head: head}, fmt.Errorf("persist bootstrap cursor: %w", err)
		}
		metrics.IndexerBootstrapsTotal.Inc()
		e.logger.Info("bootstrapping cursor", "target", target, "last", last)
	}

	if !e.forceApplied && e.cfg.ForceFromBlock > 0 {
		candidate := e.cfg.ForceFromBlock - 1
		if candidate < last {
			last = candidate
			if last < 0 {
				last = 0
			}
			if err := e.cursorRepo.Set(ctx, e.cfg.ChainID, e.cfg.ContractAddress, last); err != nil {
				return Result{Head: head}, fmt.Errorf("persist force_from_block cursor: %w", err)
			}
			e.logger.Info("applied one-shot force_from_block override", "last", last)
		}
		e.forceApplied = true
	}

	from := last + 1
	if from > target {
		return Result{Head: head, Target: target, From: from, To: last, Idle: true, Bootstrap: bootstrap}, nil
	}

	to := target
	if to > from+e.cfg.BatchBlocks-1 {
		to = from + e.cfg.BatchBlocks - 1
	}

	logs, err := e.fetchLogs(ctx, from, to)
	if err != nil {
		return Result{Head: head, Target: target, From: from, To: to, Bootstrap: bootstrap}, fmt.Errorf("fetch logs [%d,%d]: %w", from, to, err)
	}

	sort.Slice(logs, func(i, j int) bool {
		bi, _ := rpc.ParseHexInt64(logs[i].BlockNumber)
		bj, _ := rpc.ParseHexInt64(logs[j].BlockNumber)
		if bi != bj {
			return bi < bj
		}
		li, _ := rpc.ParseHexInt64(logs[i].LogIndex)
		lj, _ := rpc.ParseHexInt64(logs[j].LogIndex)
		return li < lj
	})

	processed := 0
	cursorTo := to
	var applyErr error

loop:
	for _, log := range logs {
		rec, ok, decErr := e.decoder.Decode(log)
		if decErr != nil {
			e.logger.Warn("decode error", "error", decErr, "tx_hash", log.TransactionHash, "log_index", log.LogIndex)
			metrics.IndexerUndecodableLogsTotal.WithLabelValues("poll").Inc()
			continue
		}
		if !ok {
			metrics.IndexerUndecodableLogsTotal.WithLabelValues("poll").Inc()
			continue
		}

		applied, buildErr := buildAppliedEvent(rec)
		if buildErr != nil {
			e.logger.Warn("cannot build projection for log", "error", buildErr, "event", rec.EventName, "tx_hash", rec.TxHash)
			metrics.IndexerUndecodableLogsTotal.WithLabelValues("poll").Inc()
			continue
		}

		inserted, err := e.writer.ApplyLog(ctx, applied)
		if err != nil {
			// Stop at the first failing log; the batch's cursor advance is
			// clamped below the failing log's block so the next tick
			// re-fetches and retries it rather than skipping past it.
			applyErr = fmt.Errorf("apply log %s:%d (%s): %w", rec.TxHash, rec.LogIndex, rec.EventName, err)
			cursorTo = rec.BlockNumber - 1
			if cursorTo < last {
				cursorTo = last
			}
			break loop
		}

		if inserted {
			metrics.IndexerLogsAppliedTotal.WithLabelValues(string(rec.EventName)).Inc()
			processed++
		} else {
			metrics.IndexerDuplicateLogsTotal.WithLabelValues("poll").Inc()
		}
	}

	if err := e.cursorRepo.Advance(ctx, e.cfg.ChainID, e.cfg.ContractAddress, cursorTo); err != nil {
		if applyErr != nil {
			return Result{Head: head, Target: target, From: from, To: cursorTo, Processed: processed, Bootstrap: bootstrap}, applyErr
		}
		return Result{Head: head, Target: target, From: from, To: cursorTo, Processed: processed, Bootstrap: bootstrap}, fmt.Errorf("persist cursor: %w", err)
	}

	return Result{Head: head, Target: target, From: from, To: cursorTo, Processed: processed, Bootstrap: bootstrap}, applyErr
}

func (e *Engine) fetchHead(ctx context.Context) (int64, error) {
	if err := e.breaker.Allow(); err != nil {
		return 0, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	start := time.Now()
	head, err := e.rpcClient.BlockNumber(ctx)
	metrics.RPCCallDuration.WithLabelValues("eth_blockNumber").Observe(time.Since(start).Seconds())
	ratelimit.RecordRPCCall(e.chainLabel, "eth_blockNumber", err)
	if err != nil {
		e.breaker.RecordFailure()
		return 0, err
	}
	e.breaker.RecordSuccess()
	return head, nil
}

func (e *Engine) fetchLogs(ctx context.Context, from, to int64) ([]*rpc.Log, error) {
	if err := e.breaker.Allow(); err != nil {
		return nil, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	filter := rpc.LogFilter{
		FromBlock: formatHexInt64(from),
		ToBlock:   formatHexInt64(to),
		Address:   e.cfg.ContractAddress,
		Topics:    []interface{}{e.topics},
	}

	start := time.Now()
	logs, err := e.rpcClient.GetLogs(ctx, filter)
	metrics.RPCCallDuration.WithLabelValues("eth_getLogs").Observe(time.Since(start).Seconds())
	ratelimit.RecordRPCCall(e.chainLabel, "eth_getLogs", err)
	if err != nil {
		e.breaker.RecordFailure()
		return nil, err
	}
	e.breaker.RecordSuccess()
	return logs, nil
}

func formatHexInt64(v int64) string {
	return fmt.Sprintf("0x%x", v)
}

package store

import (
	"context"
	"time"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

// CursorRepository tracks the highest fully-applied block per watched
// contract, the single piece of state that makes restarts resumable.
type CursorRepository interface {
	Get(ctx context.Context, chainID int64, contractAddress string) (*model.IndexerCursor, error)
	// Advance moves the cursor forward; a value below the current one is a
	// no-op, preserving monotonicity under concurrent writers.
	Advance(ctx context.Context, chainID int64, contractAddress string, block int64) error
	// Set writes the cursor unconditionally, including backward. Only the
	// bootstrap and force-from-block paths use it.
	Set(ctx context.Context, chainID int64, contractAddress string, block int64) error
}

// EventRepository is the append-only raw log journal. Insert is idempotent
// on the (chain_id, contract_address, tx_hash, log_index) primary key; it
// reports inserted=false when the row already existed so callers can skip
// re-applying a projection side effect for a duplicate delivery.
type EventRepository interface {
	Insert(ctx context.Context, rec *model.EventRecord) (inserted bool, err error)
	ListByTask(ctx context.Context, chainID int64, contractAddress, taskID string, limit, offset int) ([]*model.EventRecord, error)
}

// TaskApply carries the fields a single projection rule may update. Pointer
// fields left nil are not written, so a rule only touches the columns it
// owns.
type TaskApply struct {
	Requester           *string
	SpecHash            *string
	PayoutAmount        *string
	MaxWinners          *int
	DepositFeeAmount    *string
	RecipientFeeAmount  *string
	Balance             *string
	Deadline            *int64
	ReviewWindow        *int64
	EscalationWindow    *int64
	Status              *model.TaskStatus
	// StatusOnlyIfNew applies Status only while the row has never advanced
	// past None. A retroactive TaskCreated re-scan refreshes identity,
	// economics, and timing fields without resetting an advanced status.
	StatusOnlyIfNew     bool
	IncrApprovedCount   int
	IncrWithdrawnCount  int
	IncrPendingSubs     int // may be negative; repo floors the column at zero
	IncrSubmissionCount int
	IncrClaimCount      int
	CreatedBlock        int64
	CreatedTx           string
	UpdatedBlock        int64
	UpdatedTx           string

	// CheckCompletionOnWithdraw, set alongside an IncrWithdrawnCount delta,
	// promotes the task to Completed once withdrawn_count reaches
	// max_winners. Withdrawal is what actually releases escrowed funds, so
	// it, not approval, is the completion signal.
	CheckCompletionOnWithdraw bool
}

// TaskRepository owns the TaskProjection table. Every write is a single
// upsert so retroactive re-scans of TaskCreated never clobber counters.
type TaskRepository interface {
	Apply(ctx context.Context, chainID int64, contractAddress, taskID string, apply TaskApply) error
	Get(ctx context.Context, chainID int64, contractAddress, taskID string) (*model.Task, error)
	List(ctx context.Context, chainID int64, contractAddress string, limit, offset int) ([]*model.Task, error)
	// ListByWallet returns tasks where wallet is either the requester or the
	// agent on any submission under the task.
	ListByWallet(ctx context.Context, chainID int64, contractAddress, wallet string, limit, offset int) ([]*model.Task, error)
}

// SubmissionApply mirrors TaskApply for the SubmissionProjection table.
type SubmissionApply struct {
	Agent        *string
	Status       *model.SubmissionStatus
	SubmittedAt  *int64
	ProofHash    *string
	CreatedBlock int64
	CreatedTx    string
	UpdatedBlock int64
	UpdatedTx    string
}

type SubmissionRepository interface {
	Apply(ctx context.Context, chainID int64, contractAddress, taskID string, submissionID int64, apply SubmissionApply) error
	Get(ctx context.Context, chainID int64, contractAddress, taskID string, submissionID int64) (*model.Submission, error)
	ListByTask(ctx context.Context, chainID int64, contractAddress, taskID string, limit, offset int) ([]*model.Submission, error)
}

// ProofRepository is append-only: the metadata service inserts rows, the
// read API never mutates them.
type ProofRepository interface {
	Insert(ctx context.Context, proof *model.OffchainProof) error
	Get(ctx context.Context, chainID int64, contractAddress, taskID string, submissionID int64) (*model.OffchainProof, error)
}

// MetadataRepository is a single-row-per-task upsert keyed by task id.
type MetadataRepository interface {
	Upsert(ctx context.Context, meta *model.OffchainTaskMetadata) error
	Get(ctx context.Context, taskID string) (*model.OffchainTaskMetadata, error)
}

// NonceRepository backs auth.NonceStore with a persistent table so replay
// protection survives process restarts.
type NonceRepository interface {
	Seen(ctx context.Context, nonce string) (bool, error)
	Insert(ctx context.Context, nonce string, expiresAt time.Time) error
}

// AppliedEvent bundles one decoded log with the projection side effects the
// Indexer Engine has derived from it. TaskUpdate and/or SubmissionUpdate are
// nil when the event carries no projection mutation (e.g. DisputeOpened's
// effect is entirely on the submission, never the task).
type AppliedEvent struct {
	Record           *model.EventRecord
	TaskID           string
	TaskUpdate       *TaskApply
	SubmissionID     int64
	HasSubmission    bool
	SubmissionUpdate *SubmissionApply
}

// ProjectionWriter applies one decoded log — the event journal insert plus
// its task/submission projection side effects — inside a single database
// transaction, satisfying the rule that a row only exists in escrow_events
// once its projection side effect has been durably applied alongside it.
// inserted mirrors EventRepository.Insert: false means this log was already
// journaled, so the caller knows the projection mutation was a no-op repeat
// rather than skip logging it as newly applied.
type ProjectionWriter interface {
	ApplyLog(ctx context.Context, ev AppliedEvent) (inserted bool, err error)
}

package indexer

import (
	"fmt"
	"strconv"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store"
)

// buildAppliedEvent turns one decoded log into the store.AppliedEvent the
// ProjectionWriter needs: the journal record plus whatever task/submission
// projection side effects that event name implies. Every rule here mirrors
// the event table the contract publishes; no rule reads current projection
// state, since the repositories apply deltas and COALESCE rather than
// overwrite.
func buildAppliedEvent(rec *model.EventRecord) (store.AppliedEvent, error) {
	if rec.TaskID == nil {
		return store.AppliedEvent{}, fmt.Errorf("event %s at %s:%d has no task_id", rec.EventName, rec.TxHash, rec.LogIndex)
	}
	ev := store.AppliedEvent{
		Record: rec,
		TaskID: *rec.TaskID,
	}

	switch rec.EventName {
	case model.EventTaskCreated:
		ev.TaskUpdate = &store.TaskApply{
			Requester:    argString(rec.Args, "requester"),
			SpecHash:     argString(rec.Args, "specHash"),
			PayoutAmount: argString(rec.Args, "payoutAmount"),
			MaxWinners:   argUint16(rec.Args, "maxWinners"),
			Deadline:     argDecimalInt64(rec.Args, "deadline"),
			Status:       taskStatus(model.TaskStatusCreated),
			// A re-scanned TaskCreated refreshes identity/econ/timing only;
			// it must not knock an advanced task back to Created.
			StatusOnlyIfNew: true,
			CreatedBlock:    rec.BlockNumber,
			CreatedTx:       rec.TxHash,
			UpdatedBlock:    rec.BlockNumber,
			UpdatedTx:       rec.TxHash,
		}

	case model.EventTaskFunded:
		ev.TaskUpdate = &store.TaskApply{
			DepositFeeAmount: argString(rec.Args, "depositFeePaid"),
			Balance:          argString(rec.Args, "escrowedAmount"),
			Status:           taskStatus(model.TaskStatusFunded),
			UpdatedBlock:     rec.BlockNumber,
			UpdatedTx:        rec.TxHash,
		}

	case model.EventTaskCancelled, model.EventTaskRefunded:
		ev.TaskUpdate = &store.TaskApply{
			Balance:      zeroAmount(),
			Status:       taskStatus(model.TaskStatusCancelled),
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}

	case model.EventTaskClosed:
		ev.TaskUpdate = &store.TaskApply{
			Balance:      zeroAmount(),
			Status:       taskStatus(model.TaskStatusClosed),
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}

	case model.EventClaimed:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		ev.SubmissionUpdate = &store.SubmissionApply{
			Agent:        argString(rec.Args, "agent"),
			Status:       submissionStatus(model.SubmissionStatusClaimed),
			CreatedBlock: rec.BlockNumber,
			CreatedTx:    rec.TxHash,
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}
		ev.TaskUpdate = &store.TaskApply{
			IncrClaimCount: 1,
			UpdatedBlock:   rec.BlockNumber,
			UpdatedTx:      rec.TxHash,
		}

	case model.EventProofSubmitted:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		ev.SubmissionUpdate = &store.SubmissionApply{
			Status:       submissionStatus(model.SubmissionStatusSubmitted),
			ProofHash:    argString(rec.Args, "proofHash"),
			SubmittedAt:  argDecimalInt64(rec.Args, "submittedAt"),
			CreatedBlock: rec.BlockNumber,
			CreatedTx:    rec.TxHash,
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}
		ev.TaskUpdate = &store.TaskApply{
			IncrPendingSubs:     1,
			IncrSubmissionCount: 1,
			UpdatedBlock:        rec.BlockNumber,
			UpdatedTx:           rec.TxHash,
		}

	case model.EventApproved:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		ev.SubmissionUpdate = &store.SubmissionApply{
			Status:       submissionStatus(model.SubmissionStatusApproved),
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}
		ev.TaskUpdate = &store.TaskApply{
			IncrApprovedCount: 1,
			IncrPendingSubs:   -1,
			UpdatedBlock:      rec.BlockNumber,
			UpdatedTx:         rec.TxHash,
		}

	case model.EventRejected:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		ev.SubmissionUpdate = &store.SubmissionApply{
			Status:       submissionStatus(model.SubmissionStatusRejected),
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}
		ev.TaskUpdate = &store.TaskApply{
			IncrPendingSubs: -1,
			UpdatedBlock:    rec.BlockNumber,
			UpdatedTx:       rec.TxHash,
		}

	case model.EventWithdrawn:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		ev.SubmissionUpdate = &store.SubmissionApply{
			Status:       submissionStatus(model.SubmissionStatusWithdrawn),
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}
		// No contract event explicitly promotes a task to Completed;
		// withdrawal is the action that releases escrowed funds, so a fully
		// withdrawn task is marked Completed here.
		ev.TaskUpdate = &store.TaskApply{
			IncrWithdrawnCount:        1,
			CheckCompletionOnWithdraw: true,
			UpdatedBlock:              rec.BlockNumber,
			UpdatedTx:                 rec.TxHash,
		}

	case model.EventDisputeOpened:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		ev.SubmissionUpdate = &store.SubmissionApply{
			Status:       submissionStatus(model.SubmissionStatusDisputed),
			UpdatedBlock: rec.BlockNumber,
			UpdatedTx:    rec.TxHash,
		}

	case model.EventDisputeResolved:
		submissionID, err := argDecimalInt64Required(rec.Args, "submissionId")
		if err != nil {
			return store.AppliedEvent{}, err
		}
		approved, _ := rec.Args["approved"].(bool)
		ev.HasSubmission = true
		ev.SubmissionID = submissionID
		if approved {
			ev.SubmissionUpdate = &store.SubmissionApply{
				Status:       submissionStatus(model.SubmissionStatusApproved),
				UpdatedBlock: rec.BlockNumber,
				UpdatedTx:    rec.TxHash,
			}
			ev.TaskUpdate = &store.TaskApply{
				IncrApprovedCount: 1,
				IncrPendingSubs:   -1,
				UpdatedBlock:      rec.BlockNumber,
				UpdatedTx:         rec.TxHash,
			}
		} else {
			ev.SubmissionUpdate = &store.SubmissionApply{
				Status:       submissionStatus(model.SubmissionStatusRejected),
				UpdatedBlock: rec.BlockNumber,
				UpdatedTx:    rec.TxHash,
			}
			ev.TaskUpdate = &store.TaskApply{
				IncrPendingSubs: -1,
				UpdatedBlock:    rec.BlockNumber,
				UpdatedTx:       rec.TxHash,
			}
		}

	default:
		return store.AppliedEvent{}, fmt.Errorf("no projection rule for event %s", rec.EventName)
	}

	return ev, nil
}

func taskStatus(s model.TaskStatus) *model.TaskStatus { return &s }

func submissionStatus(s model.SubmissionStatus) *model.SubmissionStatus { return &s }

func zeroAmount() *string {
	zero := "0"
	return &zero
}

func argString(args map[string]interface{}, key string) *string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// argUint16 reads a fixed-width uint16 event field. go-ethereum's ABI
// unpacker decodes uint8/16/32/64 into native Go integer types rather than
// *big.Int, unlike the wider widths this contract otherwise uses.
func argUint16(args map[string]interface{}, key string) *int {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := v.(uint16)
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}

// argDecimalInt64 reads a wide integer field (decoded as a decimal string
// by the log decoder) and parses it as int64. Non-indexed uint40/uint64
// fields such as deadline and submittedAt arrive this way.
func argDecimalInt64(args map[string]interface{}, key string) *int64 {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func argDecimalInt64Required(args map[string]interface{}, key string) (int64, error) {
	n := argDecimalInt64(args, key)
	if n == nil {
		return 0, fmt.Errorf("missing or malformed %s", key)
	}
	return *n, nil
}

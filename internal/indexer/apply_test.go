package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

func newRecord(name model.EventName, taskID string, args map[string]interface{}) *model.EventRecord {
	return &model.EventRecord{
		ChainID:         8453,
		ContractAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TxHash:          "0xtx1",
		LogIndex:        0,
		BlockNumber:     100,
		BlockHash:       "0xblock1",
		EventName:       name,
		TaskID:          &taskID,
		Args:            args,
	}
}

func TestBuildAppliedEvent_TaskCreated(t *testing.T) {
	rec := newRecord(model.EventTaskCreated, "1", map[string]interface{}{
		"requester":    "0xrequester",
		"payoutAmount": "1000000",
		"maxWinners":   uint16(3),
		"deadline":     "1700000000",
		"specHash":     "0xspec",
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	require.NotNil(t, ev.TaskUpdate)

	assert.Equal(t, "1", ev.TaskID)
	assert.Equal(t, "0xrequester", *ev.TaskUpdate.Requester)
	assert.Equal(t, "1000000", *ev.TaskUpdate.PayoutAmount)
	assert.Equal(t, 3, *ev.TaskUpdate.MaxWinners)
	assert.Equal(t, int64(1700000000), *ev.TaskUpdate.Deadline)
	assert.Equal(t, "0xspec", *ev.TaskUpdate.SpecHash)
	assert.Equal(t, model.TaskStatusCreated, *ev.TaskUpdate.Status)
	assert.True(t, ev.TaskUpdate.StatusOnlyIfNew)
	assert.False(t, ev.HasSubmission)
}

func TestBuildAppliedEvent_TaskFunded_SetsBalanceAndDepositFee(t *testing.T) {
	rec := newRecord(model.EventTaskFunded, "1", map[string]interface{}{
		"escrowedAmount": "990000",
		"depositFeePaid": "10000",
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	require.NotNil(t, ev.TaskUpdate)

	assert.Equal(t, "990000", *ev.TaskUpdate.Balance)
	assert.Equal(t, "10000", *ev.TaskUpdate.DepositFeeAmount)
	assert.Nil(t, ev.TaskUpdate.RecipientFeeAmount)
	assert.Equal(t, model.TaskStatusFunded, *ev.TaskUpdate.Status)
}

func TestBuildAppliedEvent_Claimed_IncrementsClaimCount(t *testing.T) {
	rec := newRecord(model.EventClaimed, "1", map[string]interface{}{
		"submissionId": "7",
		"agent":        "0xagent",
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	require.True(t, ev.HasSubmission)
	assert.Equal(t, int64(7), ev.SubmissionID)
	assert.Equal(t, "0xagent", *ev.SubmissionUpdate.Agent)
	assert.Equal(t, model.SubmissionStatusClaimed, *ev.SubmissionUpdate.Status)
	require.NotNil(t, ev.TaskUpdate)
	assert.Equal(t, 1, ev.TaskUpdate.IncrClaimCount)
}

func TestBuildAppliedEvent_ProofSubmitted_LeavesSubmittedAtNil(t *testing.T) {
	// The ProofSubmitted event ABI carries no submittedAt field, so the
	// projection leaves it nil rather than inventing a timestamp.
	rec := newRecord(model.EventProofSubmitted, "1", map[string]interface{}{
		"submissionId": "7",
		"agent":        "0xagent",
		"proofHash":    "0xproof",
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	require.NotNil(t, ev.SubmissionUpdate)
	assert.Nil(t, ev.SubmissionUpdate.SubmittedAt)
	assert.Equal(t, "0xproof", *ev.SubmissionUpdate.ProofHash)
	require.NotNil(t, ev.TaskUpdate)
	assert.Equal(t, 1, ev.TaskUpdate.IncrPendingSubs)
	assert.Equal(t, 1, ev.TaskUpdate.IncrSubmissionCount)
}

func TestBuildAppliedEvent_Withdrawn_SetsCheckCompletionFlag(t *testing.T) {
	rec := newRecord(model.EventWithdrawn, "1", map[string]interface{}{
		"submissionId": "7",
		"agent":        "0xagent",
		"netPayout":    "900",
		"recipientFee": "100",
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	require.NotNil(t, ev.TaskUpdate)
	assert.True(t, ev.TaskUpdate.CheckCompletionOnWithdraw)
	assert.Equal(t, 1, ev.TaskUpdate.IncrWithdrawnCount)
	assert.Equal(t, model.SubmissionStatusWithdrawn, *ev.SubmissionUpdate.Status)
}

func TestBuildAppliedEvent_DisputeResolved_Approved(t *testing.T) {
	rec := newRecord(model.EventDisputeResolved, "1", map[string]interface{}{
		"submissionId": "7",
		"by":           "0xarbiter",
		"approved":     true,
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusApproved, *ev.SubmissionUpdate.Status)
	assert.Equal(t, 1, ev.TaskUpdate.IncrApprovedCount)
	assert.Equal(t, -1, ev.TaskUpdate.IncrPendingSubs)
}

func TestBuildAppliedEvent_DisputeResolved_Rejected(t *testing.T) {
	rec := newRecord(model.EventDisputeResolved, "1", map[string]interface{}{
		"submissionId": "7",
		"by":           "0xarbiter",
		"approved":     false,
	})

	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusRejected, *ev.SubmissionUpdate.Status)
	assert.Equal(t, 0, ev.TaskUpdate.IncrApprovedCount)
	assert.Equal(t, -1, ev.TaskUpdate.IncrPendingSubs)
}

func TestBuildAppliedEvent_TaskCancelledAndRefunded_ZeroBalance(t *testing.T) {
	for _, name := range []model.EventName{model.EventTaskCancelled, model.EventTaskRefunded} {
		rec := newRecord(name, "1", map[string]interface{}{"refunded": "500"})
		ev, err := buildAppliedEvent(rec)
		require.NoError(t, err)
		assert.Equal(t, "0", *ev.TaskUpdate.Balance)
		assert.Equal(t, model.TaskStatusCancelled, *ev.TaskUpdate.Status)
	}
}

func TestBuildAppliedEvent_TaskClosed_ZeroBalance(t *testing.T) {
	rec := newRecord(model.EventTaskClosed, "1", map[string]interface{}{"refunded": "0"})
	ev, err := buildAppliedEvent(rec)
	require.NoError(t, err)
	assert.Equal(t, "0", *ev.TaskUpdate.Balance)
	assert.Equal(t, model.TaskStatusClosed, *ev.TaskUpdate.Status)
}

func TestBuildAppliedEvent_MissingTaskID_Errors(t *testing.T) {
	rec := newRecord(model.EventTaskCreated, "1", nil)
	rec.TaskID = nil
	_, err := buildAppliedEvent(rec)
	assert.Error(t, err)
}

func TestBuildAppliedEvent_MalformedSubmissionID_Errors(t *testing.T) {
	rec := newRecord(model.EventClaimed, "1", map[string]interface{}{
		"agent": "0xagent",
	})
	_, err := buildAppliedEvent(rec)
	assert.Error(t, err)
}

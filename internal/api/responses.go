package api

import (
	"encoding/json"
	"net/http"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// taskResponse is the stable wire shape for a TaskProjection row, optionally
// joined with its off-chain metadata. Every on-chain integer is a decimal
// string; nothing here is ever a float64.
type taskResponse struct {
	TaskID    string  `json:"taskId"`
	Requester *string `json:"requester"`
	SpecHash  *string `json:"specHash"`

	PayoutAmount       *string `json:"payoutAmount"`
	MaxWinners         *int    `json:"maxWinners"`
	DepositFeeAmount   *string `json:"depositFeeAmount"`
	RecipientFeeAmount *string `json:"recipientFeeAmount"`
	Balance            *string `json:"balance"`

	Deadline         *int64 `json:"deadline"`
	ReviewWindow     *int64 `json:"reviewWindow"`
	EscalationWindow *int64 `json:"escalationWindow"`

	ApprovedCount      int   `json:"approvedCount"`
	WithdrawnCount     int   `json:"withdrawnCount"`
	PendingSubmissions int   `json:"pendingSubmissions"`
	SubmissionCount    int64 `json:"submissionCount"`
	ClaimCount         int64 `json:"claimCount"`

	Status int `json:"status"`

	CreatedBlock int64  `json:"createdBlock"`
	CreatedTx    string `json:"createdTx"`
	UpdatedBlock int64  `json:"updatedBlock"`
	UpdatedTx    string `json:"updatedTx"`

	Title        *string `json:"title,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

func toTaskResponse(t *model.Task, meta *model.OffchainTaskMetadata) taskResponse {
	resp := taskResponse{
		TaskID:             t.TaskID,
		Requester:          t.Requester,
		SpecHash:           t.SpecHash,
		PayoutAmount:       t.PayoutAmount,
		MaxWinners:         t.MaxWinners,
		DepositFeeAmount:   t.DepositFeeAmount,
		RecipientFeeAmount: t.RecipientFeeAmount,
		Balance:            t.Balance,
		Deadline:           t.Deadline,
		ReviewWindow:       t.ReviewWindow,
		EscalationWindow:   t.EscalationWindow,
		ApprovedCount:      t.ApprovedCount,
		WithdrawnCount:     t.WithdrawnCount,
		PendingSubmissions: t.PendingSubmissions,
		SubmissionCount:    t.SubmissionCount,
		ClaimCount:         t.ClaimCount,
		Status:             int(t.Status),
		CreatedBlock:       t.CreatedBlock,
		CreatedTx:          t.CreatedTx,
		UpdatedBlock:       t.UpdatedBlock,
		UpdatedTx:          t.UpdatedTx,
	}
	if meta != nil {
		resp.Title = &meta.Title
		resp.Instructions = &meta.Instructions
	}
	return resp
}

// submissionResponse is the stable wire shape for a SubmissionProjection
// row. ProofText is populated only for callers the read-privacy rule
// admits (the task's requester or the submission's own agent).
type submissionResponse struct {
	TaskID       string  `json:"taskId"`
	SubmissionID int64   `json:"submissionId"`
	Agent        *string `json:"agent"`
	Status       int     `json:"status"`
	SubmittedAt  *int64  `json:"submittedAt"`
	ProofHash    *string `json:"proofHash"`
	ProofText    *string `json:"proofText"`
	CreatedBlock int64   `json:"createdBlock"`
	CreatedTx    string  `json:"createdTx"`
	UpdatedBlock int64   `json:"updatedBlock"`
	UpdatedTx    string  `json:"updatedTx"`
}

func toSubmissionResponse(s *model.Submission, proofText *string) submissionResponse {
	return submissionResponse{
		TaskID:       s.TaskID,
		SubmissionID: s.SubmissionID,
		Agent:        s.Agent,
		Status:       int(s.Status),
		SubmittedAt:  s.SubmittedAt,
		ProofHash:    s.ProofHash,
		ProofText:    proofText,
		CreatedBlock: s.CreatedBlock,
		CreatedTx:    s.CreatedTx,
		UpdatedBlock: s.UpdatedBlock,
		UpdatedTx:    s.UpdatedTx,
	}
}

type eventResponse struct {
	TxHash      string                 `json:"txHash"`
	LogIndex    int64                  `json:"logIndex"`
	BlockNumber int64                  `json:"blockNumber"`
	BlockHash   string                 `json:"blockHash"`
	EventName   string                 `json:"eventName"`
	TaskID      *string                `json:"taskId"`
	Args        map[string]interface{} `json:"args"`
}

func toEventResponse(e *model.EventRecord) eventResponse {
	return eventResponse{
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		BlockNumber: e.BlockNumber,
		BlockHash:   e.BlockHash,
		EventName:   string(e.EventName),
		TaskID:      e.TaskID,
		Args:        e.Args,
	}
}

type escrowResponse struct {
	USDC            string `json:"usdc"`
	Treasury        string `json:"treasury"`
	Arbiter         string `json:"arbiter"`
	DepositFeeBps   int64  `json:"depositFeeBps"`
	RecipientFeeBps int64  `json:"recipientFeeBps"`
}

type indexerStatusResponse struct {
	Head   int64  `json:"head"`
	Cursor int64  `json:"cursor"`
	Last   string `json:"last"`
	Error  string `json:"error,omitempty"`
}

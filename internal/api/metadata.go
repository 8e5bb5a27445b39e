package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/apierr"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/domain/model"
)

// canonicalSpecHash computes keccak256 over a sorted-key, no-whitespace,
// UTF-8 JSON encoding of {instructions, title}. encoding/json already
// marshals map keys in sorted order and emits no extra whitespace, which
// gives the canonical form without a bespoke encoder.
func canonicalSpecHash(title, instructions string) (string, error) {
	canonical, err := json.Marshal(map[string]string{
		"title":        title,
		"instructions": instructions,
	})
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(canonical).Hex(), nil
}

type saveMetadataRequest struct {
	Title        string `json:"title"`
	Instructions string `json:"instructions"`
	SpecHash     string `json:"specHash"`
}

// handleSaveMetadata attaches title/instructions to a task, bound to its
// on-chain specHash. withAuth and requireAuth have already run, so the
// caller's wallet identity is trusted here.
func (s *Server) handleSaveMetadata(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	var req saveMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("invalid_json_body"))
		return
	}
	if req.SpecHash == "" {
		apierr.Write(w, apierr.Validation("spec_hash_required"))
		return
	}

	task, err := s.Tasks.Get(r.Context(), s.ChainID, s.ContractAddress, taskID)
	if err != nil {
		s.Logger.Error("get task failed", "error", err, "task_id", taskID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}
	if task == nil {
		apierr.Write(w, apierr.NotFound("task_not_found"))
		return
	}

	wallet := authenticatedWallet(r)
	if task.Requester == nil || !strings.EqualFold(*task.Requester, wallet) {
		apierr.Write(w, apierr.Forbidden("not_requester"))
		return
	}

	if task.SpecHash != nil && !strings.EqualFold(*task.SpecHash, req.SpecHash) {
		apierr.Write(w, apierr.Conflict("spec_hash_mismatch"))
		return
	}

	computedHash, err := canonicalSpecHash(req.Title, req.Instructions)
	if err != nil {
		s.Logger.Error("compute spec hash failed", "error", err, "task_id", taskID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}
	if !strings.EqualFold(computedHash, req.SpecHash) {
		apierr.Write(w, apierr.Validation("spec_hash_content_mismatch"))
		return
	}

	meta := &model.OffchainTaskMetadata{
		TaskID:       taskID,
		SpecHash:     req.SpecHash,
		Title:        req.Title,
		Instructions: req.Instructions,
		CreatedBy:    wallet,
		UpdatedAt:    time.Now(),
	}
	if err := s.Metadata.Upsert(r.Context(), meta); err != nil {
		s.Logger.Error("upsert metadata failed", "error", err, "task_id", taskID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type saveProofRequest struct {
	ProofText string  `json:"proofText"`
	ProofHash string  `json:"proofHash"`
	TxHash    *string `json:"txHash,omitempty"`
}

// handleSaveProof appends a proof text row for a submission, bound to its
// on-chain proofHash and the submitting agent's wallet.
func (s *Server) handleSaveProof(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	submissionID, err := strconv.ParseInt(r.PathValue("sid"), 10, 64)
	if err != nil {
		apierr.Write(w, apierr.Validation("invalid_submission_id"))
		return
	}

	var req saveProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Validation("invalid_json_body"))
		return
	}
	if req.ProofHash == "" {
		apierr.Write(w, apierr.Validation("proof_hash_required"))
		return
	}

	submission, err := s.Submissions.Get(r.Context(), s.ChainID, s.ContractAddress, taskID, submissionID)
	if err != nil {
		s.Logger.Error("get submission failed", "error", err, "task_id", taskID, "submission_id", submissionID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}
	if submission == nil {
		apierr.Write(w, apierr.NotFound("submission_not_found"))
		return
	}

	wallet := authenticatedWallet(r)
	if submission.Agent == nil || !strings.EqualFold(*submission.Agent, wallet) {
		apierr.Write(w, apierr.Forbidden("not_agent"))
		return
	}

	if submission.ProofHash != nil && !strings.EqualFold(*submission.ProofHash, req.ProofHash) {
		apierr.Write(w, apierr.Conflict("proof_hash_mismatch"))
		return
	}

	computedHash := crypto.Keccak256Hash([]byte(req.ProofText)).Hex()
	if !strings.EqualFold(computedHash, req.ProofHash) {
		apierr.Write(w, apierr.Validation("proof_hash_content_mismatch"))
		return
	}

	proof := &model.OffchainProof{
		ChainID:         s.ChainID,
		ContractAddress: s.ContractAddress,
		TaskID:          taskID,
		SubmissionID:    submissionID,
		Wallet:          wallet,
		ProofText:       req.ProofText,
		ProofHash:       req.ProofHash,
		TxHash:          req.TxHash,
		CreatedAt:       time.Now(),
	}
	if err := s.Proofs.Insert(r.Context(), proof); err != nil {
		s.Logger.Error("insert proof failed", "error", err, "task_id", taskID, "submission_id", submissionID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

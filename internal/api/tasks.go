package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/apierr"
)

const (
	defaultTaskListLimit       = 200
	defaultSubmissionListLimit = 200
	maxSubmissionListLimit     = 500
	defaultEventListLimit      = 200
)

// handleListTasks serves GET /tasks: the latest 200 tasks joined with
// their off-chain metadata.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Tasks.List(r.Context(), s.ChainID, s.ContractAddress, defaultTaskListLimit, 0)
	if err != nil {
		s.Logger.Error("list tasks failed", "error", err)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		meta, err := s.Metadata.Get(r.Context(), t.TaskID)
		if err != nil {
			s.Logger.Error("load task metadata failed", "error", err, "task_id", t.TaskID)
			apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
			return
		}
		out = append(out, toTaskResponse(t, meta))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetTask serves GET /tasks/{id}.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
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

	meta, err := s.Metadata.Get(r.Context(), taskID)
	if err != nil {
		s.Logger.Error("load task metadata failed", "error", err, "task_id", taskID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task, meta))
}

// handleListSubmissions serves GET /tasks/{id}/submissions: ordered by
// numeric submission_id ascending, proof_text visible only to the task's
// requester or that submission's agent, with offset pagination via
// ?cursor=<row offset>&limit=<n> capped at 500 rows.
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

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

	limit := parseLimit(r, defaultSubmissionListLimit, maxSubmissionListLimit)
	offset := parseCursorOffset(r)

	submissions, err := s.Submissions.ListByTask(r.Context(), s.ChainID, s.ContractAddress, taskID, limit, offset)
	if err != nil {
		s.Logger.Error("list submissions failed", "error", err, "task_id", taskID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}

	wallet := authenticatedWallet(r)
	canSeeAnyProof := task.Requester != nil && strings.EqualFold(*task.Requester, wallet)

	out := make([]submissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		var proofText *string
		canSeeThisProof := canSeeAnyProof || (sub.Agent != nil && wallet != "" && strings.EqualFold(*sub.Agent, wallet))
		if canSeeThisProof {
			proof, err := s.Proofs.Get(r.Context(), s.ChainID, s.ContractAddress, taskID, sub.SubmissionID)
			if err != nil {
				s.Logger.Error("load proof failed", "error", err, "task_id", taskID, "submission_id", sub.SubmissionID)
				apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
				return
			}
			if proof != nil {
				proofText = &proof.ProofText
			}
		}
		out = append(out, toSubmissionResponse(sub, proofText))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListEvents serves GET /tasks/{id}/events: the raw event journal
// ordered by (block_number, log_index).
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	limit := parseLimit(r, defaultEventListLimit, maxSubmissionListLimit)
	offset := parseCursorOffset(r)

	events, err := s.Events.ListByTask(r.Context(), s.ChainID, s.ContractAddress, taskID, limit, offset)
	if err != nil {
		s.Logger.Error("list events failed", "error", err, "task_id", taskID)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWalletTasks serves GET /wallets/{address}/tasks: tasks where the
// address is the requester or any submission's agent.
func (s *Server) handleWalletTasks(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.PathValue("address"))
	tasks, err := s.Tasks.ListByWallet(r.Context(), s.ChainID, s.ContractAddress, address, defaultTaskListLimit, 0)
	if err != nil {
		s.Logger.Error("list wallet tasks failed", "error", err, "wallet", address)
		apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		meta, err := s.Metadata.Get(r.Context(), t.TaskID)
		if err != nil {
			s.Logger.Error("load task metadata failed", "error", err, "task_id", t.TaskID)
			apierr.Write(w, apierr.New(apierr.CodeInternal, ""))
			return
		}
		out = append(out, toTaskResponse(t, meta))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleIndexerStatus serves GET /indexer/status.
func (s *Server) handleIndexerStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Engine.Status()
	writeJSON(w, http.StatusOK, indexerStatusResponse{
		Head:   status.Head,
		Cursor: status.Cursor,
		Last:   status.LastStep,
		Error:  status.LastError,
	})
}

// handleEscrowView serves GET /escrow: contract view values cached by
// internal/escrowview.
func (s *Server) handleEscrowView(w http.ResponseWriter, r *http.Request) {
	v := s.View.Get()
	writeJSON(w, http.StatusOK, escrowResponse{
		USDC:            v.USDC,
		Treasury:        v.Treasury,
		Arbiter:         v.Arbiter,
		DepositFeeBps:   v.DepositFeeBps,
		RecipientFeeBps: v.RecipientFeeBps,
	})
}

// handleCheckFunding serves the legacy POST /tasks/{id}/check-funding
// endpoint: it re-reads the current task projection row and returns it
// unchanged. It performs no contract call; authoritative state is on-chain
// and the projection catches up on the next poll tick.
func (s *Server) handleCheckFunding(w http.ResponseWriter, r *http.Request) {
	s.handleGetTask(w, r)
}

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// parseCursorOffset interprets ?cursor as a simple row offset. The
// submission_id ordering is dense enough in practice that an offset-based
// cursor is an adequate keyset substitute without tracking the last-seen
// id client-side.
func parseCursorOffset(r *http.Request) int {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

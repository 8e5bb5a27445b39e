// Package api implements the Read API and the off-chain Metadata Service
// described by the design: a handful of GET endpoints over the projection
// store, two wallet-signature-authenticated POST endpoints that attach
// off-chain metadata and proof text to on-chain commitments, and one legacy
// no-op POST retained for historical compatibility.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/auth"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/escrowview"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/indexer"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// IndexerStatus is the subset of indexer.Engine's surface the status
// endpoint needs, narrow enough to fake in tests.
type IndexerStatus interface {
	Status() indexer.Status
}

// EscrowView is the subset of escrowview.Cache's surface the /escrow
// endpoint needs.
type EscrowView interface {
	Get() escrowview.View
}

// Server wires the Read API and Metadata Service handlers to their backing
// repositories. ChainID/ContractAddress scope every query to the single
// watched contract this process indexes.
type Server struct {
	ChainID         int64
	ContractAddress string

	Tasks       store.TaskRepository
	Submissions store.SubmissionRepository
	Events      store.EventRepository
	Proofs      store.ProofRepository
	Metadata    store.MetadataRepository

	Verifier *auth.Verifier
	Engine   IndexerStatus
	View     EscrowView

	Logger *slog.Logger

	RateLimitWindow time.Duration
	RateLimitMax    int
	TrustProxy      bool
}

// Handler returns the complete HTTP handler for the public API surface,
// wrapped with per-IP rate limiting.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /tasks", s.withAuth(s.handleListTasks))
	mux.HandleFunc("GET /tasks/{id}", s.withAuth(s.handleGetTask))
	mux.HandleFunc("GET /tasks/{id}/submissions", s.withAuth(s.handleListSubmissions))
	mux.HandleFunc("GET /tasks/{id}/events", s.withAuth(s.handleListEvents))
	mux.HandleFunc("GET /wallets/{address}/tasks", s.withAuth(s.handleWalletTasks))
	mux.HandleFunc("GET /indexer/status", s.withAuth(s.handleIndexerStatus))
	mux.HandleFunc("GET /escrow", s.withAuth(s.handleEscrowView))
	mux.HandleFunc("POST /tasks/{id}/check-funding", s.withAuth(s.handleCheckFunding))
	mux.HandleFunc("POST /tasks/{id}/metadata", s.withAuth(s.requireAuth(withAuditLog(s.Logger, s.handleSaveMetadata))))
	mux.HandleFunc("POST /tasks/{id}/submissions/{sid}/proof", s.withAuth(s.requireAuth(withAuditLog(s.Logger, s.handleSaveProof))))

	limiter := newRateLimitMiddleware(s.RateLimitWindow, s.RateLimitMax, s.TrustProxy, s.Logger)
	return limiter.Wrap(withMetrics(mux))
}

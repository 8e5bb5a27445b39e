package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/apierr"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/auth"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/metrics"
)

type contextKey string

const authenticatedWalletKey contextKey = "authenticated_wallet"

// withAuth verifies the request envelope (headers + body) on every request,
// attaching the recovered wallet address to the context when present. A
// request with no auth headers passes through anonymously; handlers that
// need a wallet call requireAuth to enforce that one was recovered.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			apierr.Write(w, apierr.Validation("body_too_large_or_unreadable"))
			return
		}

		env := auth.Envelope{
			WalletAddress: r.Header.Get("wallet-address"),
			Signature:     r.Header.Get("signature"),
			Timestamp:     r.Header.Get("timestamp"),
			Nonce:         r.Header.Get("nonce"),
			Method:        r.Method,
			Path:          r.URL.Path,
			Body:          body,
		}

		wallet, err := s.Verifier.Verify(r.Context(), env)
		if err != nil {
			metrics.AuthVerificationsTotal.WithLabelValues(authFailureReason(err)).Inc()
			apierr.Write(w, apierr.Unauthorized(authFailureReason(err)))
			return
		}
		if wallet != "" {
			metrics.AuthVerificationsTotal.WithLabelValues("ok").Inc()
		} else {
			metrics.AuthVerificationsTotal.WithLabelValues("anonymous").Inc()
		}

		ctx := context.WithValue(r.Context(), authenticatedWalletKey, wallet)
		r = r.WithContext(ctx)
		// Restore the body so handlers that decode JSON from r.Body directly
		// (rather than through the envelope) see the full bytes.
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r)
	}
}

// requireAuth rejects the request with 401 unless withAuth recovered a
// wallet address.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if authenticatedWallet(r) == "" {
			apierr.Write(w, apierr.Unauthorized("signature_required"))
			return
		}
		next(w, r)
	}
}

func authenticatedWallet(r *http.Request) string {
	wallet, _ := r.Context().Value(authenticatedWalletKey).(string)
	return wallet
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, auth.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrClockSkew):
		return "clock_skew"
	case errors.Is(err, auth.ErrNonceReplayed):
		return "nonce_already_used"
	case errors.Is(err, auth.ErrSignerMismatch):
		return "signer_mismatch"
	default:
		return "verification_failed"
	}
}

// withAuditLog logs every mutating request with a generated request ID for
// correlation, mirroring the admin audit trail but scoped to this API's
// metadata/proof writes.
func withAuditLog(logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		metrics.MetadataWritesTotal.WithLabelValues(routeTemplate(r.URL.Path), statusClass(rec.status)).Inc()
		logger.Info("mutating request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"wallet", authenticatedWallet(r),
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// withMetrics records request counts and latency per route template, as
// derived from the literal path by routeTemplate (the id segment is
// collapsed to {id}, so /tasks/{id} for task 7 and task 8 share one
// series). The label is not read from the mux's registered pattern.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		route := routeTemplate(r.URL.Path)
		metrics.APIRequestsTotal.WithLabelValues(route, statusClass(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routeTemplate collapses a request path's variable segments (task ids,
// submission ids, wallet addresses) into {id} so the metrics series stays
// bounded regardless of how many distinct tasks exist.
func routeTemplate(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := range segments {
		if i == 0 {
			continue
		}
		prev := segments[i-1]
		if prev == "tasks" || prev == "submissions" || prev == "wallets" {
			segments[i] = "{id}"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

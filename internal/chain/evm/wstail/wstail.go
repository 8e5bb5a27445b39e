// Package wstail implements the Indexer Engine's optional live tail: a
// persistent eth_subscribe("logs", ...) connection over a websocket, pushing
// newly mined logs as they arrive rather than waiting for the next poll
// tick. It reuses the JSON-RPC Request/Log shapes from internal/chain/evm/rpc
// and reconnects with backoff on any read/write error, since a dropped
// subscription must never take the process down — the polling loop remains
// the source of truth regardless of whether the tail is connected.
package wstail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
)

const (
	subscribeRequestID = 1
	reconnectBackoff   = 5 * time.Second
)

type subscriptionNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// Tail streams decoded logs matching address+topics from a chain_rpc_ws_url
// endpoint. Logs arrive with no ordering guarantee relative to the polling
// backfill; that is safe because event insertion and projection application
// are idempotent.
type Tail struct {
	wsURL   string
	address string
	topics  []string
	logger  *slog.Logger

	dialer *websocket.Dialer
}

func New(wsURL, address string, topics []string, logger *slog.Logger) *Tail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tail{
		wsURL:   wsURL,
		address: address,
		topics:  topics,
		logger:  logger.With("component", "evm_wstail"),
		dialer:  websocket.DefaultDialer,
	}
}

// Run connects and forwards logs to handle until ctx is cancelled,
// reconnecting on error. handle is called synchronously per log; it should
// not block for long since the websocket read loop stalls while it runs.
func (t *Tail) Run(ctx context.Context, handle func(*rpc.Log)) error {
	if t.wsURL == "" {
		return nil
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.runOnce(ctx, handle); err != nil {
			t.logger.Warn("live tail connection error, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

func (t *Tail) runOnce(ctx context.Context, handle func(*rpc.Log)) error {
	conn, _, err := t.dialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	sub := rpc.Request{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  "eth_subscribe",
		Params: []interface{}{"logs", map[string]interface{}{
			"address": t.address,
			"topics":  [][]string{t.topics},
		}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send eth_subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
				return fmt.Errorf("read websocket message: %w", err)
			}
		}

		var notif subscriptionNotification
		if err := json.Unmarshal(raw, &notif); err != nil || notif.Method != "eth_subscription" {
			continue
		}

		var log rpc.Log
		if err := json.Unmarshal(notif.Params.Result, &log); err != nil {
			t.logger.Warn("failed to decode subscription log", "error", err)
			continue
		}
		handle(&log)
	}
}

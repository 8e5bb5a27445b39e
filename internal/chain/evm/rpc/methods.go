package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}

	blockNumber, err := ParseHexInt64(hexNum)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return blockNumber, nil
}

func (c *Client) GetBlockByNumber(ctx context.Context, blockNumber int64) (*Block, error) {
	params := []interface{}{formatHexInt64(blockNumber), false}
	result, err := c.call(ctx, "eth_getBlockByNumber", params)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber(%d): %w", blockNumber, err)
	}
	if string(result) == "null" {
		return nil, nil
	}

	var block Block
	if err := json.Unmarshal(result, &block); err != nil {
		return nil, fmt.Errorf("unmarshal block: %w", err)
	}
	return &block, nil
}

// GetLogs fetches logs matching filter in a single eth_getLogs call. Callers
// are responsible for windowing FromBlock/ToBlock to stay under whatever
// range limit the upstream node enforces.
func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]*Log, error) {
	result, err := c.call(ctx, "eth_getLogs", []interface{}{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs: %w", err)
	}

	var logs []*Log
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}

	return logs, nil
}

// Call performs an eth_call against the given address with the given
// ABI-encoded data, at the latest block. Used for the contract-view cache
// (usdc/treasury/arbiter/fee constants) rather than for log decoding.
func (c *Client) Call(ctx context.Context, to, data string) (string, error) {
	params := []interface{}{
		map[string]string{"to": to, "data": data},
		"latest",
	}
	result, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return "", fmt.Errorf("eth_call(%s): %w", to, err)
	}

	var hexResult string
	if err := json.Unmarshal(result, &hexResult); err != nil {
		return "", fmt.Errorf("unmarshal eth_call result: %w", err)
	}
	return hexResult, nil
}

// GetLogsBatch fetches several disjoint block-range windows in a single
// JSON-RPC batch round trip, returned in the same order as windows.
func (c *Client) GetLogsBatch(ctx context.Context, windows []LogFilter) ([][]*Log, error) {
	if len(windows) == 0 {
		return nil, nil
	}

	requests := make([]Request, len(windows))
	for i, w := range windows {
		requests[i] = c.newRequest("eth_getLogs", []interface{}{w})
	}

	responses, err := c.callBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs batch: %w", err)
	}

	results := make([][]*Log, len(windows))
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("eth_getLogs window %d: %w", i, resp.Error)
		}
		var logs []*Log
		if err := json.Unmarshal(resp.Result, &logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs window %d: %w", i, err)
		}
		results[i] = logs
	}
	return results, nil
}

func ParseHexInt64(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return int64(parsed), nil
}

func formatHexInt64(value int64) string {
	return fmt.Sprintf("0x%x", value)
}

// Package escrowview reads the escrow contract's view-only constants
// (usdc, treasury, arbiter, fee basis points) over eth_call and caches them
// in memory, refreshing periodically. None of this touches log state.
package escrowview

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/chain/evm/rpc"
)

// View is the set of contract-level constants GET /escrow returns.
type View struct {
	USDC            string
	Treasury        string
	Arbiter         string
	DepositFeeBps   int64
	RecipientFeeBps int64
	RefreshedAt     time.Time
}

// selector returns the first 4 bytes of keccak256(signature), the standard
// ABI function selector used to build eth_call calldata for a zero-argument
// view function.
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var (
	selUSDC            = selector("usdc()")
	selTreasury        = selector("treasury()")
	selArbiter         = selector("arbiter()")
	selDepositFeeBps   = selector("depositFeeBps()")
	selRecipientFeeBps = selector("recipientFeeBps()")
)

// Cache refreshes a View on an interval and serves the last good snapshot
// to concurrent readers. An eth_call failure leaves the previous snapshot
// in place rather than zeroing it out, since a stale view is more useful to
// a client than an empty one.
type Cache struct {
	client          rpc.RPCClient
	contractAddress string
	logger          *slog.Logger

	mu   sync.RWMutex
	view View
}

func NewCache(client rpc.RPCClient, contractAddress string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, contractAddress: contractAddress, logger: logger.With("component", "escrowview")}
}

// Get returns the most recently fetched snapshot, which may be zero-valued
// if Refresh has never succeeded.
func (c *Cache) Get() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Refresh issues one eth_call per constant and swaps in the result on
// success. It never returns a partial update: if any call fails, the whole
// refresh is discarded and the prior snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	usdc, err := c.callAddress(ctx, selUSDC)
	if err != nil {
		return fmt.Errorf("eth_call usdc(): %w", err)
	}
	treasury, err := c.callAddress(ctx, selTreasury)
	if err != nil {
		return fmt.Errorf("eth_call treasury(): %w", err)
	}
	arbiter, err := c.callAddress(ctx, selArbiter)
	if err != nil {
		return fmt.Errorf("eth_call arbiter(): %w", err)
	}
	depositFeeBps, err := c.callUint(ctx, selDepositFeeBps)
	if err != nil {
		return fmt.Errorf("eth_call depositFeeBps(): %w", err)
	}
	recipientFeeBps, err := c.callUint(ctx, selRecipientFeeBps)
	if err != nil {
		return fmt.Errorf("eth_call recipientFeeBps(): %w", err)
	}

	c.mu.Lock()
	c.view = View{
		USDC:            usdc,
		Treasury:        treasury,
		Arbiter:         arbiter,
		DepositFeeBps:   depositFeeBps,
		RecipientFeeBps: recipientFeeBps,
		RefreshedAt:     time.Now(),
	}
	c.mu.Unlock()
	return nil
}

// Run refreshes on interval until ctx is cancelled, logging (but not
// surfacing) failures so a flaky RPC provider never brings the API down.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial escrow view refresh failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("escrow view refresh failed", "error", err)
			}
		}
	}
}

func (c *Cache) callRaw(ctx context.Context, calldata []byte) ([]byte, error) {
	result, err := c.client.Call(ctx, c.contractAddress, hexutil.Encode(calldata))
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(result)
}

func (c *Cache) callAddress(ctx context.Context, sel []byte) (string, error) {
	raw, err := c.callRaw(ctx, sel)
	if err != nil {
		return "", err
	}
	if len(raw) < 32 {
		return "", fmt.Errorf("short eth_call result: %d bytes", len(raw))
	}
	return strings.ToLower(common.BytesToAddress(raw[12:32]).Hex()), nil
}

func (c *Cache) callUint(ctx context.Context, sel []byte) (int64, error) {
	raw, err := c.callRaw(ctx, sel)
	if err != nil {
		return 0, err
	}
	if len(raw) < 32 {
		return 0, fmt.Errorf("short eth_call result: %d bytes", len(raw))
	}
	return new(big.Int).SetBytes(raw[:32]).Int64(), nil
}

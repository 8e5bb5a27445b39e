package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// personalSignPrefix is prepended to a message before hashing, matching
// the eth_sign/personal_sign convention implemented by every EVM wallet.
const personalSignPrefix = "\x19Ethereum Signed Message:\n"

var (
	ErrMissingHeaders   = errors.New("auth: missing envelope headers")
	ErrInvalidAddress   = errors.New("auth: malformed wallet address")
	ErrInvalidSignature = errors.New("auth: malformed signature")
	ErrClockSkew        = errors.New("auth: timestamp outside skew window")
	ErrNonceReplayed    = errors.New("auth: nonce already used")
	ErrSignerMismatch   = errors.New("auth: recovered signer does not match wallet-address")
)

// SkewWindow is the maximum allowed difference between a request's
// timestamp header and server time.
const SkewWindow = 120 * time.Second

// NonceTTL is how long a consumed nonce is remembered before it can be
// reused without a collision risk reappearing.
const NonceTTL = 5 * time.Minute

// NonceStore records consumed auth nonces for replay protection. Implemented
// by the projection store's Postgres-backed nonce table.
type NonceStore interface {
	// Seen reports whether nonce has already been consumed and is still
	// within its TTL window.
	Seen(ctx context.Context, nonce string) (bool, error)
	// Insert records nonce as consumed, expiring at expiresAt.
	Insert(ctx context.Context, nonce string, expiresAt time.Time) error
}

// Envelope is the set of request-derived inputs needed to verify a signed
// request, assembled by the HTTP layer from headers and the request body.
type Envelope struct {
	WalletAddress string // header value, as received
	Signature     string // 0x-prefixed 65-byte hex signature
	Timestamp     string // decimal milliseconds since epoch
	Nonce         string
	Method        string
	Path          string
	Body          []byte
}

// Present reports whether any auth header was supplied. A request with no
// auth headers at all is anonymous and passes through unauthenticated.
func (e Envelope) Present() bool {
	return e.WalletAddress != "" || e.Signature != "" || e.Timestamp != "" || e.Nonce != ""
}

// Verifier implements the sign-over-request-envelope scheme: skew window,
// nonce replay protection, and personal_sign signature recovery.
type Verifier struct {
	nonces   NonceStore
	now      func() time.Time
	skew     time.Duration
	nonceTTL time.Duration
}

func New(nonces NonceStore) *Verifier {
	return &Verifier{nonces: nonces, now: time.Now, skew: SkewWindow, nonceTTL: NonceTTL}
}

// WithWindows overrides the default skew window and nonce TTL, returning
// the verifier for chaining at construction time.
func (v *Verifier) WithWindows(skew, nonceTTL time.Duration) *Verifier {
	if skew > 0 {
		v.skew = skew
	}
	if nonceTTL > 0 {
		v.nonceTTL = nonceTTL
	}
	return v
}

// Verify runs the six-step check from the envelope scheme and returns the
// lowercase authenticated wallet address. It returns ("", nil) for an
// anonymous request (no auth headers present at all).
func (v *Verifier) Verify(ctx context.Context, env Envelope) (string, error) {
	if !env.Present() {
		return "", nil
	}
	if env.WalletAddress == "" || env.Signature == "" || env.Timestamp == "" || env.Nonce == "" {
		return "", ErrMissingHeaders
	}

	if !common.IsHexAddress(env.WalletAddress) {
		return "", ErrInvalidAddress
	}
	claimed := common.HexToAddress(env.WalletAddress)

	tsMillis, err := parseTimestampMillis(env.Timestamp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClockSkew, err)
	}
	ts := time.UnixMilli(tsMillis)
	if skew := v.now().Sub(ts); skew > v.skew || skew < -v.skew {
		return "", ErrClockSkew
	}

	seen, err := v.nonces.Seen(ctx, env.Nonce)
	if err != nil {
		return "", fmt.Errorf("auth: check nonce: %w", err)
	}
	if seen {
		return "", ErrNonceReplayed
	}

	message := CanonicalMessage(env.Method, env.Path, env.Timestamp, env.Nonce, env.Body)
	signer, err := RecoverPersonalSign(message, env.Signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !strings.EqualFold(signer.Hex(), claimed.Hex()) {
		return "", ErrSignerMismatch
	}

	if err := v.nonces.Insert(ctx, env.Nonce, v.now().Add(v.nonceTTL)); err != nil {
		return "", fmt.Errorf("auth: record nonce: %w", err)
	}

	return strings.ToLower(claimed.Hex()), nil
}

// CanonicalMessage builds the byte-exact string that must be signed:
// "ClawedEscrow\n{METHOD}\n{PATH}\n{timestamp}\n{nonce}\n{body_sha256_hex}". A
// nil or empty body is hashed as the empty JSON object, matching what a
// client sends for a bodyless request.
func CanonicalMessage(method, path, timestamp, nonce string, body []byte) string {
	if len(body) == 0 {
		body = []byte("{}")
	}
	sum := sha256.Sum256(body)
	return fmt.Sprintf("ClawedEscrow\n%s\n%s\n%s\n%s\n%s", method, path, timestamp, nonce, hex.EncodeToString(sum[:]))
}

// RecoverPersonalSign recovers the address that produced sig (0x-prefixed
// 65-byte hex) over message using the personal_sign digest convention:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func RecoverPersonalSign(message string, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// go-ethereum's crypto.Ecrecover / SigToPub expect v in {0,1}.
	normalized := make([]byte, 65)
	copy(normalized, sig)
	switch normalized[64] {
	case 0, 1:
	case 27, 28:
		normalized[64] -= 27
	default:
		return common.Address{}, fmt.Errorf("unexpected recovery id %d", normalized[64])
	}

	digest := personalSignDigest(message)
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func personalSignDigest(message string) common.Hash {
	prefixed := fmt.Sprintf("%s%d%s", personalSignPrefix, len(message), message)
	return crypto.Keccak256Hash([]byte(prefixed))
}

func parseTimestampMillis(s string) (int64, error) {
	var millis int64
	_, err := fmt.Sscanf(s, "%d", &millis)
	if err != nil {
		return 0, err
	}
	return millis, nil
}

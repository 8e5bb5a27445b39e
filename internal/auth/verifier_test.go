package auth

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryNonceStore struct {
	used map[string]time.Time
}

func newMemoryNonceStore() *memoryNonceStore {
	return &memoryNonceStore{used: make(map[string]time.Time)}
}

func (m *memoryNonceStore) Seen(_ context.Context, nonce string) (bool, error) {
	_, ok := m.used[nonce]
	return ok, nil
}

func (m *memoryNonceStore) Insert(_ context.Context, nonce string, expiresAt time.Time) error {
	m.used[nonce] = expiresAt
	return nil
}

func signEnvelope(t *testing.T, key *ecdsa.PrivateKey, method, path, timestamp, nonce string, body []byte) string {
	t.Helper()
	message := CanonicalMessage(method, path, timestamp, nonce, body)
	digest := personalSignDigest(message)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hexEncode(sig)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestVerify_Anonymous_PassesThrough(t *testing.T) {
	v := New(newMemoryNonceStore())
	wallet, err := v.Verify(context.Background(), Envelope{})
	require.NoError(t, err)
	assert.Empty(t, wallet)
}

func TestVerify_ValidSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	store := newMemoryNonceStore()
	v := New(store)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	ts := "1700000000000"
	body := []byte(`{"hello":"world"}`)
	sig := signEnvelope(t, key, "POST", "/tasks/1/metadata", ts, "nonce-1", body)

	wallet, err := v.Verify(context.Background(), Envelope{
		WalletAddress: addr.Hex(),
		Signature:     sig,
		Timestamp:     ts,
		Nonce:         "nonce-1",
		Method:        "POST",
		Path:          "/tasks/1/metadata",
		Body:          body,
	})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(addr.Hex()), wallet)
}

func TestVerify_SignerMismatch(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherAddr := crypto.PubkeyToAddress(otherKey.PublicKey)

	store := newMemoryNonceStore()
	v := New(store)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	ts := "1700000000000"
	sig := signEnvelope(t, key, "GET", "/tasks/1", ts, "nonce-2", nil)

	_, err = v.Verify(context.Background(), Envelope{
		WalletAddress: otherAddr.Hex(),
		Signature:     sig,
		Timestamp:     ts,
		Nonce:         "nonce-2",
		Method:        "GET",
		Path:          "/tasks/1",
	})
	assert.ErrorIs(t, err, ErrSignerMismatch)
}

func TestVerify_ClockSkew(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	store := newMemoryNonceStore()
	v := New(store)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	ts := "1600000000000" // far outside the skew window
	sig := signEnvelope(t, key, "GET", "/tasks/1", ts, "nonce-3", nil)

	_, err = v.Verify(context.Background(), Envelope{
		WalletAddress: addr.Hex(),
		Signature:     sig,
		Timestamp:     ts,
		Nonce:         "nonce-3",
		Method:        "GET",
		Path:          "/tasks/1",
	})
	assert.ErrorIs(t, err, ErrClockSkew)
}

func TestVerify_NonceReplay(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	store := newMemoryNonceStore()
	v := New(store)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	ts := "1700000000000"
	sig := signEnvelope(t, key, "GET", "/tasks/1", ts, "nonce-4", nil)
	env := Envelope{
		WalletAddress: addr.Hex(),
		Signature:     sig,
		Timestamp:     ts,
		Nonce:         "nonce-4",
		Method:        "GET",
		Path:          "/tasks/1",
	}

	_, err = v.Verify(context.Background(), env)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), env)
	assert.ErrorIs(t, err, ErrNonceReplayed)
}

func TestVerify_MissingSomeHeaders(t *testing.T) {
	v := New(newMemoryNonceStore())
	_, err := v.Verify(context.Background(), Envelope{WalletAddress: "0xabc"})
	assert.ErrorIs(t, err, ErrMissingHeaders)
}

func TestVerify_InvalidAddressSyntax(t *testing.T) {
	v := New(newMemoryNonceStore())
	_, err := v.Verify(context.Background(), Envelope{
		WalletAddress: "not-an-address",
		Signature:     "0x00",
		Timestamp:     "1700000000000",
		Nonce:         "n",
	})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCanonicalMessage_EmptyBodyHashesEmptyObjectConvention(t *testing.T) {
	msg := CanonicalMessage("GET", "/tasks", "1700000000000", "abc", nil)
	assert.Contains(t, msg, "ClawedEscrow\nGET\n/tasks\n1700000000000\nabc\n")
	assert.Equal(t, CanonicalMessage("GET", "/tasks", "1700000000000", "abc", []byte("{}")), msg)
}

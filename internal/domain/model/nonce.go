package model

import "time"

// UsedNonce records a consumed auth nonce for anti-replay. Rows are
// TTL-bounded; ExpiresAt entries in the past are safe to sweep.
type UsedNonce struct {
	Nonce     string
	ExpiresAt time.Time
}

// Package store provides the ephemeral key-value store shared by the token
// minter, the scan validator, and the session lifecycle manager. Keys carry
// their own TTL; an expired key is simply absent, and absence is a defined
// case on every read path.
package store

import (
	"context"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or has expired.
var ErrNotFound = fmt.Errorf("store: key not found")

// EphemeralStore is the contract the core components share. All operations
// are atomic at the single-key level.
type EphemeralStore interface {
	// Set writes value under key with the given TTL, replacing any prior value.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get returns the value for key, or ErrNotFound if absent/expired.
	Get(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Expire resets the TTL of an existing key. Absent keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// SetAdd adds member to the set at key. Idempotent.
	SetAdd(ctx context.Context, key string, member string) error
	// SetMembers returns all members of the set at key; empty for absent keys.
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Key builders. The layout mirrors what scanners and lifecycle managers agree
// on: one marker per active session, one set of scanned students per session,
// one metadata entry per issued nonce.

func ActiveSessionKey(sessionID string) string {
	return fmt.Sprintf("attendance:session:%s", sessionID)
}

func LiveAttendanceKey(sessionID string) string {
	return fmt.Sprintf("attendance:session:%s:students", sessionID)
}

func NonceKey(nonce string) string {
	return fmt.Sprintf("qr:nonce:%s", nonce)
}

// Package proof records payment claims: "this wallet paid for this tier via
// this transaction."
//
// The store is deliberately not authoritative. A record is a hint to be
// re-verified against live ledger state before any access decision; see the
// access package.
package proof

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("proof not found")

// Record is one stored payment claim, keyed by (wallet, resource, tier).
// Last write wins; a repeat purchase of the same tier overwrites.
type Record struct {
	WalletAddress string    `json:"walletAddress"`
	ResourceID    string    `json:"resourceId"`
	TierIndex     int       `json:"tierIndex"`
	TxRef         string    `json:"txRef"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store persists payment proof records in a durable key-value medium.
type Store interface {
	// Put stores or overwrites the record for its (wallet, resource, tier) key.
	Put(ctx context.Context, rec Record) error
	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, wallet, resourceID string, tierIndex int) (*Record, error)
}

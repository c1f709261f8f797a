// Package storage defines the persistence interfaces of the control plane.
//
// Three pieces of shared mutable state live behind these interfaces: the
// commitment table, the ledger, and the protocol-node table. Each is mutated
// exclusively through its owning component's operations, and every invariant
// (nonce uniqueness, chain contiguity, node versioning) is enforced by the
// storage engine, not just application logic.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/stakehaus/fairplane/internal/fairness/commitment"
	"github.com/stakehaus/fairplane/internal/ledger"
)

// ErrNotFound is returned when a record doesn't exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a compare-and-set update loses a race.
// Callers re-read and retry.
var ErrVersionConflict = errors.New("version conflict")

// ErrAlreadyResolved is returned when a resolve races a completed resolution
// or an expiry sweep.
var ErrAlreadyResolved = errors.New("commitment is no longer committed")

// ErrNonceExhausted is returned when a commitment create keeps losing the
// per-player nonce race past its retry budget.
var ErrNonceExhausted = errors.New("nonce allocation retries exhausted")

// CommitmentStore persists sealed bet commitments keyed by (player, nonce).
type CommitmentStore interface {
	// CreateCommitment assigns the next contiguous per-player nonce and
	// persists the commitment atomically.
	CreateCommitment(ctx context.Context, c commitment.Commitment) (commitment.Commitment, error)
	// GetCommitment loads a commitment by id.
	GetCommitment(ctx context.Context, id string) (commitment.Commitment, error)
	// GetCommitmentByDigest loads a commitment by its published seed digest.
	GetCommitmentByDigest(ctx context.Context, digest string) (commitment.Commitment, error)
	// ResolveCommitment transitions committed -> revealed and appends the
	// resolution ledger entry in the same transaction. A failed append
	// aborts the resolution. Returns ErrAlreadyResolved when the commitment
	// is no longer in committed state.
	ResolveCommitment(ctx context.Context, resolved commitment.Commitment, entry ledger.Entry) (commitment.Commitment, ledger.Entry, error)
	// ExpireCommitments marks committed rows past their deadline as expired
	// and returns how many were swept.
	ExpireCommitments(ctx context.Context, now time.Time) (int64, error)
}

// Store is the persistence surface this package owns. The protocol-node
// table sits behind governance.NodeStore, declared next to its consumer the
// same way ledger.Store is; the sqlite engine implements all three.
type Store interface {
	CommitmentStore
	ledger.Store
	Close() error
}

// Package commitment defines the sealed-bet commitment model.
package commitment

import (
	"strings"
	"time"

	"github.com/stakehaus/fairplane/internal/fairness/bet"
)

// State identifies a commitment's lifecycle state.
type State string

const (
	// StateCommitted is a sealed commitment awaiting reveal.
	StateCommitted State = "committed"
	// StateRevealed is a resolved commitment with a published outcome.
	StateRevealed State = "revealed"
	// StateExpired is a commitment that passed its deadline unrevealed.
	// Terminal; an expired commitment can never be resolved.
	StateExpired State = "expired"
)

// IsTerminal reports whether the state permits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateRevealed || s == StateExpired
}

// Commitment is one sealed bet. The server seed is fixed at creation and the
// outcome is therefore decided before the player acts; only the digest is
// published until reveal.
type Commitment struct {
	// ID is the commitment identifier returned to the player.
	ID string
	// PlayerID is the owning player.
	PlayerID string
	// Nonce is the per-player sequence number, contiguous from 1.
	Nonce uint64
	// ServerSeed is the sealed seed (hex). Never exposed before reveal.
	ServerSeed string
	// SeedDigest is the hex SHA-256 of ServerSeed, published at creation.
	SeedDigest string
	// ClientSeed is the player-supplied (or generated) seed.
	ClientSeed string
	// Params are the declared bet parameters fixed at commitment time.
	Params bet.Params
	// ParamsHash is the hex SHA-256 of the canonical parameter serialization.
	ParamsHash string
	// State is the lifecycle state.
	State State
	// CreatedAt is the commitment creation time.
	CreatedAt time.Time
	// ExpiresAt is the reveal deadline.
	ExpiresAt time.Time
	// ResolvedAt is set when the commitment is revealed.
	ResolvedAt *time.Time
	// Outcome is the derived result, set at reveal.
	Outcome int64
	// Win reports whether the outcome won, set at reveal.
	Win bool
	// PayoutCents is the settled winning amount, set at reveal.
	PayoutCents int64
}

// Expired reports whether the commitment deadline has passed at now.
func (c Commitment) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Receipt is the public view returned at commitment time. It carries the
// seed digest but never the seed.
type Receipt struct {
	CommitmentID string    `json:"commitment_id"`
	SeedDigest   string    `json:"seed_digest"`
	Nonce        uint64    `json:"nonce"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Receipt returns the public commitment receipt.
func (c Commitment) Receipt() Receipt {
	return Receipt{
		CommitmentID: c.ID,
		SeedDigest:   c.SeedDigest,
		Nonce:        c.Nonce,
		ExpiresAt:    c.ExpiresAt,
	}
}

// Reveal is the public post-resolution view used for independent
// verification. All fields required to recompute the outcome are present.
type Reveal struct {
	CommitmentID string     `json:"commitment_id"`
	PlayerID     string     `json:"player_id"`
	ServerSeed   string     `json:"server_seed"`
	SeedDigest   string     `json:"seed_digest"`
	ClientSeed   string     `json:"client_seed"`
	Nonce        uint64     `json:"nonce"`
	Params       bet.Params `json:"params"`
	Outcome      int64      `json:"outcome"`
	Win          bool       `json:"win"`
	PayoutCents  int64      `json:"payout_cents"`
	ResolvedAt   time.Time  `json:"resolved_at"`
}

// Reveal returns the public reveal view. Only meaningful for revealed
// commitments; callers must check State first.
func (c Commitment) Reveal() Reveal {
	resolvedAt := time.Time{}
	if c.ResolvedAt != nil {
		resolvedAt = *c.ResolvedAt
	}
	return Reveal{
		CommitmentID: c.ID,
		PlayerID:     c.PlayerID,
		ServerSeed:   c.ServerSeed,
		SeedDigest:   c.SeedDigest,
		ClientSeed:   c.ClientSeed,
		Nonce:        c.Nonce,
		Params:       c.Params,
		Outcome:      c.Outcome,
		Win:          c.Win,
		PayoutCents:  c.PayoutCents,
		ResolvedAt:   resolvedAt,
	}
}

// NormalizeForCreate validates invariants that must hold before storage
// assigns the nonce and persists the commitment.
func NormalizeForCreate(c Commitment) (Commitment, error) {
	c.PlayerID = strings.TrimSpace(c.PlayerID)
	if c.PlayerID == "" {
		return Commitment{}, errPlayerRequired
	}
	if c.Nonce != 0 {
		return Commitment{}, errNonceAssignedByStorage
	}
	if strings.TrimSpace(c.ServerSeed) == "" || strings.TrimSpace(c.SeedDigest) == "" {
		return Commitment{}, errSeedRequired
	}
	if strings.TrimSpace(c.ParamsHash) == "" {
		return Commitment{}, errParamsHashRequired
	}
	if c.State == "" {
		c.State = StateCommitted
	}
	if c.State != StateCommitted {
		return Commitment{}, errStateMustBeCommitted
	}
	return c, nil
}

// Package bet defines declared bet parameters and their canonical hash.
package bet

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
)

// Variant identifies a game variant with a fixed outcome range.
type Variant string

const (
	// VariantDice is a single die roll, outcomes 1..6.
	VariantDice Variant = "dice"
	// VariantCoin is a coin flip, outcomes 0..1.
	VariantCoin Variant = "coin"
	// VariantRoulette is a single-zero wheel, outcomes 0..36.
	VariantRoulette Variant = "roulette"
)

// Range returns the outcome range size for the variant, or 0 if unknown.
func (v Variant) Range() int64 {
	switch v {
	case VariantDice:
		return 6
	case VariantCoin:
		return 2
	case VariantRoulette:
		return 37
	}
	return 0
}

// IsValid reports whether the variant is known.
func (v Variant) IsValid() bool {
	return v.Range() > 0
}

// pickBounds returns the inclusive pick bounds for the variant.
func (v Variant) pickBounds() (int64, int64) {
	switch v {
	case VariantDice:
		return 1, 6
	case VariantCoin:
		return 0, 1
	case VariantRoulette:
		return 0, 36
	}
	return 0, -1
}

// Params are the player-declared bet parameters fixed at commitment time.
type Params struct {
	// StakeCents is the wagered amount in integer cents.
	StakeCents int64 `json:"stake_cents"`
	// Variant selects the game and its outcome range.
	Variant Variant `json:"variant"`
	// Pick is the player's chosen number within the variant's range.
	Pick int64 `json:"pick"`
}

// Limits bounds accepted stakes. Zero values fall back to defaults.
type Limits struct {
	MinStakeCents int64
	MaxStakeCents int64
}

const (
	defaultMinStakeCents = 100      // $1.00
	defaultMaxStakeCents = 10000000 // $100,000.00
)

func (l Limits) normalized() Limits {
	if l.MinStakeCents <= 0 {
		l.MinStakeCents = defaultMinStakeCents
	}
	if l.MaxStakeCents <= 0 {
		l.MaxStakeCents = defaultMaxStakeCents
	}
	return l
}

// Validate checks the declared parameters against the variant rules and limits.
func (p Params) Validate(limits Limits) error {
	limits = limits.normalized()
	if !p.Variant.IsValid() {
		return apperrors.WithMetadata(apperrors.CodeBetVariantUnknown, "unknown game variant", map[string]string{
			"Variant": string(p.Variant),
		})
	}
	if p.StakeCents < limits.MinStakeCents || p.StakeCents > limits.MaxStakeCents {
		return apperrors.WithMetadata(apperrors.CodeBetStakeInvalid, "stake outside accepted bounds", map[string]string{
			"Stake": strconv.FormatInt(p.StakeCents, 10),
			"Min":   strconv.FormatInt(limits.MinStakeCents, 10),
			"Max":   strconv.FormatInt(limits.MaxStakeCents, 10),
		})
	}
	lo, hi := p.Variant.pickBounds()
	if p.Pick < lo || p.Pick > hi {
		return apperrors.WithMetadata(apperrors.CodeBetPickOutOfRange, "pick outside variant range", map[string]string{
			"Pick": strconv.FormatInt(p.Pick, 10),
		})
	}
	return nil
}

// Hash returns the hex SHA-256 digest of the canonical parameter serialization.
//
// The canonical form is the JSON encoding of Params with the struct field
// order above. Resolution compares this digest bit-for-bit against the value
// stored at commitment time.
func (p Params) Hash() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal bet params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Win reports whether the outcome wins for these parameters.
func (p Params) Win(outcome int64) bool {
	return outcome == p.Pick
}

// payoutEdgeBps is the house edge retained on winning payouts, in basis points.
const payoutEdgeBps = 300

// Payout returns the winning payout in cents for these parameters.
//
// A win pays the stake multiplied by the variant's outcome range, less the
// house edge. Losses pay zero.
func (p Params) Payout(outcome int64) int64 {
	if !p.Win(outcome) {
		return 0
	}
	gross := p.StakeCents * p.Variant.Range()
	return gross * (10000 - payoutEdgeBps) / 10000
}

// ParseVariant normalizes a variant string.
func ParseVariant(value string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(value)))
	if !v.IsValid() {
		return "", apperrors.WithMetadata(apperrors.CodeBetVariantUnknown, "unknown game variant", map[string]string{
			"Variant": value,
		})
	}
	return v, nil
}

// Package mix implements the published outcome derivation function.
//
// The mixing function is a compatibility contract: any third party holding a
// revealed server seed can recompute a bet's outcome and confirm it was fixed
// at commitment time. For that reason it is a pure function of its four
// inputs and must never change for already-issued commitments.
//
// # Derivation
//
// The outcome for a commitment is derived as:
//
//	mac     = HMAC-SHA256(key = serverSeed, msg = "fairplane/v1/mix|" + variant + "|" + clientSeed + "|" + nonce)
//	value   = big-endian uint64 of mac[0:8]
//	outcome = value mod range(variant), shifted into the variant's outcome domain
//
// where nonce is rendered in decimal and range(variant) is the variant's
// outcome range size (dice 6, coin 2, roulette 37). Dice outcomes are shifted
// to 1..6; coin and roulette outcomes start at 0.
package mix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/stakehaus/fairplane/internal/fairness/bet"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
)

// domain separates the mixing MAC from any other use of the server seed.
const domain = "fairplane/v1/mix"

// Result derives the deterministic outcome for a commitment.
func Result(serverSeed, clientSeed string, nonce uint64, variant bet.Variant) (int64, error) {
	rangeSize := variant.Range()
	if rangeSize <= 0 {
		return 0, apperrors.WithMetadata(apperrors.CodeBetVariantUnknown, "unknown game variant", map[string]string{
			"Variant": string(variant),
		})
	}
	if serverSeed == "" {
		return 0, fmt.Errorf("server seed is required")
	}

	mac := hmac.New(sha256.New, []byte(serverSeed))
	_, _ = mac.Write([]byte(domain))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(variant))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(clientSeed))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(strconv.FormatUint(nonce, 10)))
	sum := mac.Sum(nil)

	value := binary.BigEndian.Uint64(sum[:8])
	outcome := int64(value % uint64(rangeSize))
	if variant == bet.VariantDice {
		outcome++
	}
	return outcome, nil
}

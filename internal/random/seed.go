// Package random provides cryptographic seed generation helpers.
//
// It uses crypto/rand to generate high-entropy server seeds for the
// commit-reveal scheme. Seeds and digests are hex-encoded for storage
// and publication.
package random

import (
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SeedBytes is the length of a server seed in bytes.
const SeedBytes = 32

// NewServerSeed generates a random server seed using crypto/rand.
// The returned seed is hex-encoded.
func NewServerSeed() (string, error) {
	var b [SeedBytes]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// SeedDigest returns the hex-encoded SHA-256 digest of a hex-encoded seed.
//
// The digest is published to the player at commitment time; the seed itself
// stays sealed until reveal.
func SeedDigest(seedHex string) string {
	sum := sha256.Sum256([]byte(seedHex))
	return hex.EncodeToString(sum[:])
}

// NewClientSeed generates a random client seed for players that do not
// supply their own. The returned seed is hex-encoded (16 bytes).
func NewClientSeed() (string, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random client seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

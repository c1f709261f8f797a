package random

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestNewServerSeedLengthAndEntropy(t *testing.T) {
	seed, err := NewServerSeed()
	if err != nil {
		t.Fatalf("new server seed: %v", err)
	}
	if len(seed) != SeedBytes*2 {
		t.Fatalf("expected %d hex characters, got %d", SeedBytes*2, len(seed))
	}
	if _, err := hex.DecodeString(seed); err != nil {
		t.Fatalf("seed is not valid hex: %v", err)
	}

	other, err := NewServerSeed()
	if err != nil {
		t.Fatalf("new server seed: %v", err)
	}
	if seed == other {
		t.Fatal("expected distinct seeds")
	}
}

func TestSeedDigestMatchesSHA256(t *testing.T) {
	seed := "aabbccdd"
	want := sha256.Sum256([]byte(seed))
	if got := SeedDigest(seed); got != hex.EncodeToString(want[:]) {
		t.Fatalf("digest mismatch: %s", got)
	}
}

func TestNewClientSeed(t *testing.T) {
	seed, err := NewClientSeed()
	if err != nil {
		t.Fatalf("new client seed: %v", err)
	}
	if len(seed) != 32 {
		t.Fatalf("expected 32 hex characters, got %d", len(seed))
	}
}

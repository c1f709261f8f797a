package ledger

import "fmt"

// SignatureVerifier checks an entry hash signature. Implemented by the
// storage integrity keyring.
type SignatureVerifier interface {
	VerifyEntryHash(hash, signature, keyID string) error
}

// VerificationResult reports the outcome of a chain verification pass.
type VerificationResult struct {
	// OK is true when every checked entry verified.
	OK bool `json:"ok"`
	// FromSeq and ToSeq bound the verified range (inclusive).
	FromSeq uint64 `json:"from_seq"`
	ToSeq   uint64 `json:"to_seq"`
	// Checked counts entries that were verified.
	Checked int `json:"checked"`
	// ViolationSeq is the sequence number of the first discrepancy.
	// Everything after a violated entry is presumptively compromised.
	ViolationSeq uint64 `json:"violation_seq,omitempty"`
	// Reason describes the first discrepancy found.
	Reason string `json:"reason,omitempty"`
}

// VerifyEntries recomputes hashes and chain links over a contiguous slice of
// entries. prevHash seeds the chain: ZeroHash when the slice starts at seq 1,
// otherwise the preceding entry's hash. Verification halts at the first
// discrepancy. verifier may be nil to skip signature checks.
func VerifyEntries(entries []Entry, prevHash string, verifier SignatureVerifier) VerificationResult {
	result := VerificationResult{OK: true}
	if len(entries) == 0 {
		return result
	}
	result.FromSeq = entries[0].Seq
	result.ToSeq = entries[len(entries)-1].Seq

	expectedSeq := entries[0].Seq
	for _, entry := range entries {
		if entry.Seq != expectedSeq {
			return violation(result, expectedSeq, fmt.Sprintf("sequence gap: expected %d, found %d", expectedSeq, entry.Seq))
		}
		if entry.PrevHash != prevHash {
			return violation(result, entry.Seq, "prev hash mismatch")
		}

		hash, err := EntryHash(entry)
		if err != nil {
			return violation(result, entry.Seq, fmt.Sprintf("compute entry hash: %v", err))
		}
		if hash != entry.EntryHash {
			return violation(result, entry.Seq, "entry hash mismatch")
		}

		if verifier != nil {
			if err := verifier.VerifyEntryHash(entry.EntryHash, entry.Signature, entry.SignatureKeyID); err != nil {
				return violation(result, entry.Seq, fmt.Sprintf("signature mismatch: %v", err))
			}
		}

		prevHash = entry.EntryHash
		expectedSeq = entry.Seq + 1
		result.Checked++
	}
	return result
}

func violation(result VerificationResult, seq uint64, reason string) VerificationResult {
	result.OK = false
	result.ViolationSeq = seq
	result.Reason = reason
	return result
}

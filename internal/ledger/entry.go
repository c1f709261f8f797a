// Package ledger defines the hash-chained audit log and its canonical hashing.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType classifies the subsystem that produced an entry.
type EventType string

const (
	// EventTypeFairness marks bet commitment and resolution entries.
	EventTypeFairness EventType = "fairness"
	// EventTypeGovernance marks quorum and registry entries.
	EventTypeGovernance EventType = "governance"
)

// ZeroHash is the well-known sentinel the first entry chains from.
var ZeroHash = strings.Repeat("0", 64)

// Entry is one link in the hash chain. Entries are immutable once appended.
type Entry struct {
	// Seq is the global sequence number, contiguous from 1.
	// Assigned by storage on append.
	Seq uint64
	// Actor is the identity that triggered the event.
	Actor string
	// EventType classifies the producing subsystem.
	EventType EventType
	// Action is the event label (e.g. BET_RESOLVED, PAUSE_ACTIVATED).
	Action string
	// Target is the affected entity, if any.
	Target string
	// DetailsJSON holds event-specific data as JSON.
	DetailsJSON []byte
	// PrevHash is the previous entry's hash (ZeroHash for the first entry).
	// Assigned by storage on append.
	PrevHash string
	// EntryHash is the SHA-256 digest of this entry's canonical serialization.
	// Assigned by storage on append.
	EntryHash string
	// SignatureKeyID identifies the HMAC key that signed the entry hash.
	// Assigned by storage on append.
	SignatureKeyID string
	// Signature is the HMAC signature of the entry hash.
	// Assigned by storage on append.
	Signature string
	// Timestamp is when the entry was appended.
	Timestamp time.Time
}

// envelope is the canonical serialization hashed into EntryHash. Field order
// is part of the published verification contract and must not change.
type envelope struct {
	Actor     string          `json:"actor"`
	Target    string          `json:"target"`
	EventType EventType       `json:"event_type"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	Seq       uint64          `json:"seq"`
	PrevHash  string          `json:"prev_hash"`
	Timestamp int64           `json:"timestamp_ms"`
}

// EntryHash computes the canonical hash for an entry. The entry's Seq,
// PrevHash and Timestamp must already be assigned.
func EntryHash(entry Entry) (string, error) {
	details := entry.DetailsJSON
	if len(details) == 0 {
		details = []byte("{}")
	}
	data, err := json.Marshal(envelope{
		Actor:     entry.Actor,
		Target:    entry.Target,
		EventType: entry.EventType,
		Action:    entry.Action,
		Details:   details,
		Seq:       entry.Seq,
		PrevHash:  entry.PrevHash,
		Timestamp: entry.Timestamp.UTC().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal entry envelope: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeForAppend validates an entry before storage assigns chaining.
func NormalizeForAppend(entry Entry) (Entry, error) {
	entry.Actor = strings.TrimSpace(entry.Actor)
	if entry.Actor == "" {
		return Entry{}, fmt.Errorf("entry actor is required")
	}
	if entry.Seq != 0 {
		return Entry{}, fmt.Errorf("entry sequence must be assigned by storage")
	}
	if strings.TrimSpace(entry.PrevHash) != "" || strings.TrimSpace(entry.EntryHash) != "" {
		return Entry{}, fmt.Errorf("entry hashes must be assigned by storage")
	}
	if strings.TrimSpace(entry.Signature) != "" || strings.TrimSpace(entry.SignatureKeyID) != "" {
		return Entry{}, fmt.Errorf("entry signature must be assigned by storage")
	}
	switch entry.EventType {
	case EventTypeFairness, EventTypeGovernance:
		// allowed
	default:
		return Entry{}, fmt.Errorf("entry event type must be fairness or governance")
	}
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		return Entry{}, fmt.Errorf("entry action is required")
	}
	entry.Target = strings.TrimSpace(entry.Target)
	if len(entry.DetailsJSON) == 0 {
		entry.DetailsJSON = []byte("{}")
	}
	if !json.Valid(entry.DetailsJSON) {
		return Entry{}, fmt.Errorf("entry details must be valid JSON")
	}
	return entry, nil
}

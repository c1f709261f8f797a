package ledger

import (
	"context"
	"log"
	"strconv"

	"github.com/stakehaus/fairplane/internal/gateway"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
	"github.com/stakehaus/fairplane/internal/platform/metrics"
)

// Store persists ledger entries. The storage layer owns the chain tip and
// serializes appends; see the sqlite implementation.
type Store interface {
	AppendLedgerEntry(ctx context.Context, entry Entry) (Entry, error)
	GetLedgerEntry(ctx context.Context, seq uint64) (Entry, error)
	ListLedgerEntries(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error)
	GetLedgerTip(ctx context.Context) (seq uint64, hash string, err error)
	RotateLedger(ctx context.Context, beforeSeq uint64) (int64, error)
}

// verifyPageSize bounds how many entries VerifyRange loads per storage read.
const verifyPageSize = 200

// Ledger is the append-only, tamper-evident audit log service.
type Ledger struct {
	store     Store
	verifier  SignatureVerifier
	metrics   *metrics.Metrics
	broadcast gateway.Broadcast
}

// New constructs the ledger service. metrics and broadcast may be nil.
func New(store Store, verifier SignatureVerifier, m *metrics.Metrics, broadcast gateway.Broadcast) *Ledger {
	return &Ledger{
		store:     store,
		verifier:  verifier,
		metrics:   m,
		broadcast: broadcast,
	}
}

// Append validates and persists an audit entry. Failures surface as
// LedgerAppendFailure; security-relevant callers must treat that as failure
// of their own operation.
func (l *Ledger) Append(ctx context.Context, entry Entry) (Entry, error) {
	if l == nil || l.store == nil {
		return Entry{}, apperrors.New(apperrors.CodeLedgerAppendFailure, "ledger is not configured")
	}
	normalized, err := NormalizeForAppend(entry)
	if err != nil {
		return Entry{}, apperrors.Wrap(apperrors.CodeLedgerAppendFailure, "normalize ledger entry", err)
	}

	stored, err := l.store.AppendLedgerEntry(ctx, normalized)
	if err != nil {
		l.metrics.IncLedgerAppendFailure()
		log.Printf("ledger append failed action=%s actor=%s: %v", normalized.Action, normalized.Actor, err)
		return Entry{}, apperrors.Wrap(apperrors.CodeLedgerAppendFailure, "append ledger entry", err)
	}
	l.metrics.IncLedgerAppend()
	l.publish(stored)
	return stored, nil
}

// publish emits a fire-and-forget broadcast event for a stored entry.
// Delivery failure never affects the recorded entry.
func (l *Ledger) publish(entry Entry) {
	if l.broadcast == nil {
		return
	}
	l.broadcast.Publish("ledger.appended", map[string]any{
		"seq":    entry.Seq,
		"action": entry.Action,
		"actor":  entry.Actor,
		"target": entry.Target,
	})
}

// VerifyRange recomputes hashes and chain links for entries in
// [fromSeq, toSeq]. toSeq of 0 means the current tip. The first discrepancy
// halts verification and is reported with its sequence number; integrity
// violations are reported, never auto-repaired.
func (l *Ledger) VerifyRange(ctx context.Context, fromSeq, toSeq uint64) (VerificationResult, error) {
	if l == nil || l.store == nil {
		return VerificationResult{}, apperrors.New(apperrors.CodeUnknown, "ledger is not configured")
	}
	explicit := fromSeq != 0 || toSeq != 0
	if toSeq == 0 {
		tip, _, err := l.store.GetLedgerTip(ctx)
		if err != nil {
			return VerificationResult{}, err
		}
		toSeq = tip
	}

	// Rotation prunes the oldest entries, so sequence 1 is not necessarily
	// retained. The oldest surviving entry anchors the default lower bound
	// and the seed hash.
	surviving, err := l.store.ListLedgerEntries(ctx, 0, 1)
	if err != nil {
		return VerificationResult{}, err
	}
	if len(surviving) == 0 {
		if !explicit {
			return VerificationResult{OK: true}, nil
		}
		if fromSeq == 0 {
			fromSeq = 1
		}
		if toSeq < fromSeq {
			return VerificationResult{}, apperrors.WithMetadata(apperrors.CodeLedgerRangeInvalid, "verification range is inverted", nil)
		}
		return VerificationResult{FromSeq: fromSeq, ToSeq: toSeq, ViolationSeq: fromSeq, Reason: "missing entry"}, nil
	}
	oldest := surviving[0]
	if fromSeq == 0 {
		fromSeq = oldest.Seq
	}
	if fromSeq < oldest.Seq {
		return VerificationResult{}, apperrors.WithMetadata(apperrors.CodeLedgerRangeInvalid, "range begins before the oldest retained entry", map[string]string{
			"OldestSeq": strconv.FormatUint(oldest.Seq, 10),
		})
	}
	if toSeq < fromSeq {
		return VerificationResult{}, apperrors.WithMetadata(apperrors.CodeLedgerRangeInvalid, "verification range is inverted", nil)
	}

	var prevHash string
	switch {
	case fromSeq == 1:
		prevHash = ZeroHash
	case fromSeq == oldest.Seq:
		// The predecessor was pruned; its hash survives as the oldest
		// entry's stored link.
		prevHash = oldest.PrevHash
	default:
		prev, err := l.store.GetLedgerEntry(ctx, fromSeq-1)
		if err != nil {
			return VerificationResult{}, err
		}
		prevHash = prev.EntryHash
	}

	combined := VerificationResult{OK: true, FromSeq: fromSeq, ToSeq: toSeq}
	cursor := fromSeq - 1
	for cursor < toSeq {
		limit := verifyPageSize
		if remaining := toSeq - cursor; remaining < uint64(limit) {
			limit = int(remaining)
		}
		entries, err := l.store.ListLedgerEntries(ctx, cursor, limit)
		if err != nil {
			return VerificationResult{}, err
		}
		if len(entries) == 0 {
			combined.OK = false
			combined.ViolationSeq = cursor + 1
			combined.Reason = "missing entry"
			return combined, nil
		}

		page := VerifyEntries(entries, prevHash, l.verifier)
		combined.Checked += page.Checked
		if !page.OK {
			combined.OK = false
			combined.ViolationSeq = page.ViolationSeq
			combined.Reason = page.Reason
			return combined, nil
		}

		last := entries[len(entries)-1]
		prevHash = last.EntryHash
		cursor = last.Seq
	}
	return combined, nil
}

// Rotate prunes entries with sequence numbers strictly below beforeSeq.
// Rotation only ever trims from the oldest end; the interior is untouchable.
func (l *Ledger) Rotate(ctx context.Context, beforeSeq uint64) (int64, error) {
	if l == nil || l.store == nil {
		return 0, apperrors.New(apperrors.CodeUnknown, "ledger is not configured")
	}
	if beforeSeq <= 1 {
		return 0, nil
	}
	return l.store.RotateLedger(ctx, beforeSeq)
}

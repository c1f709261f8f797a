package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/storage"
)

// AppendLedgerEntry atomically appends an entry and returns it with sequence,
// chain hashes and signature set.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.Entry{}, fmt.Errorf("storage is not configured")
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stored, err := s.appendEntryTx(ctx, tx, entry)
	if err != nil {
		return ledger.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// appendEntryTx assigns chaining to an entry and persists it inside tx.
// Callers must hold appendMu.
func (s *Store) appendEntryTx(ctx context.Context, tx *sql.Tx, entry ledger.Entry) (ledger.Entry, error) {
	if s.keyring == nil {
		return ledger.Entry{}, fmt.Errorf("ledger integrity keyring is required")
	}

	validated, err := ledger.NormalizeForAppend(entry)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry = validated

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Millisecond)

	var tipSeq uint64
	var tipHash string
	if err := tx.QueryRowContext(ctx, "SELECT seq, entry_hash FROM ledger_tip WHERE id = 1").Scan(&tipSeq, &tipHash); err != nil {
		return ledger.Entry{}, fmt.Errorf("load ledger tip: %w", err)
	}

	entry.Seq = tipSeq + 1
	entry.PrevHash = tipHash

	hash, err := ledger.EntryHash(entry)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("compute entry hash: %w", err)
	}
	entry.EntryHash = hash

	signature, keyID, err := s.keyring.SignEntryHash(hash)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("sign entry hash: %w", err)
	}
	entry.Signature = signature
	entry.SignatureKeyID = keyID

	if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_entries
		(seq, actor, event_type, action, target, details_json, prev_hash, entry_hash, signature_key_id, signature, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.Actor, string(entry.EventType), entry.Action, entry.Target,
		entry.DetailsJSON, entry.PrevHash, entry.EntryHash, entry.SignatureKeyID,
		entry.Signature, toMillis(entry.Timestamp),
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("append ledger entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE ledger_tip SET seq = ?, entry_hash = ? WHERE id = 1",
		entry.Seq, entry.EntryHash,
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("advance ledger tip: %w", err)
	}

	return entry, nil
}

const ledgerColumns = "seq, actor, event_type, action, target, details_json, prev_hash, entry_hash, signature_key_id, signature, timestamp"

func scanLedgerEntry(row interface{ Scan(...any) error }) (ledger.Entry, error) {
	var entry ledger.Entry
	var eventType string
	var timestamp int64
	err := row.Scan(&entry.Seq, &entry.Actor, &eventType, &entry.Action, &entry.Target,
		&entry.DetailsJSON, &entry.PrevHash, &entry.EntryHash, &entry.SignatureKeyID,
		&entry.Signature, &timestamp)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry.EventType = ledger.EventType(eventType)
	entry.Timestamp = fromMillis(timestamp)
	return entry, nil
}

// GetLedgerEntry retrieves an entry by sequence number.
func (s *Store) GetLedgerEntry(ctx context.Context, seq uint64) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return ledger.Entry{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+ledgerColumns+" FROM ledger_entries WHERE seq = ?", seq)
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	return entry, nil
}

// ListLedgerEntries returns entries with sequence numbers above afterSeq in
// ascending order, up to limit.
func (s *Store) ListLedgerEntries(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+ledgerColumns+" FROM ledger_entries WHERE seq > ? ORDER BY seq ASC LIMIT ?",
		afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// GetLedgerTip returns the current chain tip sequence and hash. An empty
// ledger reports sequence 0 and the zero-hash sentinel.
func (s *Store) GetLedgerTip(ctx context.Context) (uint64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	if s == nil || s.sqlDB == nil {
		return 0, "", fmt.Errorf("storage is not configured")
	}

	var seq uint64
	var hash string
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT seq, entry_hash FROM ledger_tip WHERE id = 1").Scan(&seq, &hash); err != nil {
		return 0, "", fmt.Errorf("load ledger tip: %w", err)
	}
	return seq, hash, nil
}

// RotateLedger deletes entries with sequence numbers strictly below
// beforeSeq. Only the oldest end may be pruned; the tip is untouched.
func (s *Store) RotateLedger(ctx context.Context, beforeSeq uint64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM ledger_entries WHERE seq < ?", beforeSeq)
	if err != nil {
		return 0, fmt.Errorf("rotate ledger: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rotate ledger rows: %w", err)
	}
	return pruned, nil
}

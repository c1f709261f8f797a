package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stakehaus/fairplane/internal/fairness/bet"
	"github.com/stakehaus/fairplane/internal/fairness/commitment"
	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/storage"
)

// createRetries bounds nonce-allocation retries when a concurrent writer for
// the same player wins the unique (player_id, nonce) constraint.
const createRetries = 3

// CreateCommitment assigns the next contiguous per-player nonce and persists
// the commitment atomically.
func (s *Store) CreateCommitment(ctx context.Context, c commitment.Commitment) (commitment.Commitment, error) {
	if err := ctx.Err(); err != nil {
		return commitment.Commitment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return commitment.Commitment{}, fmt.Errorf("storage is not configured")
	}

	validated, err := commitment.NormalizeForCreate(c)
	if err != nil {
		return commitment.Commitment{}, err
	}
	c = validated

	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		stored, err := s.createCommitmentOnce(ctx, c)
		if err == nil {
			return stored, nil
		}
		// The losing concurrent writer retries with a freshly computed nonce.
		if isConstraintError(err) {
			lastErr = err
			continue
		}
		return commitment.Commitment{}, err
	}
	return commitment.Commitment{}, fmt.Errorf("allocate commitment nonce (%v): %w", lastErr, storage.ErrNonceExhausted)
}

func (s *Store) createCommitmentOnce(ctx context.Context, c commitment.Commitment) (commitment.Commitment, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return commitment.Commitment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	c.ExpiresAt = c.ExpiresAt.UTC().Truncate(time.Millisecond)

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO commitment_seqs (player_id, next_nonce) VALUES (?, 1) ON CONFLICT(player_id) DO NOTHING",
		c.PlayerID,
	); err != nil {
		return commitment.Commitment{}, fmt.Errorf("init nonce seq: %w", err)
	}

	var nonce uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT next_nonce FROM commitment_seqs WHERE player_id = ?", c.PlayerID,
	).Scan(&nonce); err != nil {
		return commitment.Commitment{}, fmt.Errorf("get nonce seq: %w", err)
	}
	c.Nonce = nonce

	if _, err := tx.ExecContext(ctx,
		"UPDATE commitment_seqs SET next_nonce = next_nonce + 1 WHERE player_id = ?", c.PlayerID,
	); err != nil {
		return commitment.Commitment{}, fmt.Errorf("increment nonce seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO commitments
		(id, player_id, nonce, server_seed, seed_digest, client_seed, stake_cents, variant, pick, params_hash, state, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PlayerID, c.Nonce, c.ServerSeed, c.SeedDigest, c.ClientSeed,
		c.Params.StakeCents, string(c.Params.Variant), c.Params.Pick, c.ParamsHash,
		string(c.State), toMillis(c.CreatedAt), toMillis(c.ExpiresAt),
	); err != nil {
		return commitment.Commitment{}, err
	}

	if err := tx.Commit(); err != nil {
		return commitment.Commitment{}, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

const commitmentColumns = "id, player_id, nonce, server_seed, seed_digest, client_seed, stake_cents, variant, pick, params_hash, state, created_at, expires_at, resolved_at, outcome, win, payout_cents"

func scanCommitment(row interface{ Scan(...any) error }) (commitment.Commitment, error) {
	var c commitment.Commitment
	var variant, state string
	var createdAt, expiresAt int64
	var resolvedAt sql.NullInt64
	var win int
	err := row.Scan(&c.ID, &c.PlayerID, &c.Nonce, &c.ServerSeed, &c.SeedDigest, &c.ClientSeed,
		&c.Params.StakeCents, &variant, &c.Params.Pick, &c.ParamsHash, &state,
		&createdAt, &expiresAt, &resolvedAt, &c.Outcome, &win, &c.PayoutCents)
	if err != nil {
		return commitment.Commitment{}, err
	}
	c.Params.Variant = bet.Variant(variant)
	c.State = commitment.State(state)
	c.CreatedAt = fromMillis(createdAt)
	c.ExpiresAt = fromMillis(expiresAt)
	c.ResolvedAt = fromNullMillis(resolvedAt)
	c.Win = win != 0
	return c, nil
}

// GetCommitment loads a commitment by id.
func (s *Store) GetCommitment(ctx context.Context, id string) (commitment.Commitment, error) {
	return s.getCommitmentWhere(ctx, "id = ?", id)
}

// GetCommitmentByDigest loads a commitment by its published seed digest.
func (s *Store) GetCommitmentByDigest(ctx context.Context, digest string) (commitment.Commitment, error) {
	return s.getCommitmentWhere(ctx, "seed_digest = ?", digest)
}

func (s *Store) getCommitmentWhere(ctx context.Context, where string, arg any) (commitment.Commitment, error) {
	if err := ctx.Err(); err != nil {
		return commitment.Commitment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return commitment.Commitment{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+commitmentColumns+" FROM commitments WHERE "+where, arg)
	c, err := scanCommitment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return commitment.Commitment{}, storage.ErrNotFound
	}
	if err != nil {
		return commitment.Commitment{}, fmt.Errorf("get commitment: %w", err)
	}
	return c, nil
}

// ResolveCommitment transitions committed -> revealed and appends the
// resolution ledger entry in the same transaction. A failed ledger append
// aborts the resolution; a raced state change returns ErrAlreadyResolved.
func (s *Store) ResolveCommitment(ctx context.Context, resolved commitment.Commitment, entry ledger.Entry) (commitment.Commitment, ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return commitment.Commitment{}, ledger.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return commitment.Commitment{}, ledger.Entry{}, fmt.Errorf("storage is not configured")
	}
	if resolved.State != commitment.StateRevealed || resolved.ResolvedAt == nil {
		return commitment.Commitment{}, ledger.Entry{}, fmt.Errorf("resolved commitment must be revealed with a resolution time")
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return commitment.Commitment{}, ledger.Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	win := 0
	if resolved.Win {
		win = 1
	}
	result, err := tx.ExecContext(ctx, `UPDATE commitments
		SET state = ?, resolved_at = ?, outcome = ?, win = ?, payout_cents = ?
		WHERE id = ? AND state = ?`,
		string(commitment.StateRevealed), toNullMillis(resolved.ResolvedAt),
		resolved.Outcome, win, resolved.PayoutCents,
		resolved.ID, string(commitment.StateCommitted),
	)
	if err != nil {
		return commitment.Commitment{}, ledger.Entry{}, fmt.Errorf("update commitment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return commitment.Commitment{}, ledger.Entry{}, fmt.Errorf("update commitment rows: %w", err)
	}
	if affected == 0 {
		return commitment.Commitment{}, ledger.Entry{}, storage.ErrAlreadyResolved
	}

	storedEntry, err := s.appendEntryTx(ctx, tx, entry)
	if err != nil {
		return commitment.Commitment{}, ledger.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return commitment.Commitment{}, ledger.Entry{}, fmt.Errorf("commit: %w", err)
	}
	return resolved, storedEntry, nil
}

// ExpireCommitments marks committed rows past their deadline as expired.
func (s *Store) ExpireCommitments(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE commitments SET state = ? WHERE state = ? AND expires_at <= ?",
		string(commitment.StateExpired), string(commitment.StateCommitted), toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("expire commitments: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire commitments rows: %w", err)
	}
	return swept, nil
}

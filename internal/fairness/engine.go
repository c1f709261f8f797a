// Package fairness implements the commit-reveal engine: sealed bet
// commitments, deterministic resolution, and the verification read model.
package fairness

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/stakehaus/fairplane/internal/fairness/bet"
	"github.com/stakehaus/fairplane/internal/fairness/commitment"
	"github.com/stakehaus/fairplane/internal/fairness/mix"
	"github.com/stakehaus/fairplane/internal/gateway"
	"github.com/stakehaus/fairplane/internal/ledger"
	apperrors "github.com/stakehaus/fairplane/internal/platform/errors"
	"github.com/stakehaus/fairplane/internal/platform/id"
	"github.com/stakehaus/fairplane/internal/platform/metrics"
	"github.com/stakehaus/fairplane/internal/random"
	"github.com/stakehaus/fairplane/internal/storage"
)

// DefaultCommitmentTTL is how long a sealed commitment stays resolvable.
const DefaultCommitmentTTL = 15 * time.Minute

// Engine runs the commit-reveal flow. Outcomes are fixed at commitment time
// by the sealed server seed; resolution only derives and publishes them.
type Engine struct {
	store      storage.CommitmentStore
	ledger     *ledger.Ledger
	settlement gateway.Settlement
	metrics    *metrics.Metrics
	limits     bet.Limits
	ttl        time.Duration
	now        func() time.Time
}

// Config carries the engine's dependencies and tuning.
type Config struct {
	Store      storage.CommitmentStore
	Ledger     *ledger.Ledger
	Settlement gateway.Settlement
	Metrics    *metrics.Metrics
	Limits     bet.Limits
	// TTL is the commitment reveal deadline. Zero means DefaultCommitmentTTL.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewEngine constructs the commit-reveal engine.
func NewEngine(cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCommitmentTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Settlement == nil {
		cfg.Settlement = gateway.LogSettlement{}
	}
	return &Engine{
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		settlement: cfg.Settlement,
		metrics:    cfg.Metrics,
		limits:     cfg.Limits,
		ttl:        cfg.TTL,
		now:        cfg.Now,
	}
}

// Commit validates a declared bet, seals a fresh server seed, and stores the
// commitment with the player's next contiguous nonce. The returned receipt
// carries the seed digest but never the seed itself.
func (e *Engine) Commit(ctx context.Context, playerID string, declared bet.Params, clientSeed string) (commitment.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return commitment.Receipt{}, err
	}
	if e == nil || e.store == nil {
		return commitment.Receipt{}, apperrors.New(apperrors.CodeUnknown, "fairness engine is not configured")
	}

	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return commitment.Receipt{}, apperrors.New(apperrors.CodeBetPlayerEmpty, "player id is required")
	}
	if err := declared.Validate(e.limits); err != nil {
		return commitment.Receipt{}, err
	}

	serverSeed, err := random.NewServerSeed()
	if err != nil {
		return commitment.Receipt{}, apperrors.Wrap(apperrors.CodeUnknown, "generate server seed", err)
	}
	clientSeed = strings.TrimSpace(clientSeed)
	if clientSeed == "" {
		clientSeed, err = random.NewClientSeed()
		if err != nil {
			return commitment.Receipt{}, apperrors.Wrap(apperrors.CodeUnknown, "generate client seed", err)
		}
	}
	paramsHash, err := declared.Hash()
	if err != nil {
		return commitment.Receipt{}, apperrors.Wrap(apperrors.CodeUnknown, "hash bet parameters", err)
	}
	commitmentID, err := id.NewID()
	if err != nil {
		return commitment.Receipt{}, apperrors.Wrap(apperrors.CodeUnknown, "generate commitment id", err)
	}

	now := e.now()
	created, err := e.store.CreateCommitment(ctx, commitment.Commitment{
		ID:         commitmentID,
		PlayerID:   playerID,
		ServerSeed: serverSeed,
		SeedDigest: random.SeedDigest(serverSeed),
		ClientSeed: clientSeed,
		Params:     declared,
		ParamsHash: paramsHash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.ttl),
	})
	if errors.Is(err, storage.ErrNonceExhausted) {
		return commitment.Receipt{}, apperrors.Wrap(apperrors.CodeInvalidNonce, "allocate commitment nonce", err)
	}
	if err != nil {
		return commitment.Receipt{}, apperrors.Wrap(apperrors.CodeUnknown, "store commitment", err)
	}

	if _, err := e.appendFairnessEntry(ctx, created.PlayerID, "BET_COMMITTED", created.ID, map[string]any{
		"seed_digest": created.SeedDigest,
		"nonce":       created.Nonce,
		"params_hash": created.ParamsHash,
	}); err != nil {
		// The sealed row stays behind and expires via the sweep; the player
		// retries with a fresh commitment.
		return commitment.Receipt{}, err
	}

	e.metrics.IncCommit()
	return created.Receipt(), nil
}

// Resolve re-declares the bet, derives the outcome from the sealed seed, and
// persists the reveal together with its audit entry in one transaction.
func (e *Engine) Resolve(ctx context.Context, commitmentID string, declared bet.Params) (commitment.Reveal, error) {
	if err := ctx.Err(); err != nil {
		return commitment.Reveal{}, err
	}
	if e == nil || e.store == nil {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeUnknown, "fairness engine is not configured")
	}

	stored, err := e.store.GetCommitment(ctx, strings.TrimSpace(commitmentID))
	if errors.Is(err, storage.ErrNotFound) {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeNotFound, "commitment not found")
	}
	if err != nil {
		return commitment.Reveal{}, apperrors.Wrap(apperrors.CodeUnknown, "load commitment", err)
	}

	now := e.now()
	if stored.State.IsTerminal() {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeStaleCommitment, "commitment is no longer resolvable")
	}
	if stored.Expired(now) {
		if _, sweepErr := e.store.ExpireCommitments(ctx, now); sweepErr != nil {
			log.Printf("expire sweep during resolve failed: %v", sweepErr)
		}
		return commitment.Reveal{}, apperrors.New(apperrors.CodeStaleCommitment, "commitment reveal deadline passed")
	}

	declaredHash, err := declared.Hash()
	if err != nil {
		return commitment.Reveal{}, apperrors.Wrap(apperrors.CodeUnknown, "hash bet parameters", err)
	}
	if declaredHash != stored.ParamsHash {
		e.metrics.IncParameterMismatch()
		log.Printf("parameter mismatch on resolve commitment=%s player=%s", stored.ID, stored.PlayerID)
		return commitment.Reveal{}, apperrors.WithMetadata(apperrors.CodeParameterMismatch, "declared parameters do not match commitment", map[string]string{
			"CommitmentID": stored.ID,
		})
	}

	outcome, err := mix.Result(stored.ServerSeed, stored.ClientSeed, stored.Nonce, stored.Params.Variant)
	if err != nil {
		return commitment.Reveal{}, apperrors.Wrap(apperrors.CodeUnknown, "derive outcome", err)
	}

	resolvedAt := now
	resolved := stored
	resolved.State = commitment.StateRevealed
	resolved.ResolvedAt = &resolvedAt
	resolved.Outcome = outcome
	resolved.Win = stored.Params.Win(outcome)
	if resolved.Win {
		resolved.PayoutCents = stored.Params.Payout(outcome)
	}

	details, err := json.Marshal(map[string]any{
		"seed_digest":  resolved.SeedDigest,
		"nonce":        resolved.Nonce,
		"outcome":      resolved.Outcome,
		"win":          resolved.Win,
		"payout_cents": resolved.PayoutCents,
	})
	if err != nil {
		return commitment.Reveal{}, apperrors.Wrap(apperrors.CodeUnknown, "encode resolution details", err)
	}

	resolved, _, err = e.store.ResolveCommitment(ctx, resolved, ledger.Entry{
		Actor:       resolved.PlayerID,
		EventType:   ledger.EventTypeFairness,
		Action:      "BET_RESOLVED",
		Target:      resolved.ID,
		DetailsJSON: details,
	})
	if errors.Is(err, storage.ErrAlreadyResolved) {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeStaleCommitment, "commitment is no longer resolvable")
	}
	if err != nil {
		e.metrics.IncLedgerAppendFailure()
		return commitment.Reveal{}, apperrors.Wrap(apperrors.CodeLedgerAppendFailure, "record resolution", err)
	}

	result := "loss"
	if resolved.Win {
		result = "win"
		e.settlement.Notify(ctx, resolved.PlayerID, resolved.PayoutCents, "bet "+resolved.ID)
	}
	e.metrics.IncResolution(result)
	return resolved.Reveal(), nil
}

// ExpireStale sweeps committed rows past their deadline into the expired
// state. Runs on the background ticker and defensively inside Resolve.
func (e *Engine) ExpireStale(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if e == nil || e.store == nil {
		return 0, apperrors.New(apperrors.CodeUnknown, "fairness engine is not configured")
	}

	expired, err := e.store.ExpireCommitments(ctx, e.now())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnknown, "expire stale commitments", err)
	}
	if expired > 0 {
		e.metrics.IncExpired(int(expired))
	}
	return expired, nil
}

// Reveal returns the public verification payload for a resolved commitment,
// looked up by id or by published seed digest. Unresolved commitments are
// reported as not found; the sealed seed must never leak early.
func (e *Engine) Reveal(ctx context.Context, idOrDigest string) (commitment.Reveal, error) {
	if err := ctx.Err(); err != nil {
		return commitment.Reveal{}, err
	}
	if e == nil || e.store == nil {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeUnknown, "fairness engine is not configured")
	}

	idOrDigest = strings.TrimSpace(idOrDigest)
	stored, err := e.store.GetCommitment(ctx, idOrDigest)
	if errors.Is(err, storage.ErrNotFound) {
		stored, err = e.store.GetCommitmentByDigest(ctx, idOrDigest)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeNotFound, "commitment not found")
	}
	if err != nil {
		return commitment.Reveal{}, apperrors.Wrap(apperrors.CodeUnknown, "load commitment", err)
	}
	if stored.State != commitment.StateRevealed {
		return commitment.Reveal{}, apperrors.New(apperrors.CodeNotFound, "commitment not found")
	}
	return stored.Reveal(), nil
}

func (e *Engine) appendFairnessEntry(ctx context.Context, actor, action, target string, details map[string]any) (ledger.Entry, error) {
	if e.ledger == nil {
		return ledger.Entry{}, nil
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return ledger.Entry{}, apperrors.Wrap(apperrors.CodeUnknown, "encode entry details", err)
	}
	return e.ledger.Append(ctx, ledger.Entry{
		Actor:       actor,
		EventType:   ledger.EventTypeFairness,
		Action:      action,
		Target:      target,
		DetailsJSON: payload,
	})
}

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stakehaus/fairplane/internal/fairness/bet"
	"github.com/stakehaus/fairplane/internal/fairness/commitment"
	"github.com/stakehaus/fairplane/internal/governance"
	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/platform/id"
	"github.com/stakehaus/fairplane/internal/random"
	"github.com/stakehaus/fairplane/internal/storage"
	"github.com/stakehaus/fairplane/internal/storage/integrity"
)

func TestOpenRequiresPath(t *testing.T) {
	keyring := testKeyring(t)
	if _, err := Open("", keyring); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenRequiresKeyring(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "plane.db"), nil); err == nil {
		t.Fatal("expected error for missing keyring")
	}
}

func TestStoreCloseNilSafe(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func TestAppendLedgerEntryChains(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	var stored []ledger.Entry
	for i := 0; i < 3; i++ {
		entry, err := store.AppendLedgerEntry(ctx, ledger.Entry{
			Actor:     "player-1",
			EventType: ledger.EventTypeFairness,
			Action:    "BET_COMMITTED",
			Target:    "commit-1",
		})
		if err != nil {
			t.Fatalf("append entry %d: %v", i, err)
		}
		stored = append(stored, entry)
	}

	if stored[0].Seq != 1 {
		t.Fatalf("expected first seq 1, got %d", stored[0].Seq)
	}
	if stored[0].PrevHash != ledger.ZeroHash {
		t.Fatalf("expected zero prev hash, got %s", stored[0].PrevHash)
	}
	for i := 1; i < len(stored); i++ {
		if stored[i].Seq != stored[i-1].Seq+1 {
			t.Fatalf("expected contiguous seq, got %d after %d", stored[i].Seq, stored[i-1].Seq)
		}
		if stored[i].PrevHash != stored[i-1].EntryHash {
			t.Fatalf("entry %d prev hash does not match predecessor", stored[i].Seq)
		}
	}

	tipSeq, tipHash, err := store.GetLedgerTip(ctx)
	if err != nil {
		t.Fatalf("get tip: %v", err)
	}
	if tipSeq != 3 || tipHash != stored[2].EntryHash {
		t.Fatalf("unexpected tip: seq=%d hash=%s", tipSeq, tipHash)
	}

	result := ledger.VerifyEntries(stored, ledger.ZeroHash, store.keyring)
	if !result.OK {
		t.Fatalf("expected chain to verify: %+v", result)
	}
	if result.Checked != 3 {
		t.Fatalf("expected 3 checked entries, got %d", result.Checked)
	}
}

func TestAppendLedgerEntryRejectsPreassignedChaining(t *testing.T) {
	store := openTempStore(t)

	_, err := store.AppendLedgerEntry(context.Background(), ledger.Entry{
		Actor:     "player-1",
		EventType: ledger.EventTypeFairness,
		Action:    "BET_COMMITTED",
		Seq:       7,
	})
	if err == nil {
		t.Fatal("expected error for caller-assigned sequence")
	}
}

func TestVerifyEntriesDetectsTampering(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.AppendLedgerEntry(ctx, ledger.Entry{
			Actor:     "admin-1",
			EventType: ledger.EventTypeGovernance,
			Action:    "PAUSE_REQUESTED",
			Target:    "randomizer",
		}); err != nil {
			t.Fatalf("append entry %d: %v", i, err)
		}
	}

	if _, err := store.sqlDB.ExecContext(ctx,
		"UPDATE ledger_entries SET details_json = ? WHERE seq = 2",
		[]byte(`{"tampered":true}`),
	); err != nil {
		t.Fatalf("tamper entry: %v", err)
	}

	entries, err := store.ListLedgerEntries(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	result := ledger.VerifyEntries(entries, ledger.ZeroHash, store.keyring)
	if result.OK {
		t.Fatal("expected verification to fail after tampering")
	}
	if result.ViolationSeq != 2 {
		t.Fatalf("expected violation at seq 2, got %d (%s)", result.ViolationSeq, result.Reason)
	}
}

func TestListLedgerEntriesAfterSeq(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.AppendLedgerEntry(ctx, ledger.Entry{
			Actor:     "system",
			EventType: ledger.EventTypeGovernance,
			Action:    "NODE_REGISTERED",
		}); err != nil {
			t.Fatalf("append entry %d: %v", i, err)
		}
	}

	entries, err := store.ListLedgerEntries(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 3 || entries[1].Seq != 4 {
		t.Fatalf("unexpected page: %+v", entries)
	}
}

func TestGetLedgerEntryNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.GetLedgerEntry(context.Background(), 42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRotateLedgerKeepsChainVerifiable(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	var stored []ledger.Entry
	for i := 0; i < 5; i++ {
		entry, err := store.AppendLedgerEntry(ctx, ledger.Entry{
			Actor:     "system",
			EventType: ledger.EventTypeGovernance,
			Action:    "NODE_REGISTERED",
		})
		if err != nil {
			t.Fatalf("append entry %d: %v", i, err)
		}
		stored = append(stored, entry)
	}

	removed, err := store.RotateLedger(ctx, 4)
	if err != nil {
		t.Fatalf("rotate ledger: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed entries, got %d", removed)
	}

	entries, err := store.ListLedgerEntries(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 4 {
		t.Fatalf("unexpected surviving entries: %+v", entries)
	}

	// The retained suffix still chains from the last rotated entry's hash.
	result := ledger.VerifyEntries(entries, stored[2].EntryHash, store.keyring)
	if !result.OK {
		t.Fatalf("expected surviving chain to verify: %+v", result)
	}

	// The verification service reaches the same verdict without the pruned
	// predecessor, seeding from the oldest retained entry's stored link.
	service := ledger.New(store, store.keyring, nil, nil)
	verified, err := service.VerifyRange(ctx, 0, 0)
	if err != nil {
		t.Fatalf("verify range after rotation: %v", err)
	}
	if !verified.OK || verified.Checked != 2 || verified.FromSeq != 4 {
		t.Fatalf("expected rotated ledger to verify end to end, got %+v", verified)
	}
}

func TestCreateCommitmentAssignsContiguousNonces(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		created, err := store.CreateCommitment(ctx, testCommitment(t, "player-1"))
		if err != nil {
			t.Fatalf("create commitment %d: %v", want, err)
		}
		if created.Nonce != want {
			t.Fatalf("expected nonce %d, got %d", want, created.Nonce)
		}
	}

	other, err := store.CreateCommitment(ctx, testCommitment(t, "player-2"))
	if err != nil {
		t.Fatalf("create commitment for second player: %v", err)
	}
	if other.Nonce != 1 {
		t.Fatalf("expected independent nonce counter, got %d", other.Nonce)
	}
}

func TestCreateCommitmentConcurrentNonces(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	nonces := make(chan uint64, writers)
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.CreateCommitment(ctx, testCommitment(t, "player-1"))
			if err != nil {
				errs <- err
				return
			}
			nonces <- created.Nonce
		}()
	}
	wg.Wait()
	close(nonces)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create: %v", err)
	}
	seen := map[uint64]bool{}
	for nonce := range nonces {
		if seen[nonce] {
			t.Fatalf("duplicate nonce %d", nonce)
		}
		seen[nonce] = true
	}
	for want := uint64(1); want <= writers; want++ {
		if !seen[want] {
			t.Fatalf("missing nonce %d", want)
		}
	}
}

func TestGetCommitmentByDigest(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	created, err := store.CreateCommitment(ctx, testCommitment(t, "player-1"))
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	got, err := store.GetCommitmentByDigest(ctx, created.SeedDigest)
	if err != nil {
		t.Fatalf("get by digest: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected commitment %s, got %s", created.ID, got.ID)
	}

	if _, err := store.GetCommitmentByDigest(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveCommitmentAppendsAtomically(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	created, err := store.CreateCommitment(ctx, testCommitment(t, "player-1"))
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	resolvedAt := time.Now().UTC()
	resolved := created
	resolved.State = commitment.StateRevealed
	resolved.ResolvedAt = &resolvedAt
	resolved.Outcome = 4
	resolved.Win = true
	resolved.PayoutCents = 582

	got, entry, err := store.ResolveCommitment(ctx, resolved, ledger.Entry{
		Actor:     created.PlayerID,
		EventType: ledger.EventTypeFairness,
		Action:    "BET_RESOLVED",
		Target:    created.ID,
	})
	if err != nil {
		t.Fatalf("resolve commitment: %v", err)
	}
	if got.State != commitment.StateRevealed || got.Outcome != 4 {
		t.Fatalf("unexpected resolved commitment: %+v", got)
	}
	if entry.Seq == 0 || entry.EntryHash == "" {
		t.Fatalf("expected stored ledger entry, got %+v", entry)
	}

	reread, err := store.GetCommitment(ctx, created.ID)
	if err != nil {
		t.Fatalf("get commitment: %v", err)
	}
	if reread.State != commitment.StateRevealed || reread.ResolvedAt == nil {
		t.Fatalf("resolution not persisted: %+v", reread)
	}
}

func TestResolveCommitmentRaceLosesCleanly(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	created, err := store.CreateCommitment(ctx, testCommitment(t, "player-1"))
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	resolvedAt := time.Now().UTC()
	resolved := created
	resolved.State = commitment.StateRevealed
	resolved.ResolvedAt = &resolvedAt

	entry := ledger.Entry{
		Actor:     created.PlayerID,
		EventType: ledger.EventTypeFairness,
		Action:    "BET_RESOLVED",
		Target:    created.ID,
	}
	if _, _, err := store.ResolveCommitment(ctx, resolved, entry); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, _, err = store.ResolveCommitment(ctx, resolved, entry)
	if !errors.Is(err, storage.ErrAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}

	// The losing resolve must not have appended a second entry.
	tipSeq, _, err := store.GetLedgerTip(ctx)
	if err != nil {
		t.Fatalf("get tip: %v", err)
	}
	if tipSeq != 1 {
		t.Fatalf("expected single ledger entry, got tip seq %d", tipSeq)
	}
}

func TestExpireCommitments(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	stale := testCommitment(t, "player-1")
	stale.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	created, err := store.CreateCommitment(ctx, stale)
	if err != nil {
		t.Fatalf("create stale commitment: %v", err)
	}

	fresh := testCommitment(t, "player-1")
	fresh.ExpiresAt = time.Now().UTC().Add(time.Hour)
	kept, err := store.CreateCommitment(ctx, fresh)
	if err != nil {
		t.Fatalf("create fresh commitment: %v", err)
	}

	expired, err := store.ExpireCommitments(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("expire commitments: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired commitment, got %d", expired)
	}

	got, err := store.GetCommitment(ctx, created.ID)
	if err != nil {
		t.Fatalf("get stale commitment: %v", err)
	}
	if got.State != commitment.StateExpired {
		t.Fatalf("expected expired state, got %s", got.State)
	}

	got, err = store.GetCommitment(ctx, kept.ID)
	if err != nil {
		t.Fatalf("get fresh commitment: %v", err)
	}
	if got.State != commitment.StateCommitted {
		t.Fatalf("expected committed state, got %s", got.State)
	}
}

func TestEnsureNodeStoredRowWins(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.EnsureNode(ctx, governance.NewBootstrapNode("randomizer", time.Now().UTC()))
	if err != nil {
		t.Fatalf("ensure node: %v", err)
	}
	if first.Status != governance.NodeRunning || first.Version != 1 {
		t.Fatalf("unexpected bootstrap node: %+v", first)
	}

	altered := governance.NewBootstrapNode("randomizer", time.Now().UTC())
	altered.Status = governance.NodePaused
	second, err := store.EnsureNode(ctx, altered)
	if err != nil {
		t.Fatalf("ensure existing node: %v", err)
	}
	if second.Status != governance.NodeRunning {
		t.Fatalf("expected stored row to win, got %+v", second)
	}
}

func TestListNodesOrdered(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for _, name := range []string{"settlement", "randomizer", "ledger"} {
		if _, err := store.EnsureNode(ctx, governance.NewBootstrapNode(name, time.Now().UTC())); err != nil {
			t.Fatalf("ensure %s: %v", name, err)
		}
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "ledger" || nodes[1].Name != "randomizer" || nodes[2].Name != "settlement" {
		t.Fatalf("unexpected order: %+v", nodes)
	}
}

func TestUpdateNodeVersionConflict(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	node, err := store.EnsureNode(ctx, governance.NewBootstrapNode("randomizer", time.Now().UTC()))
	if err != nil {
		t.Fatalf("ensure node: %v", err)
	}

	node.Status = governance.NodePaused
	node.ChangedBy = "admin-1"
	node.Reason = "incident"
	node.ChangedAt = time.Now().UTC()

	updated, _, err := store.UpdateNode(ctx, node, node.Version, nil)
	if err != nil {
		t.Fatalf("update node: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	// Re-applying with the stale version must lose.
	_, _, err = store.UpdateNode(ctx, node, 1, nil)
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestUpdateNodeAppendsEntryAtomically(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	node, err := store.EnsureNode(ctx, governance.NewBootstrapNode("randomizer", time.Now().UTC()))
	if err != nil {
		t.Fatalf("ensure node: %v", err)
	}

	node.Status = governance.NodePaused
	node.ChangedBy = "admin-1"
	node.ChangedAt = time.Now().UTC()

	_, entry, err := store.UpdateNode(ctx, node, node.Version, &ledger.Entry{
		Actor:     "admin-1",
		EventType: ledger.EventTypeGovernance,
		Action:    "PAUSE_ACTIVATED",
		Target:    "randomizer",
	})
	if err != nil {
		t.Fatalf("update node: %v", err)
	}
	if entry == nil || entry.Seq != 1 {
		t.Fatalf("expected appended entry at seq 1, got %+v", entry)
	}

	got, err := store.GetNode(ctx, "randomizer")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if got.Status != governance.NodePaused || got.Version != 2 {
		t.Fatalf("unexpected node after update: %+v", got)
	}
}

func TestUpdateNodeConflictSkipsEntry(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	node, err := store.EnsureNode(ctx, governance.NewBootstrapNode("randomizer", time.Now().UTC()))
	if err != nil {
		t.Fatalf("ensure node: %v", err)
	}

	node.Status = governance.NodePaused
	node.ChangedAt = time.Now().UTC()
	_, _, err = store.UpdateNode(ctx, node, node.Version+5, &ledger.Entry{
		Actor:     "admin-1",
		EventType: ledger.EventTypeGovernance,
		Action:    "PAUSE_ACTIVATED",
		Target:    "randomizer",
	})
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	tipSeq, _, err := store.GetLedgerTip(ctx)
	if err != nil {
		t.Fatalf("get tip: %v", err)
	}
	if tipSeq != 0 {
		t.Fatalf("expected no ledger entry after losing update, got tip seq %d", tipSeq)
	}
}

func TestGetNodeNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.GetNode(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testCommitment(t *testing.T, playerID string) commitment.Commitment {
	t.Helper()
	seed, err := random.NewServerSeed()
	if err != nil {
		t.Fatalf("new server seed: %v", err)
	}
	params := bet.Params{StakeCents: 100, Variant: bet.VariantDice, Pick: 4}
	hash, err := params.Hash()
	if err != nil {
		t.Fatalf("hash params: %v", err)
	}
	commitmentID, err := id.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return commitment.Commitment{
		ID:         commitmentID,
		PlayerID:   playerID,
		ServerSeed: seed,
		SeedDigest: random.SeedDigest(seed),
		ClientSeed: "client-seed",
		Params:     params,
		ParamsHash: hash,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(15 * time.Minute),
	}
}

func testKeyring(t *testing.T) *integrity.Keyring {
	t.Helper()
	keyring, err := integrity.NewKeyring(map[string][]byte{"v1": []byte("test-ledger-hmac-key")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	return keyring
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plane.db")
	store, err := Open(path, testKeyring(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

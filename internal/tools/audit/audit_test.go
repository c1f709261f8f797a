package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/storage/integrity"
	"github.com/stakehaus/fairplane/internal/storage/sqlite"
)

func seedChain(t *testing.T, path string, entries int) {
	t.Helper()

	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		t.Fatalf("load keyring: %v", err)
	}
	store, err := sqlite.Open(path, keyring)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	for i := 0; i < entries; i++ {
		_, err := store.AppendLedgerEntry(context.Background(), ledger.Entry{
			Actor:       "system",
			EventType:   ledger.EventTypeGovernance,
			Action:      "PAUSE_REQUESTED",
			Target:      "randomizer",
			DetailsJSON: []byte(fmt.Sprintf(`{"vote":%d}`, i+1)),
		})
		if err != nil {
			t.Fatalf("append entry %d: %v", i+1, err)
		}
	}
}

func TestParseConfig(t *testing.T) {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "chain.db", "-from", "2", "-to", "9"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DatabasePath != "chain.db" || cfg.FromSeq != 2 || cfg.ToSeq != 9 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestRunVerifiesIntactChain(t *testing.T) {
	t.Setenv("FAIRPLANE_LEDGER_HMAC_KEY", "test-ledger-hmac-key")
	path := filepath.Join(t.TempDir(), "chain.db")
	seedChain(t, path, 3)

	var out bytes.Buffer
	if err := Run(context.Background(), Config{DatabasePath: path}, &out); err != nil {
		t.Fatalf("run audit: %v", err)
	}

	var result ledger.VerificationResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.OK || result.Checked != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunDetectsTampering(t *testing.T) {
	t.Setenv("FAIRPLANE_LEDGER_HMAC_KEY", "test-ledger-hmac-key")
	path := filepath.Join(t.TempDir(), "chain.db")
	seedChain(t, path, 3)

	// Forge the recorded details of entry 2 behind the store's back.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw database: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), `UPDATE ledger_entries SET details_json = ? WHERE seq = 2`, `{"vote":99}`); err != nil {
		t.Fatalf("tamper entry: %v", err)
	}
	db.Close()

	var out bytes.Buffer
	err = Run(context.Background(), Config{DatabasePath: path}, &out)
	if !errors.Is(err, ErrChainViolation) {
		t.Fatalf("expected chain violation, got %v", err)
	}

	var result ledger.VerificationResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OK || result.ViolationSeq != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunRequiresKeyring(t *testing.T) {
	t.Setenv("FAIRPLANE_LEDGER_HMAC_KEY", "")
	t.Setenv("FAIRPLANE_LEDGER_HMAC_KEYS", "")

	var out bytes.Buffer
	if err := Run(context.Background(), Config{DatabasePath: filepath.Join(t.TempDir(), "chain.db")}, &out); err == nil {
		t.Fatal("expected error without a ledger HMAC key")
	}
}

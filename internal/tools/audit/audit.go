// Package audit verifies a ledger chain offline against its SQLite store.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/storage/integrity"
	"github.com/stakehaus/fairplane/internal/storage/sqlite"
)

// ErrChainViolation reports that verification found a discrepancy. The
// violation details are in the printed result.
var ErrChainViolation = errors.New("ledger chain verification failed")

// Config holds configuration for an offline verification run.
type Config struct {
	DatabasePath string
	FromSeq      uint64
	ToSeq        uint64
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{DatabasePath: "fairplane.db"}
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	fs.Uint64Var(&cfg.FromSeq, "from", 0, "first sequence number to verify (0 = chain start)")
	fs.Uint64Var(&cfg.ToSeq, "to", 0, "last sequence number to verify (0 = chain tip)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run verifies the requested chain range and writes the result as JSON to
// out. A tampered or broken chain returns ErrChainViolation.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}

	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return fmt.Errorf("load ledger keyring: %w", err)
	}
	store, err := sqlite.Open(cfg.DatabasePath, keyring)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	chain := ledger.New(store, keyring, nil, nil)
	result, err := chain.VerifyRange(ctx, cfg.FromSeq, cfg.ToSeq)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !result.OK {
		return ErrChainViolation
	}
	return nil
}

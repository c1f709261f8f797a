package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	platformcmd "github.com/stakehaus/fairplane/internal/platform/cmd"
	"github.com/stakehaus/fairplane/internal/tools/audit"
)

func main() {
	cfg, err := audit.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceAudit, func(ctx context.Context) error {
		return audit.Run(ctx, cfg, os.Stdout)
	})
	if errors.Is(err, audit.ErrChainViolation) {
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("audit failed: %v", err)
	}
}

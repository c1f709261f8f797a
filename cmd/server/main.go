package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stakehaus/fairplane/internal/app/server"
	platformcmd "github.com/stakehaus/fairplane/internal/platform/cmd"
)

func main() {
	var cfg server.Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		log.Fatalf("parse config: %v", err)
	}
	fs := flag.NewFlagSet(platformcmd.ServiceServer, flag.ExitOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	if err := platformcmd.ParseArgs(fs, os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	log.SetPrefix("[FAIRPLANE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceServer, func(ctx context.Context) error {
		return server.Run(ctx, cfg)
	}); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

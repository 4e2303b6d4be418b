// Package main starts the adhoc service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	adhoccmd "github.com/louisbranch/gathering.space/internal/cmd/adhoc"
	"github.com/louisbranch/gathering.space/internal/platform/config"
)

func main() {
	cfg, err := adhoccmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[ADHOC] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Check {
		if err := adhoccmd.CheckReady(ctx, cfg); err != nil {
			config.Exitf("readiness check: %v", err)
		}
		return
	}

	if err := adhoccmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

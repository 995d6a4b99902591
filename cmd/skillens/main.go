// SkilLens - skill catalog analysis pipeline.
//
// Discovers AI agent skills from public catalogs, snapshots their
// repository content, and analyzes each snapshot for security risk.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillens/skillens/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}

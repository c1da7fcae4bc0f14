// ABOUTME: Entry point for coa-mirror, the chart-of-accounts mirror service
// ABOUTME: Builds the cobra command tree and runs it under a signal-aware context

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                    _
  ___ ___   __ _       _ __ ___  (_)_ __ _ __ ___  _ __
 / __/ _ \ / _' |_____| '_ ' _ \ | | '__| '__/ _ \| '__|
| (_| (_) | (_| |_____| | | | | || | |  | | | (_) | |
 \___\___/ \__,_|     |_| |_| |_||_|_|  |_|  \___/|_|
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command fluency assesses the reading fluency of recorded students.
//
// It runs as a long-lived HTTP and MCP server (serve), assesses a single
// recording (assess), a manifest of recordings (batch), or compares a known
// transcript against a passage without any transcription call (compare).
package main

import (
	"fmt"
	"os"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fluency: %v\n", err)
		os.Exit(1)
	}
}

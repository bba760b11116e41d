// Command lexitrie embeds a trie-based full-text search engine behind a
// small CLI for indexing and querying a document corpus.
package main

import (
	"fmt"
	"os"
	"runtime"

	"lexitrie/cmd"
)

var (
	// Version is set during build via ldflags
	Version = "dev"
	// BuildTime is set during build via ldflags
	BuildTime = "unknown"
	// Commit is set during build via ldflags
	Commit = "unknown"
	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

func main() {
	// Set version info in cmd package
	cmd.Version = Version
	cmd.BuildTime = BuildTime
	cmd.Commit = Commit
	cmd.SetVersionInfo()

	// Run the application
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Execute root command
	cmd.Execute()
	return nil
}

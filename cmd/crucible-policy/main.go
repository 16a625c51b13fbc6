// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/crucible-foundation/crucible/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch subcommand := os.Args[1]; subcommand {
	case "compile":
		return runCompile(os.Args[2:])
	case "validate":
		return runValidate(os.Args[2:])
	case "show":
		return runShow(os.Args[2:])
	case "match":
		return runMatch(os.Args[2:])
	case "store":
		return runStore(os.Args[2:])
	case "version", "--version":
		version.Print("crucible-policy")
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: crucible-policy <subcommand> [flags]

Subcommands:
  compile     Compile a policy document into profile blobs
  validate    Validate compiled profile blobs
  show        Describe a compiled profile blob
  match       Evaluate a probe against a compiled profile
  store       Manage the profile database
  version     Print version information

Run 'crucible-policy <subcommand> --help' for subcommand flags.
`)
}

// newLogger builds the CLI logger. Verbose enables debug records;
// otherwise only warnings and errors reach stderr, keeping stdout
// clean for command output.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

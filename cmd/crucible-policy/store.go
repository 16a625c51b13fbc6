// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/profilestore"
	"github.com/crucible-foundation/crucible/lib/protecc"
)

// runStore dispatches the profile database subcommands.
func runStore(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("store subcommand required: list, export, delete")
	}
	switch args[0] {
	case "list":
		return runStoreList(args[1:])
	case "export":
		return runStoreExport(args[1:])
	case "delete":
		return runStoreDelete(args[1:])
	default:
		return fmt.Errorf("unknown store subcommand: %q", args[0])
	}
}

func openStoreFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("db", "", "profile database path")
}

func runStoreList(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy store list", pflag.ContinueOnError)
	dbPath := openStoreFlag(flagSet)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("--db is required")
	}

	store, err := profilestore.Open(profilestore.Config{Path: *dbPath})
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(context.Background())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		record := entry.Record
		fmt.Printf("%s\t%s\t%s\t%d bytes\t%s\t%s\n",
			entry.Hash, record.Name, record.Domain, record.RawSize,
			record.Compression,
			time.Unix(record.CreatedAt, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func runStoreExport(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy store export", pflag.ContinueOnError)
	dbPath := openStoreFlag(flagSet)
	name := flagSet.String("name", "", "resolve by profile name instead of hash")
	out := flagSet.String("out", "", "output file (default: stdout)")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	if *name == "" && flagSet.NArg() != 1 {
		return fmt.Errorf("a profile hash argument or --name is required")
	}

	store, err := profilestore.Open(profilestore.Config{Path: *dbPath})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var resolved *protecc.Profile
	if *name != "" {
		resolved, _, err = store.GetByName(ctx, *name)
	} else {
		var hash profilestore.Hash
		hash, err = profilestore.ParseHash(flagSet.Arg(0))
		if err != nil {
			return err
		}
		resolved, _, err = store.Get(ctx, hash)
	}
	if err != nil {
		return err
	}

	blob := make([]byte, resolved.Size())
	if _, err := resolved.Export(blob); err != nil {
		return err
	}
	if *out == "" {
		_, err = os.Stdout.Write(blob)
		return err
	}
	return os.WriteFile(*out, blob, 0o644)
}

func runStoreDelete(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy store delete", pflag.ContinueOnError)
	dbPath := openStoreFlag(flagSet)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("a profile hash argument is required")
	}
	hash, err := profilestore.ParseHash(flagSet.Arg(0))
	if err != nil {
		return err
	}

	store, err := profilestore.Open(profilestore.Config{Path: *dbPath})
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Delete(context.Background(), hash)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s: %w", hash, profilestore.ErrNotFound)
	}
	fmt.Printf("deleted %s\n", hash)
	return nil
}

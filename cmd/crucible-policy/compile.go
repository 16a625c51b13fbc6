// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/policydef"
	"github.com/crucible-foundation/crucible/lib/profilestore"
	"github.com/crucible-foundation/crucible/lib/protecc"
)

// runCompile compiles a policy document and writes one blob per
// domain, either to files next to --out or into a profile database.
func runCompile(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy compile", pflag.ContinueOnError)
	policyPath := flagSet.String("policy", "", "policy document (.yaml, .json, or .jsonc)")
	outPrefix := flagSet.String("out", "", "output path prefix; writes <prefix>.<domain>.cprf per domain")
	dbPath := flagSet.String("db", "", "store compiled profiles in this profile database instead of files")
	name := flagSet.String("name", "", "profile name in the database (default: policy file base name)")
	verbose := flagSet.BoolP("verbose", "v", false, "enable debug logging")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *policyPath == "" {
		return fmt.Errorf("--policy is required")
	}
	if *outPrefix == "" && *dbPath == "" {
		return fmt.Errorf("one of --out or --db is required")
	}
	logger := newLogger(*verbose)

	document, err := policydef.Load(*policyPath)
	if err != nil {
		return err
	}
	compiled, err := document.Compile()
	if err != nil {
		return err
	}

	profiles := []struct {
		domain  string
		profile *protecc.Profile
	}{
		{"path", compiled.Path},
		{"net", compiled.Net},
		{"mount", compiled.Mount},
	}

	if *dbPath != "" {
		store, err := profilestore.Open(profilestore.Config{Path: *dbPath, Logger: logger})
		if err != nil {
			return err
		}
		defer store.Close()

		storeName := *name
		if storeName == "" {
			base := filepath.Base(*policyPath)
			storeName = base[:len(base)-len(filepath.Ext(base))]
		}
		ctx := context.Background()
		for _, entry := range profiles {
			if entry.profile == nil {
				continue
			}
			hash, err := store.Put(ctx, storeName, entry.profile)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", entry.domain, hash, storeName)
		}
		return nil
	}

	for _, entry := range profiles {
		if entry.profile == nil {
			continue
		}
		blob := make([]byte, entry.profile.Size())
		if _, err := entry.profile.Export(blob); err != nil {
			return fmt.Errorf("exporting %s profile: %w", entry.domain, err)
		}
		outPath := fmt.Sprintf("%s.%s.cprf", *outPrefix, entry.domain)
		if err := os.WriteFile(outPath, blob, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		logger.Debug("profile written", "domain", entry.domain, "path", outPath, "size", len(blob))
		fmt.Printf("%s\t%d bytes\t%s\n", entry.domain, len(blob), outPath)
	}
	return nil
}

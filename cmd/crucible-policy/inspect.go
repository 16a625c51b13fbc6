// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/profilestore"
	"github.com/crucible-foundation/crucible/lib/protecc"
)

// runValidate validates each blob file argument and reports per-file
// results. The exit status is nonzero if any blob fails.
func runValidate(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy validate", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	files := flagSet.Args()
	if len(files) == 0 {
		return fmt.Errorf("at least one blob file is required")
	}

	failures := 0
	for _, path := range files {
		blob, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := protecc.ValidateBlob(blob); err != nil {
			fmt.Printf("%s\tINVALID\t%v\n", path, err)
			failures++
			continue
		}
		fmt.Printf("%s\tok\n", path)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d blobs invalid", failures, len(files))
	}
	return nil
}

// runShow prints the header summary of one compiled blob.
func runShow(args []string) error {
	flagSet := pflag.NewFlagSet("crucible-policy show", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("exactly one blob file is required")
	}
	path := flagSet.Arg(0)

	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	profile, err := protecc.ImportProfile(blob)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("file:             %s\n", path)
	fmt.Printf("hash:             %s\n", profilestore.HashProfile(blob))
	fmt.Printf("domain:           %s\n", profile.Domain())
	fmt.Printf("size:             %d bytes\n", profile.Size())
	fmt.Printf("case-insensitive: %v\n", profile.CaseInsensitive())
	switch profile.Domain() {
	case protecc.DomainPath:
		fmt.Printf("nodes:            %d\n", profile.NodeCount())
	default:
		fmt.Printf("rules:            %d\n", profile.RuleCount())
	}
	return nil
}

// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// crucible-policy compiles, inspects, and evaluates Crucible access
// profiles.
//
// The compile subcommand turns a textual policy document (YAML or
// JSONC) into compiled profile blobs, written to files or stored in a
// profile database. validate and show operate on compiled blobs;
// match evaluates a path, network, or mount probe against one, with
// an optional resource-bounded evaluation mode. The store subcommand
// manages the profile database directly.
//
// Run 'crucible-policy help' for usage.
package main

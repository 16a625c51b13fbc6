// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package policydef loads textual policy documents and compiles them
// into protecc profiles.
//
// A policy document declares path patterns with permission names,
// ordered network rules, and ordered mount rules. Documents are YAML
// by default; files ending in .json or .jsonc are parsed as JSON with
// comments and trailing commas allowed, matching the convention for
// hand-edited Crucible configuration files.
//
// [Load] and [Parse] produce a [Document]; [Document.Compile] runs
// every entry through the corresponding protecc builder and returns
// the compiled per-domain profiles. Compilation reports the offending
// entry on failure, so a typo in one pattern of a large policy file is
// directly actionable. A document compiles all-or-nothing: there are
// no partial policy updates, callers swap whole compiled profiles.
package policydef

// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package protecc compiles glob-like access patterns into validated,
// position-independent binary profiles and matches requests against them.
//
// Patterns use an anchored, path-oriented glob grammar: `**` matches across
// path separators, `*` matches within one segment, `?` matches exactly one
// character, and `[...]` matches a character class (with optional `!`/`^`
// negation, `a-z` ranges, and an optional `?`/`+`/`*` repetition modifier
// binding to the whole class). There are no general regular-expression
// semantics.
//
// Three builders exist, one per policy domain. [TrieBuilder] merges path
// patterns into a shared prefix trie whose terminals carry permission bits;
// when several patterns match one probe, the deepest match wins and
// equal-depth matches merge their permissions ([TrieBuilder.AddPattern]
// documents the contract). [RuleListBuilder] collects order-significant
// network or mount rules; the lowest-index fully-matching rule's action is
// authoritative.
//
// [TrieBuilder.Compile] and [RuleListBuilder.Compile] flatten builder state
// into an immutable [Profile]: a contiguous, self-describing byte layout of
// flat node/edge arrays (or rule records plus a string table) referenced by
// integer index, never by pointer. Compilation is deterministic — identical
// builder state always produces byte-identical export output, so blobs can
// be cached and content-addressed. [Profile.Export] is two-phase: a nil
// buffer queries the required size.
//
// Every import path runs the full structural validator ([ValidateBlob]),
// and matchers re-run it defensively before each match. Imported bytes are
// always treated as adversarial regardless of provenance; internal length
// and index fields are never trusted beyond what the buffer bounds permit.
//
// Two matcher implementations walk the same bytes. The native matcher
// ([Profile.MatchPath], [Profile.MatchNet], [Profile.MatchMount]) is an
// unconstrained backtracking walk. The bounded matcher
// ([Profile.MatchPathBounded] and friends) re-implements the same contract
// with an explicit fixed-capacity stack and hard ceilings on input length,
// stack depth, total steps, child fan-out, and quantifier expansion
// ([Limits]), for execution environments that forbid unbounded loops and
// recursion. Exceeding a ceiling is not an error: the offending branch is
// abandoned as non-matching while queued branches continue. Within the
// ceilings both matchers agree on every verdict; outside them the bounded
// matcher may only diverge toward non-match.
//
// Builders are single-writer and not safe for concurrent use. Compiled
// profiles are immutable and safe for concurrent, lock-free matching from
// any number of goroutines. Matching performs no I/O, never blocks, and
// never returns an error — an unmatched request is simply "no match",
// leaving default-deny semantics to the caller.
package protecc

// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

// Limits are the hard resource ceilings of the bounded matcher. The
// bounded matcher exists for verifier-constrained execution
// environments that forbid unbounded loops, recursion, and large
// stacks, so every dimension of its work is capped. A zero field
// means "unlimited" for that dimension; DefaultLimits returns the
// ceilings tuned for typical policy profiles.
//
// Exceeding a ceiling is not an error. The offending branch is
// abandoned — treated as non-matching — while branches already queued
// continue, so matching degrades toward the safe non-match/deny
// direction and never hangs or overflows.
type Limits struct {
	// MaxInput is the longest probe (path or rule string field) the
	// matcher will consider; longer inputs are non-matches outright.
	MaxInput int

	// MaxStack is the frame stack capacity. A branch that would push
	// past it is dropped.
	MaxStack int

	// MaxSteps bounds the total frames processed (and, for string
	// globs, total matcher iterations) per match call.
	MaxSteps int

	// MaxChildren bounds how many children are fanned out per node
	// visit; children beyond the cap are dropped.
	MaxChildren int

	// MaxRepeat bounds how many bytes one quantifier occurrence may
	// consume before the remaining expansions are dropped.
	MaxRepeat int
}

// DefaultLimits returns ceilings that comfortably cover realistic
// profiles (paths of a few hundred segments, rule lists of a few
// hundred entries) while keeping worst-case work small enough for a
// constrained execution environment.
func DefaultLimits() Limits {
	return Limits{
		MaxInput:    4096,
		MaxStack:    256,
		MaxSteps:    65536,
		MaxChildren: 64,
		MaxRepeat:   512,
	}
}

// boundedFrame is one pending branch: enter node idx at input
// position pos, having consumed depth trie nodes so far.
type boundedFrame struct {
	idx   uint32
	pos   int32
	depth int32
}

// MatchPathBounded is the resource-bounded equivalent of
// [Profile.MatchPath]: an explicit fixed-capacity stack replaces
// recursion and every loop carries a hard ceiling, so the call
// completes in bounded time and space regardless of profile or probe.
// Within the configured ceilings it agrees with MatchPath on every
// verdict; outside them it may only diverge toward non-match.
func (p *Profile) MatchPathBounded(path string, requested Permission, limits Limits) bool {
	if ValidateBlob(p.raw) != nil || p.Domain() != DomainPath {
		return false
	}
	if limits.MaxInput > 0 && len(path) > limits.MaxInput {
		return false
	}
	fold := p.CaseInsensitive()

	initial := limits.MaxStack
	if initial <= 0 {
		initial = 64
	}
	stack := make([]boundedFrame, 0, initial)
	// canPush enforces the fixed capacity; with MaxStack unset the
	// slice grows as needed.
	canPush := func() bool {
		return limits.MaxStack <= 0 || len(stack) < limits.MaxStack
	}

	var acc pathAccum

	// The root consumes nothing; its record's type and payload are
	// ignored, mirroring the native matcher.
	root := p.node(p.rootIndex())
	if root.terminal && len(path) == 0 {
		acc.record(0, root.perms)
	}
	for ci := uint32(0); ci < uint32(root.childCount); ci++ {
		if limits.MaxChildren > 0 && int(ci) >= limits.MaxChildren {
			break
		}
		if !canPush() {
			break
		}
		stack = append(stack, boundedFrame{idx: p.edge(root.childStart + ci), pos: 0, depth: 1})
	}

	var endsBuf [16]int
	steps := 0
	for len(stack) > 0 {
		steps++
		if limits.MaxSteps > 0 && steps > limits.MaxSteps {
			// Total-work ceiling: abandon everything still queued and
			// settle for what has been found so far.
			break
		}
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := p.node(frame.idx)
		ends := nodeEnds(&n, path, int(frame.pos), fold, limits.MaxRepeat, endsBuf[:0])
		for _, end := range ends {
			if n.terminal && end == len(path) {
				acc.record(int(frame.depth), n.perms)
			}
			for ci := uint32(0); ci < uint32(n.childCount); ci++ {
				if limits.MaxChildren > 0 && int(ci) >= limits.MaxChildren {
					break
				}
				if !canPush() {
					// Stack ceiling: this branch is dropped, queued
					// branches continue.
					break
				}
				stack = append(stack, boundedFrame{
					idx:   p.edge(n.childStart + ci),
					pos:   int32(end),
					depth: frame.depth + 1,
				})
			}
		}
	}

	return acc.found && acc.perms.Superset(requested)
}

// MatchNetBounded is the resource-bounded equivalent of
// [Profile.MatchNet]. The rule scan itself is already linear and
// bounded by the validated rule count; the ceilings apply to the glob
// matching of string fields, which reuses the same last-star
// backtracking matcher as the native path under a hard step ceiling.
func (p *Profile) MatchNetBounded(req NetRequest, limits Limits) (Action, bool) {
	if limits.MaxInput > 0 && (len(req.IP) > limits.MaxInput || len(req.UnixPath) > limits.MaxInput) {
		return 0, false
	}
	return p.matchNet(req, boundedSteps(limits), limits.MaxRepeat)
}

// MatchMountBounded is the resource-bounded equivalent of
// [Profile.MatchMount].
func (p *Profile) MatchMountBounded(req MountRequest, limits Limits) (Action, bool) {
	if limits.MaxInput > 0 &&
		(len(req.Source) > limits.MaxInput || len(req.Target) > limits.MaxInput ||
			len(req.FSType) > limits.MaxInput || len(req.Options) > limits.MaxInput) {
		return 0, false
	}
	return p.matchMount(req, boundedSteps(limits), limits.MaxRepeat)
}

func boundedSteps(limits Limits) int {
	if limits.MaxSteps <= 0 {
		return 0
	}
	return limits.MaxSteps
}

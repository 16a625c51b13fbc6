// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

// NetRequest describes one network access to check against a net
// profile. Protocol and Family are matched exactly against non-"don't
// care" rule fields; IP is the textual address matched against the
// rule's IP glob; Port is checked by range containment; UnixPath is
// matched against the rule's UNIX socket path glob.
type NetRequest struct {
	Protocol Protocol
	Family   Family
	IP       string
	Port     uint16
	UnixPath string
}

// MountRequest describes one mount operation to check against a mount
// profile. String fields are matched against the corresponding rule
// globs; Flags is checked against the rule's flags mask (every masked
// bit must be set in the request).
type MountRequest struct {
	Source  string
	Target  string
	FSType  string
	Options string
	Flags   uint32
}

// pathAccum accumulates the path-match result under the precedence
// contract: the deepest terminal wins outright, equal-depth terminals
// merge permissions by union.
type pathAccum struct {
	found bool
	depth int
	perms Permission
}

func (a *pathAccum) record(depth int, perms Permission) {
	switch {
	case !a.found || depth > a.depth:
		a.found = true
		a.depth = depth
		a.perms = perms
	case depth == a.depth:
		a.perms |= perms
	}
}

// MatchPath walks the trie with unconstrained backtracking and reports
// whether the accumulated permissions for path form a superset of
// requested. Exploration deliberately continues past the first
// terminal hit: a later, deeper branch may still override or extend
// the result. An invalid or non-path profile never matches — the
// validator runs defensively on every call because a profile may have
// crossed a trust boundary since it was compiled.
func (p *Profile) MatchPath(path string, requested Permission) bool {
	if ValidateBlob(p.raw) != nil || p.Domain() != DomainPath {
		return false
	}
	fold := p.CaseInsensitive()

	var acc pathAccum
	// seen keys (node, position) pairs already explored. The trie is a
	// tree, so a node's depth is a function of its index and revisiting
	// the same node at the same input position cannot change the
	// outcome; the memo turns pathological quantifier blowups into
	// linear work without affecting the verdict.
	seen := make(map[uint64]struct{})

	root := p.node(p.rootIndex())
	if root.terminal && len(path) == 0 {
		acc.record(0, root.perms)
	}
	for ci := uint32(0); ci < uint32(root.childCount); ci++ {
		p.walkTrie(p.edge(root.childStart+ci), 0, 1, path, fold, seen, &acc)
	}

	return acc.found && acc.perms.Superset(requested)
}

// walkTrie explores node idx entered at input position pos. The node
// consumes input according to its type and modifier (greedily, longest
// candidate first), records a result at every terminal that lands
// exactly on the end of the path, and recurses into children from
// every viable stop position.
func (p *Profile) walkTrie(idx uint32, pos, depth int, path string, fold bool,
	seen map[uint64]struct{}, acc *pathAccum) {
	key := uint64(idx)<<32 | uint64(uint32(pos))
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	n := p.node(idx)
	var endsBuf [16]int
	ends := nodeEnds(&n, path, pos, fold, 0, endsBuf[:0])
	for _, end := range ends {
		if n.terminal && end == len(path) {
			acc.record(depth, n.perms)
		}
		for ci := uint32(0); ci < uint32(n.childCount); ci++ {
			p.walkTrie(p.edge(n.childStart+ci), end, depth+1, path, fold, seen, acc)
		}
	}
}

// nodeEnds appends to dst every input position where node n, entered
// at pos, may stop consuming, in greedy (longest first) order. An
// empty result means the node cannot match here at all. maxRepeat
// caps how many bytes an unbounded quantifier may consume (zero means
// unlimited); the cap silently truncates the candidate set, which is
// the bounded matcher's "abandon the branch, keep the rest" semantics.
func nodeEnds(n *nodeRec, path string, pos int, fold bool, maxRepeat int, dst []int) []int {
	matches := func(i int) bool {
		b := foldByte(path[i], fold)
		if n.typ == nodeCharset {
			return n.set.contains(b)
		}
		return b == n.literal
	}
	// run returns the length of the maximal consecutive match starting
	// at pos, honoring the repeat cap.
	run := func(allowed func(i int) bool) int {
		k := 0
		for pos+k < len(path) && allowed(pos+k) {
			k++
			if maxRepeat > 0 && k >= maxRepeat {
				break
			}
		}
		return k
	}

	switch n.typ {
	case nodeLiteral, nodeCharset:
		switch n.modifier {
		case modNone:
			if pos < len(path) && matches(pos) {
				dst = append(dst, pos+1)
			}
		case modOptional:
			if pos < len(path) && matches(pos) {
				dst = append(dst, pos+1)
			}
			dst = append(dst, pos)
		case modOneOrMore:
			for k := run(matches); k >= 1; k-- {
				dst = append(dst, pos+k)
			}
		case modZeroOrMore:
			for k := run(matches); k >= 0; k-- {
				dst = append(dst, pos+k)
			}
		}
	case nodeSingle:
		if pos < len(path) {
			dst = append(dst, pos+1)
		}
	case nodeMulti:
		for k := run(func(i int) bool { return path[i] != '/' }); k >= 0; k-- {
			dst = append(dst, pos+k)
		}
	case nodeRecursive:
		for k := run(func(int) bool { return true }); k >= 0; k-- {
			dst = append(dst, pos+k)
		}
	}
	return dst
}

// MatchNet scans the ordered rule list and returns the first fully
// matching rule's action. Every non-"don't care" field must match;
// exhaustion yields ok=false ("no match" — default-deny is the
// caller's decision). Matching never errors: an invalid or wrong-
// domain profile yields no match.
func (p *Profile) MatchNet(req NetRequest) (Action, bool) {
	return p.matchNet(req, 0, 0)
}

// MatchMount is the mount-domain analogue of MatchNet.
func (p *Profile) MatchMount(req MountRequest) (Action, bool) {
	return p.matchMount(req, 0, 0)
}

// matchNet is shared by the native and bounded entry points; the
// ceilings flow into the glob matcher (zero means unlimited).
func (p *Profile) matchNet(req NetRequest, maxSteps, maxRepeat int) (Action, bool) {
	if ValidateBlob(p.raw) != nil || p.Domain() != DomainNet {
		return 0, false
	}
	fold := p.CaseInsensitive()
	count := int(getU32(p.raw, offRuleCount))
	for i := 0; i < count; i++ {
		base := p.ruleBase(i)
		if p.netRuleMatches(base, &req, fold, maxSteps, maxRepeat) {
			return Action(p.raw[base+netRecAction]), true
		}
	}
	return 0, false
}

func (p *Profile) netRuleMatches(base int, req *NetRequest, fold bool, maxSteps, maxRepeat int) bool {
	if proto := Protocol(p.raw[base+netRecProtocol]); proto != ProtoAny && proto != req.Protocol {
		return false
	}
	if family := Family(p.raw[base+netRecFamily]); family != FamilyAny && family != req.Family {
		return false
	}
	lo := getU16(p.raw, base+netRecPortLow)
	hi := getU16(p.raw, base+netRecPortHigh)
	if (lo != 0 || hi != 0) && (req.Port < lo || req.Port > hi) {
		return false
	}
	if pattern, ok := p.stringAt(getU32(p.raw, base+netRecIPOff)); ok {
		if !globMatch(pattern, req.IP, fold, maxSteps, maxRepeat) {
			return false
		}
	}
	if pattern, ok := p.stringAt(getU32(p.raw, base+netRecUnixOff)); ok {
		if !globMatch(pattern, req.UnixPath, fold, maxSteps, maxRepeat) {
			return false
		}
	}
	return true
}

func (p *Profile) matchMount(req MountRequest, maxSteps, maxRepeat int) (Action, bool) {
	if ValidateBlob(p.raw) != nil || p.Domain() != DomainMount {
		return 0, false
	}
	fold := p.CaseInsensitive()
	count := int(getU32(p.raw, offRuleCount))
	for i := 0; i < count; i++ {
		base := p.ruleBase(i)
		if p.mountRuleMatches(base, &req, fold, maxSteps, maxRepeat) {
			return Action(p.raw[base+mountRecAction]), true
		}
	}
	return 0, false
}

func (p *Profile) mountRuleMatches(base int, req *MountRequest, fold bool, maxSteps, maxRepeat int) bool {
	if mask := getU32(p.raw, base+mountRecFlags); mask != 0 && req.Flags&mask != mask {
		return false
	}
	for _, field := range [4]struct {
		off   int
		value string
	}{
		{mountRecSource, req.Source},
		{mountRecTarget, req.Target},
		{mountRecFSType, req.FSType},
		{mountRecOptions, req.Options},
	} {
		if pattern, ok := p.stringAt(getU32(p.raw, base+field.off)); ok {
			if !globMatch(pattern, field.value, fold, maxSteps, maxRepeat) {
				return false
			}
		}
	}
	return true
}

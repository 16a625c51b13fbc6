// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import "fmt"

// Permission is a bitset of access rights attached to trie terminals.
// The bit values are protocol constants stored in compiled profiles.
type Permission uint32

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermExec
	PermCreate
	PermDelete
)

// Superset reports whether p grants every bit in want.
func (p Permission) Superset(want Permission) bool {
	return p&want == want
}

// String returns the "|"-joined lowercase names of the set bits, or
// "none" for the empty set.
func (p Permission) String() string {
	if p == 0 {
		return "none"
	}
	names := []struct {
		bit  Permission
		name string
	}{
		{PermRead, "read"},
		{PermWrite, "write"},
		{PermExec, "exec"},
		{PermCreate, "create"},
		{PermDelete, "delete"},
	}
	out := ""
	for _, n := range names {
		if p&n.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if extra := p &^ (PermRead | PermWrite | PermExec | PermCreate | PermDelete); extra != 0 {
		if out != "" {
			out += "|"
		}
		out += fmt.Sprintf("unknown(%#x)", uint32(extra))
	}
	return out
}

// ParsePermission parses one lowercase permission name.
func ParsePermission(name string) (Permission, error) {
	switch name {
	case "read":
		return PermRead, nil
	case "write":
		return PermWrite, nil
	case "exec":
		return PermExec, nil
	case "create":
		return PermCreate, nil
	case "delete":
		return PermDelete, nil
	default:
		return 0, fmt.Errorf("%w: unknown permission %q", ErrInvalidArgument, name)
	}
}

// trieNode is the builder-side mutable representation of one trie
// node. The compiler flattens these into fixed records; matchers never
// see this type.
type trieNode struct {
	typ      nodeType
	modifier nodeModifier
	literal  byte
	set      charset
	children []uint32 // indices into TrieBuilder.nodes, creation order
	terminal bool
	perms    Permission
}

// key equality for merge: two pattern nodes share a trie node only if
// every matching-relevant field is identical.
func (n *trieNode) sameToken(p *parsedNode) bool {
	return n.typ == p.typ && n.modifier == p.modifier &&
		n.literal == p.literal && n.set == p.set
}

// TrieBuilder accumulates path patterns into a shared prefix trie.
// Nodes live in a flat slice addressed by index; node 0 is the root
// and exists from construction, so an empty builder still compiles to
// a valid (match-nothing) profile.
//
// TrieBuilder is single-writer: it is not safe for concurrent use.
type TrieBuilder struct {
	nodes    []trieNode
	caseFold bool
	patterns int
}

// NewTrieBuilder creates an empty path-domain builder. When
// caseInsensitive is set, literal bytes and charset members are folded
// at insert time and probes are folded at match time.
func NewTrieBuilder(caseInsensitive bool) *TrieBuilder {
	b := &TrieBuilder{caseFold: caseInsensitive}
	b.nodes = append(b.nodes, trieNode{typ: nodeLiteral})
	return b
}

// AddPattern parses pattern and merges the resulting chain into the
// trie, creating new nodes only where the chain diverges from existing
// content. The tail node becomes terminal and perms is OR'd into its
// permission bits.
//
// Precedence contract, binding on both matchers: when several inserted
// patterns can match one probe, the match that consumed more trie
// nodes (the more specific one) wins and its permissions replace a
// shallower match's; matches at equal depth merge permissions by
// union. An empty pattern marks the root terminal, matching only the
// empty probe.
//
// On a syntax error the builder is left exactly as it was; there is no
// partial insertion.
func (b *TrieBuilder) AddPattern(pattern string, perms Permission) error {
	chain, err := parsePattern(pattern, b.caseFold)
	if err != nil {
		return err
	}

	// The parse succeeded, so insertion cannot fail; mutation is safe
	// to begin.
	current := uint32(0)
	for i := range chain {
		current = b.child(current, &chain[i])
	}
	b.nodes[current].terminal = true
	b.nodes[current].perms |= perms
	b.patterns++
	return nil
}

// child returns the child of parent matching token, creating it if the
// path diverges here. New children are appended in creation order,
// which the compiler preserves — this is what makes compilation
// deterministic for a given call sequence.
func (b *TrieBuilder) child(parent uint32, token *parsedNode) uint32 {
	for _, idx := range b.nodes[parent].children {
		if b.nodes[idx].sameToken(token) {
			return idx
		}
	}
	idx := uint32(len(b.nodes))
	b.nodes = append(b.nodes, trieNode{
		typ:      token.typ,
		modifier: token.modifier,
		literal:  token.literal,
		set:      token.set,
	})
	b.nodes[parent].children = append(b.nodes[parent].children, idx)
	return idx
}

// Reset atomically clears all inserted patterns. The case-sensitivity
// flag is part of the builder's identity and survives the reset.
func (b *TrieBuilder) Reset() {
	b.nodes = b.nodes[:0]
	b.nodes = append(b.nodes, trieNode{typ: nodeLiteral})
	b.patterns = 0
}

// Len returns the number of successfully inserted patterns.
func (b *TrieBuilder) Len() int {
	return b.patterns
}

// Compile flattens the trie into an immutable Profile. Children of
// each node occupy a contiguous slice of the shared edge array, so the
// compiled artifact can be walked by index without pointers. Compiling
// identical builder state twice produces byte-identical profiles.
func (b *TrieBuilder) Compile() (*Profile, error) {
	nodeCount := len(b.nodes)
	edgeCount := 0
	for i := range b.nodes {
		if len(b.nodes[i].children) > 0xFFFF {
			return nil, fmt.Errorf("%w: node %d has %d children, record field holds 65535",
				ErrInvalidArgument, i, len(b.nodes[i].children))
		}
		edgeCount += len(b.nodes[i].children)
	}
	if nodeCount > maxCount || edgeCount > maxCount {
		return nil, fmt.Errorf("%w: trie exceeds %d entries", ErrInvalidArgument, maxCount)
	}

	size := headerSize + trieHeaderSize + nodeCount*nodeRecordSize + edgeCount*4
	raw := make([]byte, size)

	flags := uint32(flagTrie)
	if b.caseFold {
		flags |= flagCaseInsensitive
	}
	putHeader(raw, flags)
	putU32(raw, offNodeCount, uint32(nodeCount))
	putU32(raw, offEdgeCount, uint32(edgeCount))
	putU32(raw, offRootIndex, 0)

	// Node records first, then the edge array. Each node's childStart
	// is the running offset into the edge array at the moment its
	// children are appended; iteration in index order keeps both
	// tables deterministic.
	edgeBase := headerSize + trieHeaderSize + nodeCount*nodeRecordSize
	nextEdge := 0
	for i := range b.nodes {
		n := &b.nodes[i]
		rec := headerSize + trieHeaderSize + i*nodeRecordSize
		raw[rec+recType] = byte(n.typ)
		raw[rec+recModifier] = byte(n.modifier)
		raw[rec+recLiteral] = n.literal
		if n.terminal {
			raw[rec+recTerminal] = 1
		}
		copy(raw[rec+recCharset:rec+recCharset+charsetSize], n.set[:])
		putU32(raw, rec+recChildStart, uint32(nextEdge))
		putU16(raw, rec+recChildCount, uint16(len(n.children)))
		putU32(raw, rec+recPerms, uint32(n.perms))

		for _, child := range n.children {
			putU32(raw, edgeBase+nextEdge*4, child)
			nextEdge++
		}
	}

	return newProfile(raw)
}

// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import "fmt"

// nodeType identifies what a pattern node consumes. The values are
// protocol constants — they are stored verbatim in compiled profiles,
// so changing them breaks blob compatibility.
type nodeType uint8

const (
	// nodeLiteral consumes exactly one specific byte.
	nodeLiteral nodeType = 0
	// nodeSingle ("?") consumes exactly one arbitrary byte.
	nodeSingle nodeType = 1
	// nodeMulti ("*") consumes any run of bytes within one path
	// segment; it never crosses a '/' separator.
	nodeMulti nodeType = 2
	// nodeRecursive ("**") consumes any run of bytes, separators
	// included.
	nodeRecursive nodeType = 3
	// nodeCharset ("[...]") consumes one byte from a 256-bit set.
	nodeCharset nodeType = 4

	nodeTypeCount = 5
)

// nodeModifier is the repetition modifier attached to a literal or
// charset node. It is an orthogonal second tag, kept separate from
// nodeType so that match dispatch stays a small exhaustive switch.
// Also a protocol constant.
type nodeModifier uint8

const (
	// modNone consumes the node's payload exactly once.
	modNone nodeModifier = 0
	// modOptional ("?") consumes the payload zero or one time.
	modOptional nodeModifier = 1
	// modOneOrMore ("+") consumes the payload one or more times.
	modOneOrMore nodeModifier = 2
	// modZeroOrMore ("*") consumes the payload zero or more times.
	modZeroOrMore nodeModifier = 3

	nodeModifierCount = 4
)

// charsetSize is the byte length of a charset bitmap: one bit per
// possible input byte.
const charsetSize = 32

// charset is a 256-bit membership bitmap over input bytes.
type charset [charsetSize]byte

func (s *charset) set(b byte) {
	s[b>>3] |= 1 << (b & 7)
}

func (s *charset) contains(b byte) bool {
	return s[b>>3]&(1<<(b&7)) != 0
}

func (s *charset) invert() {
	for i := range s {
		s[i] = ^s[i]
	}
}

// parsedNode is one token of a parsed pattern. Chains of parsedNodes
// are ephemeral: the parser produces them, the builders merge them into
// a trie or check-and-discard them, and nothing retains them afterward.
type parsedNode struct {
	typ      nodeType
	modifier nodeModifier
	literal  byte    // payload for nodeLiteral
	set      charset // payload for nodeCharset
}

// parsePattern turns one pattern string into a linear node chain.
// Branching is not the parser's concern; it is resolved when chains are
// merged into the shared trie. When fold is true, literal bytes and
// charset members are ASCII-lowercased so that matching can fold the
// probe side only.
//
// Parsing is all-or-nothing: on any syntax error the returned chain is
// nil and no partial output escapes. An empty pattern parses to an
// empty chain, which the trie builder turns into an immediately
// terminal root (matching only the empty string).
func parsePattern(pattern string, fold bool) ([]parsedNode, error) {
	chain := make([]parsedNode, 0, len(pattern))

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				chain = append(chain, parsedNode{typ: nodeRecursive})
				i += 2
			} else {
				chain = append(chain, parsedNode{typ: nodeMulti})
				i++
			}
		case '?':
			chain = append(chain, parsedNode{typ: nodeSingle})
			i++
		case '[':
			node, next, err := parseCharset(pattern, i, fold)
			if err != nil {
				return nil, err
			}
			chain = append(chain, node)
			i = next
		default:
			chain = append(chain, parsedNode{
				typ:     nodeLiteral,
				literal: foldByte(c, fold),
			})
			i++
		}
	}

	return chain, nil
}

// parseCharset parses a "[...]" class starting at the opening bracket
// and returns the node plus the index just past the class (including
// any repetition modifier). Supported inside the brackets: a leading
// '!' or '^' negation, 'a-z' ranges, ']' as the literal first member,
// and plain byte members.
func parseCharset(pattern string, start int, fold bool) (parsedNode, int, error) {
	node := parsedNode{typ: nodeCharset}
	i := start + 1

	negated := false
	if i < len(pattern) && (pattern[i] == '!' || pattern[i] == '^') {
		negated = true
		i++
	}

	closed := false
	first := true
	for i < len(pattern) {
		c := pattern[i]
		if c == ']' && !first {
			closed = true
			i++
			break
		}
		first = false

		// Range member "a-z". A '-' that is the last character before
		// ']' is a literal member instead.
		if i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']' {
			lo, hi := c, pattern[i+2]
			if lo > hi {
				return parsedNode{}, 0, fmt.Errorf(
					"%w: reversed range %c-%c in %q", ErrInvalidPattern, lo, hi, pattern)
			}
			for b := lo; ; b++ {
				node.set.set(foldByte(b, fold))
				if b == hi {
					break
				}
			}
			i += 3
			continue
		}

		node.set.set(foldByte(c, fold))
		i++
	}
	if !closed {
		return parsedNode{}, 0, fmt.Errorf(
			"%w: unterminated character class in %q", ErrInvalidPattern, pattern)
	}

	if negated {
		node.set.invert()
	}

	// Optional repetition modifier binding to the whole class.
	if i < len(pattern) {
		switch pattern[i] {
		case '?':
			node.modifier = modOptional
			i++
		case '+':
			node.modifier = modOneOrMore
			i++
		case '*':
			// "[...]**" would leave a stray '*'; bind only a single
			// star to the class and let the next token parse normally.
			if !(i+1 < len(pattern) && pattern[i+1] == '*') {
				node.modifier = modZeroOrMore
				i++
			}
		}
	}

	return node, i, nil
}

// foldByte lowercases ASCII letters when fold is set.
func foldByte(b byte, fold bool) byte {
	if fold && b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// checkPatternSyntax validates glob syntax without keeping the chain.
// Used by the rule list builder, which stores sub-patterns as raw text
// but must reject malformed syntax eagerly at add time.
func checkPatternSyntax(pattern string) error {
	_, err := parsePattern(pattern, false)
	return err
}

// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import (
	"errors"
	"testing"
)

func TestParsePatternTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		want    []nodeType
	}{
		{"literals", "abc", []nodeType{nodeLiteral, nodeLiteral, nodeLiteral}},
		{"segment wildcard", "a*b", []nodeType{nodeLiteral, nodeMulti, nodeLiteral}},
		{"recursive wildcard", "a**", []nodeType{nodeLiteral, nodeRecursive}},
		{"single wildcard", "a?c", []nodeType{nodeLiteral, nodeSingle, nodeLiteral}},
		{"charset", "[abc]", []nodeType{nodeCharset}},
		{"empty", "", nil},
		{"three stars", "***", []nodeType{nodeRecursive, nodeMulti}},
		{"mixed", "/opt/**", []nodeType{
			nodeLiteral, nodeLiteral, nodeLiteral, nodeLiteral, nodeLiteral, nodeRecursive,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chain, err := parsePattern(tt.pattern, false)
			if err != nil {
				t.Fatalf("parsePattern(%q): %v", tt.pattern, err)
			}
			if len(chain) != len(tt.want) {
				t.Fatalf("got %d nodes, want %d", len(chain), len(tt.want))
			}
			for i, typ := range tt.want {
				if chain[i].typ != typ {
					t.Errorf("node %d: type %d, want %d", i, chain[i].typ, typ)
				}
			}
		})
	}
}

func TestParsePatternCharset(t *testing.T) {
	t.Parallel()

	chain, err := parsePattern("[a-cx]", false)
	if err != nil {
		t.Fatalf("parsePattern: %v", err)
	}
	if len(chain) != 1 || chain[0].typ != nodeCharset {
		t.Fatalf("expected a single charset node, got %+v", chain)
	}
	for _, b := range []byte{'a', 'b', 'c', 'x'} {
		if !chain[0].set.contains(b) {
			t.Errorf("charset should contain %q", b)
		}
	}
	for _, b := range []byte{'d', 'y', '/'} {
		if chain[0].set.contains(b) {
			t.Errorf("charset should not contain %q", b)
		}
	}
}

func TestParsePatternCharsetNegation(t *testing.T) {
	t.Parallel()

	for _, marker := range []string{"!", "^"} {
		chain, err := parsePattern("["+marker+"ab]", false)
		if err != nil {
			t.Fatalf("parsePattern: %v", err)
		}
		if chain[0].set.contains('a') || chain[0].set.contains('b') {
			t.Errorf("negated class %q should exclude its members", marker)
		}
		if !chain[0].set.contains('z') {
			t.Errorf("negated class %q should include non-members", marker)
		}
	}
}

func TestParsePatternCharsetModifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		want    nodeModifier
	}{
		{"[ab]", modNone},
		{"[ab]?", modOptional},
		{"[ab]+", modOneOrMore},
		{"[ab]*", modZeroOrMore},
	}
	for _, tt := range tests {
		chain, err := parsePattern(tt.pattern, false)
		if err != nil {
			t.Fatalf("parsePattern(%q): %v", tt.pattern, err)
		}
		if len(chain) != 1 {
			t.Fatalf("parsePattern(%q): %d nodes, want 1", tt.pattern, len(chain))
		}
		if chain[0].modifier != tt.want {
			t.Errorf("parsePattern(%q): modifier %d, want %d", tt.pattern, chain[0].modifier, tt.want)
		}
	}

	// A class followed by "**" keeps the recursive wildcard as its own
	// token instead of binding a star to the class.
	chain, err := parsePattern("[ab]**", false)
	if err != nil {
		t.Fatalf("parsePattern: %v", err)
	}
	if len(chain) != 2 || chain[0].modifier != modNone || chain[1].typ != nodeRecursive {
		t.Errorf("got %+v, want unmodified class plus recursive wildcard", chain)
	}
}

func TestParsePatternLeadingBracketMember(t *testing.T) {
	t.Parallel()

	// "]" directly after the opening bracket is a literal member.
	chain, err := parsePattern("[]a]", false)
	if err != nil {
		t.Fatalf("parsePattern: %v", err)
	}
	if len(chain) != 1 || !chain[0].set.contains(']') || !chain[0].set.contains('a') {
		t.Errorf("expected ']' and 'a' as members, got %+v", chain)
	}
}

func TestParsePatternErrors(t *testing.T) {
	t.Parallel()

	for _, pattern := range []string{"[abc", "[", "[!", "a[b"} {
		if _, err := parsePattern(pattern, false); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("parsePattern(%q): err = %v, want ErrInvalidPattern", pattern, err)
		}
	}
	if _, err := parsePattern("[z-a]", false); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("reversed range: err = %v, want ErrInvalidPattern", err)
	}
}

func TestParsePatternCaseFolding(t *testing.T) {
	t.Parallel()

	chain, err := parsePattern("AbC[X-Z]", true)
	if err != nil {
		t.Fatalf("parsePattern: %v", err)
	}
	if chain[0].literal != 'a' || chain[1].literal != 'b' || chain[2].literal != 'c' {
		t.Errorf("literals not folded: %+v", chain[:3])
	}
	if !chain[3].set.contains('y') {
		t.Error("folded charset should contain 'y'")
	}
	if chain[3].set.contains('Y') {
		t.Error("folded charset should hold lowercase members only")
	}
}

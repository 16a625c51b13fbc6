// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

// Glob matching for rule string fields (IP patterns, UNIX socket
// paths, mount sources/targets/fstypes/options). Rule profiles store
// these sub-patterns as raw text in the string table, so matching
// works directly on the pattern bytes with no parse-time allocation.
//
// The algorithm is iterative two-pointer matching with last-star
// backtracking, generalized to the full grammar: every variable-length
// token (`*`, `**`, and quantified classes) records a resume point
// holding how much input it has consumed so far; on a dead end the
// most recent resume point that can still consume one more byte is
// extended and matching restarts after that token. Both matchers use
// this same routine — the native matcher with no ceilings, the bounded
// matcher with a hard step ceiling and a per-quantifier expansion cap,
// since rule lists may also be consulted from the bounded environment.

type globKind uint8

const (
	globLiteral globKind = iota
	globSingle
	globStar     // "*": any run within one path segment
	globStarStar // "**": any run, separators included
	globClass    // "[...]" with optional quantifier
)

// globToken is one decoded pattern token. classStart/classEnd bound
// the class body (between the brackets, after any negation marker).
type globToken struct {
	kind       globKind
	lit        byte
	classStart int
	classEnd   int
	negated    bool
	quant      nodeModifier
	next       int // pattern index just past the token
}

// decodeGlobToken decodes the token starting at pi. Returns ok=false
// on malformed syntax (possible only in imported blobs, whose string
// table text is not syntax-validated); callers treat that as a
// non-match rather than an error.
func decodeGlobToken(pattern []byte, pi int) (globToken, bool) {
	c := pattern[pi]
	switch c {
	case '*':
		if pi+1 < len(pattern) && pattern[pi+1] == '*' {
			return globToken{kind: globStarStar, next: pi + 2}, true
		}
		return globToken{kind: globStar, next: pi + 1}, true
	case '?':
		return globToken{kind: globSingle, next: pi + 1}, true
	case '[':
		tok := globToken{kind: globClass}
		i := pi + 1
		if i < len(pattern) && (pattern[i] == '!' || pattern[i] == '^') {
			tok.negated = true
			i++
		}
		tok.classStart = i
		first := true
		for i < len(pattern) {
			if pattern[i] == ']' && !first {
				break
			}
			first = false
			i++
		}
		if i >= len(pattern) {
			return globToken{}, false
		}
		tok.classEnd = i
		i++ // closing bracket
		if i < len(pattern) {
			switch pattern[i] {
			case '?':
				tok.quant = modOptional
				i++
			case '+':
				tok.quant = modOneOrMore
				i++
			case '*':
				if !(i+1 < len(pattern) && pattern[i+1] == '*') {
					tok.quant = modZeroOrMore
					i++
				}
			}
		}
		tok.next = i
		return tok, true
	default:
		return globToken{kind: globLiteral, lit: c, next: pi + 1}, true
	}
}

// classContains reports whether b is a member of the class body
// pattern[start:end], honoring ranges and negation. The input byte
// arrives pre-folded; member bytes are folded here because the
// pattern text is stored raw. Folding applies per member byte, the
// same way trie charsets are built: a range crossing the letter
// boundary keeps its non-letter members instead of folding the
// endpoints into an empty or shifted range.
func classContains(pattern []byte, start, end int, negated bool, b byte, fold bool) bool {
	member := false
	for i := start; i < end; {
		if i+2 < end && pattern[i+1] == '-' {
			if rangeContains(pattern[i], pattern[i+2], b, fold) {
				member = true
			}
			i += 3
			continue
		}
		if foldByte(pattern[i], fold) == b {
			member = true
		}
		i++
	}
	return member != negated
}

// rangeContains reports whether the folded image of the raw range
// lo-hi includes b. With folding, each range member maps through
// foldByte individually, so a pre-folded lowercase b also matches
// when its uppercase form lies in the raw range.
func rangeContains(lo, hi, b byte, fold bool) bool {
	if lo <= b && b <= hi {
		return true
	}
	if fold && b >= 'a' && b <= 'z' {
		upper := b - ('a' - 'A')
		return lo <= upper && upper <= hi
	}
	return false
}

// globResume is a backtracking resume point for one variable-length
// token occurrence.
type globResume struct {
	nextPi  int // pattern index just past the token
	si      int // input consumed through here so far
	startSi int // input position where the token began matching
	maxSi   int // inclusive consumption bound (repeat ceiling), -1 if none
	// Extension constraint: for stars, classStart is -1 and crossSep
	// tells whether '/' may be consumed. For classes the body bounds
	// and negation decide.
	classStart int
	classEnd   int
	negated    bool
	crossSep   bool
}

// canExtend reports whether the resume point may consume input[e.si].
func (e *globResume) canExtend(pattern []byte, input string, fold bool) bool {
	if e.si >= len(input) {
		return false
	}
	if e.maxSi >= 0 && e.si >= e.maxSi {
		return false
	}
	b := foldByte(input[e.si], fold)
	if e.classStart >= 0 {
		return classContains(pattern, e.classStart, e.classEnd, e.negated, b, fold)
	}
	if !e.crossSep && b == '/' {
		return false
	}
	return true
}

// globMatch reports whether pattern matches all of input. The match is
// anchored at both ends. maxSteps and maxRepeat are hard ceilings
// (zero means unlimited): maxSteps bounds total loop iterations,
// maxRepeat bounds how many bytes any single quantifier occurrence may
// consume. Hitting a ceiling yields false — matching degrades toward
// non-match, never toward a hang.
func globMatch(pattern []byte, input string, fold bool, maxSteps, maxRepeat int) bool {
	// An empty pattern matches only the empty input.
	if len(pattern) == 0 {
		return len(input) == 0
	}

	var stack []globResume
	pi, si := 0, 0
	steps := 0

	repeatBound := func(startSi int) int {
		if maxRepeat <= 0 {
			return -1
		}
		return startSi + maxRepeat
	}

	for {
		steps++
		if maxSteps > 0 && steps > maxSteps {
			return false
		}

		if pi == len(pattern) {
			if si == len(input) {
				return true
			}
			if !backtrackGlob(pattern, input, fold, &stack, &pi, &si, &steps, maxSteps) {
				return false
			}
			continue
		}

		tok, ok := decodeGlobToken(pattern, pi)
		if !ok {
			return false
		}

		switch tok.kind {
		case globLiteral:
			if si < len(input) && foldByte(input[si], fold) == foldByte(tok.lit, fold) {
				si++
				pi = tok.next
				continue
			}

		case globSingle:
			if si < len(input) {
				si++
				pi = tok.next
				continue
			}

		case globStar, globStarStar:
			stack = append(stack, globResume{
				nextPi:     tok.next,
				si:         si,
				startSi:    si,
				maxSi:      repeatBound(si),
				classStart: -1,
				crossSep:   tok.kind == globStarStar,
			})
			pi = tok.next
			continue

		case globClass:
			switch tok.quant {
			case modNone:
				if si < len(input) && classContains(pattern, tok.classStart, tok.classEnd,
					tok.negated, foldByte(input[si], fold), fold) {
					si++
					pi = tok.next
					continue
				}
			case modOptional:
				stack = append(stack, globResume{
					nextPi:     tok.next,
					si:         si,
					startSi:    si,
					maxSi:      si + 1,
					classStart: tok.classStart,
					classEnd:   tok.classEnd,
					negated:    tok.negated,
				})
				pi = tok.next
				continue
			case modZeroOrMore:
				stack = append(stack, globResume{
					nextPi:     tok.next,
					si:         si,
					startSi:    si,
					maxSi:      repeatBound(si),
					classStart: tok.classStart,
					classEnd:   tok.classEnd,
					negated:    tok.negated,
				})
				pi = tok.next
				continue
			case modOneOrMore:
				if si < len(input) && classContains(pattern, tok.classStart, tok.classEnd,
					tok.negated, foldByte(input[si], fold), fold) {
					stack = append(stack, globResume{
						nextPi:     tok.next,
						si:         si + 1,
						startSi:    si,
						maxSi:      repeatBound(si),
						classStart: tok.classStart,
						classEnd:   tok.classEnd,
						negated:    tok.negated,
					})
					si++
					pi = tok.next
					continue
				}
			}
		}

		// Dead end at the current token: extend the most recent
		// quantifier that still can, or fail.
		if !backtrackGlob(pattern, input, fold, &stack, &pi, &si, &steps, maxSteps) {
			return false
		}
	}
}

// backtrackGlob extends the most recent resume point that can still
// consume another byte and repositions the cursors after it. Returns
// false when no resume point remains (or the step ceiling is hit).
func backtrackGlob(pattern []byte, input string, fold bool,
	stack *[]globResume, pi, si *int, steps *int, maxSteps int) bool {
	for len(*stack) > 0 {
		*steps++
		if maxSteps > 0 && *steps > maxSteps {
			return false
		}
		top := &(*stack)[len(*stack)-1]
		if top.canExtend(pattern, input, fold) {
			top.si++
			*pi = top.nextPi
			*si = top.si
			return true
		}
		*stack = (*stack)[:len(*stack)-1]
	}
	return false
}

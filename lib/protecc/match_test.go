// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import (
	"strings"
	"testing"
)

func TestMatchPathDepthPrecedence(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/opt/**", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if err := b.AddPattern("/opt/app/*", PermWrite); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	// Both patterns match /opt/app/tool, but the deeper one wins
	// outright: its WRITE replaces the shallower READ, which must not
	// leak through.
	if !profile.MatchPath("/opt/app/tool", PermWrite) {
		t.Error("deeper pattern's WRITE should be granted")
	}
	if profile.MatchPath("/opt/app/tool", PermRead) {
		t.Error("shallower pattern's READ leaked through a deeper match")
	}

	// Paths only the shallow pattern reaches still get READ.
	if !profile.MatchPath("/opt/other/file", PermRead) {
		t.Error("recursive pattern should match unrelated paths")
	}
}

func TestMatchPathEqualDepthMerge(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/data/*", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if err := b.AddPattern("/data/?", PermWrite); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	// "/data/x" matches both at equal node depth: permissions merge.
	if !profile.MatchPath("/data/x", PermRead|PermWrite) {
		t.Error("equal-depth matches should merge permissions")
	}
	if profile.MatchPath("/data/x", PermExec) {
		t.Error("merge must not invent permissions")
	}
}

func TestMatchPathCaseInsensitive(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(true)
	if err := b.AddPattern("/Windows/*", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	for _, path := range []string{"/windows/System32", "/WINDOWS/notepad.exe", "/Windows/x"} {
		if !profile.MatchPath(path, PermRead) {
			t.Errorf("case-insensitive profile should match %q", path)
		}
	}

	// The same patterns compiled case-sensitively must not.
	strict := NewTrieBuilder(false)
	if err := strict.AddPattern("/Windows/*", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if mustCompileTrie(t, strict).MatchPath("/windows/x", PermRead) {
		t.Error("case-sensitive profile matched a differently-cased path")
	}
}

func TestMatchPathEmptyPattern(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	if !profile.MatchPath("", PermRead) {
		t.Error("empty pattern should match the empty probe")
	}
	if profile.MatchPath("/", PermRead) || profile.MatchPath("x", PermRead) {
		t.Error("empty pattern should match nothing else")
	}
}

func TestMatchPathRootSlash(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	if !profile.MatchPath("/", PermRead) {
		t.Error(`pattern "/" should match "/"`)
	}
	if profile.MatchPath("", PermRead) {
		t.Error(`pattern "/" should reject the empty probe`)
	}
}

func TestMatchPathSegmentBoundary(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/a/*", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if err := b.AddPattern("/b/**", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	if profile.MatchPath("/a/x/y", PermRead) {
		t.Error("segment wildcard must not cross a separator")
	}
	if !profile.MatchPath("/b/x/y", PermRead) {
		t.Error("recursive wildcard should cross separators")
	}
	// "*" also matches the empty segment.
	if !profile.MatchPath("/a/", PermRead) {
		t.Error("segment wildcard should match the empty run")
	}
}

func TestMatchPathQuantifiedCharsets(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	patterns := map[string]Permission{
		"/log/[0-9]+.txt":  PermRead,
		"/cfg/[a-z]*.conf": PermWrite,
		"/opt/v[0-9]?":     PermExec,
	}
	for p, perms := range patterns {
		if err := b.AddPattern(p, perms); err != nil {
			t.Fatalf("AddPattern(%q): %v", p, err)
		}
	}
	profile := mustCompileTrie(t, b)

	tests := []struct {
		path string
		req  Permission
		want bool
	}{
		{"/log/123.txt", PermRead, true},
		{"/log/.txt", PermRead, false}, // "+" needs at least one digit
		{"/cfg/.conf", PermWrite, true},
		{"/cfg/abc.conf", PermWrite, true},
		{"/cfg/a1c.conf", PermWrite, false},
		{"/opt/v1", PermExec, true},
		{"/opt/v", PermExec, true},
		{"/opt/v12", PermExec, false},
	}
	for _, tt := range tests {
		if got := profile.MatchPath(tt.path, tt.req); got != tt.want {
			t.Errorf("MatchPath(%q, %b) = %v, want %v", tt.path, tt.req, got, tt.want)
		}
	}
}

func TestMatchPathRequestedSuperset(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/file", PermRead|PermWrite); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	if !profile.MatchPath("/file", PermRead) {
		t.Error("subset request should be granted")
	}
	if !profile.MatchPath("/file", PermRead|PermWrite) {
		t.Error("exact request should be granted")
	}
	if profile.MatchPath("/file", PermRead|PermExec) {
		t.Error("request exceeding granted bits should be refused")
	}
}

func TestMatchPathDeepPattern(t *testing.T) {
	t.Parallel()

	// ~180 repeated "a/" segments. A regression guard for stack use
	// and off-by-one depth handling on long literal chains.
	deep := strings.Repeat("a/", 180)
	b := NewTrieBuilder(false)
	if err := b.AddPattern(deep, PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	if !profile.MatchPath(deep, PermRead) {
		t.Error("identical-depth probe should match")
	}
	differing := deep[:len(deep)-2] + "b/"
	if profile.MatchPath(differing, PermRead) {
		t.Error("probe differing in the final segment should not match")
	}
}

func TestMatchPathWrongDomainProfile(t *testing.T) {
	t.Parallel()

	rb, err := NewRuleListBuilder(DomainNet, false)
	if err != nil {
		t.Fatalf("NewRuleListBuilder: %v", err)
	}
	profile, err := rb.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if profile.MatchPath("/anything", PermRead) {
		t.Error("path match against a net profile should be a non-match")
	}
	if _, ok := profile.MatchMount(MountRequest{}); ok {
		t.Error("mount match against a net profile should be a non-match")
	}
}

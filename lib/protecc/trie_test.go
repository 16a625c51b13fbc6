// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package protecc

import (
	"bytes"
	"errors"
	"testing"
)

func TestTrieBuilderSharedPrefix(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/usr/bin", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	nodesAfterFirst := len(b.nodes)
	if err := b.AddPattern("/usr/lib", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}

	// "/usr/bin" and "/usr/lib" share "/usr/" plus a diverging tail of
	// three characters each; only the tail should allocate new nodes.
	if got, want := len(b.nodes)-nodesAfterFirst, 3; got != want {
		t.Errorf("second pattern created %d nodes, want %d", got, want)
	}
}

func TestTrieBuilderTerminalPermissionUnion(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/etc/passwd", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if err := b.AddPattern("/etc/passwd", PermWrite); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}

	profile := mustCompileTrie(t, b)
	if !profile.MatchPath("/etc/passwd", PermRead|PermWrite) {
		t.Error("duplicate insertion should OR permission bits")
	}
}

func TestTrieBuilderRejectionLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/a", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	before, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if err := b.AddPattern("/b[", PermWrite); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("err = %v, want ErrInvalidPattern", err)
	}

	after, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !bytes.Equal(exportBytes(t, before), exportBytes(t, after)) {
		t.Error("failed AddPattern mutated builder state")
	}
}

func TestTrieBuilderReset(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/a/**", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", b.Len())
	}

	profile := mustCompileTrie(t, b)
	if profile.MatchPath("/a/x", PermRead) {
		t.Error("reset builder should match nothing")
	}
}

func TestCompileDeterminism(t *testing.T) {
	t.Parallel()

	build := func() *Profile {
		b := NewTrieBuilder(true)
		for _, p := range []string{"/opt/**", "/opt/app/*", "/data/[a-z]+/cache", "/etc/??.conf"} {
			if err := b.AddPattern(p, PermRead|PermExec); err != nil {
				t.Fatalf("AddPattern(%q): %v", p, err)
			}
		}
		return mustCompileTrie(t, b)
	}

	first := exportBytes(t, build())
	second := exportBytes(t, build())
	if !bytes.Equal(first, second) {
		t.Error("identical call sequences must produce byte-identical profiles")
	}
}

func TestTwoPhaseExport(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/x/*", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	profile := mustCompileTrie(t, b)

	size, err := profile.Export(nil)
	if err != nil {
		t.Fatalf("size query: %v", err)
	}
	if size <= headerSize {
		t.Fatalf("size query returned %d", size)
	}

	short := make([]byte, size-1)
	if _, err := profile.Export(short); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short buffer: err = %v, want ErrInvalidArgument", err)
	}

	buf := make([]byte, size)
	n, err := profile.Export(buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != size {
		t.Errorf("Export wrote %d bytes, size query said %d", n, size)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	patterns := map[string]Permission{
		"/opt/**":       PermRead,
		"/opt/app/*":    PermWrite,
		"/data/[a-z]*":  PermRead | PermWrite,
		"/exact/path":   PermExec,
		"/tmp/file?.go": PermRead,
	}
	for p, perms := range patterns {
		if err := b.AddPattern(p, perms); err != nil {
			t.Fatalf("AddPattern(%q): %v", p, err)
		}
	}
	original := mustCompileTrie(t, b)

	imported, err := ImportProfile(exportBytes(t, original))
	if err != nil {
		t.Fatalf("ImportProfile: %v", err)
	}

	probes := []struct {
		path string
		want Permission
	}{
		{"/opt/anything/deep", PermRead},
		{"/opt/app/tool", PermWrite},
		{"/data/abc", PermRead | PermWrite},
		{"/exact/path", PermExec},
		{"/tmp/file1.go", PermRead},
		{"/nope", 0},
	}
	for _, probe := range probes {
		for req := Permission(1); req <= PermDelete; req <<= 1 {
			if got, want := original.MatchPath(probe.path, req), imported.MatchPath(probe.path, req); got != want {
				t.Errorf("round-trip divergence on %q req %b: original %v, imported %v",
					probe.path, req, got, want)
			}
			if want := probe.want.Superset(req); original.MatchPath(probe.path, req) != want {
				t.Errorf("MatchPath(%q, %b) = %v, want %v",
					probe.path, req, original.MatchPath(probe.path, req), want)
			}
		}
	}
}

func TestImportCopiesBytes(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/a", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	blob := exportBytes(t, mustCompileTrie(t, b))

	imported, err := ImportProfile(blob)
	if err != nil {
		t.Fatalf("ImportProfile: %v", err)
	}
	// Corrupting the caller's buffer after import must not affect the
	// profile.
	for i := range blob {
		blob[i] = 0xFF
	}
	if !imported.MatchPath("/a", PermRead) {
		t.Error("imported profile shares memory with the caller's buffer")
	}
}

// mustCompileTrie and exportBytes are shared across the test files in
// this package.

func mustCompileTrie(t *testing.T, b *TrieBuilder) *Profile {
	t.Helper()
	profile, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return profile
}

func exportBytes(t *testing.T, p *Profile) []byte {
	t.Helper()
	size, err := p.Export(nil)
	if err != nil {
		t.Fatalf("export size query: %v", err)
	}
	buf := make([]byte, size)
	if _, err := p.Export(buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	return buf
}

func TestCompiledHeaderEncoding(t *testing.T) {
	t.Parallel()

	b := NewTrieBuilder(false)
	if err := b.AddPattern("/a", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	raw := exportBytes(t, mustCompileTrie(t, b))
	if raw[0] != 'C' || raw[1] != 'P' || raw[2] != 'R' || raw[3] != 'F' {
		t.Errorf("magic = %q", raw[:4])
	}
	if got := getU32(raw, offVersion); got != formatVersion {
		t.Errorf("version = %d, want %d", got, formatVersion)
	}
	if got := getU32(raw, offFlags); got != flagTrie {
		t.Errorf("flags = %#x, want %#x", got, flagTrie)
	}

	ci := NewTrieBuilder(true)
	if err := ci.AddPattern("/a", PermRead); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	raw = exportBytes(t, mustCompileTrie(t, ci))
	if got := getU32(raw, offFlags); got != flagTrie|flagCaseInsensitive {
		t.Errorf("flags = %#x, want %#x", got, flagTrie|flagCaseInsensitive)
	}
}

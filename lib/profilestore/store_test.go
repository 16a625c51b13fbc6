// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package profilestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/crucible-foundation/crucible/lib/protecc"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: filepath.Join(t.TempDir(), "profiles.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func testProfile(t *testing.T, patterns ...string) *protecc.Profile {
	t.Helper()
	b := protecc.NewTrieBuilder(false)
	for _, p := range patterns {
		if err := b.AddPattern(p, protecc.PermRead); err != nil {
			t.Fatalf("AddPattern(%q): %v", p, err)
		}
	}
	profile, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return profile
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()
	profile := testProfile(t, "/srv/**", "/etc/app/*.conf")

	hash, err := store.Put(ctx, "web-policy", profile)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, record, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Name != "web-policy" || record.Domain != "path" {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.RawSize != profile.Size() {
		t.Errorf("RawSize = %d, want %d", record.RawSize, profile.Size())
	}
	if !got.MatchPath("/srv/data/x", protecc.PermRead) {
		t.Error("retrieved profile should match /srv/data/x")
	}
	if got.MatchPath("/other", protecc.PermRead) {
		t.Error("retrieved profile should not match /other")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()
	profile := testProfile(t, "/a/**")

	first, err := store.Put(ctx, "p", profile)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := store.Put(ctx, "p", profile)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Errorf("same profile produced different hashes: %s vs %s", first, second)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one stored row, got %d", len(entries))
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	_, _, err := store.Get(context.Background(), Hash{1, 2, 3})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByNameReturnsNewest(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "policy", testProfile(t, "/old/**")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Put(ctx, "policy", testProfile(t, "/new/**")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Both rows may share a created_at second in a fast test run, so
	// assert only that name resolution returns one of the revisions
	// intact, not which one.
	profile, record, err := store.GetByName(ctx, "policy")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if record.Name != "policy" {
		t.Errorf("record name = %q, want policy", record.Name)
	}
	oldMatch := profile.MatchPath("/old/x", protecc.PermRead)
	newMatch := profile.MatchPath("/new/x", protecc.PermRead)
	if oldMatch == newMatch {
		t.Error("resolved profile should be exactly one of the stored revisions")
	}

	if _, _, err := store.GetByName(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for absent name, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	h1, err := store.Put(ctx, "one", testProfile(t, "/one/**"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Put(ctx, "two", testProfile(t, "/two/**")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	removed, err := store.Delete(ctx, h1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Error("Delete should report a removed row")
	}
	removed, err = store.Delete(ctx, h1)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if removed {
		t.Error("second Delete should be a no-op")
	}

	if _, _, err := store.Get(ctx, h1); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted profile should be gone, got %v", err)
	}
}

func TestGetDetectsTamperedBlob(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	hash, err := store.Put(ctx, "p", testProfile(t, "/srv/**", "/var/log/*.log"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Flip a byte of the stored blob behind the store's back. The
	// re-hash on Get must catch it.
	conn, err := store.pool.Take(ctx)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	err = sqlitex.Execute(conn, `
		UPDATE profiles SET blob = X'00' || substr(blob, 2) WHERE hash = ?`,
		&sqlitex.ExecOptions{Args: []any{hash.String()}})
	store.pool.Put(conn)
	if err != nil {
		t.Fatalf("tampering: %v", err)
	}

	if _, _, err := store.Get(ctx, hash); err == nil {
		t.Fatal("Get must reject a tampered blob")
	}
}

func TestRecordEncodingIsDeterministic(t *testing.T) {
	t.Parallel()

	record := Record{
		Name: "p", Domain: "path", RawSize: 100, StoredSize: 40,
		Compression: "zstd", CreatedAt: 1756100000,
	}
	a, err := encodeRecord(&record)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	b, err := encodeRecord(&record)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	if string(a) != string(b) {
		t.Error("identical records must encode identically")
	}

	decoded, err := decodeRecord(a)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if *decoded != record {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestPutRepointsNameOfExistingBlob(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()
	profile := testProfile(t, "/srv/**")

	first, err := store.Put(ctx, "alpha", profile)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := store.Put(ctx, "beta", profile)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Fatalf("same blob must keep its hash: %s vs %s", first, second)
	}

	// The latest Put owns the row: the new name resolves, the old one
	// does not, and no duplicate row exists.
	if _, record, err := store.GetByName(ctx, "beta"); err != nil {
		t.Errorf("GetByName(beta): %v", err)
	} else if record.Name != "beta" {
		t.Errorf("record name = %q, want beta", record.Name)
	}
	if _, _, err := store.GetByName(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old name should no longer resolve, got %v", err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one row after rename, got %d", len(entries))
	}
}

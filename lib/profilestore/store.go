// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package profilestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/crucible-foundation/crucible/lib/protecc"
)

// ErrNotFound is returned by lookups when no stored profile matches.
var ErrNotFound = errors.New("profile not found")

// Record is the metadata kept alongside a stored profile blob. It is
// persisted as deterministically encoded CBOR, so identical records
// are byte-identical in the database.
type Record struct {
	// Name is the caller-chosen label. Several revisions of a policy
	// may share a name; [Store.GetByName] returns the newest.
	Name string `cbor:"name"`

	// Domain is the profile's domain name ("path", "net", "mount").
	Domain string `cbor:"domain"`

	// CaseInsensitive mirrors the profile's case-folding flag.
	CaseInsensitive bool `cbor:"case_insensitive,omitempty"`

	// RawSize is the exported (uncompressed) blob size in bytes.
	RawSize int `cbor:"raw_size"`

	// StoredSize is the on-disk blob size after compression.
	StoredSize int `cbor:"stored_size"`

	// Compression names the algorithm the blob is stored with.
	Compression string `cbor:"compression"`

	// CreatedAt is the store time in Unix seconds.
	CreatedAt int64 `cbor:"created_at"`
}

// Entry pairs a content hash with its metadata record, for listings.
type Entry struct {
	Hash   Hash
	Record Record
}

// Config holds the parameters for opening a profile store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist; the file is created on first open. ":memory:" gives an
	// in-memory store (pool size is forced to 1, each in-memory
	// connection would otherwise see its own database).
	Path string

	// PoolSize is the connection pool size. Zero or negative defaults
	// to max(runtime.NumCPU(), 4).
	PoolSize int

	// Logger receives operational messages. Nil means silent.
	Logger *slog.Logger
}

// Store is a content-addressed profile store backed by SQLite. Safe
// for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	hash        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	domain      INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	raw_size    INTEGER NOT NULL,
	blob        BLOB NOT NULL,
	metadata    BLOB NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS profiles_by_name ON profiles(name, created_at);
`

// Open opens (creating if necessary) the profile store at cfg.Path.
// The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("profilestore: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}
	if cfg.Path == ":memory:" {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("profilestore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("profile store opened", "path", cfg.Path, "pool_size", poolSize)
	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes the store. Blocks until all borrowed connections are
// returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("profilestore: closing %s: %w", s.path, err)
	}
	return nil
}

// Put stores a compiled profile under the given name and returns its
// content hash. The blob write is idempotent: storing bytes already
// present keeps the single existing row and re-points its name and
// metadata at the new values, so the latest Put wins and lookups by
// the new name resolve. A hash has exactly one name at a time.
func (s *Store) Put(ctx context.Context, name string, profile *protecc.Profile) (Hash, error) {
	if name == "" {
		return Hash{}, fmt.Errorf("profilestore: name is required")
	}

	blob := make([]byte, profile.Size())
	if _, err := profile.Export(blob); err != nil {
		return Hash{}, fmt.Errorf("profilestore: exporting profile: %w", err)
	}
	hash := HashProfile(blob)
	stored, tag := compressBlob(blob)

	now := time.Now().Unix()
	record := Record{
		Name:            name,
		Domain:          profile.Domain().String(),
		CaseInsensitive: profile.CaseInsensitive(),
		RawSize:         len(blob),
		StoredSize:      len(stored),
		Compression:     tag.String(),
		CreatedAt:       now,
	}
	metadata, err := encodeRecord(&record)
	if err != nil {
		return Hash{}, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Hash{}, fmt.Errorf("profilestore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO profiles (hash, name, domain, compression, raw_size, blob, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			name = excluded.name,
			metadata = excluded.metadata,
			created_at = excluded.created_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				hash.String(), name, int64(profile.Domain()), int64(tag),
				int64(len(blob)), stored, metadata, now,
			},
		})
	if err != nil {
		return Hash{}, fmt.Errorf("profilestore: inserting %s: %w", hash, err)
	}

	s.logger.Debug("profile stored",
		"hash", hash.String(),
		"name", name,
		"domain", record.Domain,
		"raw_size", record.RawSize,
		"stored_size", record.StoredSize,
		"compression", record.Compression,
	)
	return hash, nil
}

// Get retrieves a stored profile by content hash. The blob is
// decompressed, re-hashed against its address, and fully re-validated
// via [protecc.ImportProfile] before being returned, so database
// corruption surfaces here as an error.
func (s *Store) Get(ctx context.Context, hash Hash) (*protecc.Profile, *Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		found    bool
		tag      compressionTag
		rawSize  int64
		stored   []byte
		metadata []byte
	)
	err = sqlitex.Execute(conn, `
		SELECT compression, raw_size, blob, metadata FROM profiles WHERE hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{hash.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				tag = compressionTag(stmt.ColumnInt64(0))
				rawSize = stmt.ColumnInt64(1)
				stored = make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, stored)
				metadata = make([]byte, stmt.ColumnLen(3))
				stmt.ColumnBytes(3, metadata)
				return nil
			},
		})
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: querying %s: %w", hash, err)
	}
	if !found {
		return nil, nil, fmt.Errorf("profilestore: %s: %w", hash, ErrNotFound)
	}

	blob, err := decompressBlob(stored, tag, int(rawSize))
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: %s: %w", hash, err)
	}
	if got := HashProfile(blob); got != hash {
		return nil, nil, fmt.Errorf("profilestore: %s: stored blob hashes to %s", hash, got)
	}
	profile, err := protecc.ImportProfile(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: %s: %w", hash, err)
	}
	record, err := decodeRecord(metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("profilestore: %s: %w", hash, err)
	}
	return profile, record, nil
}

// GetByName retrieves the newest profile stored under name.
func (s *Store) GetByName(ctx context.Context, name string) (*protecc.Profile, *Record, error) {
	hash, err := s.resolveName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return s.Get(ctx, hash)
}

// List returns the metadata of every stored profile, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("profilestore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var entries []Entry
	var decodeErr error
	err = sqlitex.Execute(conn, `
		SELECT hash, metadata FROM profiles ORDER BY created_at DESC, hash`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hash, err := ParseHash(stmt.ColumnText(0))
				if err != nil {
					decodeErr = err
					return nil
				}
				metadata := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, metadata)
				record, err := decodeRecord(metadata)
				if err != nil {
					decodeErr = err
					return nil
				}
				entries = append(entries, Entry{Hash: hash, Record: *record})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("profilestore: listing: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("profilestore: listing: %w", decodeErr)
	}
	return entries, nil
}

// Delete removes a stored profile. Returns whether a row was removed.
func (s *Store) Delete(ctx context.Context, hash Hash) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("profilestore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM profiles WHERE hash = ?`,
		&sqlitex.ExecOptions{Args: []any{hash.String()}})
	if err != nil {
		return false, fmt.Errorf("profilestore: deleting %s: %w", hash, err)
	}
	return conn.Changes() > 0, nil
}

func (s *Store) resolveName(ctx context.Context, name string) (Hash, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Hash{}, fmt.Errorf("profilestore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var hashText string
	err = sqlitex.Execute(conn, `
		SELECT hash FROM profiles WHERE name = ? ORDER BY created_at DESC, hash LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hashText = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return Hash{}, fmt.Errorf("profilestore: resolving %q: %w", name, err)
	}
	if hashText == "" {
		return Hash{}, fmt.Errorf("profilestore: %q: %w", name, ErrNotFound)
	}
	return ParseHash(hashText)
}

// prepareConnection applies the standard pragmas once per pooled
// connection and creates the schema.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("profilestore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("profilestore: creating schema: %w", err)
	}
	return nil
}

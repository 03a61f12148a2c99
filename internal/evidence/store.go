package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/hashguard/hashguard/internal/digest"
	"github.com/hashguard/hashguard/internal/id"
)

// ErrNotFound is returned when an evidence record doesn't exist.
var ErrNotFound = errors.New("evidence not found")

// ErrDuplicateDigest is returned when a record with the same content digest
// already exists. Records are content-addressed; identical bytes are the
// same evidence.
var ErrDuplicateDigest = errors.New("evidence with this digest already exists")

// ErrMalformedDigest is returned for digests that are not 64 hex characters.
var ErrMalformedDigest = errors.New("malformed digest")

// Store provides evidence record storage using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates an evidence store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS evidence (
			id             TEXT PRIMARY KEY,
			filename       TEXT NOT NULL,
			path           TEXT NOT NULL,
			digest         TEXT NOT NULL UNIQUE,
			signature_file TEXT NOT NULL DEFAULT '',
			public_key     TEXT NOT NULL DEFAULT '',
			timestamp_file TEXT NOT NULL DEFAULT '',
			metadata       TEXT NOT NULL DEFAULT '{}',
			collected_by   TEXT NOT NULL DEFAULT '',
			collected_at   TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_evidence_digest ON evidence(digest);
	`)
	return err
}

// DB exposes the underlying database handle so the custody ledger can share
// the same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new evidence record. The record's ID and CreatedAt are
// assigned here; Digest must be well-formed and not yet present.
func (s *Store) Create(ctx context.Context, r *Record) (*Record, error) {
	if !digest.IsWellFormed(r.Digest) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedDigest, r.Digest)
	}

	existing, err := s.FindByDigest(ctx, r.Digest)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDigest, existing.ID)
	}

	stored := *r
	stored.ID = id.Generate("ev")
	stored.CreatedAt = time.Now().UTC()

	metaJSON, err := json.Marshal(stored.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	var collectedAt string
	if !stored.CollectedAt.IsZero() {
		collectedAt = stored.CollectedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evidence (id, filename, path, digest, signature_file, public_key,
			timestamp_file, metadata, collected_by, collected_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.Filename, stored.Path, stored.Digest, stored.SignatureFile,
		stored.PublicKey, stored.TimestampFile, string(metaJSON), stored.CollectedBy,
		collectedAt, stored.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting evidence: %w", err)
	}

	return &stored, nil
}

// Get retrieves an evidence record by id.
func (s *Store) Get(ctx context.Context, evidenceID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, path, digest, signature_file, public_key,
			timestamp_file, metadata, collected_by, collected_at, created_at
		FROM evidence WHERE id = ?
	`, evidenceID)
	return scanRecord(row)
}

// FindByDigest retrieves an evidence record by its content digest.
func (s *Store) FindByDigest(ctx context.Context, d string) (*Record, error) {
	if !digest.IsWellFormed(d) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedDigest, d)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, path, digest, signature_file, public_key,
			timestamp_file, metadata, collected_by, collected_at, created_at
		FROM evidence WHERE digest = ? COLLATE NOCASE
	`, d)
	return scanRecord(row)
}

// List returns records ordered by creation time descending.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, path, digest, signature_file, public_key,
			timestamp_file, metadata, collected_by, collected_at, created_at
		FROM evidence ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of evidence records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting evidence: %w", err)
	}
	return n, nil
}

// Exists reports whether an evidence record with the given id exists.
func (s *Store) Exists(ctx context.Context, evidenceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM evidence WHERE id = ?`, evidenceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking evidence: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*Record, error) {
	r, err := scan(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func scanRecordRows(rows *sql.Rows) (*Record, error) {
	return scan(rows)
}

func scan(s rowScanner) (*Record, error) {
	var r Record
	var metaStr, collectedAt, createdAt string
	err := s.Scan(&r.ID, &r.Filename, &r.Path, &r.Digest, &r.SignatureFile,
		&r.PublicKey, &r.TimestampFile, &metaStr, &r.CollectedBy, &collectedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning evidence: %w", err)
	}

	if collectedAt != "" {
		r.CollectedAt, _ = time.Parse(time.RFC3339Nano, collectedAt)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	json.Unmarshal([]byte(metaStr), &r.Metadata)
	return &r, nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kaiwa/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Transactions take the
// write lock up front so concurrent processes updating one session serialize.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);

	CREATE TABLE IF NOT EXISTS chunks (
		slug TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (slug, chunk_index)
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// GetSession returns the record for id or ErrNotFound.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, payload, created_at, last_active FROM sessions WHERE id = ?`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec                 SessionRecord
		payload             string
		created, lastActive int64
	)
	err := row.Scan(&rec.ID, &payload, &created, &lastActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Payload = []byte(payload)
	rec.CreatedAt = time.Unix(0, created)
	rec.LastActive = time.Unix(0, lastActive)
	return &rec, nil
}

// UpdateSession reads the current record and writes fn's result inside one
// immediate transaction.
func (s *SQLiteStorage) UpdateSession(ctx context.Context, id string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT id, payload, created_at, last_active FROM sessions WHERE id = ?`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("read session: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, payload, created_at, last_active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
			created_at = excluded.created_at, last_active = excluded.last_active`,
		id, string(next.Payload), next.CreatedAt.UnixNano(), next.LastActive.UnixNano())
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return tx.Commit()
}

// DeleteSession removes a session. Deleting an absent session is not an error.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteSessionsIdleBefore removes sessions last active before cutoff.
func (s *SQLiteStorage) DeleteSessionsIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountSessions returns the number of stored sessions.
func (s *SQLiteStorage) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// ReplaceChunks deletes every chunk and inserts the new set in a single transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, chunks []*models.Chunk, dimensions int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (slug, chunk_index, content, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != dimensions {
			return fmt.Errorf("chunk %s#%d: embedding has %d dimensions, want %d",
				c.Slug, c.Index, len(c.Embedding), dimensions)
		}
		if _, err := stmt.ExecContext(ctx, c.Slug, c.Index, c.Content, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %s#%d: %w", c.Slug, c.Index, err)
		}
	}

	meta := map[string]string{
		"dimensions":   strconv.Itoa(dimensions),
		"generated_at": strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("write index meta: %w", err)
		}
	}

	return tx.Commit()
}

// ListChunks returns all chunks ordered by slug and index.
func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, chunk_index, content, embedding FROM chunks ORDER BY slug, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Chunk
	for rows.Next() {
		var (
			c   models.Chunk
			raw []byte
		)
		if err := rows.Scan(&c.Slug, &c.Index, &c.Content, &raw); err != nil {
			return nil, err
		}
		c.Embedding = decodeVector(raw)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// IndexMeta returns metadata of the committed generation. A database that
// was never indexed returns the zero value.
func (s *SQLiteStorage) IndexMeta(ctx context.Context) (IndexMeta, error) {
	var meta IndexMeta
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return meta, err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return meta, err
		}
		switch k {
		case "dimensions":
			meta.Dimensions, _ = strconv.Atoi(v)
		case "generated_at":
			if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
				meta.GeneratedAt = time.Unix(0, ns)
			}
		}
	}
	return meta, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size:]))
	}
	return out
}

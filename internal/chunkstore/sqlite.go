package chunkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyTimeoutMS = 5000
	sqliteMaxConns      = 1
	sqliteConnLifetime  = 5 * time.Minute
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
  id TEXT PRIMARY KEY,
  content_type TEXT NOT NULL,
  file_name TEXT,
  size_bytes INTEGER NOT NULL,
  chunk_size INTEGER NOT NULL,
  upload_date TEXT NOT NULL,
  meta_json TEXT
);

CREATE TABLE IF NOT EXISTS chunks (
  object_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  data BLOB NOT NULL,
  PRIMARY KEY (object_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_chunks_object ON chunks(object_id);
`

// SQLiteStore keeps chunks and object metadata in a standalone SQLite file,
// separate from the record database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and bootstraps) a SQLite chunk store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("chunk store path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", sqliteBusyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	db.SetMaxOpenConns(sqliteMaxConns)
	db.SetMaxIdleConns(sqliteMaxConns)
	db.SetConnMaxLifetime(sqliteConnLifetime)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutChunk inserts one chunk row.
func (s *SQLiteStore) PutChunk(ctx context.Context, objectID string, index int, data []byte) error {
	if objectID == "" {
		return fmt.Errorf("object id is required")
	}
	if index < 0 {
		return fmt.Errorf("chunk index must be >= 0")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunks (object_id, seq, data) VALUES (?, ?, ?)",
		objectID, index, data)
	return err
}

// Finalize upserts the object metadata row.
func (s *SQLiteStore) Finalize(ctx context.Context, info ObjectInfo) error {
	if strings.TrimSpace(info.ID) == "" {
		return fmt.Errorf("object id is required")
	}
	if info.UploadDate.IsZero() {
		info.UploadDate = time.Now().UTC()
	}
	metaJSON, err := metaToJSON(info.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (id, content_type, file_name, size_bytes, chunk_size, upload_date, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, info.ID, info.ContentType, info.FileName, info.SizeBytes, info.ChunkSize,
		info.UploadDate.UTC().Format(time.RFC3339Nano), metaJSON)
	return err
}

// Stat returns metadata for one finalized object.
func (s *SQLiteStore) Stat(ctx context.Context, objectID string) (*ObjectInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_type, file_name, size_bytes, chunk_size, upload_date, meta_json
		FROM objects WHERE id = ?
	`, objectID)

	info := ObjectInfo{}
	var fileName, metaJSON sql.NullString
	var uploadDate string
	err := row.Scan(&info.ID, &info.ContentType, &fileName, &info.SizeBytes, &info.ChunkSize, &uploadDate, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	info.FileName = fileName.String

	parsed, err := time.Parse(time.RFC3339Nano, uploadDate)
	if err != nil {
		return nil, fmt.Errorf("parse object upload_date: %w", err)
	}
	info.UploadDate = parsed

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &info.Meta); err != nil {
			return nil, fmt.Errorf("parse object meta_json: %w", err)
		}
	}
	return &info, nil
}

// ReadChunk returns the chunk at index.
func (s *SQLiteStore) ReadChunk(ctx context.Context, objectID string, index int) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM chunks WHERE object_id = ? AND seq = ?", objectID, index).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes all chunks and the metadata for one object.
func (s *SQLiteStore) Delete(ctx context.Context, objectID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM chunks WHERE object_id = ?", objectID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM objects WHERE id = ?", objectID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListObjectIDs returns every object id present in either table. Objects
// with chunks but no metadata row are mid-write or orphaned uploads.
func (s *SQLiteStore) ListObjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM objects
		UNION
		SELECT DISTINCT object_id FROM chunks
		ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func metaToJSON(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal object meta_json: %w", err)
	}
	return string(data), nil
}

var _ Store = (*SQLiteStore)(nil)

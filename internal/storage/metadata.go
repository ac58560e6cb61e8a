package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no row matches
var ErrNotFound = errors.New("not found")

// Record is one archived transcript
type Record struct {
	TaskID     string    `json:"task_id"`
	Title      string    `json:"title"`
	SourceType string    `json:"source_type"`
	Platform   string    `json:"platform,omitempty"`
	Format     string    `json:"format"`
	Language   string    `json:"language,omitempty"`
	LocalPath  string    `json:"local_path"`
	DriveURL   string    `json:"gdrive_url,omitempty"`
	Duration   float64   `json:"duration"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (and migrates) the history database at dbPath
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		source_type TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL,
		gdrive_url TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		word_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveTranscript inserts rec, replacing an earlier archive of the same task
func (mdb *MetadataDB) SaveTranscript(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO transcripts (task_id, title, source_type, platform, format, language, local_path, gdrive_url, duration, word_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		title = excluded.title,
		source_type = excluded.source_type,
		platform = excluded.platform,
		format = excluded.format,
		language = excluded.language,
		local_path = excluded.local_path,
		gdrive_url = excluded.gdrive_url,
		duration = excluded.duration,
		word_count = excluded.word_count,
		created_at = excluded.created_at
	`

	_, err := mdb.db.ExecContext(ctx, query, rec.TaskID, rec.Title, rec.SourceType, rec.Platform,
		rec.Format, rec.Language, rec.LocalPath, rec.DriveURL, rec.Duration, rec.WordCount,
		rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", rec.TaskID, err)
	}

	return nil
}

const selectColumns = `SELECT task_id, title, source_type, platform, format, language, local_path, gdrive_url, duration, word_count, created_at FROM transcripts`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		created int64
	)
	err := row.Scan(&rec.TaskID, &rec.Title, &rec.SourceType, &rec.Platform, &rec.Format,
		&rec.Language, &rec.LocalPath, &rec.DriveURL, &rec.Duration, &rec.WordCount, &created)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = time.Unix(created, 0)
	return rec, nil
}

// GetTranscript retrieves an archived transcript by task id
func (mdb *MetadataDB) GetTranscript(ctx context.Context, taskID string) (Record, error) {
	rec, err := scanRecord(mdb.db.QueryRowContext(ctx, selectColumns+` WHERE task_id = ?`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get transcript %s: %w", taskID, err)
	}
	return rec, nil
}

// ListTranscripts returns the newest archived transcripts first
func (mdb *MetadataDB) ListTranscripts(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := mdb.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		transcripts = append(transcripts, rec)
	}

	return transcripts, rows.Err()
}

// DeleteByLocalPath removes the records of an archived file that no longer
// exists and reports how many rows went.
func (mdb *MetadataDB) DeleteByLocalPath(ctx context.Context, path string) (int64, error) {
	res, err := mdb.db.ExecContext(ctx, `DELETE FROM transcripts WHERE local_path = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("delete transcript: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/marco/videomap/internal/retry"
	"github.com/marco/videomap/internal/video"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// removeChunk bounds the number of bound parameters in one DELETE.
	removeChunk = 500

	retryAttempts = 5
	retryBackoff  = 50 * time.Millisecond
)

const upsertSQL = `
	INSERT INTO video_cache (file_path, directory, size_bytes, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(file_path) DO UPDATE SET
		directory  = excluded.directory,
		size_bytes = excluded.size_bytes,
		payload    = excluded.payload,
		updated_at = excluded.updated_at
	WHERE video_cache.payload IS NOT excluded.payload
	   OR video_cache.size_bytes != excluded.size_bytes
	   OR video_cache.directory != excluded.directory`

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// brings its schema up to date.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("failed to create cache directory: %w", err)}
	}

	if err := migrateUp(dbPath, logger); err != nil {
		return nil, &StorageError{Op: "migrate", Err: err}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	// One writer; a single connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}

	return &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: logger,
		now:    time.Now,
	}, nil
}

// migrateUp applies the embedded migrations through golang-migrate's sqlite driver.
func migrateUp(dbPath string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Debug("cache schema ready",
		"path", dbPath,
		"version", version,
		"dirty", dirty,
	)
	return nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load returns the records under root grouped by directory.
func (s *SQLiteStore) Load(ctx context.Context, root string) Groups {
	groups := Groups{}

	prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, payload FROM video_cache
		 WHERE file_path = ? OR directory = ? OR directory LIKE ? ESCAPE '\'
		 ORDER BY file_path`,
		root, root, escapeLike(prefix)+"%",
	)
	if err != nil {
		s.logger.Error("failed to load cache", "root", root, "error", err)
		return Groups{}
	}
	defer rows.Close()

	skipped := 0
	for rows.Next() {
		var path string
		var payload []byte
		if err := rows.Scan(&path, &payload); err != nil {
			s.logger.Error("failed to read cache row", "error", err)
			return Groups{}
		}

		rec, err := decodeRecord(path, payload)
		if err != nil {
			s.logger.Warn("skipping unreadable cache entry", "path", path, "error", err)
			skipped++
			continue
		}
		groups[rec.Directory] = append(groups[rec.Directory], rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("failed to load cache", "root", root, "error", err)
		return Groups{}
	}

	s.logger.Debug("cache loaded",
		"root", root,
		"directories", len(groups),
		"records", groups.Len(),
		"skipped", skipped,
	)
	return groups
}

func decodeRecord(path string, payload []byte) (*video.Record, error) {
	var rec video.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.FullPath() != path {
		return nil, fmt.Errorf("payload path %q does not match key", rec.FullPath())
	}
	return &rec, nil
}

// Save upserts records. Rows whose payload and size are unchanged are left
// untouched, so created_at and updated_at only move on real changes.
func (s *SQLiteStore) Save(ctx context.Context, records []*video.Record) error {
	if len(records) == 0 {
		return nil
	}

	type row struct {
		path, dir string
		size      int64
		payload   []byte
	}
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return &StorageError{Op: "save", Err: fmt.Errorf("failed to encode %s: %w", rec.FullPath(), err)}
		}
		rows = append(rows, row{rec.FullPath(), rec.Directory, rec.SizeBytes, payload})
	}

	now := s.now().Unix()
	err := retry.Retry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, upsertSQL)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, r := range rows {
				if _, err := stmt.ExecContext(ctx, r.path, r.dir, r.size, r.payload, now, now); err != nil {
					return fmt.Errorf("failed to save %s: %w", r.path, err)
				}
			}
			return nil
		})
	}, retryAttempts, retryBackoff)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// Remove deletes the given paths in one transaction.
func (s *SQLiteStore) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	err := retry.Retry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			for start := 0; start < len(paths); start += removeChunk {
				end := min(start+removeChunk, len(paths))
				chunk := paths[start:end]

				args := make([]any, len(chunk))
				for i, p := range chunk {
					args[i] = p
				}
				placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
				if _, err := tx.ExecContext(ctx,
					"DELETE FROM video_cache WHERE file_path IN ("+placeholders+")", args...); err != nil {
					return err
				}
			}
			return nil
		})
	}, retryAttempts, retryBackoff)
	if err != nil {
		return &StorageError{Op: "remove", Err: err}
	}
	return nil
}

// RecordRun stores a scan history entry.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunRecord) error {
	err := retry.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO scan_runs
			 (id, root, started_at, finished_at, directories, probed, fresh, failed, pruned)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Root, run.StartedAt.Unix(), run.FinishedAt.Unix(),
			run.Directories, run.Probed, run.Fresh, run.Failed, run.Pruned,
		)
		return err
	}, retryAttempts, retryBackoff)
	if err != nil {
		return &StorageError{Op: "record run", Err: err}
	}
	return nil
}

// Runs returns up to limit history entries, newest first. A limit of zero
// or less returns every entry.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root, started_at, finished_at, directories, probed, fresh, failed, pruned
		 FROM scan_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, &StorageError{Op: "runs", Err: err}
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Root, &started, &finished,
			&r.Directories, &r.Probed, &r.Fresh, &r.Failed, &r.Pruned); err != nil {
			return nil, &StorageError{Op: "runs", Err: err}
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "runs", Err: err}
	}
	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// sqliteStore keeps rows in a local SQLite file, one TEXT column per header
// column. The rowid preserves insertion order.
type sqliteStore struct {
	conn *sql.DB
}

var sampleColumns = []string{
	"video_id", "channel_title", "published_at", "timestamp",
	"view_count", "like_count", "comment_count", "vph", "engagement_rate",
}

// openSQLite opens (and if needed creates) the database at path.
func openSQLite(path string) (*sqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &sqliteStore{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS header (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id TEXT NOT NULL,
		channel_title TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL DEFAULT '',
		view_count TEXT NOT NULL DEFAULT '',
		like_count TEXT NOT NULL DEFAULT '',
		comment_count TEXT NOT NULL DEFAULT '',
		vph TEXT NOT NULL DEFAULT '',
		engagement_rate TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_samples_video_ts ON samples(video_id, timestamp);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// ReadAll returns the header and all samples ordered by insertion.
func (s *sqliteStore) ReadAll(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{}

	hrows, err := s.conn.QueryContext(ctx, `SELECT name FROM header ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query header: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var name string
		if err := hrows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan header: %w", err)
		}
		snapshot.Header = append(snapshot.Header, name)
	}
	if err := hrows.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM samples ORDER BY seq`, strings.Join(sampleColumns, ", "))
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		row := make(Row, NumColumns)
		dest := make([]interface{}, NumColumns)
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		snapshot.Rows = append(snapshot.Rows, row)
	}
	return snapshot, rows.Err()
}

// InitializeSchema replaces the stored header.
func (s *sqliteStore) InitializeSchema(ctx context.Context, header []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM header`); err != nil {
		return fmt.Errorf("clear header: %w", err)
	}
	for i, name := range header {
		if _, err := tx.ExecContext(ctx, `INSERT INTO header (position, name) VALUES (?, ?)`, i, name); err != nil {
			return fmt.Errorf("insert header: %w", err)
		}
	}
	return tx.Commit()
}

// AppendRows inserts all rows in one transaction. Missing cells are stored
// empty; cells beyond the ninth column are not kept.
func (s *sqliteStore) AppendRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", NumColumns), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO samples (%s) VALUES (%s)`,
		strings.Join(sampleColumns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]interface{}, NumColumns)
		for i := range args {
			if i < len(row) {
				args[i] = row[i]
			} else {
				args[i] = ""
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.conn.Close()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sjsage522/adwatcher/logger"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on an embedded SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and migrates it.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create dir: %w", err)
			}
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	logger.ForStore().Debug().Str("driver", "sqlite").Str("path", dbPath).Msg("Store ready")
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrapper_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		ads_found INTEGER NOT NULL,
		average_price INTEGER NOT NULL,
		min_price INTEGER NOT NULL,
		max_price INTEGER NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		partial BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		created_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ads (
		key TEXT PRIMARY KEY,
		ad_id TEXT,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		search_term TEXT,
		price INTEGER NOT NULL,
		first_seen_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	if err := s.addCreatedNs(); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_scrapper_logs_url_ns ON scrapper_logs(url, created_ns)`)
	return err
}

// addCreatedNs adds the integer creation time to databases created before it
// existed. Text timestamps do not sort reliably, so ordering uses unix nanos.
func (s *SQLiteStore) addCreatedNs() error {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('scrapper_logs') WHERE name = 'created_ns'`).Scan(&count)
	if err != nil || count > 0 {
		return err
	}
	if _, err := s.db.Exec(`ALTER TABLE scrapper_logs ADD COLUMN created_ns INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE scrapper_logs SET created_ns = CAST(strftime('%s', substr(created_at, 1, 19)) AS INTEGER) * 1000000000`)
	return err
}

// SaveLog appends a run summary
func (s *SQLiteStore) SaveLog(ctx context.Context, summary Summary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrapper_logs (run_id, url, ads_found, average_price, min_price, max_price, pages, partial, created_at, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.URL, summary.AdsFound, summary.AveragePrice,
		summary.MinPrice, summary.MaxPrice, summary.Pages, summary.Partial,
		summary.CreatedAt.UTC(), summary.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save log: %w", err)
	}
	return nil
}

// GetLogsByURL returns up to limit summaries for url, newest first
func (s *SQLiteStore) GetLogsByURL(ctx context.Context, url string, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, url, ads_found, average_price, min_price, max_price, pages, partial, created_ns
		FROM scrapper_logs
		WHERE url = ?
		ORDER BY created_ns DESC, id DESC
		LIMIT ?`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query logs: %w", err)
	}
	defer rows.Close()

	var logs []Summary
	for rows.Next() {
		var (
			l         Summary
			createdNs int64
		)
		if err := rows.Scan(&l.ID, &l.RunID, &l.URL, &l.AdsFound, &l.AveragePrice,
			&l.MinPrice, &l.MaxPrice, &l.Pages, &l.Partial, &createdNs); err != nil {
			return nil, fmt.Errorf("sqlite: scan log: %w", err)
		}
		l.CreatedAt = time.Unix(0, createdNs).UTC()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// MarkSeen records the ad and reports whether it was unknown before
func (s *SQLiteStore) MarkSeen(ctx context.Context, ad SeenAd) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ads (key, ad_id, url, title, search_term, price, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		seenKey(ad), ad.ID, ad.URL, ad.Title, ad.SearchTerm, ad.Price, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert ad: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert ad: %w", err)
	}
	if inserted > 0 {
		return true, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE ads SET last_seen_at = ?, price = ?, title = ? WHERE key = ?`,
		now, ad.Price, ad.Title, seenKey(ad)); err != nil {
		return false, fmt.Errorf("sqlite: touch ad: %w", err)
	}
	return false, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"fmt"
	"time"

	"sjsage522/adwatcher/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a Postgres connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString, pings and migrates the schema
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.ForStore().Debug().Str("driver", "postgres").Int32("max_conns", config.MaxConns).Msg("Store ready")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS scrapper_logs (
			id            BIGSERIAL PRIMARY KEY,
			run_id        TEXT        NOT NULL,
			url           TEXT        NOT NULL,
			ads_found     INTEGER     NOT NULL,
			average_price BIGINT      NOT NULL,
			min_price     BIGINT      NOT NULL,
			max_price     BIGINT      NOT NULL,
			pages         INTEGER     NOT NULL DEFAULT 0,
			partial       BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_scrapper_logs_url ON scrapper_logs(url, created_at);

		CREATE TABLE IF NOT EXISTS ads (
			key           TEXT PRIMARY KEY,
			ad_id         TEXT,
			url           TEXT        NOT NULL,
			title         TEXT        NOT NULL,
			search_term   TEXT,
			price         BIGINT      NOT NULL,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`)
	return err
}

// SaveLog appends a run summary
func (s *PostgresStore) SaveLog(ctx context.Context, summary Summary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrapper_logs (run_id, url, ads_found, average_price, min_price, max_price, pages, partial, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		summary.RunID, summary.URL, summary.AdsFound, summary.AveragePrice,
		summary.MinPrice, summary.MaxPrice, summary.Pages, summary.Partial, summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save log: %w", err)
	}
	return nil
}

// GetLogsByURL returns up to limit summaries for url, newest first
func (s *PostgresStore) GetLogsByURL(ctx context.Context, url string, limit int) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, url, ads_found, average_price, min_price, max_price, pages, partial, created_at
		FROM scrapper_logs
		WHERE url = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query logs: %w", err)
	}
	defer rows.Close()

	var logs []Summary
	for rows.Next() {
		var l Summary
		if err := rows.Scan(&l.ID, &l.RunID, &l.URL, &l.AdsFound, &l.AveragePrice,
			&l.MinPrice, &l.MaxPrice, &l.Pages, &l.Partial, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// MarkSeen records the ad and reports whether it was unknown before
func (s *PostgresStore) MarkSeen(ctx context.Context, ad SeenAd) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ads (key, ad_id, url, title, search_term, price)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			last_seen_at = NOW(),
			price = EXCLUDED.price,
			title = EXCLUDED.title
		RETURNING (xmax = 0)`,
		seenKey(ad), ad.ID, ad.URL, ad.Title, ad.SearchTerm, ad.Price,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("postgres: upsert ad: %w", err)
	}
	return inserted, nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

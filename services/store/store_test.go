package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	url := "https://www.olx.ua/uk/elektronika/"

	logs, err := s.GetLogsByURL(ctx, url, 1)
	assert.NoError(t, err)
	assert.Empty(t, logs)

	older := Summary{RunID: "r1", URL: url, AdsFound: 2, AveragePrice: 150, MinPrice: 100, MaxPrice: 200, Pages: 2,
		CreatedAt: time.Now().Add(-time.Hour)}
	newer := Summary{RunID: "r2", URL: url, AdsFound: 3, AveragePrice: 20, MinPrice: 10, MaxPrice: 30, Pages: 1, Partial: true}
	require.NoError(t, s.SaveLog(ctx, older))
	require.NoError(t, s.SaveLog(ctx, newer))
	require.NoError(t, s.SaveLog(ctx, Summary{RunID: "r3", URL: "https://other", AdsFound: 1}))

	logs, err = s.GetLogsByURL(ctx, url, 1)
	assert.NoError(t, err)
	if assert.Len(t, logs, 1) {
		assert.Equal(t, "r2", logs[0].RunID)
		assert.True(t, logs[0].Partial)
		assert.Equal(t, int64(20), logs[0].AveragePrice)
	}

	logs, err = s.GetLogsByURL(ctx, url, 10)
	assert.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Equal(t, "r1", logs[1].RunID)
	assert.Equal(t, 2, logs[1].Pages)
}

func TestSQLiteLogsOrderWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	url := "https://www.olx.ua/uk/transport/"

	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	times := map[string]time.Time{
		"r-500ms":   base.Add(500 * time.Millisecond),
		"r-whole":   base,
		"r-900ms":   base.Add(900 * time.Millisecond),
		"r-500001u": base.Add(500001 * time.Microsecond),
		"r-45ms":    base.Add(45 * time.Millisecond),
	}
	// saved out of order so the id tie-break cannot hide a bad sort
	for _, runID := range []string{"r-900ms", "r-whole", "r-500001u", "r-45ms", "r-500ms"} {
		require.NoError(t, s.SaveLog(ctx, Summary{RunID: runID, URL: url, AdsFound: 1, CreatedAt: times[runID]}))
	}

	logs, err := s.GetLogsByURL(ctx, url, 10)
	require.NoError(t, err)
	var order []string
	for _, l := range logs {
		order = append(order, l.RunID)
		assert.True(t, times[l.RunID].Equal(l.CreatedAt), l.RunID)
	}
	assert.Equal(t, []string{"r-900ms", "r-500001u", "r-500ms", "r-45ms", "r-whole"}, order)
}

func TestSQLiteMarkSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	ad := SeenAd{ID: "IDabc12", URL: "https://www.olx.ua/d/obyavlenie/x-IDabc12.html", Title: "PS5", Price: 15000}
	isNew, err := s.MarkSeen(ctx, ad)
	assert.NoError(t, err)
	assert.True(t, isNew)

	ad.Price = 14000
	isNew, err = s.MarkSeen(ctx, ad)
	assert.NoError(t, err)
	assert.False(t, isNew)

	// ads without an id are keyed by url
	noID := SeenAd{URL: "https://www.olx.ua/d/obyavlenie/y.html", Title: "Xbox"}
	isNew, err = s.MarkSeen(ctx, noID)
	assert.NoError(t, err)
	assert.True(t, isNew)
}

// This test requires a running postgres reachable through TEST_DATABASE_URL
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set, skipping test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres is not available, skipping test: %v", err)
	}
	defer s.Close()

	url := "https://example.test/listing/" + time.Now().Format("150405.000000")
	require.NoError(t, s.SaveLog(ctx, Summary{RunID: "pg", URL: url, AdsFound: 1, AveragePrice: 5, MinPrice: 5, MaxPrice: 5}))

	logs, err := s.GetLogsByURL(ctx, url, 1)
	assert.NoError(t, err)
	assert.Len(t, logs, 1)

	ad := SeenAd{URL: url + "/ad", Title: "t"}
	isNew, err := s.MarkSeen(ctx, ad)
	assert.NoError(t, err)
	assert.True(t, isNew)
	isNew, err = s.MarkSeen(ctx, ad)
	assert.NoError(t, err)
	assert.False(t, isNew)
}

package crawler

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"sjsage522/adwatcher/services/store"

	"github.com/stretchr/testify/require"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, &mockError{message: "cache miss"}
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}

// MockLogStore is an in-memory store.LogStore with injectable failures
type MockLogStore struct {
	mu        sync.Mutex
	logs      []store.Summary
	getErr    error
	saveErr   error
	saveFails int // number of SaveLog calls failing with saveErr before succeeding
	saveCalls int
}

func (m *MockLogStore) SaveLog(_ context.Context, summary store.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil && (m.saveFails < 0 || m.saveCalls <= m.saveFails) {
		return m.saveErr
	}
	m.logs = append(m.logs, summary)
	return nil
}

func (m *MockLogStore) GetLogsByURL(_ context.Context, url string, limit int) ([]store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []store.Summary
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].URL == url {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *MockLogStore) saved() []store.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Summary(nil), m.logs...)
}

// pagesFetcher serves canned bodies by url
type pagesFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *pagesFetcher) Fetch(_ context.Context, url string) (io.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &mockError{message: "not found: " + url}
	}
	return strings.NewReader(body), nil
}

func newTestPage(t *testing.T, number int, html string) *Page {
	t.Helper()
	page, err := NewPage("https://www.olx.ua/uk/list/", number, strings.NewReader(html))
	require.NoError(t, err)
	return page
}

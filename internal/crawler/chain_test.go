package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubExtractor struct {
	name    string
	records []RawAdRecord
	err     error
	calls   int
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(context.Context, *Page) ([]RawAdRecord, error) {
	s.calls++
	return s.records, s.err
}

func TestChainFirstNonEmptyWins(t *testing.T) {
	empty := &stubExtractor{name: "cards"}
	failing := &stubExtractor{name: "blob", err: errors.New("malformed")}
	links := &stubExtractor{name: "links", records: []RawAdRecord{{URL: "https://www.olx.ua/d/obyavlenie/a-IDa1.html", Title: "A"}}}
	never := &stubExtractor{name: "never", records: []RawAdRecord{{URL: "x"}}}

	chain := NewChain("www.olx.ua", nil, nil, empty, failing, links, never)
	records, strategy := chain.Extract(context.Background(), newTestPage(t, 1, "<html></html>"))

	assert.Equal(t, "links", strategy)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 0, never.calls)
}

func TestChainAllEmpty(t *testing.T) {
	chain := NewChain("www.olx.ua", nil, nil,
		&stubExtractor{name: "cards"},
		&stubExtractor{name: "blob", err: errors.New("malformed")},
	)
	records, strategy := chain.Extract(context.Background(), newTestPage(t, 1, "<html></html>"))
	assert.Empty(t, records)
	assert.Empty(t, strategy)
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cards := &stubExtractor{name: "cards", records: []RawAdRecord{{URL: "x"}}}
	records, _ := NewChain("www.olx.ua", nil, nil, cards).Extract(ctx, newTestPage(t, 1, "<html></html>"))
	assert.Empty(t, records)
	assert.Equal(t, 0, cards.calls)
}

package crawler

import (
	"context"

	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/services/store"
)

// DedupGate decides at run start whether new ads of a listing should be notified
type DedupGate struct {
	logs store.LogStore
	log  *logger.Logger
}

// NewDedupGate creates a gate reading prior summaries from logs
func NewDedupGate(logs store.LogStore, log *logger.Logger) *DedupGate {
	if log == nil {
		log = logger.Nop()
	}
	return &DedupGate{logs: logs, log: log}
}

// ShouldNotify reports whether listingURL already has a persisted summary.
// A lookup failure counts as no summary.
func (g *DedupGate) ShouldNotify(ctx context.Context, listingURL string) bool {
	logs, err := g.logs.GetLogsByURL(ctx, listingURL, 1)
	if err != nil {
		g.log.Warn().Err(err).Msg("Summary lookup failed, notifications disabled for this run")
		return false
	}
	return len(logs) > 0
}

package crawler

import (
	"context"

	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/services/metrics"
)

// Chain tries extraction strategies in order and keeps the first one that
// finds any records
type Chain struct {
	extractors []Extractor
	site       string
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewChain creates a chain over extractors
func NewChain(site string, m *metrics.Metrics, log *logger.Logger, extractors ...Extractor) *Chain {
	if log == nil {
		log = logger.Nop()
	}
	return &Chain{extractors: extractors, site: site, metrics: m, log: log}
}

// Extract returns the records of the first strategy yielding a non-empty
// result along with its name. Strategy errors are logged and the next strategy
// is tried. No records and an empty name mean every strategy came up empty.
func (c *Chain) Extract(ctx context.Context, page *Page) ([]RawAdRecord, string) {
	for _, ex := range c.extractors {
		if ctx.Err() != nil {
			return nil, ""
		}

		records, err := ex.Extract(ctx, page)
		if err != nil {
			c.log.Warn().
				Err(err).
				Str("strategy", ex.Name()).
				Int("page", page.Number).
				Msg("Extraction strategy failed")
			continue
		}
		if len(records) == 0 {
			c.log.Debug().
				Str("strategy", ex.Name()).
				Int("page", page.Number).
				Msg("Extraction strategy found nothing")
			continue
		}

		c.metrics.AdsExtracted(c.site, ex.Name(), len(records))
		return records, ex.Name()
	}
	return nil, ""
}

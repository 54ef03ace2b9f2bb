package ad

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/pkg/errors"
	"sjsage522/adwatcher/services/publisher"
	"sjsage522/adwatcher/services/store"
)

// Fields are the raw values an Ad is built from
type Fields struct {
	ID         string
	URL        string
	Title      string
	SearchTerm string
	Price      int64
	Notify     bool
}

// Ad is a normalized ad. Valid is false when the ad lacks a url or title
// or carries a negative price.
type Ad struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	SearchTerm string `json:"search_term,omitempty"`
	Price      int64  `json:"price"`
	Notify     bool   `json:"-"`
	Valid      bool   `json:"-"`
}

// New builds an Ad from raw fields and evaluates its validity
func New(f Fields) *Ad {
	a := &Ad{
		ID:         strings.TrimSpace(f.ID),
		URL:        strings.TrimSpace(f.URL),
		Title:      strings.Join(strings.Fields(f.Title), " "),
		SearchTerm: strings.TrimSpace(f.SearchTerm),
		Price:      f.Price,
		Notify:     f.Notify,
	}
	if a.Price < 0 {
		a.Price = 0
		return a
	}
	a.Valid = a.URL != "" && a.Title != ""
	return a
}

// Notifier dispatches a notification about a new ad
type Notifier interface {
	Notify(ctx context.Context, a *Ad) error
}

// Processor records valid ads and notifies about the ones never seen before
// when the run asks for notifications.
type Processor struct {
	seen     store.AdStore
	notifier Notifier
	log      *logger.Logger
}

// NewProcessor creates a processor. A nil notifier disables notifications.
func NewProcessor(seen store.AdStore, notifier Notifier, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{seen: seen, notifier: notifier, log: log}
}

// Process handles one valid ad and reports whether a notification was sent.
// Invalid ads are ignored.
func (p *Processor) Process(ctx context.Context, a *Ad) (bool, error) {
	if !a.Valid {
		return false, nil
	}

	isNew, err := p.seen.MarkSeen(ctx, store.SeenAd{
		ID:         a.ID,
		URL:        a.URL,
		Title:      a.Title,
		SearchTerm: a.SearchTerm,
		Price:      a.Price,
	})
	if err != nil {
		return false, fmt.Errorf("mark ad seen: %w", err)
	}
	if !isNew || !a.Notify || p.notifier == nil {
		return false, nil
	}

	if err := p.notifier.Notify(ctx, a); err != nil {
		return false, fmt.Errorf("notify ad %s: %w", a.URL, err)
	}
	p.log.Info().
		Str("ad_id", a.ID).
		Str("ad_url", a.URL).
		Int64("price", a.Price).
		Msg("New ad notified")
	return true, nil
}

// PublisherNotifier publishes new ads as JSON on a stream publisher
type PublisherNotifier struct {
	pub publisher.Publisher
	key string
}

// NewPublisherNotifier creates a notifier writing under key
func NewPublisherNotifier(pub publisher.Publisher, key string) *PublisherNotifier {
	return &PublisherNotifier{pub: pub, key: key}
}

// Notify publishes a. Failures are publisher CrawlerErrors named after the ad's host.
func (n *PublisherNotifier) Notify(_ context.Context, a *Ad) error {
	data, err := json.Marshal(a)
	if err != nil {
		return errors.NewPublisher(helpers.Host(a.URL), "encode ad", err)
	}
	if err := n.pub.Publish(n.key, data); err != nil {
		return errors.NewPublisher(helpers.Host(a.URL), "publish ad "+a.URL, err)
	}
	return nil
}

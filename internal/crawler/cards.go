package crawler

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	adIDPattern      = regexp.MustCompile(`ID([A-Za-z0-9]+)\.html`)
	numericIDPattern = regexp.MustCompile(`(\d{6,})`)
)

// adIDFromURL derives the external id embedded in an ad url, if any
func adIDFromURL(rawURL string) string {
	path := strings.SplitN(rawURL, "?", 2)[0]
	if m := adIDPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	if m := numericIDPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return ""
}

// firstText returns the trimmed text of the first selector that matches non-empty text
func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// CardExtractor reads ads from the listing cards rendered in the page markup
type CardExtractor struct {
	site *Site
}

// NewCardExtractor creates a card extractor for site
func NewCardExtractor(site *Site) *CardExtractor {
	return &CardExtractor{site: site}
}

// Name implements Extractor
func (e *CardExtractor) Name() string { return "cards" }

// Extract implements Extractor. Cards without a link are skipped, cards
// without a title are kept and later fail validation.
func (e *CardExtractor) Extract(_ context.Context, page *Page) ([]RawAdRecord, error) {
	var records []RawAdRecord
	seen := make(map[string]struct{})

	page.Doc.Find(e.site.CardSelector).Each(func(_ int, card *goquery.Selection) {
		link := card.Find(e.site.CardLinkSelector).First()
		href, _ := link.Attr("href")
		adURL := e.site.Resolve(href)
		if adURL == "" {
			return
		}
		if _, dup := seen[adURL]; dup {
			return
		}
		seen[adURL] = struct{}{}

		title := firstText(card, e.site.CardTitleSelectors)
		if title == "" {
			title = strings.TrimSpace(link.AttrOr("title", ""))
		}

		var price interface{}
		if text := firstText(card, e.site.CardPriceSelectors); text != "" {
			price = text
		}

		records = append(records, RawAdRecord{
			ExternalID: e.cardID(card, adURL),
			URL:        adURL,
			Title:      title,
			Price:      price,
		})
	})

	return records, nil
}

func (e *CardExtractor) cardID(card *goquery.Selection, adURL string) string {
	for _, attr := range e.site.CardIDAttrs {
		if id := strings.TrimSpace(card.AttrOr(attr, "")); id != "" {
			return id
		}
	}
	return adIDFromURL(adURL)
}

package crawler

import (
	"strconv"
	"strings"

	"sjsage522/adwatcher/helpers"

	"github.com/PuerkitoBio/goquery"
)

// Reason tells which signal a pagination decision was based on
type Reason string

const (
	ReasonPageCap    Reason = "page_cap"
	ReasonTotalPages Reason = "total_pages"
	ReasonNextLink   Reason = "next_link"
	ReasonFailOpen   Reason = "fail_open"
	ReasonNoSignal   Reason = "no_signal"
)

// Decision is the outcome of one pagination check
type Decision struct {
	Continue bool
	Reason   Reason
}

// Paginator decides whether another listing page should be fetched
type Paginator struct {
	site          *Site
	maxPages      int
	maxBlindPages int
}

// NewPaginator creates a paginator. maxPages is the hard page ceiling and is
// lowered to the site's own cap when that is smaller.
func NewPaginator(site *Site, maxPages, maxBlindPages int) *Paginator {
	if maxPages < 1 {
		maxPages = 1
	}
	if maxBlindPages < 0 {
		maxBlindPages = 0
	}
	return &Paginator{site: site, maxPages: site.PageCap(maxPages), maxBlindPages: maxBlindPages}
}

// Next decides on continuation after page state.Page and records the result
// in state.Continue
func (p *Paginator) Next(page *Page, state *CrawlState) Decision {
	d := p.decide(page, state)
	state.Continue = d.Continue
	return d
}

func (p *Paginator) decide(page *Page, state *CrawlState) Decision {
	cur := state.Page
	if cur >= p.maxPages {
		return Decision{Continue: false, Reason: ReasonPageCap}
	}

	if total, ok := p.totalPages(page); ok {
		state.BlindPages = 0
		return Decision{Continue: cur < total, Reason: ReasonTotalPages}
	}

	if p.hasNext(page.Doc, cur) {
		state.BlindPages = 0
		return Decision{Continue: true, Reason: ReasonNextLink}
	}

	if state.BlindPages < p.maxBlindPages {
		state.BlindPages++
		return Decision{Continue: true, Reason: ReasonFailOpen}
	}
	return Decision{Continue: false, Reason: ReasonNoSignal}
}

// totalPages reads an explicit positive page count from the embedded data or the markup
func (p *Paginator) totalPages(page *Page) (int, bool) {
	if data, err := page.EmbeddedData(p.site.BlobSelector); err == nil && data != nil {
		for _, path := range p.site.TotalPagesPaths {
			v, ok := lookupPath(data, path)
			if !ok {
				continue
			}
			if n, ok := positiveInt(v); ok {
				return n, true
			}
		}
	}

	if p.site.TotalPagesSelector != "" {
		sel := page.Doc.Find(p.site.TotalPagesSelector).First()
		if raw, ok := sel.Attr("data-total-pages"); ok {
			if n, ok := positiveInt(raw); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func (p *Paginator) hasNext(doc *goquery.Document, cur int) bool {
	for _, sel := range p.site.NextSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	want := strconv.Itoa(cur + 1)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := p.site.Resolve(a.AttrOr("href", ""))
		if href != "" && helpers.QueryParam(href, p.site.PageParam) == want {
			found = true
			return false
		}
		return true
	})
	return found
}

// positiveInt accepts whole positive numbers only
func positiveInt(v interface{}) (int, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		s = strconv.Itoa(int(t))
	default:
		s = scalarString(v)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

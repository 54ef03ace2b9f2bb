package crawler

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"sjsage522/adwatcher/helpers"
	"sjsage522/adwatcher/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Site holds the markup quirks of one marketplace front-end.
// Selector lists are tried in order, the first non-empty match wins.
type Site struct {
	Host      string `yaml:"host"`
	BaseURL   string `yaml:"base_url"`
	PageParam string `yaml:"page_param"`
	MaxPages  int    `yaml:"max_pages"`

	// Card DOM strategy
	CardSelector       string   `yaml:"card_selector"`
	CardLinkSelector   string   `yaml:"card_link_selector"`
	CardTitleSelectors []string `yaml:"card_title_selectors"`
	CardPriceSelectors []string `yaml:"card_price_selectors"`
	CardIDAttrs        []string `yaml:"card_id_attrs"`

	// Embedded data blob strategy
	BlobSelector string   `yaml:"blob_selector"`
	BlobAdPaths  []string `yaml:"blob_ad_paths"`
	BlobMaxDepth int      `yaml:"blob_max_depth"`

	// Link collection + detail fetch strategy
	AdPathPattern        string   `yaml:"ad_path_pattern"`
	MaxDetailLinks       int      `yaml:"max_detail_links"`
	DetailTitleSelectors []string `yaml:"detail_title_selectors"`
	DetailPriceSelectors []string `yaml:"detail_price_selectors"`
	DetailIDSelectors    []string `yaml:"detail_id_selectors"`

	// Pagination
	TotalPagesPaths    []string `yaml:"total_pages_paths"`
	TotalPagesSelector string   `yaml:"total_pages_selector"`
	NextSelectors      []string `yaml:"next_selectors"`

	adPath *regexp.Regexp
}

// DefaultSite returns the profile of the olx.ua listing templates
func DefaultSite() *Site {
	s := &Site{
		Host:      "www.olx.ua",
		BaseURL:   "https://www.olx.ua",
		PageParam: "page",

		CardSelector:     `div[data-cy="l-card"], div[data-testid="l-card"]`,
		CardLinkSelector: `a[href]`,
		CardTitleSelectors: []string{
			`[data-cy="ad-card-title"] h4`,
			`[data-cy="ad-card-title"] h6`,
			`h4`,
			`h6`,
			`h3`,
		},
		CardPriceSelectors: []string{`[data-testid="ad-price"]`},
		CardIDAttrs:        []string{"id", "data-id"},

		BlobSelector: `script#__NEXT_DATA__`,
		BlobAdPaths: []string{
			"props.pageProps.ads",
			"props.pageProps.adList.ads",
			"props.pageProps.searchResult.ads",
			"props.pageProps.items",
			"props.pageProps.initialData.ads",
		},
		BlobMaxDepth: 12,

		AdPathPattern:  `/d/(?:[a-z]{2}/)?obyavlenie/|/obyavlenie/`,
		MaxDetailLinks: 50,
		DetailTitleSelectors: []string{
			`[data-cy="ad_title"] h4`,
			`[data-testid="ad_title"]`,
			`h1`,
			`h4`,
		},
		DetailPriceSelectors: []string{
			`[data-testid="ad-price-container"] h3`,
			`[data-testid="ad-price"]`,
		},
		DetailIDSelectors: []string{
			`[data-cy="ad-footer-bar-section"] span`,
			`[data-testid="ad-footer-bar-section"] span`,
		},

		TotalPagesPaths: []string{
			"props.pageProps.listingProps.pagination.totalPages",
			"props.pageProps.pagination.totalPages",
			"props.pageProps.adList.pagination.totalPages",
		},
		TotalPagesSelector: `[data-total-pages]`,
		NextSelectors: []string{
			`link[rel="next"]`,
			`a[rel="next"]`,
			`a[data-testid="pagination-forward"]`,
			`a[data-cy="pagination-forward"]`,
		},
	}
	if err := s.prepare(); err != nil {
		panic(err)
	}
	return s
}

// fillDefaults copies every unset field from def
func (s *Site) fillDefaults(def *Site) {
	setString := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	setList := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = append([]string(nil), src...)
		}
	}
	setInt := func(dst *int, src int) {
		if *dst == 0 {
			*dst = src
		}
	}

	if s.BaseURL == "" && s.Host != "" {
		s.BaseURL = "https://" + s.Host
	}
	setString(&s.PageParam, def.PageParam)
	setString(&s.CardSelector, def.CardSelector)
	setString(&s.CardLinkSelector, def.CardLinkSelector)
	setList(&s.CardTitleSelectors, def.CardTitleSelectors)
	setList(&s.CardPriceSelectors, def.CardPriceSelectors)
	setList(&s.CardIDAttrs, def.CardIDAttrs)
	setString(&s.BlobSelector, def.BlobSelector)
	setList(&s.BlobAdPaths, def.BlobAdPaths)
	setInt(&s.BlobMaxDepth, def.BlobMaxDepth)
	setString(&s.AdPathPattern, def.AdPathPattern)
	setInt(&s.MaxDetailLinks, def.MaxDetailLinks)
	setList(&s.DetailTitleSelectors, def.DetailTitleSelectors)
	setList(&s.DetailPriceSelectors, def.DetailPriceSelectors)
	setList(&s.DetailIDSelectors, def.DetailIDSelectors)
	setList(&s.TotalPagesPaths, def.TotalPagesPaths)
	setString(&s.TotalPagesSelector, def.TotalPagesSelector)
	setList(&s.NextSelectors, def.NextSelectors)
}

func (s *Site) prepare() error {
	if s.Host == "" {
		return fmt.Errorf("site without host")
	}
	re, err := regexp.Compile(s.AdPathPattern)
	if err != nil {
		return fmt.Errorf("site %s: invalid ad_path_pattern: %w", s.Host, err)
	}
	s.adPath = re
	return nil
}

// IsAdURL reports whether rawURL points to an ad detail page
func (s *Site) IsAdURL(rawURL string) bool {
	return rawURL != "" && s.adPath.MatchString(rawURL)
}

// Resolve absolutizes href against the site's base origin
func (s *Site) Resolve(href string) string {
	return helpers.ResolveURL(s.BaseURL, href)
}

// PageCap returns the effective page cap given the global cap
func (s *Site) PageCap(global int) int {
	if s.MaxPages > 0 && s.MaxPages < global {
		return s.MaxPages
	}
	return global
}

// Sites resolves the profile for a listing URL by host
type Sites struct {
	byHost   map[string]*Site
	fallback *Site
}

// NewSites registers the given profiles on top of the default profile
func NewSites(sites ...*Site) (*Sites, error) {
	def := DefaultSite()
	registry := &Sites{
		byHost:   map[string]*Site{def.Host: def},
		fallback: def,
	}
	for _, s := range sites {
		s.fillDefaults(def)
		if err := s.prepare(); err != nil {
			return nil, err
		}
		registry.byHost[strings.ToLower(s.Host)] = s
	}
	return registry, nil
}

// LoadSites reads site profiles from a YAML file of the form
//
//	sites:
//	  - host: www.olx.pl
//	    page_param: page
func LoadSites(path string) (*Sites, error) {
	if path == "" {
		return NewSites()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfiguration("read sites file", err)
	}

	var file struct {
		Sites []*Site `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewConfiguration("parse sites file", err)
	}
	return NewSites(file.Sites...)
}

// Lookup returns the profile for listingURL's host. An unregistered host gets
// a copy of the default profile rooted at the listing's own origin.
func (r *Sites) Lookup(listingURL string) *Site {
	host := strings.ToLower(helpers.Host(listingURL))
	if s, ok := r.byHost[host]; ok {
		return s
	}
	origin := helpers.Origin(listingURL)
	if host == "" || origin == "" {
		return r.fallback
	}
	s := *r.fallback
	s.Host = host
	s.BaseURL = origin
	return &s
}

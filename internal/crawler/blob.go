package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"sjsage522/adwatcher/pkg/errors"
)

var (
	blobIDKeys    = []string{"id", "listId", "ad_id", "adId"}
	blobTitleKeys = []string{"title", "subject", "params.title"}
	blobURLKeys   = []string{"url", "permalink", "slug"}
	blobPriceKeys = []string{"price.value", "priceValue", "price.regularPrice.value", "price.label", "price.displayValue", "price"}
)

// lookupPath walks a dot separated path through decoded JSON objects
func lookupPath(data interface{}, path string) (interface{}, bool) {
	cur := data
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstValue returns the first non-null value among paths
func firstValue(obj map[string]interface{}, paths []string) interface{} {
	for _, p := range paths {
		if v, ok := lookupPath(obj, p); ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64, bool:
		return fmt.Sprint(s)
	}
	return ""
}

// BlobExtractor reads ads from the JSON state blob embedded by the front-end
type BlobExtractor struct {
	site *Site
}

// NewBlobExtractor creates a blob extractor for site
func NewBlobExtractor(site *Site) *BlobExtractor {
	return &BlobExtractor{site: site}
}

// Name implements Extractor
func (e *BlobExtractor) Name() string { return "blob" }

// Extract implements Extractor. A missing blob yields no records, a blob that
// is not valid JSON yields an extraction error.
func (e *BlobExtractor) Extract(_ context.Context, page *Page) ([]RawAdRecord, error) {
	data, err := page.EmbeddedData(e.site.BlobSelector)
	if err != nil {
		return nil, errors.NewExtraction(e.Name(), "malformed embedded data", err)
	}
	if data == nil {
		return nil, nil
	}

	items, found := e.knownAdList(data)
	if !found {
		items = e.walk(data, 0, nil)
	}

	var records []RawAdRecord
	seen := make(map[string]struct{})
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rec := e.record(obj)
		if rec.URL != "" {
			if _, dup := seen[rec.URL]; dup {
				continue
			}
			seen[rec.URL] = struct{}{}
		}
		records = append(records, rec)
	}
	return records, nil
}

// knownAdList returns the first configured path holding an array
func (e *BlobExtractor) knownAdList(data interface{}) ([]interface{}, bool) {
	for _, path := range e.site.BlobAdPaths {
		if v, ok := lookupPath(data, path); ok {
			if list, isList := v.([]interface{}); isList {
				return list, true
			}
		}
	}
	return nil, false
}

// walk collects objects whose url points to an ad page, up to the depth cap
func (e *BlobExtractor) walk(node interface{}, depth int, acc []interface{}) []interface{} {
	if depth > e.site.BlobMaxDepth {
		return acc
	}

	switch n := node.(type) {
	case map[string]interface{}:
		if e.site.IsAdURL(scalarString(firstValue(n, blobURLKeys))) {
			return append(acc, n)
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			acc = e.walk(n[k], depth+1, acc)
		}
	case []interface{}:
		for _, child := range n {
			acc = e.walk(child, depth+1, acc)
		}
	}
	return acc
}

func (e *BlobExtractor) record(obj map[string]interface{}) RawAdRecord {
	adURL := e.site.Resolve(scalarString(firstValue(obj, blobURLKeys)))
	id := scalarString(firstValue(obj, blobIDKeys))
	if id == "" {
		id = adIDFromURL(adURL)
	}

	return RawAdRecord{
		ExternalID: id,
		URL:        adURL,
		Title:      scalarString(firstValue(obj, blobTitleKeys)),
		Price:      firstValue(obj, blobPriceKeys),
	}
}

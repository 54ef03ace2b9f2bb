package crawler

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var digitRuns = regexp.MustCompile(`[0-9]+`)

// NormalizePrice maps a price of unknown shape to a non-negative integer.
//
// Finite non-negative numbers are truncated. Text keeps only its digit runs,
// concatenated, so "400 000 грн." is 400000 and labels without digits such as
// "Договорная" are 0. Anything else, including values that overflow int64, is 0.
func NormalizePrice(v interface{}) int64 {
	switch p := v.(type) {
	case nil:
		return 0
	case int:
		return nonNegative(int64(p))
	case int64:
		return nonNegative(p)
	case float32:
		return normalizeFloat(float64(p))
	case float64:
		return normalizeFloat(p)
	case json.Number:
		if n, err := p.Int64(); err == nil {
			return nonNegative(n)
		}
		if f, err := p.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return normalizePriceText(p.String())
	case string:
		return normalizePriceText(p)
	}
	return 0
}

func normalizeFloat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

func normalizePriceText(s string) int64 {
	digits := strings.Join(digitRuns.FindAllString(s, -1), "")
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

package crawler

import (
	"encoding/json"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  int64
	}{
		{"thousands separated text", "400 000 грн.", 400000},
		{"negotiable label", "Договорная", 0},
		{"absent", nil, 0},
		{"int", 7500, 7500},
		{"float", 7500.0, 7500},
		{"fractional float truncated", 99.9, 99},
		{"json integer", json.Number("15000"), 15000},
		{"json float", json.Number("1500.75"), 1500},
		{"nbsp separated", "12 500 $", 12500},
		{"digits concatenated across decimal point", "7 500.50 грн", 750050},
		{"empty text", "", 0},
		{"negative number", -10, 0},
		{"NaN", math.NaN(), 0},
		{"infinity", math.Inf(1), 0},
		{"overflowing text", "99999999999999999999999", 0},
		{"unsupported type", []string{"100"}, 0},
		{"bool", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePrice(tt.input))
		})
	}
}

func TestNormalizePriceIdempotent(t *testing.T) {
	inputs := []interface{}{"400 000 грн.", "Договорная", nil, 7500, 12.5, json.Number("42"), "1 2 3"}
	for _, in := range inputs {
		once := NormalizePrice(in)
		assert.Equal(t, once, NormalizePrice(strconv.FormatInt(once, 10)), "input %v", in)
	}
}

package ingest

import (
	"math"
	"testing"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$5,000,000", 5000000, true},
		{"USD 1,200.50", 1200.5, true},
		{"€1.000.000", 1000000, true},
		{"1.234.567,89 EUR", 1234567.89, true},
		{"$5M", 5000000, true},
		{"$250K", 250000, true},
		{"2.3 million dollars", 2300000, true},
		{"$1.2B", 1200000000, true},
		{"approx. 4 bn", 4000000000, true},
		{"$7.5MM", 7500000, true},
		{"12 months of work", 12, true},
		{"5,5M", 5500000, true},
		{"$1M - $2M", 1000000, true},
		{"FY2025 budget: $3M", 3000000, true},
		{"Phase 2 funding of 1.5 million", 1500000, true},
		{"Lot 4, 250,000 EUR", 250000, true},
		{"S/ 120,000 for 2 bridges", 120000, true},
		{"TBD", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCurrency(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-6)
			}
		})
	}
}

func TestParseCurrencyValue(t *testing.T) {
	got, ok := ParseCurrencyValue(models.Number(42.5))
	assert.True(t, ok)
	assert.Equal(t, 42.5, got)

	got, ok = ParseCurrencyValue(models.String("$3K"))
	assert.True(t, ok)
	assert.Equal(t, 3000.0, got)

	_, ok = ParseCurrencyValue(models.Number(math.Inf(1)))
	assert.False(t, ok)

	_, ok = ParseCurrencyValue(models.Bool(true))
	assert.False(t, ok)
}

func TestParsePercentage(t *testing.T) {
	tests := []struct {
		name   string
		in     models.EnhancedValue
		want   float64
		wantOK bool
	}{
		{"above range clamps to 100", models.Number(150), 100, true},
		{"below range clamps to 0", models.Number(-5), 0, true},
		{"percent string", models.String("37%"), 37, true},
		{"decimal string", models.String(" 62.5 "), 62.5, true},
		{"absent", models.EnhancedValue{}, 0, false},
		{"not a number", models.String("high"), 0, false},
		{"NaN", models.Number(math.NaN()), 0, false},
		{"bool", models.Bool(true), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePercentage(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRiskLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   RiskLevel
		wantOK bool
	}{
		{"Medium risk", RiskMedium, true},
		{"MODERATE", RiskMedium, true},
		{"High", RiskHigh, true},
		{"low", RiskLow, true},
		{"low to high", RiskLow, true},
		{"unknown", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeRiskLevel(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRiskLevelScore(t *testing.T) {
	tests := []struct {
		level  RiskLevel
		want   int
		wantOK bool
	}{
		{RiskHigh, 80, true},
		{RiskMedium, 55, true},
		{RiskLow, 20, true},
		{RiskLevel("extreme"), 0, false},
	}

	for _, tt := range tests {
		got, ok := tt.level.Score()
		assert.Equal(t, tt.wantOK, ok, tt.level)
		assert.Equal(t, tt.want, got, tt.level)
	}
}

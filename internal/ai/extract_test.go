package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	json, text       string
	jsonErr, textErr error
	calls            []bool
}

func (s *scriptedLLM) GenerateCompletion(_ context.Context, _ string, jsonMode bool) (string, error) {
	s.calls = append(s.calls, jsonMode)
	if jsonMode {
		return s.json, s.jsonErr
	}
	return s.text, s.textErr
}

type stubPages struct {
	text string
	err  error
}

func (p stubPages) ReadText(context.Context, string, int64) (string, error) { return p.text, p.err }

func TestParseEnhancement(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantKey  string
		warnings []string
		wantErr  bool
	}{
		{
			name:     "envelope",
			in:       `{"enhanced_data":{"project_value":"$2.5M"},"warnings":["check budget"]}`,
			wantKey:  "project_value",
			warnings: []string{"check budget"},
		},
		{
			name:    "flat object",
			in:      `{"risk_level":"low","warnings":[]}`,
			wantKey: "risk_level",
		},
		{
			name:    "fenced with chatter",
			in:      "Sure!\n```json\n{\"deadline\": \"2025-06-01\"}\n```",
			wantKey: "deadline",
		},
		{name: "not json", in: "no idea", wantErr: true},
		{name: "empty object", in: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enh, err := parseEnhancement(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, enh.EnhancedData, tt.wantKey)
			if tt.warnings != nil {
				assert.Equal(t, tt.warnings, enh.Warnings)
			}
		})
	}
}

func TestExtractFirstJSONObject(t *testing.T) {
	got, ok := extractFirstJSONObject(`prefix {"a": "}", "b": {"c": 1}} trailing {"x":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "}", "b": {"c": 1}}`, got)

	_, ok = extractFirstJSONObject(`{"open": true`)
	assert.False(t, ok)
}

func TestEnhancer_FallsBackToTextMode(t *testing.T) {
	llm := &scriptedLLM{
		json: "not json at all",
		text: `Here you go: {"enhanced_data":{"client_name":"City of Austin"}}`,
	}
	e := NewEnhancer(llm, stubPages{text: "Bid page"}, nil)

	enh, err := e.EnhanceOpportunity(context.Background(), "https://austin.example/bid/1", map[string]any{"title": "Bridge"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, llm.calls)
	assert.Equal(t, models.String("City of Austin"), enh.EnhancedData["client_name"])
}

func TestEnhancer_PageErrorBecomesWarning(t *testing.T) {
	llm := &scriptedLLM{json: `{"enhanced_data":{"status":"open"},"warnings":["model warning"]}`}
	e := NewEnhancer(llm, stubPages{err: errors.New("timeout")}, nil)

	enh, err := e.EnhanceOpportunity(context.Background(), "https://x.example/1", nil)
	require.NoError(t, err)
	require.Len(t, enh.Warnings, 2)
	assert.Contains(t, enh.Warnings[0], "Detail page could not be read")
	assert.Equal(t, "model warning", enh.Warnings[1])
	assert.Equal(t, []bool{true}, llm.calls)
}

func TestEnhancer_ModelUnavailable(t *testing.T) {
	down := errors.New("connection refused")
	llm := &scriptedLLM{jsonErr: down, textErr: down}
	e := NewEnhancer(llm, nil, nil)

	_, err := e.EnhanceOpportunity(context.Background(), "", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, down)
}

func TestBuildEnhancePrompt_StableFieldOrder(t *testing.T) {
	fields := map[string]any{"title": "Road", "budget": "$1M", "agency": "DOT"}
	a, err := buildEnhancePrompt("https://u", fields, "")
	require.NoError(t, err)
	b, err := buildEnhancePrompt("https://u", fields, "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Less(t, strings.Index(a, `"agency"`), strings.Index(a, `"title"`))
}


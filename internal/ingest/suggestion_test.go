package ingest

import (
	"testing"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSuggestion(t *testing.T) {
	data := models.EnhancedData{
		"opportunity_name": models.String(""),
		"project_name":     models.Object(map[string]models.EnhancedValue{"suggested_value": models.String("Runway Expansion")}),
		"title":            models.String("Generic title"),
		"empty_wrapper":    models.Object(map[string]models.EnhancedValue{"value": models.String("")}),
		"null_value":       {},
		"unknown_shape":    models.Object(map[string]models.EnhancedValue{"score": models.Number(3)}),
		"project_value":    models.Number(0),
	}

	tests := []struct {
		name   string
		data   models.EnhancedData
		keys   []string
		want   models.EnhancedValue
		wantOK bool
	}{
		{
			name:   "skips empty string and unwraps the next key",
			data:   data,
			keys:   []string{"opportunity_name", "project_name", "title"},
			want:   models.String("Runway Expansion"),
			wantOK: true,
		},
		{
			name:   "key order decides",
			data:   data,
			keys:   []string{"title", "project_name"},
			want:   models.String("Generic title"),
			wantOK: true,
		},
		{
			name:   "wrapper holding empty string counts as absent",
			data:   data,
			keys:   []string{"empty_wrapper", "null_value", "unknown_shape", "title"},
			want:   models.String("Generic title"),
			wantOK: true,
		},
		{
			name:   "zero is a usable number",
			data:   data,
			keys:   []string{"project_value"},
			want:   models.Number(0),
			wantOK: true,
		},
		{
			name:   "missing keys",
			data:   data,
			keys:   []string{"nope"},
			wantOK: false,
		},
		{
			name:   "nil bag",
			data:   nil,
			keys:   []string{"title"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveSuggestion(tt.data, tt.keys...)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFirstText_LeftToRight(t *testing.T) {
	calls := 0
	counting := func(v string) textSource {
		return func() (string, bool) {
			calls++
			return v, v != ""
		}
	}

	got, ok := firstText(counting(""), counting("  "), counting(" second "), counting("third"))
	require.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, 3, calls, "sources after the first hit must not run")

	_, ok = firstText(scraped(""), suggested(nil, "title"))
	assert.False(t, ok)
}

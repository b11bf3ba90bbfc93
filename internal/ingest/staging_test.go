package ingest

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTempRecord(t *testing.T) {
	prob := 70.0
	risk := RiskMedium
	deadline := "2025-06-01T00:00:00.000Z"
	preview := ImportedOpportunityPreview{
		ProjectName:      "  <b>Transit Hub</b> &amp; Plaza ",
		ClientName:       "Metro",
		Location:         "   ",
		ProjectValueText: "$2M",
		Probability:      &prob,
		RiskLevel:        &risk,
		Deadline:         &deadline,
		Documents: []ScrapedDocument{
			{URL: "https://metro.example/rfp.pdf"},
			{Title: "No link"},
		},
	}
	payload := BuildCreatePayload(preview, "https://metro.example")
	importedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	in, err := BuildTempRecord(TempRecordParams{
		Preview:    preview,
		Payload:    payload,
		Summary:    strings.Repeat("s", 5000),
		Tags:       []string{"Transit", "transit", " ", "Civic"},
		Warnings:   []string{"AI enhancement unavailable. Using scraped details only."},
		Enhanced:   models.EnhancedData{"strategic_fit": models.String("81.6")},
		SourceURL:  "https://metro.example",
		ImportedAt: importedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, "Transit Hub & Plaza", in.ProjectTitle)
	assert.Equal(t, "Metro", in.ClientName)
	assert.Nil(t, in.Location)
	require.NotNil(t, in.BudgetText)
	assert.Equal(t, "$2M", *in.BudgetText)
	assert.Equal(t, &deadline, in.Deadline)
	assert.Equal(t, []string{"https://metro.example/rfp.pdf"}, in.Documents)
	assert.Equal(t, []string{"Transit", "Civic"}, in.Tags)
	require.NotNil(t, in.AISummary)
	assert.Len(t, *in.AISummary, maxSummaryField)
	require.NotNil(t, in.MatchScore)
	assert.Equal(t, 70, *in.MatchScore)
	require.NotNil(t, in.RiskScore)
	assert.Equal(t, 55, *in.RiskScore)
	require.NotNil(t, in.StrategicFitScore)
	assert.Equal(t, 82, *in.StrategicFitScore)
	assert.Nil(t, in.ReviewerNotes)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(in.AIMetadata, &meta))
	assert.Equal(t, "https://metro.example", meta["source_url"])
	assert.Equal(t, "2025-03-01T12:00:00.000Z", meta["imported_at"])
	assert.Len(t, meta["warnings"], 1)
	assert.Contains(t, meta, "preview")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(in.RawPayload, &raw))
	assert.Equal(t, "https://metro.example", raw["source_url"])
	assert.Equal(t, float64(70), raw["match_score"])
}

func TestBuildTempRecord_EmptyOptionalFields(t *testing.T) {
	in, err := BuildTempRecord(TempRecordParams{
		Preview: ImportedOpportunityPreview{ProjectName: "<p></p>", ClientName: strings.Repeat("c", 300)},
	})
	require.NoError(t, err)

	assert.Equal(t, "Imported Opportunity", in.ProjectTitle)
	assert.Len(t, in.ClientName, maxShortField)
	assert.Nil(t, in.Documents)
	assert.Nil(t, in.Tags)
	assert.Nil(t, in.AISummary)
	assert.Nil(t, in.MatchScore)
	assert.Nil(t, in.RiskScore)
	assert.Nil(t, in.StrategicFitScore)
}

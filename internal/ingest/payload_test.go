package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDescription(t *testing.T) {
	p := ImportedOpportunityPreview{
		ProjectName:  "Water Main Replacement",
		ClientName:   "Springfield Utilities",
		Description:  "Replace 4 miles of water main in Springfield.",
		Status:       "Open",
		Location:     "Springfield",
		MarketSector: "Water",
		Contacts: Contacts{
			Emails: []string{"bids@springfield.example"},
			Phones: []string{"555-0100"},
		},
		Documents: []ScrapedDocument{
			{URL: "https://springfield.example/spec.pdf", Title: "Spec"},
			{Title: "Addendum 1"},
			{},
		},
	}

	got := ComposeDescription(p, "https://springfield.example/bids")

	want := "Replace 4 miles of water main in Springfield.\n\n" +
		"**Status:** Open\n\n" +
		"**Related Documents:**\n- https://springfield.example/spec.pdf\n- Addendum 1\n\n" +
		"**Contact Information:**\n- Email: bids@springfield.example\n- Phone: 555-0100\n\n" +
		"**Source:** https://springfield.example/bids"
	// Location and sector already appear in the description.
	assert.Equal(t, want, got)
}

func TestComposeDescription_SummaryAndSourceOnly(t *testing.T) {
	got := ComposeDescription(ImportedOpportunityPreview{Summary: "Short summary"}, "https://a.example")
	assert.Equal(t, "Short summary\n\n**Source:** https://a.example", got)

	got = ComposeDescription(ImportedOpportunityPreview{}, "https://a.example")
	assert.Equal(t, "**Source:** https://a.example", got)
}

func TestBuildCreatePayload(t *testing.T) {
	prob := 62.5
	value := 1200.0
	risk := RiskLow
	deadline := "2025-06-01T00:00:00.000Z"
	p := ImportedOpportunityPreview{
		ProjectName:         "Roof Repair",
		ClientName:          "County",
		Summary:             "Roof work",
		ProjectValueNumeric: &value,
		ProjectValueText:    "$1,200",
		Probability:         &prob,
		RiskLevel:           &risk,
		Deadline:            &deadline,
	}

	payload := BuildCreatePayload(p, "https://county.example")

	assert.Equal(t, "Roof Repair", payload.Name)
	assert.Equal(t, "County", payload.ClientName)
	assert.Equal(t, "Roof work\n\n**Source:** https://county.example", payload.Description)
	require.NotNil(t, payload.MatchScore)
	assert.Equal(t, 63, *payload.MatchScore)
	assert.Equal(t, &value, payload.Value)
	assert.Equal(t, "$1,200", payload.ValueText)
	assert.Equal(t, &risk, payload.RiskLevel)
	assert.Equal(t, &deadline, payload.Deadline)
	assert.Equal(t, "https://county.example", payload.SourceURL)

	p.Probability = nil
	assert.Nil(t, BuildCreatePayload(p, "").MatchScore)
}

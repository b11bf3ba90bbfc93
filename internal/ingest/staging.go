package ingest

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxShortField   = 255
	maxSummaryField = 4000
)

var strictPolicy = bluemonday.StrictPolicy()

// TempRecordParams is everything that goes into one staging create call.
type TempRecordParams struct {
	Preview    ImportedOpportunityPreview
	Payload    CreatePayload
	Summary    string
	Tags       []string
	Warnings   []string
	Enhanced   models.EnhancedData
	SourceURL  string
	ImportedAt time.Time
}

type aiMetadata struct {
	Preview    ImportedOpportunityPreview `json:"preview"`
	Warnings   []string                   `json:"warnings"`
	SourceURL  string                     `json:"source_url"`
	ImportedAt string                     `json:"imported_at"`
}

// BuildTempRecord maps a preview and its payload onto the staging create
// call. Text fields are stripped of markup, trimmed and cut to the column
// limits.
func BuildTempRecord(p TempRecordParams) (models.TempRecordInput, error) {
	key := stagedKey(p.Preview)
	in := models.TempRecordInput{
		ProjectTitle: key.ProjectTitle,
		ClientName:   key.ClientName,
		BudgetText:   optionalField(p.Preview.ProjectValueText, maxShortField),
		Deadline:     p.Preview.Deadline,
		AISummary:    optionalField(p.Summary, maxSummaryField),
		MatchScore:   p.Payload.MatchScore,
	}
	if key.Location != "" {
		in.Location = &key.Location
	}

	for _, d := range p.Preview.Documents {
		if u := strings.TrimSpace(d.URL); u != "" {
			in.Documents = append(in.Documents, u)
		}
	}

	var tags []string
	for _, tag := range p.Tags {
		tags = appendUnique(tags, cleanField(tag, maxShortField))
	}
	in.Tags = tags

	if p.Preview.RiskLevel != nil {
		if score, ok := p.Preview.RiskLevel.Score(); ok {
			in.RiskScore = &score
		}
	}
	if v, ok := ResolveSuggestion(p.Enhanced, strategicFitKeys...); ok {
		if pct, ok := ParsePercentage(v); ok {
			score := int(math.Round(pct))
			in.StrategicFitScore = &score
		}
	}

	warnings := p.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	meta, err := json.Marshal(aiMetadata{
		Preview:    p.Preview,
		Warnings:   warnings,
		SourceURL:  p.SourceURL,
		ImportedAt: p.ImportedAt.UTC().Format(isoLayout),
	})
	if err != nil {
		return models.TempRecordInput{}, fmt.Errorf("marshal ai metadata: %w", err)
	}
	in.AIMetadata = meta

	payload := p.Payload
	payload.SourceURL = p.SourceURL
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.TempRecordInput{}, fmt.Errorf("marshal raw payload: %w", err)
	}
	in.RawPayload = raw

	return in, nil
}

// stagedKey is the title, client and location exactly as the store will
// hold them. Dedup signatures are built from it so a candidate matches the
// record it would become.
func stagedKey(p ImportedOpportunityPreview) models.StagedKey {
	k := models.StagedKey{
		ProjectTitle: cleanField(p.ProjectName, maxShortField),
		ClientName:   cleanField(p.ClientName, maxShortField),
		Location:     cleanField(p.Location, maxShortField),
	}
	if k.ProjectTitle == "" {
		k.ProjectTitle = fallbackProjectName
	}
	if k.ClientName == "" {
		k.ClientName = fallbackClientName
	}
	return k
}

// cleanField strips markup, decodes entities, drops invalid UTF-8, trims and
// hard-truncates to max runes.
func cleanField(s string, max int) string {
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	s = strings.TrimSpace(sanitizeUTF8(s))
	return strings.TrimSpace(truncateRunes(s, max))
}

func optionalField(s string, max int) *string {
	if s = cleanField(s, max); s == "" {
		return nil
	}
	return &s
}

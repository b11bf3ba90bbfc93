package ingest

import (
	"math"
	"strings"
)

// CreatePayload is the serialized create request for one preview. Each
// populated preview field has a slot here; Description is the composed,
// human-readable text.
type CreatePayload struct {
	Name            string            `json:"name"`
	ClientName      string            `json:"client_name"`
	Description     string            `json:"description"`
	Summary         string            `json:"summary,omitempty"`
	Status          string            `json:"status,omitempty"`
	Location        string            `json:"location,omitempty"`
	MarketSector    string            `json:"market_sector,omitempty"`
	Value           *float64          `json:"value,omitempty"`
	ValueText       string            `json:"value_text,omitempty"`
	Probability     *float64          `json:"probability,omitempty"`
	MatchScore      *int              `json:"match_score,omitempty"`
	RiskLevel       *RiskLevel        `json:"risk_level,omitempty"`
	ExpectedRFPDate *string           `json:"expected_rfp_date,omitempty"`
	Deadline        *string           `json:"deadline,omitempty"`
	Contacts        Contacts          `json:"contacts"`
	Documents       []ScrapedDocument `json:"documents,omitempty"`
	SourceURL       string            `json:"source_url"`
}

// BuildCreatePayload serializes a preview. It performs no validation.
func BuildCreatePayload(p ImportedOpportunityPreview, sourceURL string) CreatePayload {
	payload := CreatePayload{
		Name:            p.ProjectName,
		ClientName:      p.ClientName,
		Description:     ComposeDescription(p, sourceURL),
		Summary:         p.Summary,
		Status:          p.Status,
		Location:        p.Location,
		MarketSector:    p.MarketSector,
		Value:           p.ProjectValueNumeric,
		ValueText:       p.ProjectValueText,
		Probability:     p.Probability,
		RiskLevel:       p.RiskLevel,
		ExpectedRFPDate: p.ExpectedRFPDate,
		Deadline:        p.Deadline,
		Contacts:        p.Contacts,
		Documents:       p.Documents,
		SourceURL:       sourceURL,
	}
	if p.Probability != nil && !math.IsNaN(*p.Probability) && !math.IsInf(*p.Probability, 0) {
		score := int(math.Round(*p.Probability))
		payload.MatchScore = &score
	}
	return payload
}

// ComposeDescription renders the preview as markdown-ish text. A section is
// written only when it has data the primary text does not already contain;
// the source line is always last.
func ComposeDescription(p ImportedOpportunityPreview, sourceURL string) string {
	primary := strings.TrimSpace(p.Description)
	if primary == "" {
		primary = strings.TrimSpace(p.Summary)
	}
	lowerPrimary := strings.ToLower(primary)
	fresh := func(s string) bool {
		s = strings.TrimSpace(s)
		return s != "" && !strings.Contains(lowerPrimary, strings.ToLower(s))
	}

	var sections []string
	if primary != "" {
		sections = append(sections, primary)
	}
	for _, line := range []struct{ label, value string }{
		{"Status", p.Status},
		{"Location", p.Location},
		{"Market Sector", p.MarketSector},
	} {
		if fresh(line.value) {
			sections = append(sections, "**"+line.label+":** "+strings.TrimSpace(line.value))
		}
	}

	var docs []string
	for _, d := range p.Documents {
		if ref := documentRef(d); fresh(ref) {
			docs = append(docs, "- "+ref)
		}
	}
	if len(docs) > 0 {
		sections = append(sections, "**Related Documents:**\n"+strings.Join(docs, "\n"))
	}

	var contacts []string
	for _, e := range p.Contacts.Emails {
		if fresh(e) {
			contacts = append(contacts, "- Email: "+strings.TrimSpace(e))
		}
	}
	for _, ph := range p.Contacts.Phones {
		if fresh(ph) {
			contacts = append(contacts, "- Phone: "+strings.TrimSpace(ph))
		}
	}
	if len(contacts) > 0 {
		sections = append(sections, "**Contact Information:**\n"+strings.Join(contacts, "\n"))
	}

	sections = append(sections, "**Source:** "+sourceURL)
	return strings.Join(sections, "\n\n")
}

// documentRef resolves a document to its URL, or its title when no URL was
// captured.
func documentRef(d ScrapedDocument) string {
	if u := strings.TrimSpace(d.URL); u != "" {
		return u
	}
	return strings.TrimSpace(d.Title)
}

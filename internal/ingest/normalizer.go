package ingest

import (
	"strconv"
	"strings"

	"github.com/david/opportunity-importer/internal/models"
)

const (
	fallbackProjectName = "Imported Opportunity"
	fallbackClientName  = "Unknown client"

	// quantifiedProbability is assumed for any opportunity that carries a
	// numeric project value but no explicit probability.
	quantifiedProbability = 45.0
)

// Suggestion keys, most specific first.
var (
	projectNameKeys  = []string{"opportunity_name", "project_name", "project_title", "title"}
	clientNameKeys   = []string{"client_name", "organization_name", "company_name"}
	summaryKeys      = []string{"executive_summary", "summary", "opportunity_summary"}
	descriptionKeys  = []string{"project_description", "description"}
	statusKeys       = []string{"status", "opportunity_status"}
	locationKeys     = []string{"location", "project_location", "site_location"}
	sectorKeys       = []string{"market_sector", "sector", "industry"}
	projectValueKeys = []string{"project_value", "estimated_value", "contract_value", "budget"}
	probabilityKeys  = []string{"win_probability", "match_score", "probability"}
	riskKeys         = []string{"risk_level", "risk", "risk_assessment"}
	rfpDateKeys      = []string{"expected_rfp_date", "rfp_date", "rfp_release_date"}
	deadlineKeys     = []string{"deadline", "submission_deadline", "due_date", "bid_due_date"}
	documentKeys     = []string{"documents", "related_documents"}
	strategicFitKeys = []string{"strategic_fit_score", "strategic_fit", "fit_score"}
)

// NormalizeImportedOpportunity merges one scraped opportunity, the page's
// organization info and an optional enhancement bag into a preview. For every
// field an enhanced value beats a scraped one, which beats a structural
// fallback. It also returns the resolved summary for lightweight display.
// The function is pure.
func NormalizeImportedOpportunity(sourceURL string, info *ScrapedInfo, opp *ScrapedOpportunity, enhanced models.EnhancedData) (ImportedOpportunityPreview, string) {
	var o ScrapedOpportunity
	if opp != nil {
		o = *opp
	}
	var in ScrapedInfo
	if info != nil {
		in = *info
	}

	p := ImportedOpportunityPreview{}

	p.ProjectName, _ = firstText(
		suggested(enhanced, projectNameKeys...),
		scraped(o.Title),
		scraped(in.Name),
		scraped(sourceURL),
		literal(fallbackProjectName),
	)
	p.ClientName, _ = firstText(
		suggested(enhanced, clientNameKeys...),
		scraped(o.Client),
		scraped(in.Name),
		literal(fallbackClientName),
	)

	summary, _ := firstText(
		suggested(enhanced, summaryKeys...),
		scraped(o.Description),
		scraped(o.Status),
	)
	p.Summary = summary
	p.Description, _ = firstText(
		suggested(enhanced, descriptionKeys...),
		scraped(o.Description),
		scraped(summary),
	)
	p.Status, _ = firstText(
		suggested(enhanced, statusKeys...),
		scraped(o.Status),
	)

	p.Location, _ = firstText(
		suggested(enhanced, locationKeys...),
		scraped(o.Location),
		func() (string, bool) { return FormatAddress(in.Address) },
	)
	p.MarketSector, _ = firstText(
		suggested(enhanced, sectorKeys...),
		scraped(strings.Join(o.Tags, ", ")),
	)

	p.ProjectValueNumeric, p.ProjectValueText = resolveProjectValue(enhanced, o)

	if v, ok := ResolveSuggestion(enhanced, probabilityKeys...); ok {
		if pct, ok := ParsePercentage(v); ok {
			p.Probability = floatPtr(pct)
		}
	}
	if p.Probability == nil && p.ProjectValueNumeric != nil {
		p.Probability = floatPtr(quantifiedProbability)
	}

	if risk, ok := firstText(
		riskFrom(suggested(enhanced, riskKeys...)),
		riskFrom(scraped(o.Status)),
	); ok {
		level := RiskLevel(risk)
		p.RiskLevel = &level
	}

	// Scraped pages carry a single date, so it backs both fields.
	if iso, ok := firstText(parsedDate(enhanced, rfpDateKeys...), parsedScrapedDate(o.Deadline)); ok {
		p.ExpectedRFPDate = stringPtr(iso)
	}
	if iso, ok := firstText(parsedDate(enhanced, deadlineKeys...), parsedScrapedDate(o.Deadline)); ok {
		p.Deadline = stringPtr(iso)
	}

	p.Contacts = Contacts{
		Emails: append([]string{}, in.Emails...),
		Phones: append([]string{}, in.Phones...),
	}

	if docs := documentsFromSuggestion(enhanced); len(docs) > 0 {
		p.Documents = docs
	} else if len(o.Documents) > 0 {
		p.Documents = append([]ScrapedDocument(nil), o.Documents...)
	}

	return p, summary
}

// resolveProjectValue yields the numeric value and its display text. A
// numeric suggestion is shown as "$<value>"; text is kept verbatim and also
// parsed for its amount.
func resolveProjectValue(enhanced models.EnhancedData, o ScrapedOpportunity) (*float64, string) {
	if v, ok := ResolveSuggestion(enhanced, projectValueKeys...); ok {
		switch v.Kind {
		case models.KindNumber:
			if f, ok := v.Float(); ok {
				return floatPtr(f), formatDollars(f)
			}
		case models.KindString:
			text := strings.TrimSpace(v.Str)
			if f, ok := ParseCurrency(text); ok {
				return floatPtr(f), text
			}
			return nil, text
		}
	}

	budget := strings.TrimSpace(o.BudgetText)
	if n := o.ProjectValueNumeric; n != nil {
		if f, ok := models.Number(*n).Float(); ok {
			if budget == "" {
				budget = formatDollars(f)
			}
			return floatPtr(f), budget
		}
	}
	if budget != "" {
		if f, ok := ParseCurrency(budget); ok {
			return floatPtr(f), budget
		}
		return nil, budget
	}
	return nil, ""
}

func formatDollars(f float64) string {
	return "$" + strconv.FormatFloat(f, 'f', -1, 64)
}

// documentsFromSuggestion reads a suggested document list whose items are
// either URL strings or objects with url/title/type members.
func documentsFromSuggestion(enhanced models.EnhancedData) []ScrapedDocument {
	v, ok := ResolveSuggestion(enhanced, documentKeys...)
	if !ok || v.Kind != models.KindList {
		return nil
	}

	var docs []ScrapedDocument
	for _, item := range v.List {
		switch item.Kind {
		case models.KindString:
			if u := strings.TrimSpace(item.Str); u != "" {
				docs = append(docs, ScrapedDocument{URL: u})
			}
		case models.KindObject:
			doc := ScrapedDocument{
				URL:   fieldText(item, "url", "href", "link"),
				Title: fieldText(item, "title", "name"),
				Type:  fieldText(item, "type", "kind"),
			}
			if doc.URL != "" || doc.Title != "" {
				docs = append(docs, doc)
			}
		}
	}
	return docs
}

func fieldText(obj models.EnhancedValue, keys ...string) string {
	for _, key := range keys {
		if f, ok := obj.Fields[key]; ok {
			if s, ok := f.Text(); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/david/opportunity-importer/internal/models"
)

// ScrapedDocument is a document linked from an opportunity.
type ScrapedDocument struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// ScrapedOpportunity is one candidate opportunity extracted from a page,
// before any enrichment.
type ScrapedOpportunity struct {
	Title               string            `json:"title"`
	Status              string            `json:"status,omitempty"`
	Description         string            `json:"description,omitempty"`
	Client              string            `json:"client,omitempty"`
	Location            string            `json:"location,omitempty"`
	BudgetText          string            `json:"budget_text,omitempty"`
	ProjectValueNumeric *float64          `json:"project_value_numeric,omitempty"`
	Deadline            string            `json:"deadline,omitempty"`
	PublishedDate       string            `json:"published_date,omitempty"`
	DetailURL           string            `json:"detail_url,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	Documents           []ScrapedDocument `json:"documents,omitempty"`
}

// Address is a postal address; every part is optional.
type Address struct {
	Line1       string `json:"line1,omitempty"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Pincode     string `json:"pincode,omitempty"`
}

// ScrapedInfo is organization-level metadata found on a page.
type ScrapedInfo struct {
	Name    string     `json:"name,omitempty"`
	Emails  StringList `json:"emails,omitempty"`
	Phones  StringList `json:"phones,omitempty"`
	Address *Address   `json:"address,omitempty"`
}

// ScrapeResult is the scraper output for one requested URL.
type ScrapeResult struct {
	URL           string               `json:"url"`
	Info          *ScrapedInfo         `json:"info,omitempty"`
	Error         string               `json:"error,omitempty"`
	Opportunities []ScrapedOpportunity `json:"opportunities"`
}

// StringList decodes either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*l = nil
	case string:
		*l = StringList{t}
	case []any:
		out := make(StringList, 0, len(t))
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case nil:
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		*l = out
	default:
		*l = StringList{fmt.Sprint(t)}
	}
	return nil
}

// Contacts groups the contact channels carried into a preview.
type Contacts struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

// ImportedOpportunityPreview is the canonical, normalized shape of one
// candidate opportunity. ProjectName and ClientName are never empty.
type ImportedOpportunityPreview struct {
	ProjectName         string            `json:"project_name"`
	ClientName          string            `json:"client_name"`
	Description         string            `json:"description,omitempty"`
	Summary             string            `json:"summary,omitempty"`
	Status              string            `json:"status,omitempty"`
	Location            string            `json:"location,omitempty"`
	MarketSector        string            `json:"market_sector,omitempty"`
	ProjectValueNumeric *float64          `json:"project_value_numeric"`
	ProjectValueText    string            `json:"project_value_text,omitempty"`
	Probability         *float64          `json:"probability"`
	RiskLevel           *RiskLevel        `json:"risk_level"`
	ExpectedRFPDate     *string           `json:"expected_rfp_date"`
	Deadline            *string           `json:"deadline"`
	Contacts            Contacts          `json:"contacts"`
	Documents           []ScrapedDocument `json:"documents,omitempty"`
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Scraper turns requested URLs into scrape results, one per URL and in
// request order. Per-URL failures are reported on the result, not as err.
type Scraper interface {
	Scrape(ctx context.Context, urls []string) ([]ScrapeResult, error)
}

// Enricher asks the AI enrichment service for field suggestions.
type Enricher interface {
	EnhanceOpportunity(ctx context.Context, detailURL string, fields map[string]any) (*models.Enhancement, error)
}

// Embedder produces a vector for a staged record.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// StagingStore is the temp-record queue awaiting human promotion.
type StagingStore interface {
	ListStagedKeys(ctx context.Context) ([]models.StagedKey, error)
	CreateTempRecord(ctx context.Context, in models.TempRecordInput) (*models.TempRecord, error)
}

// EventPublisher announces staged records to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// RunRecorder keeps the history of import batches.
type RunRecorder interface {
	StartImportRun(ctx context.Context, urls []string) (string, error)
	FinishImportRun(ctx context.Context, runID string, summary RunSummary) error
}

// RunSummary is what gets written back to a recorded run.
type RunSummary struct {
	Status   string
	Outcome  ImportOutcome
	Found    int
	Stored   int
	Skipped  int
	Errors   int
	Warnings []string
	Duration time.Duration
}

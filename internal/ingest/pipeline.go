package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/david/opportunity-importer/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// WarningEnhancementUnavailable is added once per batch when any candidate
// had to be normalized from scraped data alone.
const WarningEnhancementUnavailable = "AI enhancement unavailable. Using scraped details only."

// EventOpportunityStaged is published for every stored temp record.
const EventOpportunityStaged = "opportunity.staged"

var (
	ErrNoURLs             = errors.New("no urls to import")
	ErrStagingUnavailable = errors.New("staging store unavailable")
)

// ImportOutcome summarizes a finished batch.
type ImportOutcome string

const (
	OutcomeStoredAll        ImportOutcome = "stored_all"
	OutcomeStoredSome       ImportOutcome = "stored_some"
	OutcomeAllAlreadyQueued ImportOutcome = "all_already_queued"
	OutcomeNoOpportunities  ImportOutcome = "no_opportunities"
	OutcomeFailed           ImportOutcome = "failed"
)

// Stage names the step an ImportError came from.
type Stage string

const (
	StageScrape Stage = "scrape"
	StageBuild  Stage = "build"
	StageStore  Stage = "store"
)

// ImportError is a per-URL or per-item failure. It never aborts the batch.
type ImportError struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// ImportItem is one normalized candidate and what happened to it.
type ImportItem struct {
	SourceURL string                     `json:"source_url"`
	Preview   ImportedOpportunityPreview `json:"preview"`
	Summary   string                     `json:"ai_summary,omitempty"`
	Enhanced  bool                       `json:"enhanced"`
	Duplicate bool                       `json:"duplicate"`
	RecordID  string                     `json:"record_id,omitempty"`
}

// ImportResult is returned by Import.
type ImportResult struct {
	RunID             string        `json:"run_id,omitempty"`
	Outcome           ImportOutcome `json:"outcome"`
	Found             int           `json:"found"`
	Stored            int           `json:"stored"`
	SkippedDuplicates int           `json:"skipped_duplicates"`
	Warnings          []string      `json:"warnings"`
	Errors            []ImportError `json:"errors"`
	Items             []ImportItem  `json:"items"`
}

// PreviewResult is returned by Preview. Nothing is written.
type PreviewResult struct {
	Found      int           `json:"found"`
	Duplicates int           `json:"duplicates"`
	Warnings   []string      `json:"warnings"`
	Errors     []ImportError `json:"errors"`
	Items      []ImportItem  `json:"items"`
}

// Importer runs scrape, enhance, normalize, dedup and store for a batch of
// URLs. Store is required; Enricher, Embedder, Events and Runs are optional.
//
// Imports on one Importer run one at a time, so each batch seeds its
// signatures after the previous batch has stored its records. Previews do
// not wait.
type Importer struct {
	Scraper  Scraper
	Enricher Enricher
	Store    StagingStore
	Embedder Embedder
	Events   EventPublisher
	Runs     RunRecorder
	Logger   *zap.Logger
	Now      func() time.Time

	slotOnce sync.Once
	slot     *semaphore.Weighted
}

func (im *Importer) importSlot() *semaphore.Weighted {
	im.slotOnce.Do(func() { im.slot = semaphore.NewWeighted(1) })
	return im.slot
}

// candidate is a normalized opportunity ready for the dedup check.
type candidate struct {
	sourceURL string
	scraped   ScrapedOpportunity
	preview   ImportedOpportunityPreview
	summary   string
	enhanced  models.EnhancedData
	warnings  []string
	ok        bool
}

// Import processes urls and stages every opportunity that is not already
// queued. Candidates are handled strictly one after another: each dedup
// decision depends on the signatures recorded before it.
func (im *Importer) Import(ctx context.Context, urls []string) (_ *ImportResult, err error) {
	urls = cleanURLs(urls)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	if im.Store == nil {
		return nil, ErrStagingUnavailable
	}
	log := im.logger()

	slot := im.importSlot()
	if err := slot.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for running import: %w", err)
	}
	defer slot.Release(1)
	start := im.now()

	res := &ImportResult{
		Warnings: []string{},
		Errors:   []ImportError{},
		Items:    []ImportItem{},
	}

	if im.Runs != nil {
		runID, runErr := im.Runs.StartImportRun(ctx, urls)
		if runErr != nil {
			log.Warn("failed to record import run", zap.Error(runErr))
		} else {
			res.RunID = runID
			defer func() { im.finishRun(ctx, res, err, start) }()
		}
	}

	keys, err := im.Store.ListStagedKeys(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("%w: list staged records: %w", ErrStagingUnavailable, err)
	}
	seen := NewSignatureSet()
	seen.Seed(keys)

	results, err := im.scrape(ctx, urls)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}

	log.Info("import started",
		zap.String("run_id", res.RunID),
		zap.Int("urls", len(urls)),
		zap.Int("staged", len(keys)))

	for _, sr := range results {
		if sr.Error != "" {
			res.Errors = append(res.Errors, ImportError{URL: sr.URL, Stage: StageScrape, Message: sr.Error})
			log.Warn("scrape failed", zap.String("url", sr.URL), zap.String("error", sr.Error))
			continue
		}
		for i := range sr.Opportunities {
			if err := ctx.Err(); err != nil {
				res.Outcome = decideOutcome(res.Found, res.Stored, res.SkippedDuplicates, len(res.Errors))
				return res, fmt.Errorf("import interrupted: %w", err)
			}

			c := im.prepare(ctx, sr, &sr.Opportunities[i], &res.Warnings)
			res.Found++
			item := ImportItem{
				SourceURL: c.sourceURL,
				Preview:   c.preview,
				Summary:   c.summary,
				Enhanced:  c.ok,
			}

			if seen.CheckAndAdd(PreviewSignature(c.preview)) {
				item.Duplicate = true
				res.SkippedDuplicates++
				res.Items = append(res.Items, item)
				log.Debug("skipping duplicate", zap.String("title", c.preview.ProjectName))
				continue
			}

			record, err := im.store(ctx, c)
			if err != nil {
				stage := StageStore
				var be *buildError
				if errors.As(err, &be) {
					stage = StageBuild
				}
				res.Errors = append(res.Errors, ImportError{
					URL:     c.sourceURL,
					Title:   c.preview.ProjectName,
					Stage:   stage,
					Message: err.Error(),
				})
				res.Items = append(res.Items, item)
				log.Error("failed to stage opportunity",
					zap.String("title", c.preview.ProjectName),
					zap.String("url", c.sourceURL),
					zap.Error(err))
				continue
			}

			res.Stored++
			item.RecordID = record.ID.String()
			res.Items = append(res.Items, item)
			im.publish(ctx, record, c.sourceURL, res.RunID)
		}
	}

	res.Outcome = decideOutcome(res.Found, res.Stored, res.SkippedDuplicates, len(res.Errors))
	log.Info("import finished",
		zap.String("run_id", res.RunID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("found", res.Found),
		zap.Int("stored", res.Stored),
		zap.Int("skipped_duplicates", res.SkippedDuplicates),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", im.now().Sub(start)))
	return res, nil
}

// Preview runs the same scrape, enhance and normalize path as Import and
// marks the candidates Import would skip. It writes nothing.
func (im *Importer) Preview(ctx context.Context, urls []string) (*PreviewResult, error) {
	urls = cleanURLs(urls)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	seen := NewSignatureSet()
	if im.Store != nil {
		keys, err := im.Store.ListStagedKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list staged records: %w", ErrStagingUnavailable, err)
		}
		seen.Seed(keys)
	}

	results, err := im.scrape(ctx, urls)
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{
		Warnings: []string{},
		Errors:   []ImportError{},
		Items:    []ImportItem{},
	}
	for _, sr := range results {
		if sr.Error != "" {
			res.Errors = append(res.Errors, ImportError{URL: sr.URL, Stage: StageScrape, Message: sr.Error})
			continue
		}
		for i := range sr.Opportunities {
			c := im.prepare(ctx, sr, &sr.Opportunities[i], &res.Warnings)
			res.Found++
			dup := seen.CheckAndAdd(PreviewSignature(c.preview))
			if dup {
				res.Duplicates++
			}
			res.Items = append(res.Items, ImportItem{
				SourceURL: c.sourceURL,
				Preview:   c.preview,
				Summary:   c.summary,
				Enhanced:  c.ok,
				Duplicate: dup,
			})
		}
	}
	return res, nil
}

func (im *Importer) scrape(ctx context.Context, urls []string) ([]ScrapeResult, error) {
	if im.Scraper == nil {
		return nil, errors.New("no scraper configured")
	}
	results, err := im.Scraper.Scrape(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	return results, nil
}

// prepare enhances and normalizes one scraped opportunity. Enhancement
// failures degrade to scraped-only data and add the batch warning.
func (im *Importer) prepare(ctx context.Context, sr ScrapeResult, opp *ScrapedOpportunity, batchWarnings *[]string) candidate {
	c := candidate{sourceURL: sr.URL, scraped: *opp}
	detailURL := strings.TrimSpace(opp.DetailURL)
	if detailURL == "" {
		detailURL = sr.URL
	}

	if im.Enricher != nil {
		enh, err := im.Enricher.EnhanceOpportunity(ctx, detailURL, enhancementFields(sr, opp))
		if err != nil {
			im.logger().Warn("enhancement failed, using scraped data",
				zap.String("url", detailURL),
				zap.String("title", opp.Title),
				zap.Error(err))
		} else if enh != nil {
			c.enhanced = enh.EnhancedData
			c.ok = true
			for _, w := range enh.Warnings {
				c.warnings = appendUnique(c.warnings, w)
				*batchWarnings = appendUnique(*batchWarnings, w)
			}
		}
	}
	if !c.ok {
		c.warnings = appendUnique(c.warnings, WarningEnhancementUnavailable)
		*batchWarnings = appendUnique(*batchWarnings, WarningEnhancementUnavailable)
	}

	c.preview, c.summary = NormalizeImportedOpportunity(sr.URL, sr.Info, opp, c.enhanced)
	return c
}

// buildError marks failures that happened before the store was called.
type buildError struct{ err error }

func (e *buildError) Error() string { return e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

func (im *Importer) store(ctx context.Context, c candidate) (*models.TempRecord, error) {
	in, err := BuildTempRecord(TempRecordParams{
		Preview:    c.preview,
		Payload:    BuildCreatePayload(c.preview, c.sourceURL),
		Summary:    c.summary,
		Tags:       mergeUniqueFold(append([]string(nil), c.scraped.Tags...), splitTags(c.preview.MarketSector)),
		Warnings:   c.warnings,
		Enhanced:   c.enhanced,
		SourceURL:  c.sourceURL,
		ImportedAt: im.now(),
	})
	if err != nil {
		return nil, &buildError{err: err}
	}

	if im.Embedder != nil {
		text := in.ProjectTitle
		if in.AISummary != nil {
			text += "\n" + *in.AISummary
		}
		vec, err := im.Embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			im.logger().Warn("embedding failed", zap.String("title", in.ProjectTitle), zap.Error(err))
		} else {
			in.Embedding = vec
		}
	}

	record, err := im.Store.CreateTempRecord(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create temp record: %w", err)
	}
	return record, nil
}

type stagedEvent struct {
	RecordID     string `json:"record_id"`
	ProjectTitle string `json:"project_title"`
	ClientName   string `json:"client_name"`
	SourceURL    string `json:"source_url"`
	RunID        string `json:"run_id,omitempty"`
	StagedAt     string `json:"staged_at"`
}

func (im *Importer) publish(ctx context.Context, record *models.TempRecord, sourceURL, runID string) {
	if im.Events == nil || record == nil {
		return
	}
	payload, err := json.Marshal(stagedEvent{
		RecordID:     record.ID.String(),
		ProjectTitle: record.ProjectTitle,
		ClientName:   record.ClientName,
		SourceURL:    sourceURL,
		RunID:        runID,
		StagedAt:     im.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		im.logger().Warn("failed to encode staged event", zap.Error(err))
		return
	}
	if err := im.Events.Publish(ctx, EventOpportunityStaged, payload, record.ID.String()); err != nil {
		im.logger().Warn("failed to publish staged event",
			zap.String("record_id", record.ID.String()),
			zap.Error(err))
	}
}

func (im *Importer) finishRun(ctx context.Context, res *ImportResult, importErr error, start time.Time) {
	status := "completed"
	if importErr != nil || res.Outcome == OutcomeFailed {
		status = "failed"
	}
	summary := RunSummary{
		Status:   status,
		Outcome:  res.Outcome,
		Found:    res.Found,
		Stored:   res.Stored,
		Skipped:  res.SkippedDuplicates,
		Errors:   len(res.Errors),
		Warnings: res.Warnings,
		Duration: im.now().Sub(start),
	}
	// The request context may already be cancelled; the run row still needs closing.
	if err := im.Runs.FinishImportRun(context.WithoutCancel(ctx), res.RunID, summary); err != nil {
		im.logger().Warn("failed to finish import run", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

// decideOutcome classifies a batch. Nothing stored with at least one
// duplicate is reported apart from an outright failure.
func decideOutcome(found, stored, skipped, errCount int) ImportOutcome {
	switch {
	case found == 0 && errCount > 0:
		return OutcomeFailed
	case found == 0:
		return OutcomeNoOpportunities
	case stored == 0 && skipped > 0:
		return OutcomeAllAlreadyQueued
	case stored == 0:
		return OutcomeFailed
	case stored == found:
		return OutcomeStoredAll
	default:
		return OutcomeStoredSome
	}
}

// enhancementFields is the partial field bag sent with an enhancement request.
func enhancementFields(sr ScrapeResult, opp *ScrapedOpportunity) map[string]any {
	fields := map[string]any{
		"title":      opp.Title,
		"source_url": sr.URL,
	}
	set := func(key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fields[key] = v
		}
	}
	set("description", opp.Description)
	set("status", opp.Status)
	set("client", opp.Client)
	set("location", opp.Location)
	set("budget_text", opp.BudgetText)
	set("deadline", opp.Deadline)
	set("published_date", opp.PublishedDate)
	if opp.ProjectValueNumeric != nil {
		fields["project_value_numeric"] = *opp.ProjectValueNumeric
	}
	if len(opp.Tags) > 0 {
		fields["tags"] = opp.Tags
	}
	if sr.Info != nil {
		set("organization_name", sr.Info.Name)
	}
	return fields
}

// cleanURLs trims, drops blanks and removes repeats, keeping order.
func cleanURLs(urls []string) []string {
	var out []string
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func (im *Importer) logger() *zap.Logger {
	if im.Logger == nil {
		return zap.NewNop()
	}
	return im.Logger
}

func (im *Importer) now() time.Time {
	if im.Now == nil {
		return time.Now()
	}
	return im.Now()
}

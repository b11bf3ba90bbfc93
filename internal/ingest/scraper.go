package ingest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultScrapeConcurrency = 4
	defaultMaxPageBytes      = 5 << 20
	maxPDFLookupsPerPage     = 3
)

// PageScraper fetches pages and extracts opportunities with the site profile
// registry. Pages are fetched concurrently; results keep request order.
type PageScraper struct {
	Registry *Registry
	// Fetcher overrides the per-profile Colly fetchers when set.
	Fetcher      Fetcher
	Logger       *zap.Logger
	Concurrency  int
	MaxPageBytes int64
	// SkipURLCheck disables the public-address check; tests serve from loopback.
	SkipURLCheck bool

	mu       sync.Mutex
	fetchers map[string]Fetcher
}

// NewPageScraper builds a scraper over reg.
func NewPageScraper(reg *Registry, logger *zap.Logger) *PageScraper {
	return &PageScraper{Registry: reg, Logger: logger}
}

// Scrape implements Scraper. Per-URL failures land on the result.
func (s *PageScraper) Scrape(ctx context.Context, urls []string) ([]ScrapeResult, error) {
	results := make([]ScrapeResult, len(urls))

	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultScrapeConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = s.scrapeOne(gctx, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PageScraper) scrapeOne(ctx context.Context, pageURL string) ScrapeResult {
	res := ScrapeResult{URL: pageURL, Opportunities: []ScrapedOpportunity{}}
	log := s.logger().With(zap.String("url", pageURL))

	if !s.SkipURLCheck {
		if err := CheckPublicURL(ctx, pageURL); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	profile := s.Registry.ProfileFor(pageURL)
	fetcher := s.fetcherFor(profile)

	doc, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		res.Error = fmt.Sprintf("fetch failed: %v", err)
		return res
	}
	defer doc.Body.Close()

	maxBytes := s.MaxPageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxPageBytes
	}

	if strings.Contains(strings.ToLower(doc.ContentType), "application/pdf") {
		opp, err := opportunityFromPDF(doc.Body, pageURL)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Opportunities = append(res.Opportunities, opp)
		return res
	}

	page, err := goquery.NewDocumentFromReader(io.LimitReader(doc.Body, maxBytes))
	if err != nil {
		res.Error = fmt.Sprintf("parse failed: %v", err)
		return res
	}

	info, opps := ExtractPage(page, pageURL, profile)
	res.Info = info

	if profile.PDFDeadline {
		s.fillDeadlinesFromPDFs(ctx, fetcher, opps)
	}
	res.Opportunities = append(res.Opportunities, opps...)

	log.Debug("page scraped",
		zap.String("profile", profile.ID),
		zap.Int("opportunities", len(opps)))
	return res
}

// fillDeadlinesFromPDFs reads linked PDFs for opportunities whose page gave
// no deadline.
func (s *PageScraper) fillDeadlinesFromPDFs(ctx context.Context, fetcher Fetcher, opps []ScrapedOpportunity) {
	lookups := 0
	for i := range opps {
		if opps[i].Deadline != "" {
			continue
		}
		for _, d := range opps[i].Documents {
			if d.Type != "pdf" || lookups >= maxPDFLookupsPerPage {
				continue
			}
			lookups++
			iso, ok, err := ExtractPDFDeadline(ctx, fetcher, d.URL)
			if err != nil {
				s.logger().Debug("pdf deadline lookup failed", zap.String("pdf", d.URL), zap.Error(err))
				continue
			}
			if ok {
				opps[i].Deadline = iso
				break
			}
		}
	}
}

func opportunityFromPDF(body io.Reader, pdfURL string) (ScrapedOpportunity, error) {
	content, err := io.ReadAll(io.LimitReader(body, maxPDFBytes))
	if err != nil {
		return ScrapedOpportunity{}, fmt.Errorf("pdf read failed: %w", err)
	}
	text, err := extractPDFText(content)
	if err != nil {
		return ScrapedOpportunity{}, fmt.Errorf("pdf text extraction failed: %w", err)
	}

	title := pdfURL
	if u, err := url.Parse(pdfURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			title = strings.TrimSuffix(base, path.Ext(base))
			title = strings.NewReplacer("-", " ", "_", " ").Replace(title)
		}
	}

	opp := ScrapedOpportunity{
		Title:       normalizeSpace(title),
		Description: TruncateText(normalizeSpace(text), maxFallbackDescription),
		DetailURL:   pdfURL,
		Documents:   []ScrapedDocument{{URL: pdfURL, Type: "pdf"}},
	}
	if iso, ok := pickDeadline(dateCandidatesFromText(text)); ok {
		opp.Deadline = iso
	}
	return opp, nil
}

func (s *PageScraper) fetcherFor(profile SiteProfile) Fetcher {
	if s.Fetcher != nil {
		return s.Fetcher
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchers == nil {
		s.fetchers = make(map[string]Fetcher)
	}
	f, ok := s.fetchers[profile.ID]
	if !ok {
		cf := CollyFetcherWithConfig(profile.Fetch)
		cf.Logger = s.logger()
		f = cf
		s.fetchers[profile.ID] = f
	}
	return f
}

func (s *PageScraper) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// plainFetcher skips the public-address dialer so tests can hit httptest.
type plainFetcher struct{}

func (plainFetcher) Fetch(ctx context.Context, u string) (*FetchedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return &FetchedDocument{
		URL:         u,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
		FetchedAt:   time.Now(),
		Headers:     resp.Header,
	}, nil
}

func TestPageScraper_Scrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bids", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, listingHTML)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg, err := LoadRegistry("")
	require.NoError(t, err)
	reg.Default.PDFDeadline = false

	s := NewPageScraper(reg, zap.NewNop())
	s.Fetcher = plainFetcher{}
	s.SkipURLCheck = true

	urls := []string{srv.URL + "/missing", srv.URL + "/bids"}
	results, err := s.Scrape(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, urls[0], results[0].URL)
	assert.Contains(t, results[0].Error, "404")
	assert.Empty(t, results[0].Opportunities)

	assert.Equal(t, urls[1], results[1].URL)
	assert.Empty(t, results[1].Error)
	require.NotNil(t, results[1].Info)
	assert.Equal(t, "Springfield Procurement", results[1].Info.Name)
	assert.Len(t, results[1].Opportunities, 2)
}

func TestPageScraper_RejectsPrivateHosts(t *testing.T) {
	s := NewPageScraper(&Registry{}, nil)
	s.Fetcher = plainFetcher{}

	results, err := s.Scrape(context.Background(), []string{"http://127.0.0.1:8080/x", "ftp://example.com/file"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Error, "not publicly routable")
	assert.Contains(t, results[1].Error, "unsupported scheme")
}

func TestCheckPublicURL_Literals(t *testing.T) {
	tests := []struct {
		url     string
		blocked bool
	}{
		{"http://10.1.2.3/", true},
		{"http://[::1]:9000/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://localhost/", true},
		{"http://printer.local/", true},
		{"https://93.184.216.34/", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := CheckPublicURL(context.Background(), tt.url)
			if tt.blocked {
				assert.ErrorIs(t, err, ErrBlockedHost)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

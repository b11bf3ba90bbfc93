package ingest

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><head>
<meta property="og:site_name" content="Springfield Procurement">
<title>Open bids</title></head>
<body>
<div itemscope itemtype="https://schema.org/GovernmentOrganization">
  <span itemprop="name">City of Springfield</span>
  <div itemprop="address">
    <span itemprop="streetAddress">100 Main St</span>
    <span itemprop="addressLocality">Springfield</span>
    <span itemprop="addressRegion">IL</span>
  </div>
</div>
<a href="mailto:bids@springfield.example?subject=Bid">Email us</a>
<a href="tel:+1-555-0100">Call</a>
<article class="bid">
  <h2><a href="/bids/42?utm_source=feed">Water Main Replacement</a></h2>
  <p class="description">Replace 4 miles of main.</p>
  <span class="location">Springfield, IL</span>
  <span class="budget">$1.2M</span>
  <span class="deadline">Deadline: June 1, 2025</span>
  <span class="tags">Water; Utilities</span>
  <a href="/docs/spec.PDF">Specification</a>
</article>
<article class="bid">
  <h2><a href="/bids/43">Park Lighting</a></h2>
</article>
<article class="bid"><p>no title here</p></article>
</body></html>`

func parseHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractPage_Containers(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	info, opps := ExtractPage(parseHTML(t, listingHTML), "https://springfield.example/bids", reg.Default)

	assert.Equal(t, "Springfield Procurement", info.Name)
	assert.Equal(t, StringList{"bids@springfield.example"}, info.Emails)
	assert.Equal(t, StringList{"+1-555-0100"}, info.Phones)
	require.NotNil(t, info.Address)
	assert.Equal(t, "Springfield", info.Address.City)

	require.Len(t, opps, 2)
	first := opps[0]
	assert.Equal(t, "Water Main Replacement", first.Title)
	assert.Equal(t, "https://springfield.example/bids/42", first.DetailURL)
	assert.Equal(t, "Replace 4 miles of main.", first.Description)
	assert.Equal(t, "Springfield, IL", first.Location)
	assert.Equal(t, "$1.2M", first.BudgetText)
	assert.Equal(t, "June 1, 2025", first.Deadline)
	assert.Equal(t, []string{"Water", "Utilities"}, first.Tags)
	require.Len(t, first.Documents, 1)
	assert.Equal(t, "https://springfield.example/docs/spec.PDF", first.Documents[0].URL)
	assert.Equal(t, "pdf", first.Documents[0].Type)

	assert.Equal(t, "Park Lighting", opps[1].Title)
}

func TestExtractPage_WholePageFallback(t *testing.T) {
	html := `<html><head><title>RFP: Transit Study | Metro</title>
<meta name="description" content="Metro seeks a consultant for a transit study."></head>
<body><main><h1>Transit Study RFP</h1>
<p>Estimated value: $250K for the full study.</p>
<p>Proposals due March 3, 2026 at the Metro office.</p>
<a href="https://metro.example/rfp.pdf">RFP</a></main></body></html>`

	profile := SiteProfile{ID: "metro", Client: "Metro Transit"}
	_, opps := ExtractPage(parseHTML(t, html), "https://metro.example/rfp", profile)

	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "Transit Study RFP", opp.Title)
	assert.Equal(t, "Metro seeks a consultant for a transit study.", opp.Description)
	assert.Equal(t, "$250K for the full study", opp.BudgetText)
	assert.Equal(t, "2026-03-03T00:00:00.000Z", opp.Deadline)
	assert.Equal(t, "Metro Transit", opp.Client)
	assert.Equal(t, "https://metro.example/rfp", opp.DetailURL)
	require.Len(t, opp.Documents, 1)
}

func TestExtractPage_EmptyPage(t *testing.T) {
	info, opps := ExtractPage(parseHTML(t, `<html><body></body></html>`), "https://x.example", SiteProfile{})
	assert.Empty(t, opps)
	assert.Empty(t, info.Name)
}

func TestCanonicalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a?id=1", CanonicalizeURL("https://EXAMPLE.com/a?id=1&utm_source=x&fbclid=y#frag"))
}

func TestRegistry_ProfileFor(t *testing.T) {
	reg, err := ParseRegistry([]byte(`
default:
  id: default
sites:
  - id: samgov
    domains: [WWW.Sam.gov]
`))
	require.NoError(t, err)

	assert.Equal(t, "samgov", reg.ProfileFor("https://sam.gov/opp/1").ID)
	assert.Equal(t, "samgov", reg.ProfileFor("https://www.sam.gov/opp/1").ID)
	assert.Equal(t, "samgov", reg.ProfileFor("https://beta.sam.gov/opp/1").ID)
	assert.Equal(t, "default", reg.ProfileFor("https://notsam.gov/").ID)
	assert.Equal(t, "default", reg.ProfileFor("::bad").ID)
}

func TestLoadRegistry_Embedded(t *testing.T) {
	t.Setenv("TED_PROXY_URL", "http://proxy.example:8080")

	reg, err := LoadRegistry("")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Default.Selectors.Container)

	ted := reg.ProfileFor("https://ted.europa.eu/en/notice/1")
	assert.Equal(t, "ted", ted.ID)
	assert.Equal(t, "http://proxy.example:8080", ted.Fetch.ProxyURL)
}

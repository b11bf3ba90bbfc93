package ingest

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxFallbackDescription = 2000

var (
	emailRegex       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	budgetLabelRegex = regexp.MustCompile(`(?i)(?:budget|estimated (?:value|cost|amount)|contract value|project value)\s*[:\-]?\s*([^\n.;]{1,40})`)
	documentExts     = map[string]string{
		".pdf": "pdf", ".doc": "doc", ".docx": "docx",
		".xls": "xls", ".xlsx": "xlsx", ".zip": "zip",
	}
)

// ExtractPage pulls organization info and opportunities out of a parsed
// page. Containers from the site profile are tried first; a page without any
// yields one opportunity describing the page itself.
func ExtractPage(doc *goquery.Document, pageURL string, profile SiteProfile) (*ScrapedInfo, []ScrapedOpportunity) {
	base, _ := url.Parse(pageURL)
	info := extractInfo(doc)

	opps := extractContainers(doc, base, profile)
	if len(opps) == 0 {
		if opp, ok := extractWholePage(doc, base, pageURL); ok {
			opps = append(opps, opp)
		}
	}

	for i := range opps {
		if opps[i].Client == "" {
			opps[i].Client = profile.Client
		}
	}
	return info, opps
}

func extractInfo(doc *goquery.Document) *ScrapedInfo {
	info := &ScrapedInfo{}

	info.Name = metaContent(doc, `meta[property="og:site_name"]`)
	if info.Name == "" {
		info.Name = normalizeSpace(doc.Find(`[itemtype*="Organization"] [itemprop="name"]`).First().Text())
	}

	var emails, phones []string
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		emails = appendUnique(emails, addr)
	})
	if len(emails) == 0 {
		for _, m := range emailRegex.FindAllString(doc.Find("body").Text(), 10) {
			emails = appendUnique(emails, m)
		}
	}
	doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		phones = appendUnique(phones, strings.TrimPrefix(href, "tel:"))
	})
	info.Emails = emails
	info.Phones = phones

	if addr := doc.Find(`[itemprop="address"]`).First(); addr.Length() > 0 {
		a := &Address{
			Line1:       normalizeSpace(addr.Find(`[itemprop="streetAddress"]`).First().Text()),
			City:        normalizeSpace(addr.Find(`[itemprop="addressLocality"]`).First().Text()),
			State:       normalizeSpace(addr.Find(`[itemprop="addressRegion"]`).First().Text()),
			CountryCode: normalizeSpace(addr.Find(`[itemprop="addressCountry"]`).First().Text()),
			Pincode:     normalizeSpace(addr.Find(`[itemprop="postalCode"]`).First().Text()),
		}
		if _, ok := FormatAddress(a); ok {
			info.Address = a
		}
	}

	return info
}

func extractContainers(doc *goquery.Document, base *url.URL, profile SiteProfile) []ScrapedOpportunity {
	sel := profile.Selectors
	if sel.Container == "" {
		return nil
	}
	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}

	var opps []ScrapedOpportunity
	seen := make(map[string]bool)
	doc.Find(sel.Container).Each(func(_ int, item *goquery.Selection) {
		if profile.MaxItems > 0 && len(opps) >= profile.MaxItems {
			return
		}
		// Nested matches of the container selector are handled by the outer one.
		if item.ParentsFiltered(sel.Container).Length() > 0 {
			return
		}

		title := childText(item, sel.Title)
		if title == "" {
			return
		}

		var link string
		if sel.Link == "" || sel.Link == "." {
			link, _ = item.Attr(linkAttr)
		} else {
			link, _ = item.Find(sel.Link).First().Attr(linkAttr)
		}
		link = resolveLink(base, link)

		key := strings.ToLower(title) + "|" + link
		if seen[key] {
			return
		}
		seen[key] = true

		opp := ScrapedOpportunity{
			Title:       title,
			Description: childText(item, sel.Description),
			Client:      childText(item, sel.Client),
			Location:    childText(item, sel.Location),
			BudgetText:  childText(item, sel.Budget),
			Deadline:    cleanDateString(childText(item, sel.Deadline)),
			Status:      childText(item, sel.Status),
			DetailURL:   link,
			Documents:   documentLinks(item, base),
		}
		if sel.Published != "" {
			opp.PublishedDate = childText(item, sel.Published)
		}
		if sel.Tags != "" {
			opp.Tags = splitTags(item.Find(sel.Tags).Text())
		}
		if opp.Description == opp.Title {
			opp.Description = ""
		}
		opps = append(opps, opp)
	})
	return opps
}

func extractWholePage(doc *goquery.Document, base *url.URL, pageURL string) (ScrapedOpportunity, bool) {
	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = normalizeSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = normalizeSpace(doc.Find("title").First().Text())
	}

	body := doc.Find("main, article").First()
	if body.Length() == 0 {
		body = doc.Find("body")
	}
	clone := body.Clone()
	clone.Find("script, style, noscript, nav, header, footer").Remove()
	text := normalizeSpace(clone.Text())

	description := metaContent(doc, `meta[name="description"]`)
	if description == "" {
		description = TruncateText(text, maxFallbackDescription)
	}

	if title == "" && description == "" {
		return ScrapedOpportunity{}, false
	}

	opp := ScrapedOpportunity{
		Title:       title,
		Description: description,
		DetailURL:   pageURL,
		Documents:   documentLinks(doc.Selection, base),
	}
	if m := budgetLabelRegex.FindStringSubmatch(text); len(m) == 2 {
		if _, ok := ParseCurrency(m[1]); ok {
			opp.BudgetText = strings.TrimSpace(m[1])
		}
	}
	for _, c := range dateCandidatesFromText(text) {
		if c.Labeled {
			opp.Deadline = c.ISO
			break
		}
	}
	return opp, true
}

// documentLinks collects links to downloadable documents under sel.
func documentLinks(sel *goquery.Selection, base *url.URL) []ScrapedDocument {
	var docs []ScrapedDocument
	seen := make(map[string]bool)
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := resolveLink(base, href)
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		kind, ok := documentExts[strings.ToLower(path.Ext(u.Path))]
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true
		docs = append(docs, ScrapedDocument{
			URL:   abs,
			Title: normalizeSpace(a.Text()),
			Type:  kind,
		})
	})
	return docs
}

func childText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return normalizeSpace(sel.Find(selector).First().Text())
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return normalizeSpace(v)
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return CanonicalizeURL(ref.String())
}

// CanonicalizeURL removes common tracking parameters to ensure stable URLs.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

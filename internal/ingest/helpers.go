package ingest

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// normalizeSpace collapses runs of whitespace into one space and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// appendUnique appends v unless it is blank or already present (case-insensitive).
func appendUnique(list []string, v string) []string {
	vClean := strings.TrimSpace(v)
	if vClean == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, vClean) {
			return list
		}
	}
	return append(list, vClean)
}

func mergeUniqueFold(dst []string, items []string) []string {
	for _, v := range items {
		dst = appendUnique(dst, v)
	}
	return dst
}

// splitTags breaks a tag block on commas, semicolons, pipes, bullets and
// newlines.
func splitTags(block string) []string {
	fields := strings.FieldsFunc(block, func(r rune) bool {
		switch r {
		case ',', ';', '|', '\n', '\r', '•':
			return true
		}
		return false
	})
	var out []string
	for _, f := range fields {
		out = appendUnique(out, normalizeSpace(strings.Trim(f, " \t-*–—")))
	}
	return out
}

// FormatAddress joins the non-empty address parts with ", ".
func FormatAddress(a *Address) (string, bool) {
	if a == nil {
		return "", false
	}
	var parts []string
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.CountryCode, a.Pincode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ", "), true
}

// truncateRunes hard-cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// TruncateText cuts a string to max runes, appending an ellipsis if truncated.
func TruncateText(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max > 3 {
		return truncateRunes(text, max-3) + "..."
	}
	return truncateRunes(text, max)
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeSpace(html)
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeSpace(doc.Text())
}

// sanitizeUTF8 drops invalid UTF-8 sequences that Postgres rejects.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func stringPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

package ingest

import (
	"strings"

	"github.com/david/opportunity-importer/internal/models"
)

// ResolveSuggestion returns the first usable suggestion among keys, in the
// order given. Wrapper objects are unwrapped; null and empty-string values
// are skipped. A nil bag resolves to nothing.
func ResolveSuggestion(data models.EnhancedData, keys ...string) (models.EnhancedValue, bool) {
	if data == nil {
		return models.EnhancedValue{}, false
	}
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			continue
		}
		if v, ok = v.Unwrap(); !ok || v.IsEmpty() {
			continue
		}
		return v, true
	}
	return models.EnhancedValue{}, false
}

// textSource yields one candidate value of a precedence chain.
type textSource func() (string, bool)

// firstText evaluates sources left to right and returns the first non-blank
// value, trimmed.
func firstText(sources ...textSource) (string, bool) {
	for _, src := range sources {
		if s, ok := src(); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// suggested reads display text from the enhancement bag.
func suggested(data models.EnhancedData, keys ...string) textSource {
	return func() (string, bool) {
		v, ok := ResolveSuggestion(data, keys...)
		if !ok {
			return "", false
		}
		return v.Text()
	}
}

// scraped wraps a scraped or structural value.
func scraped(s string) textSource {
	return func() (string, bool) { return s, s != "" }
}

// literal is the last link of a chain that must yield something.
func literal(s string) textSource {
	return func() (string, bool) { return s, true }
}

// parsedDate resolves a suggestion into an ISO date.
func parsedDate(data models.EnhancedData, keys ...string) textSource {
	return func() (string, bool) {
		v, ok := ResolveSuggestion(data, keys...)
		if !ok {
			return "", false
		}
		return DateValueToISO(v)
	}
}

// parsedScrapedDate parses a scraped free-text date.
func parsedScrapedDate(text string) textSource {
	return func() (string, bool) { return ParseDateToISO(text) }
}

// riskFrom maps a source's text onto a risk band.
func riskFrom(src textSource) textSource {
	return func() (string, bool) {
		s, ok := src()
		if !ok {
			return "", false
		}
		level, ok := NormalizeRiskLevel(s)
		return string(level), ok
	}
}

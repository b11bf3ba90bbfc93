package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/david/opportunity-importer/internal/models"
)

// isoLayout matches the ISO-8601 form the staging backend stores.
const isoLayout = "2006-01-02T15:04:05.000Z"

var englishDateFormats = []string{
	"2 January 2006",
	"02 January 2006",
	"2 January 2006 3 PM",
	"2 January 2006 3:04 PM",
	"January 2, 2006",
	"January 2 2006",
	"January 2, 2006 3 PM",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Monday, January 2, 2006",
	"Mon, 02 Jan 2006",
	"01/02/2006",
	"01/02/2006 3 PM",
	"1/2/2006",
	"02/01/2006", // UK format
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"January 2006",
	"Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
}

var spanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "setiembre": time.September, "sep": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

var (
	isoDateRegex       = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	slashDateRegex     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthNameDateRegex = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(20\d{2})\b`)
	dayMonthDateRegex  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?,?\s+(20\d{2})\b`)
	spanishDateRegex   = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre|ene|feb|mar|abr|may|jun|jul|ago|sep|oct|nov|dic)\.?\s+(?:de|del)\s+(20\d{2})\b`)
)

// ParseDateToISO parses a loosely formatted date and renders it as an
// ISO-8601 UTC timestamp with millisecond precision. Dates without a time
// of day are taken as UTC midnight.
func ParseDateToISO(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	t, err := parseDateRobust(text)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(isoLayout), true
}

// Epoch-millisecond window accepted for numeric dates. Bare years and
// other small numbers fall below it.
var (
	minEpochMillis = float64(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	maxEpochMillis = float64(time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
)

// DateValueToISO accepts a suggestion holding either date text or epoch
// milliseconds between 1990 and 2200.
func DateValueToISO(v models.EnhancedValue) (string, bool) {
	switch v.Kind {
	case models.KindString:
		return ParseDateToISO(v.Str)
	case models.KindNumber:
		ms, ok := v.Float()
		if !ok || ms < minEpochMillis || ms >= maxEpochMillis {
			return "", false
		}
		return time.UnixMilli(int64(ms)).UTC().Format(isoLayout), true
	default:
		return "", false
	}
}

// parseDateRobust attempts to parse dates in multiple formats and locales.
func parseDateRobust(text string) (time.Time, error) {
	text = cleanDateString(text)
	text = strings.NewReplacer(
		"a.m.", "AM", "p.m.", "PM",
		"a.m", "AM", "p.m", "PM",
		" am", " AM", " pm", " PM",
	).Replace(text)

	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t, nil
	}

	for _, format := range englishDateFormats {
		if t, err := time.Parse(format, text); err == nil {
			return t, nil
		}
	}

	if t, ok := parseSpanishDateWithRegex(text); ok {
		return t, nil
	}
	if t, ok := parseDateWithRegex(text); ok {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// parseDateWithRegex finds a date embedded in surrounding text.
func parseDateWithRegex(text string) (time.Time, bool) {
	if m := isoDateRegex.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}

	// US order first, then day-first for values that cannot be a month.
	if m := slashDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])); err == nil {
			return t, true
		}
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[2], m[1], m[3])); err == nil {
			return t, true
		}
	}

	if m := monthNameDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("Jan 2 2006", fmt.Sprintf("%s %s %s", shortMonth(m[1]), m[2], m[3])); err == nil {
			return t, true
		}
	}
	if m := dayMonthDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("Jan 2 2006", fmt.Sprintf("%s %s %s", shortMonth(m[2]), m[1], m[3])); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func shortMonth(name string) string {
	if len(name) < 3 {
		return name
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:3])
}

// parseSpanishDateWithRegex handles "17 de junio de 2025" and "17 de junio del 2025".
func parseSpanishDateWithRegex(text string) (time.Time, bool) {
	m := spanishDateRegex.FindStringSubmatch(text)
	if len(m) != 4 {
		return time.Time{}, false
	}
	month, ok := spanishMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	var day, year int
	if _, err := fmt.Sscanf(m[1]+" "+m[3], "%d %d", &day, &year); err != nil {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// cleanDateString removes common label prefixes.
func cleanDateString(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Due date:", "Bid due:", "Bids due:",
		"Submission deadline:", "Open:", "Publication date:", "Posted:",
		"Expires:", "Ends:", "Fecha límite:", "Fecha de cierre:", "Cierre:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}

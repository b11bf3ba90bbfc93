package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	rpdf "rsc.io/pdf"
)

// maxPDFBytes caps how much of a linked document is read.
const maxPDFBytes = 20 << 20

var deadlineLabelHints = []string{
	"deadline", "due date", "bids due", "proposals due", "submission", "closes", "closing date",
	"fecha límite", "fecha máxima", "cierre de postulaciones", "fecha de cierre",
}

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)\s+(de|del)\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}(\s+\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?))?`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}(\s+\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?))?`),
}

// dateCandidate is a date found in document text.
type dateCandidate struct {
	ISO     string
	Offset  int
	Snippet string
	Labeled bool
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// dateCandidatesFromText returns each distinct date in text in order of
// first appearance, flagging those near a deadline label.
func dateCandidatesFromText(text string) []dateCandidate {
	byISO := make(map[string]dateCandidate)
	for _, expr := range dateSnippetRegexes {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			iso, ok := ParseDateToISO(text[loc[0]:loc[1]])
			if !ok {
				continue
			}

			start := max(loc[0]-80, 0)
			end := min(loc[1]+80, len(text))
			snippet := normalizeSpace(strings.ToValidUTF8(text[start:end], ""))
			lower := strings.ToLower(snippet)
			labeled := false
			for _, hint := range deadlineLabelHints {
				if strings.Contains(lower, hint) {
					labeled = true
					break
				}
			}

			if prev, seen := byISO[iso]; seen && prev.Offset <= loc[0] {
				if labeled && !prev.Labeled {
					prev.Labeled = true
					byISO[iso] = prev
				}
				continue
			}
			byISO[iso] = dateCandidate{ISO: iso, Offset: loc[0], Snippet: snippet, Labeled: labeled}
		}
	}

	out := make([]dateCandidate, 0, len(byISO))
	for _, c := range byISO {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// pickDeadline prefers the first labeled date, then the latest date.
func pickDeadline(cands []dateCandidate) (string, bool) {
	if len(cands) == 0 {
		return "", false
	}
	for _, c := range cands {
		if c.Labeled {
			return c.ISO, true
		}
	}
	latest := cands[0].ISO
	for _, c := range cands[1:] {
		// isoLayout sorts lexically.
		if c.ISO > latest {
			latest = c.ISO
		}
	}
	return latest, true
}

// ExtractPDFDeadline downloads a PDF and returns the deadline it most likely
// states.
func ExtractPDFDeadline(ctx context.Context, fetcher Fetcher, pdfURL string) (string, bool, error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return "", false, err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(io.LimitReader(doc.Body, maxPDFBytes))
	if err != nil {
		return "", false, fmt.Errorf("pdf read failed: %w", err)
	}

	text, err := extractPDFText(content)
	if err != nil {
		return "", false, fmt.Errorf("pdf text extraction failed: %w", err)
	}

	iso, ok := pickDeadline(dateCandidatesFromText(text))
	return iso, ok, nil
}

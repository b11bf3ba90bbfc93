package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/david/opportunity-importer/internal/models"
	"go.uber.org/zap"
)

const (
	defaultMaxPageChars = 6000
	maxPageBytes        = 2 << 20
)

// Completer generates text from a prompt.
type Completer interface {
	GenerateCompletion(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// PageReader returns the visible text of a web page.
type PageReader interface {
	ReadText(ctx context.Context, url string, maxBytes int64) (string, error)
}

// WarningPageUnreadable marks an enhancement built without the detail page.
const WarningPageUnreadable = "Detail page could not be read; suggestions use the listing only."

var errNoSuggestions = errors.New("model returned no suggestions")

// Enhancer asks an LLM to suggest opportunity fields from the scraped fields
// and the detail page text.
type Enhancer struct {
	LLM      Completer
	Pages    PageReader
	Logger   *zap.Logger
	MaxChars int
}

func NewEnhancer(llm Completer, pages PageReader, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{LLM: llm, Pages: pages, Logger: logger, MaxChars: defaultMaxPageChars}
}

// EnhanceOpportunity returns field suggestions for one opportunity. A page
// that cannot be read is reported as a warning; a model that cannot be
// reached or understood is an error.
func (e *Enhancer) EnhanceOpportunity(ctx context.Context, detailURL string, fields map[string]any) (*models.Enhancement, error) {
	var warnings []string

	pageText := ""
	if e.Pages != nil && detailURL != "" {
		text, err := e.Pages.ReadText(ctx, detailURL, maxPageBytes)
		if err != nil {
			e.Logger.Debug("detail page unavailable", zap.String("url", detailURL), zap.Error(err))
			warnings = append(warnings, WarningPageUnreadable)
		} else {
			pageText = truncate(text, e.maxChars())
		}
	}

	prompt, err := buildEnhancePrompt(detailURL, fields, pageText)
	if err != nil {
		return nil, err
	}

	// JSON mode first; some models ignore it, so fall back to text mode
	// and dig the object out.
	resp, err := e.LLM.GenerateCompletion(ctx, prompt, true)
	if err == nil {
		enh, parseErr := parseEnhancement(resp)
		if parseErr == nil {
			enh.Warnings = append(warnings, enh.Warnings...)
			return enh, nil
		}
		e.Logger.Debug("JSON mode response unusable, retrying in text mode", zap.Error(parseErr))
	} else {
		e.Logger.Debug("JSON mode generation failed, retrying in text mode", zap.Error(err))
	}

	resp, err = e.LLM.GenerateCompletion(ctx, prompt, false)
	if err != nil {
		return nil, fmt.Errorf("enhancement generation failed: %w", err)
	}
	enh, err := parseEnhancement(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enhancement after retry: %w", err)
	}
	enh.Warnings = append(warnings, enh.Warnings...)
	return enh, nil
}

func (e *Enhancer) maxChars() int {
	if e.MaxChars <= 0 {
		return defaultMaxPageChars
	}
	return e.MaxChars
}

func buildEnhancePrompt(detailURL string, fields map[string]any, pageText string) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(fields[k])
		if err != nil {
			return "", fmt.Errorf("marshal field %q: %w", k, err)
		}
		ordered = append(ordered, fmt.Sprintf("  %q: %s", k, v))
	}

	return fmt.Sprintf(`You are a business development analyst reviewing a public bid or project opportunity.
Using the scraped fields and the page text, suggest clean values for the opportunity record.

URL: %s
Scraped fields:
{
%s
}
Page text:
%s

Instructions:
1. Only suggest values supported by the input. Use null when unknown.
2. Dates as YYYY-MM-DD. Money as written on the page (e.g. "$5,000,000" or "$2.5M").
3. win_probability and strategic_fit_score are 0-100.
4. risk_level is one of "low", "medium", "high".
5. Add a short warning for anything ambiguous or contradictory.

Respond ONLY with a JSON object of this shape:
{
  "enhanced_data": {
    "project_name": "string", "client_name": "string", "executive_summary": "1-2 sentences",
    "project_description": "string", "status": "string", "location": "string",
    "market_sector": "string", "project_value": "string or number",
    "win_probability": number, "risk_level": "low|medium|high",
    "expected_rfp_date": "YYYY-MM-DD", "deadline": "YYYY-MM-DD",
    "strategic_fit_score": number,
    "documents": [{"url": "string", "title": "string"}]
  },
  "warnings": ["string"]
}`, detailURL, strings.Join(ordered, ",\n"), pageText), nil
}

// parseEnhancement accepts either the {enhanced_data, warnings} envelope or
// a bare object of suggestions.
func parseEnhancement(resp string) (*models.Enhancement, error) {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	if jsonStr, ok := extractFirstJSONObject(cleaned); ok {
		cleaned = jsonStr
	}

	var envelope models.Enhancement
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, err
	}
	if len(envelope.EnhancedData) > 0 {
		return &envelope, nil
	}

	var flat models.EnhancedData
	if err := json.Unmarshal([]byte(cleaned), &flat); err != nil {
		return nil, err
	}
	delete(flat, "warnings")
	delete(flat, "enhanced_data")
	if len(flat) == 0 {
		return nil, errNoSuggestions
	}
	return &models.Enhancement{EnhancedData: flat, Warnings: envelope.Warnings}, nil
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

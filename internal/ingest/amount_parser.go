package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/david/opportunity-importer/internal/models"
	"github.com/shopspring/decimal"
)

// amountTokenRegex finds a number in a money string together with an
// optional magnitude word or suffix ("$5M", "250 K", "1.2 billion").
var amountTokenRegex = regexp.MustCompile(`(?i)(\d[\d,\.]*)\s*(?:(thousand|million|billion|bn|mm|k|m|b)\b)?`)

// Currency markers directly before or after an amount.
var (
	currencyBeforeRegex = regexp.MustCompile(`(?i)(?:[$€£¥₹]|\b(?:usd|eur|gbp|cad|aud|inr|mxn|pen|cop|clp|brl)|\bs/\.?)\s*$`)
	currencyAfterRegex  = regexp.MustCompile(`(?i)^\s*(?:[$€£¥₹]|(?:usd|eur|gbp|cad|aud|inr|mxn|pen|cop|clp|brl|dollars?|euros?|pesos?|soles)\b)`)
)

var percentTokenRegex = regexp.MustCompile(`-?\d+(?:[\.,]\d+)?`)

var magnitudeExponent = map[string]int32{
	"k":        3,
	"thousand": 3,
	"m":        6,
	"mm":       6,
	"million":  6,
	"b":        9,
	"bn":       9,
	"billion":  9,
}

// ParseCurrency extracts a money amount from free text. Both "1,000,000.50"
// and "1.000.000,50" separator styles are understood, and a trailing K/M/B
// (or the spelled-out word) scales the number. When the text holds several
// numbers, the first one marked with a currency symbol or code wins, then
// the first one with a magnitude, then the first one. It reports false when
// no finite amount is found.
func ParseCurrency(text string) (float64, bool) {
	match := pickAmountToken(text)
	if match == nil {
		return 0, false
	}

	clean := normalizeNumberToken(match[1])
	if clean == "" {
		return 0, false
	}

	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, false
	}
	if exp, ok := magnitudeExponent[strings.ToLower(match[2])]; ok {
		amount = amount.Shift(exp)
	}

	f, _ := amount.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func pickAmountToken(text string) []string {
	locs := amountTokenRegex.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	submatch := func(loc []int) []string {
		out := []string{text[loc[0]:loc[1]], text[loc[2]:loc[3]], ""}
		if loc[4] >= 0 {
			out[2] = text[loc[4]:loc[5]]
		}
		return out
	}

	for _, loc := range locs {
		if currencyBeforeRegex.MatchString(text[:loc[0]]) || currencyAfterRegex.MatchString(text[loc[1]:]) {
			return submatch(loc)
		}
	}
	for _, loc := range locs {
		if loc[4] >= 0 {
			return submatch(loc)
		}
	}
	return submatch(locs[0])
}

// ParseCurrencyValue accepts a suggestion that is either already numeric
// (passed through) or money text.
func ParseCurrencyValue(v models.EnhancedValue) (float64, bool) {
	switch v.Kind {
	case models.KindNumber:
		return v.Float()
	case models.KindString:
		return ParseCurrency(v.Str)
	default:
		return 0, false
	}
}

// normalizeNumberToken rewrites a matched number into plain decimal notation.
func normalizeNumberToken(tok string) string {
	tok = strings.TrimRight(tok, ",.")
	hasComma := strings.Contains(tok, ",")
	hasDot := strings.Contains(tok, ".")

	switch {
	case hasComma && hasDot:
		// Whichever separator comes last is the decimal point.
		if strings.LastIndex(tok, ",") > strings.LastIndex(tok, ".") {
			tok = strings.ReplaceAll(tok, ".", "")
			return strings.Replace(tok, ",", ".", 1)
		}
		return strings.ReplaceAll(tok, ",", "")
	case hasComma:
		parts := strings.Split(tok, ",")
		if len(parts) > 2 || len(parts[len(parts)-1]) == 3 {
			return strings.ReplaceAll(tok, ",", "")
		}
		return strings.Replace(tok, ",", ".", 1)
	case hasDot:
		if strings.Count(tok, ".") > 1 {
			return strings.ReplaceAll(tok, ".", "")
		}
	}
	return tok
}

// ParsePercentage reads a finite number or numeric text ("37%") and clamps
// it to [0, 100]. Out-of-range input is clamped, never rejected.
func ParsePercentage(v models.EnhancedValue) (float64, bool) {
	var f float64
	switch v.Kind {
	case models.KindNumber:
		n, ok := v.Float()
		if !ok {
			return 0, false
		}
		f = n
	case models.KindString:
		tok := percentTokenRegex.FindString(v.Str)
		if tok == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(strings.Replace(tok, ",", ".", 1), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	return math.Max(0, math.Min(100, f)), true
}

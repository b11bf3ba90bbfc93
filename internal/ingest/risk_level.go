package ingest

import "strings"

// RiskLevel is the qualitative risk band of an opportunity.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// NormalizeRiskLevel maps free text onto a risk band by substring, checking
// low, then medium/moderate, then high.
func NormalizeRiskLevel(text string) (RiskLevel, bool) {
	lower := strings.ToLower(text)
	switch {
	case lower == "":
		return "", false
	case strings.Contains(lower, "low"):
		return RiskLow, true
	case strings.Contains(lower, "medium"), strings.Contains(lower, "moderate"):
		return RiskMedium, true
	case strings.Contains(lower, "high"):
		return RiskHigh, true
	}
	return "", false
}

// Score maps the band onto the staging store's numeric risk score.
func (r RiskLevel) Score() (int, bool) {
	switch r {
	case RiskHigh:
		return 80, true
	case RiskMedium:
		return 55, true
	case RiskLow:
		return 20, true
	}
	return 0, false
}

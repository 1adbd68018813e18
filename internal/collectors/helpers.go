package collectors

import "github.com/ternarybob/darkwatch/internal/models"

// Score bands per severity. Collectors pick scores inside the band so
// severity and risk_score always agree monotonically.
var severityBands = map[models.Severity][2]float64{
	models.SeverityCritical: {85, 100},
	models.SeverityHigh:     {65, 84.99},
	models.SeverityMedium:   {40, 64.99},
	models.SeverityLow:      {15, 39.99},
	models.SeverityInfo:     {0, 14.99},
}

// ClampScore forces score into the band for severity
func ClampScore(severity models.Severity, score float64) float64 {
	band := severityBands[severity]
	if score < band[0] {
		return band[0]
	}
	if score > band[1] {
		return band[1]
	}
	return score
}

// DefaultScore returns the canonical score for a severity
func DefaultScore(severity models.Severity) float64 {
	switch severity {
	case models.SeverityCritical:
		return 90
	case models.SeverityHigh:
		return 75
	case models.SeverityMedium:
		return 50
	case models.SeverityLow:
		return 25
	default:
		return 10
	}
}

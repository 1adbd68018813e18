// -----------------------------------------------------------------------
// Risk scoring types
// -----------------------------------------------------------------------

package models

import "time"

// RiskLevel buckets an overall score
type RiskLevel string

const (
	RiskLevelCritical RiskLevel = "critical" // < 25
	RiskLevelHigh     RiskLevel = "high"     // < 50
	RiskLevelMedium   RiskLevel = "medium"   // < 75
	RiskLevelLow      RiskLevel = "low"      // < 90
	RiskLevelMinimal  RiskLevel = "minimal"  // >= 90
)

// RiskLevelForScore maps an overall score to its level.
// Higher scores are better: 100 means no observed risk.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 90:
		return RiskLevelMinimal
	case score >= 75:
		return RiskLevelLow
	case score >= 50:
		return RiskLevelMedium
	case score >= 25:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// Trend is the direction of change between successive scores
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
)

// CategoryFactor is one category's contribution to the overall score
type CategoryFactor struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`  // 0-100 after deductions
	Weight   float64 `json:"weight"` // fixed weights summing to 1.0
	Findings int     `json:"findings"`
	Trend    Trend   `json:"trend"`
}

// RiskScore is the computed risk posture for one target
type RiskScore struct {
	Target         string           `json:"target"`
	OverallScore   float64          `json:"overall_score"` // 0-100
	RiskLevel      RiskLevel        `json:"risk_level"`
	Factors        []CategoryFactor `json:"factors"`
	SeverityCounts map[Severity]int `json:"severity_counts"`
	Trend          Trend            `json:"trend"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// -----------------------------------------------------------------------
// Risk engine - weighted category scoring with trend detection
// -----------------------------------------------------------------------

package risk

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// historyCapacity bounds the per-target score ring
const historyCapacity = 100

// Category weights; they sum to 1.0
var categoryWeights = map[string]float64{
	"exposure":       0.20,
	"dark_web":       0.20,
	"email_security": 0.15,
	"infrastructure": 0.20,
	"authentication": 0.15,
	"network":        0.10,
}

// capabilityCategory maps collector capabilities into scoring categories
var capabilityCategory = map[models.Capability]string{
	models.CapabilityExposureDiscovery:   "exposure",
	models.CapabilityDarkWebIntelligence: "dark_web",
	models.CapabilityEmailSecurity:       "email_security",
	models.CapabilityInfrastructureTest:  "infrastructure",
	models.CapabilityNetworkSecurity:     "network",
	models.CapabilityInvestigation:       "exposure",
}

// severityImpact is the per-finding deduction from a category score
var severityImpact = map[models.Severity]float64{
	models.SeverityCritical: 25,
	models.SeverityHigh:     15,
	models.SeverityMedium:   8,
	models.SeverityLow:      3,
	models.SeverityInfo:     1,
}

// Trend thresholds: category scores move on +/-5, overall on +/-3
const (
	categoryTrendDelta = 5.0
	overallTrendDelta  = 3.0
)

// Engine computes weighted risk scores and tracks per-target history.
// Scores are persisted best-effort through the score storage; the
// in-memory ring is authoritative for trend detection within a process.
type Engine struct {
	mu      sync.Mutex
	history map[string][]*models.RiskScore
	store   interfaces.ScoreStorage
	logger  arbor.ILogger
}

// NewEngine creates a risk engine. store may be nil (no persistence).
func NewEngine(store interfaces.ScoreStorage, logger arbor.ILogger) *Engine {
	return &Engine{
		history: make(map[string][]*models.RiskScore),
		store:   store,
		logger:  logger,
	}
}

// CalculateRiskScore scores a target from its findings, applying positive
// indicators as score bonuses, and appends the result to the target's
// history ring.
func (e *Engine) CalculateRiskScore(ctx context.Context, target string, findings []models.Finding, indicators []*models.PositiveIndicator) *models.RiskScore {
	categoryScores := make(map[string]float64, len(categoryWeights))
	categoryFindings := make(map[string]int, len(categoryWeights))
	for category := range categoryWeights {
		categoryScores[category] = 100
	}

	severityCounts := make(map[models.Severity]int)
	for _, finding := range findings {
		category, ok := capabilityCategory[finding.Capability]
		if !ok {
			continue
		}
		categoryScores[category] -= severityImpact[finding.Severity]
		categoryFindings[category]++
		severityCounts[finding.Severity]++
	}

	var bonus float64
	for _, indicator := range indicators {
		bonus += indicator.ScoreBonus
	}

	overall := 0.0
	for category, weight := range categoryWeights {
		if categoryScores[category] < 0 {
			categoryScores[category] = 0
		}
		overall += categoryScores[category] * weight
	}
	overall += bonus
	if overall > 100 {
		overall = 100
	}
	if overall < 0 {
		overall = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.latestLocked(target)

	factors := make([]models.CategoryFactor, 0, len(categoryWeights))
	for category, weight := range categoryWeights {
		factors = append(factors, models.CategoryFactor{
			Category: category,
			Score:    categoryScores[category],
			Weight:   weight,
			Findings: categoryFindings[category],
			Trend:    trendFor(previousCategoryScore(previous, category), categoryScores[category], categoryTrendDelta),
		})
	}

	score := &models.RiskScore{
		Target:         target,
		OverallScore:   overall,
		RiskLevel:      models.RiskLevelForScore(overall),
		Factors:        factors,
		SeverityCounts: severityCounts,
		Trend:          trendForPrevious(previous, overall),
		LastUpdated:    time.Now(),
	}

	ring := append(e.history[target], score)
	if len(ring) > historyCapacity {
		ring = ring[len(ring)-historyCapacity:]
	}
	e.history[target] = ring

	if e.store != nil {
		if err := e.store.SaveScore(ctx, interfaces.AdminScope, score); err != nil {
			e.logger.Warn().Err(err).Str("target", target).Msg("Failed to persist risk score")
		}
	}

	return score
}

// History returns the stored score history for a target, oldest first
func (e *Engine) History(target string) []*models.RiskScore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*models.RiskScore(nil), e.history[target]...)
}

func (e *Engine) latestLocked(target string) *models.RiskScore {
	ring := e.history[target]
	if len(ring) == 0 {
		return nil
	}
	return ring[len(ring)-1]
}

func previousCategoryScore(previous *models.RiskScore, category string) float64 {
	if previous == nil {
		return -1
	}
	for _, factor := range previous.Factors {
		if factor.Category == category {
			return factor.Score
		}
	}
	return -1
}

func trendForPrevious(previous *models.RiskScore, current float64) models.Trend {
	if previous == nil {
		return models.TrendStable
	}
	return trendFor(previous.OverallScore, current, overallTrendDelta)
}

// trendFor compares current to prior; prior < 0 means no history.
// Higher scores are better, so a positive delta is improvement.
func trendFor(prior, current, threshold float64) models.Trend {
	if prior < 0 {
		return models.TrendStable
	}
	delta := current - prior
	switch {
	case delta > threshold:
		return models.TrendImproving
	case delta < -threshold:
		return models.TrendWorsening
	default:
		return models.TrendStable
	}
}

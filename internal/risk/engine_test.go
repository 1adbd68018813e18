package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/models"
)

func finding(capability models.Capability, severity models.Severity) models.Finding {
	return models.Finding{
		Capability: capability,
		Severity:   severity,
		Target:     "example.com",
	}
}

func TestEngine_NoFindingsIsPerfectScore(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())

	score := engine.CalculateRiskScore(context.Background(), "example.com", nil, nil)

	assert.Equal(t, 100.0, score.OverallScore)
	assert.Equal(t, models.RiskLevelMinimal, score.RiskLevel)
	assert.Equal(t, models.TrendStable, score.Trend)
	assert.Len(t, score.Factors, 6)
}

func TestEngine_SeverityDeductions(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())

	findings := []models.Finding{
		finding(models.CapabilityExposureDiscovery, models.SeverityCritical), // exposure 100-25=75
		finding(models.CapabilityEmailSecurity, models.SeverityHigh),         // email 100-15=85
		finding(models.CapabilityInfrastructureTest, models.SeverityMedium),  // infra 100-8=92
	}
	score := engine.CalculateRiskScore(context.Background(), "example.com", findings, nil)

	// 75*.20 + 100*.20 + 85*.15 + 92*.20 + 100*.15 + 100*.10 = 91.15
	assert.InDelta(t, 91.15, score.OverallScore, 0.001)
	assert.Equal(t, 1, score.SeverityCounts[models.SeverityCritical])
	assert.Equal(t, 1, score.SeverityCounts[models.SeverityHigh])

	for _, factor := range score.Factors {
		switch factor.Category {
		case "exposure":
			assert.Equal(t, 75.0, factor.Score)
			assert.Equal(t, 1, factor.Findings)
		case "infrastructure":
			assert.Equal(t, 92.0, factor.Score)
		}
	}
}

func TestEngine_CategoryScoreFloorsAtZero(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())

	findings := make([]models.Finding, 0, 6)
	for i := 0; i < 6; i++ {
		findings = append(findings, finding(models.CapabilityDarkWebIntelligence, models.SeverityCritical))
	}
	score := engine.CalculateRiskScore(context.Background(), "example.com", findings, nil)

	for _, factor := range score.Factors {
		if factor.Category == "dark_web" {
			assert.Equal(t, 0.0, factor.Score)
		}
	}
	// 0*.20 + everything else at 100
	assert.InDelta(t, 80.0, score.OverallScore, 0.001)
}

func TestEngine_PositiveIndicatorBonusCapped(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())

	indicators := []*models.PositiveIndicator{
		{ID: "pi-1", Target: "example.com", ScoreBonus: 5},
		{ID: "pi-2", Target: "example.com", ScoreBonus: 10},
	}
	score := engine.CalculateRiskScore(context.Background(), "example.com", nil, indicators)
	assert.Equal(t, 100.0, score.OverallScore)

	findings := []models.Finding{finding(models.CapabilityExposureDiscovery, models.SeverityHigh)}
	score = engine.CalculateRiskScore(context.Background(), "example.com", findings, indicators)
	// 85*.20 + 100*.80 = 97, +15 bonus capped at 100
	assert.Equal(t, 100.0, score.OverallScore)
}

func TestEngine_TrendDetection(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())
	ctx := context.Background()

	first := engine.CalculateRiskScore(ctx, "example.com", nil, nil)
	assert.Equal(t, models.TrendStable, first.Trend)

	// Drop the overall score well past the 3-point threshold
	findings := []models.Finding{
		finding(models.CapabilityExposureDiscovery, models.SeverityCritical),
		finding(models.CapabilityInfrastructureTest, models.SeverityCritical),
	}
	worse := engine.CalculateRiskScore(ctx, "example.com", findings, nil)
	assert.Equal(t, models.TrendWorsening, worse.Trend)

	// Back to clean: overall recovers, trend improves
	better := engine.CalculateRiskScore(ctx, "example.com", nil, nil)
	assert.Equal(t, models.TrendImproving, better.Trend)
	for _, factor := range better.Factors {
		if factor.Category == "exposure" {
			assert.Equal(t, models.TrendImproving, factor.Trend)
		}
	}
}

func TestEngine_CategoryTrendRequiresFivePoints(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())
	ctx := context.Background()

	engine.CalculateRiskScore(ctx, "example.com", nil, nil)

	// One low finding moves exposure by 3: inside the 5-point band
	findings := []models.Finding{finding(models.CapabilityExposureDiscovery, models.SeverityLow)}
	score := engine.CalculateRiskScore(ctx, "example.com", findings, nil)
	for _, factor := range score.Factors {
		if factor.Category == "exposure" {
			assert.Equal(t, models.TrendStable, factor.Trend)
		}
	}
}

func TestEngine_HistoryBounded(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())
	ctx := context.Background()

	for i := 0; i < historyCapacity+20; i++ {
		engine.CalculateRiskScore(ctx, "example.com", nil, nil)
	}

	history := engine.History("example.com")
	require.Len(t, history, historyCapacity)
}

func TestEngine_TargetsAreIsolated(t *testing.T) {
	engine := NewEngine(nil, common.GetLogger())
	ctx := context.Background()

	engine.CalculateRiskScore(ctx, "a.com", nil, nil)
	assert.Empty(t, engine.History("b.com"))

	findings := []models.Finding{finding(models.CapabilityExposureDiscovery, models.SeverityCritical)}
	b := engine.CalculateRiskScore(ctx, "b.com", findings, nil)
	// b.com has no prior history so the drop is still "stable"
	assert.Equal(t, models.TrendStable, b.Trend)
}

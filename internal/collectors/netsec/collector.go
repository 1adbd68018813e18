// -----------------------------------------------------------------------
// Network-security collector - beaconing and tunnel analysis
// -----------------------------------------------------------------------

package netsec

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// Collector correlates recorded network telemetry for a target: periodic
// callback (beaconing) patterns and covert-channel indicators. It consumes
// logs the investigation collector wrote; it makes no network requests of
// its own.
type Collector struct {
	logger  arbor.ILogger
	netlogs interfaces.NetworkLogStorage
}

// NewCollector creates the network-security collector
func NewCollector(netlogs interfaces.NetworkLogStorage, logger arbor.ILogger) *Collector {
	return &Collector{
		logger:  logger,
		netlogs: netlogs,
	}
}

func (c *Collector) Capability() models.Capability {
	return models.CapabilityNetworkSecurity
}

func (c *Collector) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"beaconing_detection": true,
		"tunnel_detection":    true,
	}
}

type run struct {
	c        *Collector
	job      *models.Job
	pub      interfaces.Publisher
	target   string
	findings []models.Finding
}

func (c *Collector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	r := &run{c: c, job: job, pub: pub, target: strings.TrimSpace(strings.ToLower(job.Target))}

	pub.Progress(5, fmt.Sprintf("Starting network-security analysis for %s", r.target))

	if c.netlogs == nil {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       "Network telemetry unavailable",
			Description: "No telemetry store is configured; run an investigation job first to record network activity.",
		})
		pub.Progress(100, "Network-security analysis complete: no telemetry source")
		return r.findings, nil
	}

	logs, err := c.netlogs.GetNetworkLogsByTarget(ctx, r.scope(), r.target)
	if err != nil {
		return r.findings, fmt.Errorf("network log query failed: %w", err)
	}
	if len(logs) == 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       fmt.Sprintf("No network telemetry recorded for %s", r.target),
			Description: "Nothing has observed this target's network activity yet. Investigation jobs populate the telemetry this analysis runs on.",
		})
		pub.Progress(100, "Network-security analysis complete: no telemetry")
		return r.findings, nil
	}
	pub.Progress(30, fmt.Sprintf("Loaded %d telemetry records", len(logs)))

	if err := ctx.Err(); err != nil {
		return r.findings, err
	}

	if enabled, ok := job.GetConfigBool("beaconing_detection"); !ok || enabled {
		for _, pattern := range DetectBeaconing(logs) {
			r.emitBeacon(pattern)
		}
	}
	pub.Progress(60, "Beaconing analysis complete")

	if enabled, ok := job.GetConfigBool("tunnel_detection"); !ok || enabled {
		for _, detection := range DetectTunnels(logs) {
			r.emitTunnel(detection)
		}
	}
	pub.Progress(90, "Tunnel analysis complete")

	pub.Progress(100, fmt.Sprintf("Network-security analysis complete: %d findings", len(r.findings)))
	return r.findings, nil
}

func (r *run) scope() interfaces.Scope {
	if userID := r.job.UserID(); userID != "" {
		return interfaces.Scope{UserID: userID}
	}
	return interfaces.AdminScope
}

func (r *run) publish(f models.Finding) {
	f.ID = common.NewFindingID()
	f.Capability = models.CapabilityNetworkSecurity
	f.Target = r.target
	f.RiskScore = collectors.ClampScore(f.Severity, f.RiskScore)
	if f.Evidence == nil {
		f.Evidence = map[string]interface{}{}
	}
	f.Evidence["job_id"] = r.job.ID

	r.findings = append(r.findings, f)
	r.pub.Finding(f)
}

func (r *run) emitBeacon(pattern models.BeaconingPattern) {
	severity := severityForRisk(pattern.RiskScore)
	r.publish(models.Finding{
		Severity:  severity,
		RiskScore: collectors.ClampScore(severity, pattern.RiskScore),
		Title:     fmt.Sprintf("Beaconing pattern on %s", pattern.ConnectionKey),
		Description: fmt.Sprintf(
			"%d callbacks at a ~%.0fs cadence (jitter %.0f%%) between %s and %s. Regular intervals like this are typical of malware check-ins.",
			pattern.SampleCount, pattern.IntervalSeconds, pattern.Jitter*100,
			pattern.FirstSeen.Format("2006-01-02 15:04"), pattern.LastSeen.Format("2006-01-02 15:04")),
		Evidence: map[string]interface{}{
			"connection_key":   pattern.ConnectionKey,
			"interval_seconds": pattern.IntervalSeconds,
			"jitter":           pattern.Jitter,
			"sample_count":     pattern.SampleCount,
			"indicators":       pattern.Indicators,
			"confidence":       pattern.Confidence,
		},
		AffectedAssets: []string{pattern.ConnectionKey},
		Recommendations: []string{
			"Identify the process behind the periodic callbacks",
			"Block the destination host and review it against threat intelligence",
		},
	})
}

func (r *run) emitTunnel(detection models.TunnelDetection) {
	severity := severityForRisk(detection.RiskScore)
	r.publish(models.Finding{
		Severity:  severity,
		RiskScore: collectors.ClampScore(severity, detection.RiskScore),
		Title:     fmt.Sprintf("Possible covert channel on %s", detection.ConnectionKey),
		Description: fmt.Sprintf(
			"Traffic on this connection shows covert-channel indicators: %s.",
			strings.Join(detection.Indicators, "; ")),
		Evidence: map[string]interface{}{
			"connection_key": detection.ConnectionKey,
			"protocol":       detection.Protocol,
			"indicators":     detection.Indicators,
			"confidence":     detection.Confidence,
		},
		AffectedAssets: []string{detection.ConnectionKey},
		Recommendations: []string{
			"Capture and inspect the flagged connection's payloads",
		},
	})
}

// severityForRisk maps a detector risk score into a severity band
func severityForRisk(score float64) models.Severity {
	switch {
	case score >= 85:
		return models.SeverityCritical
	case score >= 65:
		return models.SeverityHigh
	case score >= 40:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

var _ interfaces.Collector = (*Collector)(nil)

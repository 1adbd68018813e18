// -----------------------------------------------------------------------
// DMARC bypass analyzer - scenario checks against the observed posture
// -----------------------------------------------------------------------

package emailauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/models"
)

// bypassScenario is one spoofing technique with the posture condition
// under which it works
type bypassScenario struct {
	name        string
	severity    models.Severity
	description string
	applies     func(ctx context.Context, r *emailRun, result *postureResult) bool
}

var bypassScenarios = []bypassScenario{
	{
		name:        "Direct spoofing without DMARC",
		severity:    models.SeverityCritical,
		description: "With no DMARC policy, mail failing SPF and DKIM is still delivered normally.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			return result.dmarcRecord == ""
		},
	},
	{
		name:        "Monitoring-only policy bypass",
		severity:    models.SeverityHigh,
		description: "p=none requests no action from receivers; spoofed mail is delivered while only reports are generated.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			return result.dmarcPolicy == "none"
		},
	},
	{
		name:        "Partial enforcement sampling bypass",
		severity:    models.SeverityHigh,
		description: "pct below 100 means a fraction of spoofed mail bypasses enforcement by sampling.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			for _, issue := range result.dmarcIssues {
				if strings.Contains(issue, "pct=") {
					return true
				}
			}
			return false
		},
	},
	{
		name:        "Subdomain spoofing",
		severity:    models.SeverityHigh,
		description: "Without an sp tag or with sp=none, arbitrary subdomains of the target can be spoofed under the organizational policy gap.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			if result.dmarcRecord == "" {
				return false
			}
			if strings.Contains(result.dmarcRecord, "sp=none") {
				return true
			}
			return !strings.Contains(result.dmarcRecord, "sp=")
		},
	},
	{
		name:        "SPF softfail alignment abuse",
		severity:    models.SeverityMedium,
		description: "A ~all SPF record combined with relaxed alignment lets forwarded spoofed mail pass evaluation at many receivers.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			return strings.Contains(result.spfRecord, "~all")
		},
	},
	{
		name:        "Unsigned mail impersonation",
		severity:    models.SeverityMedium,
		description: "With no DKIM keys published, receivers cannot distinguish legitimate unsigned mail from spoofed mail when SPF breaks in forwarding.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			return len(result.dkimFound) == 0
		},
	},
	{
		name:        "Lookalike cousin domain",
		severity:    models.SeverityLow,
		description: "DMARC does not protect against visually similar registered domains; user training and monitoring are the only mitigations.",
		applies: func(ctx context.Context, r *emailRun, result *postureResult) bool {
			// Always reportable once bypass analysis is requested
			return true
		},
	},
}

// analyzeBypass evaluates each scenario against the observed posture and
// publishes a finding per applicable technique.
func (r *emailRun) analyzeBypass(ctx context.Context, result *postureResult) {
	result.mu.Lock()
	snapshot := &postureResult{
		spfRecord:   result.spfRecord,
		dmarcRecord: result.dmarcRecord,
		dmarcPolicy: result.dmarcPolicy,
		dmarcIssues: append([]string(nil), result.dmarcIssues...),
		dkimFound:   append([]string(nil), result.dkimFound...),
	}
	result.mu.Unlock()

	for _, scenario := range bypassScenarios {
		if ctx.Err() != nil {
			return
		}
		if !scenario.applies(ctx, r, snapshot) {
			continue
		}
		r.publish(models.Finding{
			Severity:    scenario.severity,
			RiskScore:   collectors.DefaultScore(scenario.severity),
			Title:       fmt.Sprintf("DMARC bypass possible: %s", scenario.name),
			Description: scenario.description,
			Evidence: map[string]interface{}{
				"scenario":     scenario.name,
				"dmarc_policy": snapshot.dmarcPolicy,
			},
			Recommendations: []string{
				"Enforce p=reject with pct=100",
				"Publish explicit sp and DKIM for all sending subdomains",
			},
		})
	}
}

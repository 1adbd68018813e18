// -----------------------------------------------------------------------
// Email-auth collector - SPF / DKIM / DMARC posture with deep checks
// -----------------------------------------------------------------------

package emailauth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"golang.org/x/sync/errgroup"
)

// dkimSelectors is the common-selector sweep list
var dkimSelectors = []string{
	"default", "google", "selector1", "selector2", "k1", "k2",
	"dkim", "dkim1", "dkim2", "mail", "email", "smtp",
	"mandrill", "mailjet", "sendgrid", "amazonses", "zoho", "pm",
}

// mailSubdomains is the optional mail-subdomain enumeration list
var mailSubdomains = []string{
	"mail", "smtp", "pop", "pop3", "imap", "webmail",
	"mx", "email", "exchange", "autodiscover",
}

// Collector audits a domain's email authentication posture
type Collector struct {
	config   *common.ScannerConfig
	logger   arbor.ILogger
	resolver Resolver
	client   *http.Client
}

// NewCollector creates the email-auth collector
func NewCollector(config *common.ScannerConfig, logger arbor.ILogger) *Collector {
	return &Collector{
		config:   config,
		logger:   logger,
		resolver: NewResolver(config.DNSTimeout),
		client:   &http.Client{Timeout: config.HTTPTimeout},
	}
}

func (c *Collector) Capability() models.Capability {
	return models.CapabilityEmailSecurity
}

func (c *Collector) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"dkim_sweep":      c.config.DKIMSweep,
		"deep_checks":     c.config.DeepEmail,
		"bypass_analysis": c.config.BypassChecks,
	}
}

// postureResult aggregates what the parallel record checks observed
type postureResult struct {
	mu sync.Mutex

	spfRecord   string
	spfIssues   []string
	dmarcRecord string
	dmarcPolicy string
	dmarcIssues []string
	mxHosts     []*net.MX
	dkimFound   []string

	bimiFound      bool
	mtaSTSPolicy   string
	daneRecords    int
	ptrMismatches  []string
	dnssecEnabled  bool
	mailSubsFound  []string
	deepChecksRan  bool
	problemFactors int
}

type emailRun struct {
	c        *Collector
	job      *models.Job
	pub      interfaces.Publisher
	target   string
	mu       sync.Mutex
	findings []models.Finding
}

func (c *Collector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	r := &emailRun{c: c, job: job, pub: pub, target: strings.TrimSpace(strings.ToLower(job.Target))}
	result := &postureResult{}

	pub.Progress(5, fmt.Sprintf("Starting email security audit for %s", r.target))

	// The four primary record checks run concurrently
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { r.checkSPF(gctx, result); return nil })
	g.Go(func() error { r.checkDMARC(gctx, result); return nil })
	g.Go(func() error { r.checkMX(gctx, result); return nil })
	if enabled, ok := job.GetConfigBool("dkim_sweep"); !ok || enabled {
		g.Go(func() error { r.sweepDKIM(gctx, result); return nil })
	}
	if err := g.Wait(); err != nil {
		return r.findings, err
	}
	pub.Progress(40, "Primary record checks complete")

	if err := ctx.Err(); err != nil {
		return r.findings, err
	}

	if enabled, ok := job.GetConfigBool("deep_checks"); !ok || enabled {
		r.runDeepChecks(ctx, result)
		pub.Progress(70, "Deep checks complete")
	}

	if enabled, _ := job.GetConfigBool("bypass_analysis"); enabled {
		r.analyzeBypass(ctx, result)
		pub.Progress(85, "Bypass analysis complete")
	}

	r.emitScores(result)
	r.emitSpoofingRisk(result)

	pub.Progress(100, fmt.Sprintf("Email security audit complete: %d findings", len(r.findings)))
	return r.findings, nil
}

func (r *emailRun) publish(f models.Finding) {
	f.ID = common.NewFindingID()
	f.Capability = models.CapabilityEmailSecurity
	f.Target = r.target
	f.RiskScore = collectors.ClampScore(f.Severity, f.RiskScore)
	if f.Evidence == nil {
		f.Evidence = map[string]interface{}{}
	}
	f.Evidence["job_id"] = r.job.ID

	r.mu.Lock()
	r.findings = append(r.findings, f)
	r.mu.Unlock()
	r.pub.Finding(f)
}

// ----- SPF -----

func (r *emailRun) checkSPF(ctx context.Context, result *postureResult) {
	records, err := r.c.resolver.LookupTXT(ctx, r.target)
	if err != nil {
		r.c.logger.Debug().Str("target", r.target).Err(err).Msg("SPF TXT lookup failed")
	}

	var spf string
	for _, record := range records {
		if strings.HasPrefix(strings.TrimSpace(record), "v=spf1") {
			spf = strings.TrimSpace(record)
			break
		}
	}

	if spf == "" {
		result.mu.Lock()
		result.problemFactors++
		result.mu.Unlock()
		r.publish(models.Finding{
			Severity:    models.SeverityHigh,
			RiskScore:   75.0,
			Title:       "No SPF Record Found",
			Description: fmt.Sprintf("Domain %s publishes no SPF record; any host can send mail claiming this domain.", r.target),
			Evidence:    map[string]interface{}{"record_type": "SPF"},
			Recommendations: []string{
				"Publish a v=spf1 TXT record listing authorized senders",
				"End the record with -all to reject unauthorized mail",
			},
		})
		return
	}

	issues := analyzeSPF(spf)
	result.mu.Lock()
	result.spfRecord = spf
	result.spfIssues = issues
	if len(issues) > 0 {
		result.problemFactors++
	}
	result.mu.Unlock()

	for _, issue := range issues {
		severity := models.SeverityMedium
		if strings.Contains(issue, "+all") {
			severity = models.SeverityCritical
		}
		r.publish(models.Finding{
			Severity:    severity,
			RiskScore:   collectors.DefaultScore(severity),
			Title:       fmt.Sprintf("SPF issue: %s", issue),
			Description: fmt.Sprintf("SPF record for %s: %s", r.target, spf),
			Evidence:    map[string]interface{}{"record": spf, "issue": issue},
		})
	}
	if len(issues) == 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       "SPF record properly configured",
			Description: fmt.Sprintf("SPF record for %s enforces a strict policy.", r.target),
			Evidence:    map[string]interface{}{"record": spf},
		})
	}
}

// analyzeSPF returns the actionable issues in an SPF record
func analyzeSPF(record string) []string {
	var issues []string
	switch {
	case strings.Contains(record, "+all"):
		issues = append(issues, "permissive +all mechanism allows any sender")
	case strings.Contains(record, "?all"):
		issues = append(issues, "neutral ?all provides no protection")
	case strings.Contains(record, "~all"):
		issues = append(issues, "softfail ~all only marks unauthorized mail")
	case !strings.Contains(record, "-all"):
		issues = append(issues, "no explicit all mechanism")
	}

	// RFC 7208 limits SPF evaluation to 10 DNS lookups
	lookups := 0
	for _, term := range strings.Fields(record) {
		for _, mechanism := range []string{"include:", "a", "mx", "ptr", "exists:", "redirect="} {
			if term == mechanism || strings.HasPrefix(term, mechanism) {
				lookups++
				break
			}
		}
	}
	if lookups > 10 {
		issues = append(issues, fmt.Sprintf("%d DNS lookups exceeds the RFC 7208 limit of 10", lookups))
	}
	if strings.Contains(record, "ptr") {
		issues = append(issues, "deprecated ptr mechanism in use")
	}
	return issues
}

// ----- DMARC -----

func (r *emailRun) checkDMARC(ctx context.Context, result *postureResult) {
	records, err := r.c.resolver.LookupTXT(ctx, "_dmarc."+r.target)
	if err != nil {
		r.c.logger.Debug().Str("target", r.target).Err(err).Msg("DMARC TXT lookup failed")
	}

	var dmarc string
	for _, record := range records {
		if strings.HasPrefix(strings.TrimSpace(record), "v=DMARC1") {
			dmarc = strings.TrimSpace(record)
			break
		}
	}

	if dmarc == "" {
		result.mu.Lock()
		result.problemFactors++
		result.mu.Unlock()
		r.publish(models.Finding{
			Severity:    models.SeverityHigh,
			RiskScore:   collectors.DefaultScore(models.SeverityHigh),
			Title:       "No DMARC Record Found",
			Description: fmt.Sprintf("Domain %s publishes no DMARC policy; receivers cannot act on failed authentication.", r.target),
			Evidence:    map[string]interface{}{"record_type": "DMARC"},
			Recommendations: []string{
				"Publish a _dmarc TXT record",
				"Move to p=reject once aggregate reports are clean",
			},
		})
		return
	}

	policy, issues := analyzeDMARC(dmarc)
	result.mu.Lock()
	result.dmarcRecord = dmarc
	result.dmarcPolicy = policy
	result.dmarcIssues = issues
	if len(issues) > 0 {
		result.problemFactors++
	}
	result.mu.Unlock()

	for _, issue := range issues {
		severity := models.SeverityMedium
		if strings.Contains(issue, "p=none") {
			severity = models.SeverityHigh
		}
		r.publish(models.Finding{
			Severity:    severity,
			RiskScore:   collectors.DefaultScore(severity),
			Title:       fmt.Sprintf("DMARC issue: %s", issue),
			Description: fmt.Sprintf("DMARC record for %s: %s", r.target, dmarc),
			Evidence:    map[string]interface{}{"record": dmarc, "policy": policy, "issue": issue},
		})
	}
	if policy == "reject" && len(issues) == 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       "DMARC enforcement at p=reject",
			Description: fmt.Sprintf("Domain %s rejects unauthenticated mail.", r.target),
			Evidence:    map[string]interface{}{"record": dmarc},
		})
	}
}

// analyzeDMARC extracts the policy and actionable issues
func analyzeDMARC(record string) (string, []string) {
	var issues []string
	tags := map[string]string{}
	for _, part := range strings.Split(record, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			tags[strings.ToLower(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	policy := tags["p"]
	switch policy {
	case "none":
		issues = append(issues, "p=none monitors but does not act")
	case "quarantine", "reject":
	case "":
		issues = append(issues, "missing required p tag")
	default:
		issues = append(issues, fmt.Sprintf("unknown policy %q", policy))
	}

	if pct, ok := tags["pct"]; ok && pct != "100" {
		issues = append(issues, fmt.Sprintf("partial enforcement pct=%s", pct))
	}
	if _, ok := tags["rua"]; !ok {
		issues = append(issues, "no rua aggregate reporting address")
	}
	if sp, ok := tags["sp"]; ok && sp == "none" {
		issues = append(issues, "subdomain policy sp=none")
	}
	return policy, issues
}

// ----- MX -----

func (r *emailRun) checkMX(ctx context.Context, result *postureResult) {
	hosts, err := r.c.resolver.LookupMX(ctx, r.target)
	if err != nil || len(hosts) == 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       "No MX records",
			Description: fmt.Sprintf("Domain %s has no MX records; it does not receive mail directly.", r.target),
			Evidence:    map[string]interface{}{"record_type": "MX"},
		})
		return
	}

	result.mu.Lock()
	result.mxHosts = hosts
	result.mu.Unlock()

	names := make([]string, len(hosts))
	for i, mx := range hosts {
		names[i] = strings.TrimSuffix(mx.Host, ".")
	}
	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       fmt.Sprintf("%d MX records configured", len(hosts)),
		Description: fmt.Sprintf("Mail exchangers for %s: %s", r.target, strings.Join(names, ", ")),
		Evidence:    map[string]interface{}{"mx_hosts": names},
	})
}

// ----- DKIM -----

func (r *emailRun) sweepDKIM(ctx context.Context, result *postureResult) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	var mu sync.Mutex
	var found []string
	for _, selector := range dkimSelectors {
		g.Go(func() error {
			name := selector + "._domainkey." + r.target
			records, err := r.c.resolver.LookupTXT(gctx, name)
			if err != nil {
				return nil
			}
			for _, record := range records {
				if strings.Contains(record, "v=DKIM1") || strings.Contains(record, "k=rsa") || strings.Contains(record, "p=") {
					mu.Lock()
					found = append(found, selector)
					mu.Unlock()
					return nil
				}
			}
			return nil
		})
	}
	g.Wait()

	result.mu.Lock()
	result.dkimFound = found
	if len(found) == 0 {
		result.problemFactors++
	}
	result.mu.Unlock()

	if len(found) == 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityMedium,
			RiskScore:   collectors.DefaultScore(models.SeverityMedium),
			Title:       "No DKIM selectors found",
			Description: fmt.Sprintf("No DKIM keys discovered for %s across %d common selectors. Outbound mail may be unsigned.", r.target, len(dkimSelectors)),
			Evidence:    map[string]interface{}{"selectors_checked": len(dkimSelectors)},
			Recommendations: []string{
				"Sign outbound mail with DKIM",
				"Publish selector keys in DNS",
			},
		})
		return
	}

	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       fmt.Sprintf("DKIM configured (%d selectors)", len(found)),
		Description: fmt.Sprintf("DKIM keys found for %s at selectors: %s", r.target, strings.Join(found, ", ")),
		Evidence:    map[string]interface{}{"selectors": found},
	})
}

// ----- Deep checks -----

func (r *emailRun) runDeepChecks(ctx context.Context, result *postureResult) {
	result.deepChecksRan = true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { r.checkBIMI(gctx, result); return nil })
	g.Go(func() error { r.checkMTASTS(gctx, result); return nil })
	g.Go(func() error { r.checkDANE(gctx, result); return nil })
	g.Go(func() error { r.checkPTR(gctx, result); return nil })
	g.Go(func() error { r.checkDNSSEC(gctx, result); return nil })
	g.Go(func() error { r.enumerateMailSubdomains(gctx, result); return nil })
	g.Wait()
}

func (r *emailRun) checkBIMI(ctx context.Context, result *postureResult) {
	records, err := r.c.resolver.LookupTXT(ctx, "default._bimi."+r.target)
	if err != nil {
		return
	}
	for _, record := range records {
		if strings.HasPrefix(record, "v=BIMI1") {
			result.mu.Lock()
			result.bimiFound = true
			result.mu.Unlock()
			r.publish(models.Finding{
				Severity:    models.SeverityInfo,
				RiskScore:   collectors.DefaultScore(models.SeverityInfo),
				Title:       "BIMI record published",
				Description: fmt.Sprintf("Domain %s publishes a BIMI record.", r.target),
				Evidence:    map[string]interface{}{"record": record},
			})
			return
		}
	}
}

func (r *emailRun) checkMTASTS(ctx context.Context, result *postureResult) {
	records, err := r.c.resolver.LookupTXT(ctx, "_mta-sts."+r.target)
	if err != nil {
		return
	}
	published := false
	for _, record := range records {
		if strings.HasPrefix(record, "v=STSv1") {
			published = true
			break
		}
	}
	if !published {
		r.publish(models.Finding{
			Severity:    models.SeverityLow,
			RiskScore:   collectors.DefaultScore(models.SeverityLow),
			Title:       "MTA-STS not configured",
			Description: fmt.Sprintf("Domain %s publishes no MTA-STS policy; inbound mail transport is not protected against downgrade.", r.target),
			Evidence:    map[string]interface{}{"record_type": "MTA-STS"},
		})
		return
	}

	// TXT exists; fetch and validate the policy file
	url := fmt.Sprintf("https://mta-sts.%s/.well-known/mta-sts.txt", r.target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := r.c.client.Do(req)
	if err != nil {
		r.publish(models.Finding{
			Severity:    models.SeverityMedium,
			RiskScore:   collectors.DefaultScore(models.SeverityMedium),
			Title:       "MTA-STS policy file unreachable",
			Description: fmt.Sprintf("TXT record advertises MTA-STS but %s could not be fetched.", url),
			Evidence:    map[string]interface{}{"url": url},
		})
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))

	mode := ""
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "mode:") {
			mode = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "mode:"))
		}
	}
	result.mu.Lock()
	result.mtaSTSPolicy = mode
	result.mu.Unlock()

	severity := models.SeverityInfo
	title := fmt.Sprintf("MTA-STS enforced (mode=%s)", mode)
	if mode != "enforce" {
		severity = models.SeverityLow
		title = fmt.Sprintf("MTA-STS present but not enforcing (mode=%s)", mode)
	}
	r.publish(models.Finding{
		Severity:    severity,
		RiskScore:   collectors.DefaultScore(severity),
		Title:       title,
		Description: fmt.Sprintf("MTA-STS policy for %s has mode %q.", r.target, mode),
		Evidence:    map[string]interface{}{"url": url, "mode": mode},
	})
}

func (r *emailRun) checkDANE(ctx context.Context, result *postureResult) {
	result.mu.Lock()
	hosts := result.mxHosts
	result.mu.Unlock()

	total := 0
	for _, mx := range hosts {
		name := "_25._tcp." + strings.TrimSuffix(mx.Host, ".")
		records, err := r.c.resolver.LookupTLSA(ctx, name)
		if err != nil {
			continue
		}
		total += len(records)
	}
	result.mu.Lock()
	result.daneRecords = total
	result.mu.Unlock()

	if total > 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       fmt.Sprintf("DANE TLSA published (%d records)", total),
			Description: fmt.Sprintf("Mail exchangers for %s publish TLSA records for SMTP.", r.target),
			Evidence:    map[string]interface{}{"tlsa_count": total},
		})
	}
}

func (r *emailRun) checkPTR(ctx context.Context, result *postureResult) {
	result.mu.Lock()
	hosts := result.mxHosts
	result.mu.Unlock()

	var mismatches []string
	for _, mx := range hosts {
		mxHost := strings.TrimSuffix(mx.Host, ".")
		addrs, err := r.c.resolver.LookupHost(ctx, mxHost)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			names, err := r.c.resolver.LookupAddr(ctx, addr)
			if err != nil || len(names) == 0 {
				mismatches = append(mismatches, fmt.Sprintf("%s (%s): no PTR", mxHost, addr))
				continue
			}
			matched := false
			for _, name := range names {
				if strings.EqualFold(strings.TrimSuffix(name, "."), mxHost) {
					matched = true
					break
				}
			}
			if !matched {
				mismatches = append(mismatches, fmt.Sprintf("%s (%s): PTR %s", mxHost, addr, strings.TrimSuffix(names[0], ".")))
			}
		}
	}

	result.mu.Lock()
	result.ptrMismatches = mismatches
	result.mu.Unlock()

	if len(mismatches) > 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityLow,
			RiskScore:   collectors.DefaultScore(models.SeverityLow),
			Title:       "MX reverse DNS mismatch",
			Description: fmt.Sprintf("%d mail exchanger address(es) for %s have missing or mismatched PTR records; delivery reputation may suffer.", len(mismatches), r.target),
			Evidence:    map[string]interface{}{"mismatches": mismatches},
		})
	}
}

func (r *emailRun) checkDNSSEC(ctx context.Context, result *postureResult) {
	enabled, err := r.c.resolver.LookupDNSKEY(ctx, r.target)
	if err != nil {
		return
	}
	result.mu.Lock()
	result.dnssecEnabled = enabled
	result.mu.Unlock()

	if !enabled {
		r.publish(models.Finding{
			Severity:    models.SeverityLow,
			RiskScore:   collectors.DefaultScore(models.SeverityLow),
			Title:       "DNSSEC not enabled",
			Description: fmt.Sprintf("Zone %s publishes no DNSKEY records; DNS responses are not cryptographically signed.", r.target),
			Evidence:    map[string]interface{}{"record_type": "DNSKEY"},
		})
	}
}

func (r *emailRun) enumerateMailSubdomains(ctx context.Context, result *postureResult) {
	var found []string
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)
	for _, prefix := range mailSubdomains {
		g.Go(func() error {
			hostname := prefix + "." + r.target
			if addrs, err := r.c.resolver.LookupHost(gctx, hostname); err == nil && len(addrs) > 0 {
				mu.Lock()
				found = append(found, hostname)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	result.mu.Lock()
	result.mailSubsFound = found
	result.mu.Unlock()

	if len(found) > 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       fmt.Sprintf("%d mail-related subdomains found", len(found)),
			Description: fmt.Sprintf("Mail infrastructure subdomains for %s: %s", r.target, strings.Join(found, ", ")),
			Evidence:    map[string]interface{}{"subdomains": found},
		})
	}
}

// ----- Scores -----

// emitScores computes the overall security score and the four compliance
// scores as weighted averages of the observed posture.
func (r *emailRun) emitScores(result *postureResult) {
	result.mu.Lock()
	defer result.mu.Unlock()

	spf := scoreSPF(result.spfRecord, result.spfIssues)
	dkim := scoreDKIM(result.dkimFound)
	dmarc := scoreDMARC(result.dmarcRecord, result.dmarcPolicy, result.dmarcIssues)
	m3aawg := (spf + dkim + dmarc) / 3
	if result.deepChecksRan {
		bonus := 0.0
		if result.dnssecEnabled {
			bonus += 5
		}
		if result.mtaSTSPolicy == "enforce" {
			bonus += 5
		}
		if result.daneRecords > 0 {
			bonus += 5
		}
		m3aawg += bonus
		if m3aawg > 100 {
			m3aawg = 100
		}
	}
	overall := spf*0.30 + dkim*0.25 + dmarc*0.35 + m3aawg*0.10

	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       fmt.Sprintf("Email security score: %.0f/100", overall),
		Description: fmt.Sprintf("Weighted email authentication posture for %s.", r.target),
		Evidence: map[string]interface{}{
			"security_score": overall,
			"compliance": map[string]float64{
				"rfc7208_spf":   spf,
				"rfc6376_dkim":  dkim,
				"rfc7489_dmarc": dmarc,
				"m3aawg":        m3aawg,
			},
		},
	})
}

func scoreSPF(record string, issues []string) float64 {
	if record == "" {
		return 0
	}
	score := 100.0
	for _, issue := range issues {
		switch {
		case strings.Contains(issue, "+all"):
			score -= 60
		case strings.Contains(issue, "~all"), strings.Contains(issue, "?all"), strings.Contains(issue, "no explicit"):
			score -= 25
		default:
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func scoreDKIM(selectors []string) float64 {
	switch {
	case len(selectors) >= 2:
		return 100
	case len(selectors) == 1:
		return 80
	default:
		return 0
	}
}

func scoreDMARC(record, policy string, issues []string) float64 {
	if record == "" {
		return 0
	}
	score := 0.0
	switch policy {
	case "reject":
		score = 100
	case "quarantine":
		score = 75
	case "none":
		score = 40
	default:
		score = 20
	}
	for _, issue := range issues {
		if !strings.Contains(issue, "p=none") {
			score -= 5
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ----- Spoofing risk -----

// emitSpoofingRisk derives the top-level spoofing finding from the count
// of problematic factors
func (r *emailRun) emitSpoofingRisk(result *postureResult) {
	result.mu.Lock()
	factors := result.problemFactors
	result.mu.Unlock()

	var severity models.Severity
	switch {
	case factors >= 3:
		severity = models.SeverityCritical
	case factors == 2:
		severity = models.SeverityHigh
	case factors == 1:
		severity = models.SeverityMedium
	default:
		severity = models.SeverityLow
	}

	r.publish(models.Finding{
		Severity:    severity,
		RiskScore:   collectors.DefaultScore(severity),
		Title:       fmt.Sprintf("Email spoofing risk: %s", severity),
		Description: fmt.Sprintf("Domain %s has %d problematic email authentication factor(s).", r.target, factors),
		Evidence:    map[string]interface{}{"problem_factors": factors},
		Recommendations: []string{
			"Deploy SPF, DKIM, and DMARC together",
			"Monitor aggregate reports before enforcing",
		},
	})
}

var _ interfaces.Collector = (*Collector)(nil)

// -----------------------------------------------------------------------
// Reputation heuristics - suspicious TLDs and typosquat distance
// -----------------------------------------------------------------------

package investigation

import (
	"strings"
)

// suspiciousTLDs carry elevated abuse rates
var suspiciousTLDs = []string{
	".tk", ".ml", ".ga", ".cf", ".gq",
	".top", ".xyz", ".club", ".work", ".click",
	".link", ".loan", ".zip", ".mov",
}

// brandNames are the typosquat comparison set
var brandNames = []string{"google", "paypal", "amazon", "microsoft", "apple"}

// typosquatThreshold is the maximum edit distance considered a squat
const typosquatThreshold = 2

// ReputationIssue is one heuristic hit on the target name
type ReputationIssue struct {
	Kind    string `json:"kind"` // "suspicious_tld" or "typosquat"
	Detail  string `json:"detail"`
	Against string `json:"against,omitempty"`
}

// CheckReputation runs the name-level heuristics against a domain
func CheckReputation(domain string) []ReputationIssue {
	domain = strings.ToLower(strings.TrimSpace(domain))
	var issues []ReputationIssue

	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(domain, tld) {
			issues = append(issues, ReputationIssue{
				Kind:   "suspicious_tld",
				Detail: tld,
			})
			break
		}
	}

	// Compare the registrable label against known brands
	label := domain
	if base := baseDomain(domain); base != "" {
		label = base
	}
	if idx := strings.Index(label, "."); idx > 0 {
		label = label[:idx]
	}
	for _, brand := range brandNames {
		if label == brand {
			continue // the brand itself
		}
		distance := levenshtein(label, brand)
		if distance > 0 && distance <= typosquatThreshold {
			issues = append(issues, ReputationIssue{
				Kind:    "typosquat",
				Detail:  label,
				Against: brand,
			})
		}
	}
	return issues
}

// levenshtein computes edit distance with the two-row method
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

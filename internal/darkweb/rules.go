// -----------------------------------------------------------------------
// Rule engine - YARA-subset string rules for URL categorization
// -----------------------------------------------------------------------

package darkweb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
)

// Rule is one parsed string-matching rule. Only the YARA subset the rule
// files actually use is supported: literal strings with an optional
// nocase modifier, a meta score, and "any of them" / "all of them"
// conditions.
type Rule struct {
	Name       string
	Score      int
	Strings    []RuleString
	RequireAll bool
}

// RuleString is one literal pattern inside a rule
type RuleString struct {
	Value  string
	NoCase bool
}

// RuleMatch reports a rule hit on a page
type RuleMatch struct {
	Rule      *Rule
	Matched   []string
	FullMatch bool // every string in the rule matched
}

// RuleSet holds the category and keyword rules for the pipeline
type RuleSet struct {
	Categories []*Rule
	Keywords   []*Rule
}

// Empty reports whether no rules were loaded
func (rs *RuleSet) Empty() bool {
	return len(rs.Categories) == 0 && len(rs.Keywords) == 0
}

// LoadRules reads categories.yar and keywords.yar from dir. Missing files
// are not an error - the pipeline degrades to the light analyzer.
func LoadRules(dir string, logger arbor.ILogger) *RuleSet {
	rs := &RuleSet{}
	rs.Categories = loadRuleFile(filepath.Join(dir, "categories.yar"), logger)
	rs.Keywords = loadRuleFile(filepath.Join(dir, "keywords.yar"), logger)
	return rs
}

func loadRuleFile(path string, logger arbor.ILogger) []*Rule {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("Rule file unavailable; continuing without it")
		return nil
	}
	defer f.Close()

	rules, err := ParseRules(f)
	if err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("Rule file unparsable; continuing without it")
		return nil
	}
	logger.Info().Str("path", path).Int("rules", len(rules)).Msg("Rules loaded")
	return rules
}

var (
	ruleHeaderPattern = regexp.MustCompile(`^\s*rule\s+([A-Za-z0-9_]+)`)
	metaScorePattern  = regexp.MustCompile(`^\s*score\s*=\s*(\d+)`)
	ruleStringPattern = regexp.MustCompile(`^\s*\$[A-Za-z0-9_]+\s*=\s*"((?:[^"\\]|\\.)*)"\s*(nocase)?`)
)

// ParseRules parses the supported YARA subset from a reader
func ParseRules(r io.Reader) ([]*Rule, error) {
	var rules []*Rule
	var current *Rule
	section := ""

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if m := ruleHeaderPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				rules = append(rules, current)
			}
			current = &Rule{Name: m[1]}
			section = ""
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "meta:"):
			section = "meta"
			continue
		case strings.HasPrefix(line, "strings:"):
			section = "strings"
			continue
		case strings.HasPrefix(line, "condition:"):
			section = "condition"
			continue
		case line == "{":
			continue
		case line == "}":
			rules = append(rules, current)
			current = nil
			section = ""
			continue
		}

		switch section {
		case "meta":
			if m := metaScorePattern.FindStringSubmatch(line); m != nil {
				score, err := strconv.Atoi(m[1])
				if err != nil {
					return nil, fmt.Errorf("rule %s: bad score %q", current.Name, m[1])
				}
				current.Score = score
			}
		case "strings":
			if m := ruleStringPattern.FindStringSubmatch(line); m != nil {
				current.Strings = append(current.Strings, RuleString{
					Value:  unescapeRuleString(m[1]),
					NoCase: m[2] != "",
				})
			}
		case "condition":
			if strings.Contains(line, "all of them") {
				current.RequireAll = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	if current != nil {
		rules = append(rules, current)
	}
	return rules, nil
}

func unescapeRuleString(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

// Evaluate matches one rule against page text
func (r *Rule) Evaluate(text string) *RuleMatch {
	lower := strings.ToLower(text)
	var matched []string
	for _, rs := range r.Strings {
		haystack := text
		needle := rs.Value
		if rs.NoCase {
			haystack = lower
			needle = strings.ToLower(needle)
		}
		if strings.Contains(haystack, needle) {
			matched = append(matched, rs.Value)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	if r.RequireAll && len(matched) < len(r.Strings) {
		return nil
	}
	return &RuleMatch{
		Rule:      r,
		Matched:   matched,
		FullMatch: len(matched) == len(r.Strings),
	}
}

// BestMatch evaluates every rule and returns the highest-scoring hit.
// Ties resolve to the rule with more matched strings.
func BestMatch(rules []*Rule, text string) *RuleMatch {
	var best *RuleMatch
	for _, rule := range rules {
		match := rule.Evaluate(text)
		if match == nil {
			continue
		}
		if best == nil ||
			match.Rule.Score > best.Rule.Score ||
			(match.Rule.Score == best.Rule.Score && len(match.Matched) > len(best.Matched)) {
			best = match
		}
	}
	return best
}

// AllMatches evaluates every rule and returns each hit
func AllMatches(rules []*Rule, text string) []*RuleMatch {
	var matches []*RuleMatch
	for _, rule := range rules {
		if match := rule.Evaluate(text); match != nil {
			matches = append(matches, match)
		}
	}
	return matches
}

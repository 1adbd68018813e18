// -----------------------------------------------------------------------
// Page analyzer - text extraction, categorization, language, risk
// -----------------------------------------------------------------------

package darkweb

import (
	"bytes"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	"github.com/ternarybob/darkwatch/internal/models"
)

// categoryKeywords drives the light analyzer's categorization: the
// category with the most keyword hits wins.
var categoryKeywords = map[models.SiteCategory][]string{
	models.CategoryMarketplace: {"marketplace", "market", "vendor", "escrow", "listing", "shipping", "product"},
	models.CategoryForum:       {"forum", "thread", "post", "member", "reply", "board", "topic"},
	models.CategoryLeakSite:    {"leak", "leaked", "dump", "database", "breach", "stolen data", "exfiltrated"},
	models.CategoryRansomware:  {"ransomware", "ransom", "decrypt", "victims", "payment deadline", "encrypted files"},
	models.CategoryCarding:     {"carding", "cvv", "fullz", "dumps", "track2", "card number", "bins"},
	models.CategoryDrugs:       {"cocaine", "heroin", "mdma", "cannabis", "pills", "grams", "stealth shipping"},
	models.CategoryHacking:     {"exploit", "0day", "zero-day", "rat", "botnet", "malware", "hacking service"},
	models.CategoryFraud:       {"fraud", "counterfeit bills", "fake id", "passport", "ssn", "phishing kit"},
	models.CategoryCrypto:      {"bitcoin", "monero", "wallet", "mixer", "tumbler", "exchange", "cryptocurrency"},
	models.CategoryWeapons:     {"weapon", "firearm", "pistol", "rifle", "ammunition", "glock"},
	models.CategoryCounterfeit: {"replica", "counterfeit", "fake watches", "clone cards"},
	models.CategoryHosting:     {"hosting", "vps", "server", "domain", "bulletproof"},
	models.CategorySearch:      {"search engine", "index", "onion links", "directory"},
	models.CategorySocial:      {"chat", "messenger", "social", "community"},
	models.CategoryNews:        {"news", "journalism", "press", "articles"},
}

// categoryWeights feed the site risk score
var categoryWeights = map[models.SiteCategory]float64{
	models.CategoryRansomware:  0.9,
	models.CategoryLeakSite:    0.85,
	models.CategoryCarding:     0.85,
	models.CategoryWeapons:     0.8,
	models.CategoryHacking:     0.75,
	models.CategoryDrugs:       0.75,
	models.CategoryFraud:       0.7,
	models.CategoryMarketplace: 0.65,
	models.CategoryCounterfeit: 0.6,
	models.CategoryCrypto:      0.5,
	models.CategoryForum:       0.5,
	models.CategoryHosting:     0.4,
	models.CategorySocial:      0.4,
	models.CategorySearch:      0.35,
	models.CategoryNews:        0.35,
	models.CategoryUnknown:     0.3,
}

// entityWeights feed the site risk score per extracted entity type
var entityWeights = map[models.ExtractedEntityType]float64{
	models.ExtractedCreditCard:     0.3,
	models.ExtractedSSHFingerprint: 0.15,
	models.ExtractedMonero:         0.12,
	models.ExtractedEmail:          0.1,
	models.ExtractedBitcoin:        0.1,
	models.ExtractedEthereum:       0.1,
	models.ExtractedPGPKey:         0.1,
	models.ExtractedPhone:          0.08,
	models.ExtractedOnionV2:        0.05,
	models.ExtractedOnionV3:        0.05,
	models.ExtractedIPAddress:      0.05,
}

// keywordMatchWeight is added to the risk score per matched keyword
const keywordMatchWeight = 0.15

// commonEnglishWords backs the cheap language heuristic; the library
// fallback only runs when the heuristic is inconclusive
var commonEnglishWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "i",
	"it", "for", "not", "on", "with", "he", "as", "you", "do", "at",
	"this", "but", "his", "by", "from", "they", "we", "say", "her", "she",
	"or", "an", "will", "my", "one", "all", "would", "there", "their", "what",
	"so", "up", "out", "if", "about", "who", "get", "which", "go", "me",
	"when", "make", "can", "like", "time", "no", "just", "him", "know", "take",
	"people", "into", "year", "your", "good", "some", "could", "them", "see", "other",
	"than", "then", "now", "look", "only", "come", "its", "over", "think", "also",
	"back", "after", "use", "two", "how", "our", "work", "first", "well", "way",
	"even", "new", "want", "because", "any", "these", "give", "day", "most", "us",
}

// PageAnalysis is the analyzer's output for one fetched page
type PageAnalysis struct {
	Title           string
	Text            string
	Category        models.SiteCategory
	CategoryHits    int
	Language        string
	Entities        []models.ExtractedEntity
	KeywordsMatched []string
	OutboundOnions  []string
	RiskScore       float64
	ThreatLevel     models.ThreatLevel
}

// Analyzer turns raw page HTML into a structured analysis
type Analyzer struct {
	converter *md.Converter
}

// NewAnalyzer creates the page analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{converter: md.NewConverter("", true, nil)}
}

// Analyze extracts text, categorizes, detects language, extracts entities
// and outbound onion links, matches monitored keywords, and scores risk.
func (a *Analyzer) Analyze(pageURL string, body []byte, keywords []string) *PageAnalysis {
	analysis := &PageAnalysis{Category: models.CategoryUnknown}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if docErr == nil {
		analysis.Title = strings.TrimSpace(doc.Find("title").First().Text())
		analysis.OutboundOnions = outboundOnionLinks(doc, pageURL)
	}

	text, err := a.converter.ConvertString(string(body))
	if err != nil || strings.TrimSpace(text) == "" {
		if docErr == nil {
			text = doc.Text()
		} else {
			text = string(body)
		}
	}
	analysis.Text = strings.TrimSpace(text)

	lower := strings.ToLower(analysis.Text)
	analysis.Category, analysis.CategoryHits = categorize(lower)
	analysis.Language = detectLanguage(analysis.Text)
	analysis.Entities = ExtractEntities(analysis.Text, pageURL)

	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			analysis.KeywordsMatched = append(analysis.KeywordsMatched, keyword)
		}
	}

	analysis.RiskScore = siteRiskScore(analysis.Category, analysis.Entities, len(analysis.KeywordsMatched))
	analysis.ThreatLevel = threatLevelFor(analysis.RiskScore)
	return analysis
}

// categorize picks the category with the most keyword hits
func categorize(lowerText string) (models.SiteCategory, int) {
	best := models.CategoryUnknown
	bestHits := 0

	categories := make([]models.SiteCategory, 0, len(categoryKeywords))
	for category := range categoryKeywords {
		categories = append(categories, category)
	}
	// Stable iteration so ties resolve deterministically
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	for _, category := range categories {
		hits := 0
		for _, keyword := range categoryKeywords[category] {
			hits += strings.Count(lowerText, keyword)
		}
		if hits > bestHits {
			best = category
			bestHits = hits
		}
	}
	return best, bestHits
}

// detectLanguage counts common english words first; the library fallback
// handles everything the heuristic cannot decide. Texts under 10 chars
// are unknown.
func detectLanguage(text string) string {
	if len(strings.TrimSpace(text)) < 10 {
		return "unknown"
	}

	words := strings.Fields(strings.ToLower(text))
	sample := words
	if len(sample) > 500 {
		sample = sample[:500]
	}
	englishHits := 0
	for _, word := range sample {
		for _, common := range commonEnglishWords {
			if word == common {
				englishHits++
				break
			}
		}
	}
	if len(sample) > 0 && float64(englishHits)/float64(len(sample)) > 0.15 {
		return "en"
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "unknown"
	}
	return info.Lang.Iso6391()
}

// siteRiskScore combines category, entity, and keyword weights, capped at 1.0
func siteRiskScore(category models.SiteCategory, entities []models.ExtractedEntity, keywordMatches int) float64 {
	score, ok := categoryWeights[category]
	if !ok {
		score = categoryWeights[models.CategoryUnknown]
	}
	for _, entity := range entities {
		score += entityWeights[entity.EntityType]
	}
	score += keywordMatchWeight * float64(keywordMatches)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// threatLevelFor maps a 0-1 risk score onto the threat scale
func threatLevelFor(score float64) models.ThreatLevel {
	switch {
	case score >= 0.8:
		return models.ThreatCritical
	case score >= 0.6:
		return models.ThreatHigh
	case score >= 0.4:
		return models.ThreatMedium
	case score >= 0.2:
		return models.ThreatLow
	default:
		return models.ThreatInfo
	}
}

// outboundOnionLinks collects absolute .onion links off the page,
// excluding links back to the page's own host
func outboundOnionLinks(doc *goquery.Document, pageURL string) []string {
	ownHost := hostOfURL(pageURL)
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		normalized := normalizeOnionURL(href)
		if !isOnionURL(normalized) {
			return
		}
		if hostOfURL(normalized) == ownHost {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	sort.Strings(links)
	return links
}

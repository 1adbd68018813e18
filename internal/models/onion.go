// -----------------------------------------------------------------------
// Dark-web types - onion sites, extracted entities, brand mentions
// -----------------------------------------------------------------------

package models

import "time"

// SiteCategory classifies an onion site by its dominant content
type SiteCategory string

const (
	CategoryMarketplace SiteCategory = "marketplace"
	CategoryForum       SiteCategory = "forum"
	CategoryLeakSite    SiteCategory = "leak_site"
	CategoryRansomware  SiteCategory = "ransomware"
	CategoryCarding     SiteCategory = "carding"
	CategoryDrugs       SiteCategory = "drugs"
	CategoryHacking     SiteCategory = "hacking"
	CategoryFraud       SiteCategory = "fraud"
	CategoryCrypto      SiteCategory = "crypto"
	CategoryWeapons     SiteCategory = "weapons"
	CategoryCounterfeit SiteCategory = "counterfeit"
	CategoryHosting     SiteCategory = "hosting"
	CategorySearch      SiteCategory = "search"
	CategorySocial      SiteCategory = "social"
	CategoryNews        SiteCategory = "news"
	CategoryUnknown     SiteCategory = "unknown"
)

// ThreatLevel mirrors finding severity for dark-web sites
type ThreatLevel string

const (
	ThreatCritical ThreatLevel = "critical"
	ThreatHigh     ThreatLevel = "high"
	ThreatMedium   ThreatLevel = "medium"
	ThreatLow      ThreatLevel = "low"
	ThreatInfo     ThreatLevel = "info"
)

// Severity converts a threat level to the finding severity scale
func (t ThreatLevel) Severity() Severity {
	switch t {
	case ThreatCritical:
		return SeverityCritical
	case ThreatHigh:
		return SeverityHigh
	case ThreatMedium:
		return SeverityMedium
	case ThreatLow:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// OnionSite is one crawled dark-web site. SiteID is a pure function of the
// URL (truncated SHA-256), so clones of the same content at different URLs
// have equal ContentHash but distinct SiteIDs.
type OnionSite struct {
	SiteID            string            `json:"site_id"`
	URL               string            `json:"url"`
	Title             string            `json:"title"`
	Category          SiteCategory      `json:"category"`
	ThreatLevel       ThreatLevel       `json:"threat_level"`
	Language          string            `json:"language"`
	ContentHash       string            `json:"content_hash"` // SHA-256 of normalized text
	LinkedSites       []string          `json:"linked_sites"` // site IDs
	ExtractedEntities []ExtractedEntity `json:"extracted_entities"`
	KeywordsMatched   []string          `json:"keywords_matched"`
	RiskScore         float64           `json:"risk_score"` // 0.0-1.0
	FirstSeen         time.Time         `json:"first_seen"`
	LastSeen          time.Time         `json:"last_seen"`
	IsOnline          bool              `json:"is_online"`
	PageCount         int               `json:"page_count"`
}

// ExtractedEntityType enumerates the canonical entity regexes
type ExtractedEntityType string

const (
	ExtractedEmail          ExtractedEntityType = "email"
	ExtractedBitcoin        ExtractedEntityType = "bitcoin"
	ExtractedEthereum       ExtractedEntityType = "ethereum"
	ExtractedMonero         ExtractedEntityType = "monero"
	ExtractedOnionV2        ExtractedEntityType = "onion_v2"
	ExtractedOnionV3        ExtractedEntityType = "onion_v3"
	ExtractedSSHFingerprint ExtractedEntityType = "ssh_fingerprint"
	ExtractedPGPKey         ExtractedEntityType = "pgp_key"
	ExtractedPhone          ExtractedEntityType = "phone"
	ExtractedIPAddress      ExtractedEntityType = "ip_address"
	ExtractedCreditCard     ExtractedEntityType = "credit_card"
)

// ExtractedEntity is one regex hit in crawled page text, carrying +/-50
// chars of surrounding context.
type ExtractedEntity struct {
	EntityType ExtractedEntityType `json:"entity_type"`
	Value      string              `json:"value"`
	Context    string              `json:"context"`
	SourceURL  string              `json:"source_url"`
	Confidence float64             `json:"confidence"`
}

// BrandMention records a monitored keyword matched on a crawled site
type BrandMention struct {
	MentionID string      `json:"mention_id"` // short hash of (keyword, url, time)
	Keyword   string      `json:"keyword"`
	URL       string      `json:"url"`
	SiteID    string      `json:"site_id"`
	Snippet   string      `json:"snippet"`
	Threat    ThreatLevel `json:"threat"`
	SeenAt    time.Time   `json:"seen_at"`
}

// CrawlTask is one pending URL in the crawl priority queue.
// Lower Priority value = crawled first.
type CrawlTask struct {
	JobID           string    `json:"job_id"`
	TargetURL       string    `json:"target_url"`
	Priority        int       `json:"priority"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Depth           int       `json:"depth"`
	ExtractEntities bool      `json:"extract_entities"`
}

// CrawlRecord is one entry in the append-only crawl history
type CrawlRecord struct {
	URL       string       `json:"url"`
	SiteID    string       `json:"site_id"`
	Category  SiteCategory `json:"category"`
	Threat    ThreatLevel  `json:"threat"`
	Succeeded bool         `json:"succeeded"`
	Error     string       `json:"error,omitempty"`
	CrawledAt time.Time    `json:"crawled_at"`
}

// URLRecord is a row in the durable discovered-URL database
type URLRecord struct {
	ID                 uint64    `json:"id" badgerhold:"key"`
	Type               string    `json:"type"`
	URL                string    `json:"url" badgerhold:"unique"`
	Title              string    `json:"title"`
	BaseURL            string    `json:"baseurl"`
	Status             string    `json:"status"` // "New", "Online", "Offline"
	CountStatus        int       `json:"count_status"`
	Source             string    `json:"source"`
	Categorie          string    `json:"categorie"`
	ScoreCategorie     int       `json:"score_categorie"`
	Keywords           string    `json:"keywords"`
	ScoreKeywords      int       `json:"score_keywords"`
	DiscoveryDate      time.Time `json:"discovery_date"`
	LastScan           time.Time `json:"lastscan"`
	FullMatchCategorie bool      `json:"full_match_categorie"`
}

// TunnelDetection is a connection-keyed covert-channel indicator
type TunnelDetection struct {
	ConnectionKey string    `json:"connection_key"`
	Protocol      string    `json:"protocol"`
	Indicators    []string  `json:"indicators"`
	RiskScore     float64   `json:"risk_score"`
	Confidence    float64   `json:"confidence"`
	DetectedAt    time.Time `json:"detected_at"`
}

// BeaconingPattern is a connection-keyed periodic-callback indicator
type BeaconingPattern struct {
	ConnectionKey   string    `json:"connection_key"`
	IntervalSeconds float64   `json:"interval_seconds"`
	Jitter          float64   `json:"jitter"`
	SampleCount     int       `json:"sample_count"`
	Indicators      []string  `json:"indicators"`
	RiskScore       float64   `json:"risk_score"`
	Confidence      float64   `json:"confidence"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

// -----------------------------------------------------------------------
// Finding - immutable, severity-scored observation about a target
// -----------------------------------------------------------------------

package models

import "time"

// Severity classifies a finding's impact
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities; higher rank means more severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Finding is an immutable observation published by a collector. Every
// finding belongs to exactly one job via Evidence["job_id"].
type Finding struct {
	ID              string                 `json:"id"`
	Capability      Capability             `json:"capability"`
	Severity        Severity               `json:"severity"`
	RiskScore       float64                `json:"risk_score"` // 0-100, agrees monotonically with severity
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Evidence        map[string]interface{} `json:"evidence"`
	AffectedAssets  []string               `json:"affected_assets"`
	Recommendations []string               `json:"recommendations"`
	Target          string                 `json:"target"` // denormalized from the job
	DiscoveredAt    time.Time              `json:"discovered_at"`
}

// JobID returns the owning job recorded in evidence
func (f *Finding) JobID() string {
	if f.Evidence == nil {
		return ""
	}
	id, _ := f.Evidence["job_id"].(string)
	return id
}

// EvidenceString retrieves a string value from evidence
func (f *Finding) EvidenceString(key string) (string, bool) {
	if f.Evidence == nil {
		return "", false
	}
	v, ok := f.Evidence[key].(string)
	return v, ok
}

// ToDict returns the wire shape used in observer "finding" events
func (f *Finding) ToDict() map[string]interface{} {
	return map[string]interface{}{
		"id":              f.ID,
		"capability":      string(f.Capability),
		"severity":        string(f.Severity),
		"risk_score":      f.RiskScore,
		"title":           f.Title,
		"description":     f.Description,
		"evidence":        f.Evidence,
		"affected_assets": f.AffectedAssets,
		"recommendations": f.Recommendations,
		"target":          f.Target,
		"discovered_at":   f.DiscoveredAt.Format(time.RFC3339Nano),
	}
}

// PositiveIndicator records a per-user condition that raises the risk
// score (a resolved finding, a strong configuration). Immutable once written.
type PositiveIndicator struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	Target      string                 `json:"target"`
	Category    string                 `json:"category"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	ScoreBonus  float64                `json:"score_bonus"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Notification is a persisted notification record. Dispatch (email, web
// push) lives outside this system; only the record is kept here.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	JobID     string    `json:"job_id,omitempty"`
	FindingID string    `json:"finding_id,omitempty"`
	Severity  Severity  `json:"severity,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

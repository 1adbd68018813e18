package interfaces

import (
	"context"

	"github.com/ternarybob/darkwatch/internal/models"
)

// Scope carries the caller's identity into a storage operation.
// Non-admin reads are filtered to the scope's user; non-admin writes are
// stamped with it.
type Scope struct {
	UserID  string
	IsAdmin bool
}

// AdminScope is the unrestricted scope used by system-internal writes
var AdminScope = Scope{IsAdmin: true}

// JobListOptions filters job queries
type JobListOptions struct {
	Capability models.Capability
	Status     models.JobStatus
	Target     string
	Limit      int
	Offset     int
}

// JobStorage persists jobs
type JobStorage interface {
	SaveJob(ctx context.Context, scope Scope, job *models.Job) error
	GetJob(ctx context.Context, scope Scope, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, scope Scope, opts *JobListOptions) ([]*models.Job, error)
	DeleteJob(ctx context.Context, scope Scope, jobID string) error
}

// FindingStorage persists findings
type FindingStorage interface {
	SaveFinding(ctx context.Context, scope Scope, finding *models.Finding) error
	SaveFindings(ctx context.Context, scope Scope, findings []models.Finding) error
	GetFindingsByJob(ctx context.Context, scope Scope, jobID string) ([]models.Finding, error)
	GetFindingsByTarget(ctx context.Context, scope Scope, target string) ([]models.Finding, error)
	ListFindings(ctx context.Context, scope Scope, capability models.Capability, limit int) ([]models.Finding, error)
}

// GraphStorage persists the domain graph
type GraphStorage interface {
	SaveEntity(ctx context.Context, scope Scope, entity *models.GraphEntity) error
	GetEntity(ctx context.Context, scope Scope, entityID string) (*models.GraphEntity, error)
	GetEntitiesByType(ctx context.Context, scope Scope, entityType string) ([]*models.GraphEntity, error)
	GetEntityByValue(ctx context.Context, scope Scope, entityType, value string) (*models.GraphEntity, error)
	SaveEdge(ctx context.Context, scope Scope, edge *models.GraphEdge) error
	GetEdgesFrom(ctx context.Context, scope Scope, entityID string) ([]*models.GraphEdge, error)
	GetEdgesTo(ctx context.Context, scope Scope, entityID string) ([]*models.GraphEdge, error)
	AllEdges(ctx context.Context, scope Scope) ([]*models.GraphEdge, error)
}

// IndicatorStorage persists positive indicators
type IndicatorStorage interface {
	SaveIndicator(ctx context.Context, scope Scope, indicator *models.PositiveIndicator) error
	GetIndicatorsByTarget(ctx context.Context, scope Scope, target string) ([]*models.PositiveIndicator, error)
}

// NotificationStorage persists notification records
type NotificationStorage interface {
	SaveNotification(ctx context.Context, scope Scope, n *models.Notification) error
	ListNotifications(ctx context.Context, scope Scope, unreadOnly bool, limit int) ([]*models.Notification, error)
}

// ScoreStorage persists risk score history (bounded ring per target)
type ScoreStorage interface {
	SaveScore(ctx context.Context, scope Scope, score *models.RiskScore) error
	GetScoreHistory(ctx context.Context, scope Scope, target string, limit int) ([]*models.RiskScore, error)
}

// NetworkLogStorage persists per-connection network telemetry
type NetworkLogStorage interface {
	SaveNetworkLogs(ctx context.Context, scope Scope, logs []models.NetworkLog) error
	GetNetworkLogsByTarget(ctx context.Context, scope Scope, target string) ([]models.NetworkLog, error)
	GetNetworkLogsByConnection(ctx context.Context, scope Scope, connectionKey string) ([]models.NetworkLog, error)
}

// URLSelectOptions filters URL database reads
type URLSelectOptions struct {
	MinCategorie int
	MinKeywords  int
	Limit        int
}

// URLStorage is the durable URL database for the dark-web pipeline
type URLStorage interface {
	Save(ctx context.Context, url, source, urlType, baseURL string) error
	BatchSave(ctx context.Context, urls []string, source, urlType, baseURL string) (int, error)
	SelectURL(ctx context.Context, url string) (*models.URLRecord, error)
	Select(ctx context.Context, opts *URLSelectOptions) ([]*models.URLRecord, error)
	UpdateStatus(ctx context.Context, id uint64, url string, httpCode int, countCategories int) error
	UpdateCategorie(ctx context.Context, id uint64, categorie, title string, fullMatch bool, scoreCategorie, scoreKeywords int, fullMatchKeywords string) error
}

// StorageManager exposes the per-concern stores
type StorageManager interface {
	JobStorage() JobStorage
	FindingStorage() FindingStorage
	GraphStorage() GraphStorage
	IndicatorStorage() IndicatorStorage
	NotificationStorage() NotificationStorage
	ScoreStorage() ScoreStorage
	URLStorage() URLStorage
	NetworkLogStorage() NetworkLogStorage
	Close() error
}

package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	job          interfaces.JobStorage
	finding      interfaces.FindingStorage
	graph        interfaces.GraphStorage
	indicator    interfaces.IndicatorStorage
	notification interfaces.NotificationStorage
	score        interfaces.ScoreStorage
	url          interfaces.URLStorage
	netlog       interfaces.NetworkLogStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		job:          NewJobStorage(db, logger),
		finding:      NewFindingStorage(db, logger),
		graph:        NewGraphStorage(db, logger),
		indicator:    NewIndicatorStorage(db, logger),
		notification: NewNotificationStorage(db, logger),
		score:        NewScoreStorage(db, logger),
		url:          NewURLStorage(db, logger),
		netlog:       NewNetworkLogStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// FindingStorage returns the Finding storage interface
func (m *Manager) FindingStorage() interfaces.FindingStorage {
	return m.finding
}

// GraphStorage returns the Graph storage interface
func (m *Manager) GraphStorage() interfaces.GraphStorage {
	return m.graph
}

// IndicatorStorage returns the PositiveIndicator storage interface
func (m *Manager) IndicatorStorage() interfaces.IndicatorStorage {
	return m.indicator
}

// NotificationStorage returns the Notification storage interface
func (m *Manager) NotificationStorage() interfaces.NotificationStorage {
	return m.notification
}

// ScoreStorage returns the RiskScore storage interface
func (m *Manager) ScoreStorage() interfaces.ScoreStorage {
	return m.score
}

// URLStorage returns the URL database interface
func (m *Manager) URLStorage() interfaces.URLStorage {
	return m.url
}

// NetworkLogStorage returns the network telemetry interface
func (m *Manager) NetworkLogStorage() interfaces.NetworkLogStorage {
	return m.netlog
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

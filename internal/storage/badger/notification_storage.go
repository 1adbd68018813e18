package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// NotificationStorage implements the NotificationStorage interface for Badger
type NotificationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNotificationStorage creates a new NotificationStorage instance
func NewNotificationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NotificationStorage {
	return &NotificationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NotificationStorage) SaveNotification(ctx context.Context, scope interfaces.Scope, n *models.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("notification ID is required")
	}
	if !scope.IsAdmin && scope.UserID != "" {
		n.UserID = scope.UserID
	}
	if err := s.db.Store().Upsert(n.ID, n); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *NotificationStorage) ListNotifications(ctx context.Context, scope interfaces.Scope, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := badgerhold.Where("ID").Ne("")
	if !scope.IsAdmin {
		query = query.And("UserID").Eq(scope.UserID)
	}
	if unreadOnly {
		query = query.And("Read").Eq(false)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var notifications []models.Notification
	if err := s.db.Store().Find(&notifications, query); err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	result := make([]*models.Notification, len(notifications))
	for i := range notifications {
		result[i] = &notifications[i]
	}
	return result, nil
}

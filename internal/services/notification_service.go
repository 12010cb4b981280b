package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/pkg/apperrors"
)

type NotificationList struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Unread        int64                 `json:"unread"`
}

type NotificationService interface {
	GetUserNotifications(ctx context.Context, db *gorm.DB, caller Caller, criteria repositories.NotificationCriteria) (*NotificationList, error)
	MarkAsRead(ctx context.Context, db *gorm.DB, caller Caller, notificationID string) error
	MarkAllAsRead(ctx context.Context, db *gorm.DB, caller Caller) error
	GetUnreadCount(ctx context.Context, db *gorm.DB, caller Caller) (int64, error)
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
}

func NewNotificationService(notificationRepo repositories.NotificationRepository) NotificationService {
	return &notificationService{notificationRepo: notificationRepo}
}

func (s *notificationService) GetUserNotifications(ctx context.Context, db *gorm.DB, caller Caller, criteria repositories.NotificationCriteria) (*NotificationList, error) {
	items, total, err := s.notificationRepo.FindUserNotifications(db, caller.UserID, criteria)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	unread, err := s.notificationRepo.GetUnreadCount(db, caller.UserID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &NotificationList{Notifications: items, Total: total, Unread: unread}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, db *gorm.DB, caller Caller, notificationID string) error {
	err := s.notificationRepo.MarkAsRead(db, caller.UserID, notificationID)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return apperrors.ErrNotFound(err, "notification", "Notification not found")
	}
	if err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, db *gorm.DB, caller Caller) error {
	if err := s.notificationRepo.MarkAllAsRead(db, caller.UserID); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

func (s *notificationService) GetUnreadCount(ctx context.Context, db *gorm.DB, caller Caller) (int64, error) {
	count, err := s.notificationRepo.GetUnreadCount(db, caller.UserID)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	return count, nil
}

package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commission_backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidNotificationData = errors.New("invalid notification data")

// Notification types
const (
	NotificationTypeOrderPaid          = "order_paid"
	NotificationTypeRevisionsPurchased = "revisions_purchased"
	NotificationTypeExtensionPurchased = "extension_purchased"
	NotificationTypePinPackPurchased   = "pin_pack_purchased"
	NotificationTypeRevisionRequested  = "revision_requested"
	NotificationTypeStatusChanged      = "status_changed"
	NotificationTypeEngineerAssigned   = "engineer_assigned"
	NotificationTypePlanUploaded       = "plan_uploaded"
	NotificationTypeOrderArchived      = "order_archived"
	NotificationTypeArchiveWarning     = "archive_warning"
	NotificationTypeFilesPurged        = "files_purged"
)

var validNotificationTypes = map[string]bool{
	NotificationTypeOrderPaid:          true,
	NotificationTypeRevisionsPurchased: true,
	NotificationTypeExtensionPurchased: true,
	NotificationTypePinPackPurchased:   true,
	NotificationTypeRevisionRequested:  true,
	NotificationTypeStatusChanged:      true,
	NotificationTypeEngineerAssigned:   true,
	NotificationTypePlanUploaded:       true,
	NotificationTypeOrderArchived:      true,
	NotificationTypeArchiveWarning:     true,
	NotificationTypeFilesPurged:        true,
}

type NotificationRepository interface {
	CreateNotification(db *gorm.DB, notification *models.Notification) error
	FindUserNotifications(db *gorm.DB, userID string, criteria NotificationCriteria) ([]models.Notification, int64, error)
	MarkAsRead(db *gorm.DB, userID, notificationID string) error
	MarkAllAsRead(db *gorm.DB, userID string) error
	GetUnreadCount(db *gorm.DB, userID string) (int64, error)

	// Factory methods used by the archive scheduler inside its transactions
	CreateOrderArchivedNotification(db *gorm.DB, order *models.Order) (*models.Notification, error)
	CreateArchiveWarningNotification(db *gorm.DB, order *models.Order, purgeDate time.Time) (*models.Notification, error)
	CreateFilesPurgedNotification(db *gorm.DB, order *models.Order) (*models.Notification, error)
}

type NotificationCriteria struct {
	UnreadOnly bool   `form:"unread_only"`
	Type       string `form:"type"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

type NotificationRepositoryImpl struct{}

func NewNotificationRepository() NotificationRepository {
	return &NotificationRepositoryImpl{}
}

// NewOrderNotification builds an unsaved notification for an order event.
func NewOrderNotification(userID string, order *models.Order, notificationType, title, message string, data map[string]interface{}) (*models.Notification, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	var orderID *string
	if order != nil {
		id := order.ID
		orderID = &id
		data["order_id"] = order.ID
		data["order_number"] = order.OrderNumber
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotificationData, err)
	}

	return &models.Notification{
		UserID:  userID,
		OrderID: orderID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Data:    datatypes.JSON(raw),
	}, nil
}

func (r *NotificationRepositoryImpl) CreateNotification(db *gorm.DB, notification *models.Notification) error {
	if err := validateNotification(notification); err != nil {
		return err
	}
	return db.Create(notification).Error
}

func (r *NotificationRepositoryImpl) FindUserNotifications(db *gorm.DB, userID string, criteria NotificationCriteria) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	query := db.Model(&models.Notification{}).Where("user_id = ?", userID)

	if criteria.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if criteria.Type != "" {
		query = query.Where("type = ?", criteria.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(criteria.Page, criteria.PageSize)
	err := query.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&notifications).Error

	return notifications, total, err
}

func (r *NotificationRepositoryImpl) MarkAsRead(db *gorm.DB, userID, notificationID string) error {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(db *gorm.DB, userID string) error {
	return db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		}).Error
}

func (r *NotificationRepositoryImpl) GetUnreadCount(db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// Factory methods

func (r *NotificationRepositoryImpl) CreateOrderArchivedNotification(db *gorm.DB, order *models.Order) (*models.Notification, error) {
	n, err := OrderArchivedNotification(order)
	if err != nil {
		return nil, err
	}
	return r.save(db, n)
}

func (r *NotificationRepositoryImpl) CreateArchiveWarningNotification(db *gorm.DB, order *models.Order, purgeDate time.Time) (*models.Notification, error) {
	n, err := ArchiveWarningNotification(order, purgeDate)
	if err != nil {
		return nil, err
	}
	return r.save(db, n)
}

func (r *NotificationRepositoryImpl) CreateFilesPurgedNotification(db *gorm.DB, order *models.Order) (*models.Notification, error) {
	n, err := FilesPurgedNotification(order)
	if err != nil {
		return nil, err
	}
	return r.save(db, n)
}

func (r *NotificationRepositoryImpl) save(db *gorm.DB, n *models.Notification) (*models.Notification, error) {
	if err := r.CreateNotification(db, n); err != nil {
		return nil, err
	}
	return n, nil
}

// OrderArchivedNotification tells the client the deadline passed.
func OrderArchivedNotification(order *models.Order) (*models.Notification, error) {
	return NewOrderNotification(order.ClientID, order, NotificationTypeOrderArchived,
		"Order archived",
		fmt.Sprintf("Order %s passed its deadline and was archived. Buy an extension to continue.", order.OrderNumber),
		map[string]interface{}{"deadline": order.Deadline.Format(time.RFC3339)})
}

// ArchiveWarningNotification names the date the order's files will be purged.
func ArchiveWarningNotification(order *models.Order, purgeDate time.Time) (*models.Notification, error) {
	return NewOrderNotification(order.ClientID, order, NotificationTypeArchiveWarning,
		"Files will be deleted soon",
		fmt.Sprintf("The files of order %s will be deleted on %s. Download them before that date.",
			order.OrderNumber, purgeDate.Format("2006-01-02")),
		map[string]interface{}{"purge_date": purgeDate.Format(time.RFC3339)})
}

func FilesPurgedNotification(order *models.Order) (*models.Notification, error) {
	return NewOrderNotification(order.ClientID, order, NotificationTypeFilesPurged,
		"Files deleted",
		fmt.Sprintf("The files of order %s were deleted after the retention period.", order.OrderNumber),
		nil)
}

func validateNotification(notification *models.Notification) error {
	if notification.UserID == "" {
		return errors.New("user ID is required")
	}
	if notification.Title == "" {
		return errors.New("notification title is required")
	}
	if !validNotificationTypes[notification.Type] {
		return fmt.Errorf("invalid notification type: %s", notification.Type)
	}
	if len(notification.Data) > 0 && !json.Valid(notification.Data) {
		return ErrInvalidNotificationData
	}
	return nil
}

// ValidateNotification is exported for alternative repository implementations.
func ValidateNotification(notification *models.Notification) error {
	return validateNotification(notification)
}

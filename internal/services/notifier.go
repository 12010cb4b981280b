package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commission_backend/internal/events"
	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
)

// Notifier is the fire-and-forget notification sink. Failures are logged and
// never reach the caller.
type Notifier interface {
	// Notify stores and publishes a new notification.
	Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{})
	// Announce publishes notifications already committed together with an order change.
	Announce(ctx context.Context, notifications ...models.Notification)
}

// Dispatcher delivers notifications on background goroutines.
type Dispatcher struct {
	db               *gorm.DB
	notificationRepo repositories.NotificationRepository
	publisher        events.Publisher
	wg               sync.WaitGroup
}

func NewDispatcher(db *gorm.DB, notificationRepo repositories.NotificationRepository, publisher events.Publisher) *Dispatcher {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Dispatcher{
		db:               db,
		notificationRepo: notificationRepo,
		publisher:        publisher,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{}) {
	ctx = context.WithoutCancel(ctx)
	d.goSafe(ctx, notificationType, func() {
		raw, err := json.Marshal(data)
		if err != nil {
			logger.CtxWithError(ctx, "notification data not serializable", err, "type", notificationType)
			return
		}
		n := &models.Notification{
			UserID:  userID,
			Type:    notificationType,
			Title:   title,
			Message: message,
			Data:    raw,
		}
		if orderID, ok := data["order_id"].(string); ok && orderID != "" {
			n.OrderID = &orderID
		}
		if err := d.notificationRepo.CreateNotification(d.db, n); err != nil {
			logger.CtxWithError(ctx, "failed to store notification", err, "type", notificationType, "recipient", userID)
			return
		}
		d.publish(ctx, *n)
	})
}

func (d *Dispatcher) Announce(ctx context.Context, notifications ...models.Notification) {
	if len(notifications) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.goSafe(ctx, "announce", func() {
		for _, n := range notifications {
			d.publish(ctx, n)
		}
	})
}

// Wait blocks until every dispatched notification has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) goSafe(ctx context.Context, op string, fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.CtxError(ctx, "notification dispatch panicked", "operation", op, "panic", r)
			}
		}()
		fn()
	}()
}

func (d *Dispatcher) publish(ctx context.Context, n models.Notification) {
	event := events.OrderEvent{
		EventID:   uuid.NewString(),
		Type:      n.Type,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: time.Now().UTC(),
		RequestID: logger.GetRequestID(ctx),
	}
	if n.OrderID != nil {
		event.OrderID = *n.OrderID
	}
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &event.Data); err != nil {
			logger.CtxWarn(ctx, "notification data is not an object", "notification_id", n.ID)
		}
	}

	if err := d.publisher.Publish(ctx, event); err != nil {
		logger.CtxWithError(ctx, "failed to publish order event", err,
			"type", n.Type, "order_id", event.OrderID)
	}
}

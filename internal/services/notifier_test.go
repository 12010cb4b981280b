package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"commission_backend/internal/events"
	"commission_backend/internal/events/mocks"
	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/internal/repositories/repotest"
)

func TestDispatcher_NotifyStoresAndPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	store := repotest.NewStore()
	d := NewDispatcher(nil, store, publisher)

	var got events.OrderEvent
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, event events.OrderEvent) error {
			got = event
			return nil
		})

	ctx, cancel := context.WithCancel(logger.WithRequestID(context.Background(), "req-1"))
	d.Notify(ctx, engineerID, repositories.NotificationTypeEngineerAssigned, "New order assigned", "You were assigned.",
		map[string]interface{}{"order_id": "order-1"})
	// Delivery must survive the request ending.
	cancel()
	d.Wait()

	stored := store.Notifications()
	require.Len(t, stored, 1)
	assert.Equal(t, engineerID, stored[0].UserID)
	require.NotNil(t, stored[0].OrderID)
	assert.Equal(t, "order-1", *stored[0].OrderID)

	assert.Equal(t, repositories.NotificationTypeEngineerAssigned, got.Type)
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "order-1", got.Data["order_id"])
	assert.NotEmpty(t, got.EventID)
}

func TestDispatcher_InvalidNotificationIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	store := repotest.NewStore()
	d := NewDispatcher(nil, store, publisher)

	// Unknown types never reach the publisher.
	d.Notify(context.Background(), clientID, "made_up", "Title", "", nil)
	d.Wait()

	assert.Empty(t, store.Notifications())
}

func TestDispatcher_AnnouncePublishesEachAndSwallowsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	d := NewDispatcher(nil, repotest.NewStore(), publisher)

	order := &models.Order{BaseModel: models.BaseModel{ID: "order-2"}, OrderNumber: "ORD-2", ClientID: clientID}
	first, err := repositories.OrderArchivedNotification(order)
	require.NoError(t, err)
	second, err := repositories.FilesPurgedNotification(order)
	require.NoError(t, err)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, event events.OrderEvent) error {
			assert.Equal(t, repositories.NotificationTypeFilesPurged, event.Type)
			assert.Equal(t, "order-2", event.OrderID)
			assert.Equal(t, "ORD-2", event.Data["order_number"])
			return nil
		})

	d.Announce(context.Background(), *first, *second)
	d.Wait()
}

func TestDispatcher_DefaultsToNoopPublisher(t *testing.T) {
	store := repotest.NewStore()
	d := NewDispatcher(nil, store, nil)

	d.Notify(context.Background(), clientID, repositories.NotificationTypeOrderPaid, "Payment received", "", nil)
	d.Wait()

	assert.Len(t, store.Notifications(), 1)
}

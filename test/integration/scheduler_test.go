package integration_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/test/helpers"
)

func seedSchedulerOrder(t *testing.T, db *gorm.DB, n int, status models.OrderStatus, deadline time.Time, mutate func(o *models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   fmt.Sprintf("ORD-SCHED-%03d", n),
		Status:        status,
		ClientID:      uuid.NewString(),
		PackageID:     uuid.NewString(),
		PackageNameAr: "باقة",
		PackagePrice:  decimal.NewFromInt(1000),
		Deadline:      deadline,
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestOrderRepository_PurgeCandidatesPageByDeadlineAndID(t *testing.T) {
	db := helpers.OpenTestDB(t)
	repo := repositories.NewOrderRepository()
	now := time.Now().UTC().Truncate(time.Second)
	deadline := now.Add(-60 * 24 * time.Hour)

	want := map[string]bool{}
	for i := 0; i < 5; i++ {
		order := seedSchedulerOrder(t, db, i, models.OrderStatusArchived, deadline, nil)
		want[order.ID] = true
	}

	seen := map[string]bool{}
	var after *repositories.OrderCursor
	for pages := 0; pages < 10; pages++ {
		batch, err := repo.FindPurgeCandidates(db, now.Add(-45*24*time.Hour), after, 2)
		require.NoError(t, err)
		for _, order := range batch {
			assert.False(t, seen[order.ID], "order %s returned twice", order.ID)
			seen[order.ID] = true
		}
		if len(batch) < 2 {
			break
		}
		after = repositories.CursorAt(batch[len(batch)-1])
	}
	assert.Equal(t, want, seen)
}

func TestOrderRepository_ExpiredOrdersSkipLaterReactivation(t *testing.T) {
	db := helpers.OpenTestDB(t)
	repo := repositories.NewOrderRepository()
	now := time.Now().UTC().Truncate(time.Second)
	day := 24 * time.Hour

	expired := seedSchedulerOrder(t, db, 1, models.OrderStatusReview, now.Add(-2*day), nil)
	seedSchedulerOrder(t, db, 2, models.OrderStatusReview, now.Add(-9*day), func(o *models.Order) {
		reactivated := now.Add(-day)
		o.ReactivatedAt = &reactivated
	})
	lapsed := seedSchedulerOrder(t, db, 3, models.OrderStatusCompleted, now.Add(-day), func(o *models.Order) {
		reactivated := now.Add(-5 * day)
		o.ReactivatedAt = &reactivated
	})

	orders, err := repo.FindExpiredOpenOrders(db, now, nil, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, expired.ID, orders[0].ID)
	assert.Equal(t, lapsed.ID, orders[1].ID)
}

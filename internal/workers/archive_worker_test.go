package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"commission_backend/internal/models"
	"commission_backend/internal/redis"
	"commission_backend/internal/repositories"
	"commission_backend/internal/repositories/repotest"
	"commission_backend/internal/services"
	"commission_backend/internal/storage"
	"commission_backend/internal/workers/mocks"
)

var runTime = time.Date(2026, 5, 20, 3, 0, 0, 0, time.UTC)

const clientID = "7d1f0a52-3c1b-4f7e-9a55-0c2f3d9b8e11"

type announcements struct {
	mu    sync.Mutex
	items []models.Notification
}

func (a *announcements) Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{}) {
}

func (a *announcements) Announce(ctx context.Context, notifications ...models.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, notifications...)
}

func (a *announcements) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, n := range a.items {
		out = append(out, n.Type)
	}
	return out
}

type workerEnv struct {
	store     *repotest.Store
	local     *storage.LocalStorage
	blobs     storage.BlobStore
	announced *announcements
	worker    *ArchiveWorker
	now       time.Time
	seq       int
}

func newWorkerEnv(t *testing.T, locker Locker) *workerEnv {
	t.Helper()

	local, err := storage.NewLocalStorage(storage.Config{BasePath: t.TempDir(), BaseURL: "/files"})
	require.NoError(t, err)

	e := &workerEnv{
		store:     repotest.NewStore(),
		local:     local,
		blobs:     storage.NewBlobStore(local, 1<<20, nil),
		announced: &announcements{},
		now:       runTime,
	}
	e.store.Now = func() time.Time { return e.now }
	e.worker = NewArchiveWorker(nil, e.store.Container(), e.blobs, e.announced, locker, ArchiveConfig{
		PurgeDays:       45,
		WarningLeadDays: 7,
	})
	e.worker.now = func() time.Time { return e.now }
	return e
}

func (e *workerEnv) seedOrder(t *testing.T, status models.OrderStatus, deadline time.Time) *models.Order {
	t.Helper()
	e.seq++
	order := &models.Order{
		OrderNumber:   "ORD-" + deadline.Format("20060102") + "-" + strconv.Itoa(e.seq),
		Status:        status,
		ClientID:      clientID,
		PackageID:     "pkg",
		PackageNameAr: "باقة",
		PackagePrice:  decimal.NewFromInt(1000),
		Deadline:      deadline,
	}
	require.NoError(t, e.store.CreateOrder(nil, order))
	return order
}

func (e *workerEnv) seedPlan(t *testing.T, orderID string) *models.Plan {
	t.Helper()
	stored, err := e.blobs.Store(context.Background(), "orders/"+orderID, storage.FileInput{
		Name:        "plan.pdf",
		ContentType: "application/pdf",
		Size:        5,
		Reader:      strings.NewReader("%PDF-"),
	})
	require.NoError(t, err)

	plan := &models.Plan{
		OrderID:    orderID,
		UploadedBy: clientID,
		FileURL:    stored.URL,
		FileName:   stored.FileName,
		SizeBytes:  stored.SizeBytes,
		IsActive:   true,
	}
	require.NoError(t, e.store.CreatePlan(nil, plan))
	return plan
}

func (e *workerEnv) fileExists(t *testing.T, url string) bool {
	t.Helper()
	path, ok := e.local.PathFromURL(url)
	require.True(t, ok)
	exists, err := e.local.Exists(context.Background(), path)
	require.NoError(t, err)
	return exists
}

func (e *workerEnv) countNotifications(notificationType string) int {
	n := 0
	for _, x := range e.store.Notifications() {
		if x.Type == notificationType {
			n++
		}
	}
	return n
}

func TestArchiveWorker_PurgeIsIdempotent(t *testing.T) {
	e := newWorkerEnv(t, nil)
	order := e.seedOrder(t, models.OrderStatusArchived, runTime.Add(-46*day))
	first := e.seedPlan(t, order.ID)
	second := e.seedPlan(t, order.ID)

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
	assert.Equal(t, 2, report.FilesDeleted)
	assert.Zero(t, report.Failed)

	stored := e.store.Order(order.ID)
	require.NotNil(t, stored.PlansPurgedAt)
	assert.True(t, stored.PlansPurgedAt.Equal(runTime))

	plans, err := e.store.FindPlansByOrder(nil, order.ID)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	for _, p := range plans {
		require.NotNil(t, p.PurgedAt)
		assert.Empty(t, p.FileURL)
		assert.True(t, p.IsActive, "tombstones keep their active flag")
	}
	assert.False(t, e.fileExists(t, first.FileURL))
	assert.False(t, e.fileExists(t, second.FileURL))
	assert.Equal(t, 1, e.countNotifications(repositories.NotificationTypeFilesPurged))
	assert.Equal(t, []string{repositories.NotificationTypeFilesPurged}, e.announced.types())

	// The next day nothing changes.
	e.now = runTime.Add(day)
	report, err = e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunReport{}, *report)
	assert.Equal(t, 1, e.countNotifications(repositories.NotificationTypeFilesPurged))
	assert.True(t, e.store.Order(order.ID).PlansPurgedAt.Equal(runTime))
}

func TestArchiveWorker_PurgeSurvivesBlobFailure(t *testing.T) {
	e := newWorkerEnv(t, nil)
	order := e.seedOrder(t, models.OrderStatusClosed, runTime.Add(-50*day))
	require.NoError(t, e.store.CreatePlan(nil, &models.Plan{
		OrderID:  order.ID,
		FileURL:  "https://elsewhere.example/plan.pdf",
		FileName: "plan.pdf",
		IsActive: true,
	}))

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
	assert.Zero(t, report.FilesDeleted)
	assert.NotNil(t, e.store.Order(order.ID).PlansPurgedAt)
}

func TestArchiveWorker_WarningWindow(t *testing.T) {
	e := newWorkerEnv(t, nil)
	due := e.seedOrder(t, models.OrderStatusClosed, runTime.Add(-40*day))
	edge := e.seedOrder(t, models.OrderStatusArchived, runTime.Add(-38*day))
	early := e.seedOrder(t, models.OrderStatusArchived, runTime.Add(-30*day))
	open := e.seedOrder(t, models.OrderStatusInProgress, runTime.Add(-40*day))

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Warned)
	assert.Zero(t, report.Purged)

	assert.NotNil(t, e.store.Order(due.ID).ArchivedWarningSentAt)
	assert.NotNil(t, e.store.Order(edge.ID).ArchivedWarningSentAt)
	assert.Nil(t, e.store.Order(early.ID).ArchivedWarningSentAt)
	assert.Nil(t, e.store.Order(open.ID).ArchivedWarningSentAt)

	var warning *models.Notification
	for _, n := range e.store.Notifications() {
		if n.Type == repositories.NotificationTypeArchiveWarning && n.OrderID != nil && *n.OrderID == due.ID {
			n := n
			warning = &n
		}
	}
	require.NotNil(t, warning)
	assert.Equal(t, clientID, warning.UserID)
	assert.Contains(t, warning.Message, due.Deadline.Add(45*day).Format("2006-01-02"))

	e.now = runTime.Add(day)
	report, err = e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Warned)
	assert.Equal(t, 2, e.countNotifications(repositories.NotificationTypeArchiveWarning))
}

func TestArchiveWorker_ArchivesExpiredOrders(t *testing.T) {
	e := newWorkerEnv(t, nil)
	completed := e.seedOrder(t, models.OrderStatusCompleted, runTime.Add(-time.Hour))
	review := e.seedOrder(t, models.OrderStatusReview, runTime.Add(-2*day))
	working := e.seedOrder(t, models.OrderStatusInProgress, runTime.Add(-2*day))
	future := e.seedOrder(t, models.OrderStatusCompleted, runTime.Add(day))

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Archived)

	assert.Equal(t, models.OrderStatusArchived, e.store.Order(completed.ID).Status)
	assert.Equal(t, models.OrderStatusArchived, e.store.Order(review.ID).Status)
	assert.Equal(t, models.OrderStatusInProgress, e.store.Order(working.ID).Status)
	assert.Equal(t, models.OrderStatusCompleted, e.store.Order(future.ID).Status)
	assert.Equal(t, 2, e.countNotifications(repositories.NotificationTypeOrderArchived))

	report, err = e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Archived)
}

func TestArchiveWorker_PagesPastFailingOrders(t *testing.T) {
	e := newWorkerEnv(t, nil)
	e.worker.cfg.BatchSize = 1

	stuck := e.seedOrder(t, models.OrderStatusReview, runTime.Add(-3*day))
	second := e.seedOrder(t, models.OrderStatusReview, runTime.Add(-2*day))
	third := e.seedOrder(t, models.OrderStatusCompleted, runTime.Add(-day))
	e.store.OnUpdateOrder = func(order *models.Order) error {
		if order.ID == stuck.ID {
			return errors.New("row is locked")
		}
		return nil
	}

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Archived)
	assert.Equal(t, 1, report.Failed)

	assert.Equal(t, models.OrderStatusReview, e.store.Order(stuck.ID).Status)
	assert.Equal(t, models.OrderStatusArchived, e.store.Order(second.ID).Status)
	assert.Equal(t, models.OrderStatusArchived, e.store.Order(third.ID).Status)
}

func TestArchiveWorker_PurgesBeyondOneBatch(t *testing.T) {
	e := newWorkerEnv(t, nil)
	e.worker.cfg.BatchSize = 2

	// Same deadline, so the batches are split on id.
	deadline := runTime.Add(-60 * day)
	var orders []*models.Order
	for i := 0; i < 5; i++ {
		order := e.seedOrder(t, models.OrderStatusArchived, deadline)
		e.seedPlan(t, order.ID)
		orders = append(orders, order)
	}

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Purged)
	assert.Equal(t, 5, report.FilesDeleted)
	for _, order := range orders {
		assert.NotNil(t, e.store.Order(order.ID).PlansPurgedAt)
	}
}

func TestArchiveWorker_KeepsReactivatedOrdersOpen(t *testing.T) {
	e := newWorkerEnv(t, nil)
	reactivatedAt := runTime.Add(-5 * day)
	order := e.seedOrder(t, models.OrderStatusReview, runTime.Add(-9*day))
	stored := e.store.Order(order.ID)
	stored.ReactivatedAt = &reactivatedAt
	require.NoError(t, e.store.UpdateOrder(nil, &stored))

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Archived)
	assert.Equal(t, models.OrderStatusReview, e.store.Order(order.ID).Status)

	// Archived again once a deadline later than the reactivation passes.
	stored = e.store.Order(order.ID)
	stored.ExtendDeadline(6)
	require.NoError(t, e.store.UpdateOrder(nil, &stored))
	e.now = runTime.Add(-day)

	report, err = e.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Archived)
	assert.Equal(t, models.OrderStatusArchived, e.store.Order(order.ID).Status)
}

func TestArchiveWorker_ExtensionThenReviewIsNotReArchived(t *testing.T) {
	e := newWorkerEnv(t, nil)
	// The services stamp with the wall clock.
	base := time.Now().UTC()
	e.now = base

	engineerID := "2b8e4c1d-6f3a-4d7b-8e2f-5a9c0d1e3f42"
	order := e.seedOrder(t, models.OrderStatusArchived, base.Add(-10*day))
	stored := e.store.Order(order.ID)
	stored.EngineerID = &engineerID
	require.NoError(t, e.store.UpdateOrder(nil, &stored))
	e.seedPlan(t, order.ID)
	paidAt := base.Add(-30 * day)
	e.store.PutPayment(models.Payment{
		OrderID:       order.ID,
		Kind:          models.PaymentKindInitial,
		Amount:        order.PackagePrice,
		Method:        models.PaymentMethodCard,
		Status:        models.PaymentStatusCompleted,
		TransactionID: "PAY-seed-" + order.ID,
		PaidAt:        &paidAt,
	})

	svc := services.NewServiceContainer(e.store.Container(), e.blobs, e.announced, services.CommerceDefaults{
		PricePerRevision:        decimal.NewFromInt(100),
		PinPackPrice:            decimal.NewFromInt(50),
		MaxRevisionsPerPurchase: 20,
		IdempotencyTTL:          24 * time.Hour,
	})
	client := services.Caller{UserID: clientID, Role: models.UserRoleClient}
	engineer := services.Caller{UserID: engineerID, Role: models.UserRoleEngineer}
	ctx := context.Background()

	_, err := svc.LedgerService.BuyExtension(ctx, nil, client, order.ID)
	require.NoError(t, err)
	_, err = svc.OrderService.SetOrderStatus(ctx, nil, engineer, order.ID, models.OrderStatusReview)
	require.NoError(t, err)

	report, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Archived)
	assert.Equal(t, models.OrderStatusReview, e.store.Order(order.ID).Status)

	// Revisions push the deadline past now; once that deadline lapses the order is archived.
	_, err = svc.LedgerService.BuyRevisions(ctx, nil, client, order.ID, 10)
	require.NoError(t, err)
	assert.True(t, e.store.Order(order.ID).Deadline.After(base))

	e.now = base.Add(3 * day)
	report, err = e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Archived)
	assert.Equal(t, models.OrderStatusArchived, e.store.Order(order.ID).Status)
}

func TestArchiveWorker_RunLock(t *testing.T) {
	t.Run("held by another instance", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		locker := mocks.NewMockLocker(ctrl)
		locker.EXPECT().TryLock(gomock.Any(), runLockKey, 10*time.Minute).Return(nil, redis.ErrLockHeld)

		e := newWorkerEnv(t, locker)
		order := e.seedOrder(t, models.OrderStatusArchived, runTime.Add(-46*day))

		report, err := e.worker.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Nil(t, e.store.Order(order.ID).PlansPurgedAt)
	})

	t.Run("acquired and released", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		locker := mocks.NewMockLocker(ctrl)
		released := 0
		locker.EXPECT().TryLock(gomock.Any(), runLockKey, gomock.Any()).
			Return(func(context.Context) error { released++; return nil }, nil)

		e := newWorkerEnv(t, locker)
		e.seedOrder(t, models.OrderStatusArchived, runTime.Add(-46*day))

		report, err := e.worker.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, report.Skipped)
		assert.Equal(t, 1, report.Purged)
		assert.Equal(t, 1, released)
	})

	t.Run("redis unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		locker := mocks.NewMockLocker(ctrl)
		locker.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

		e := newWorkerEnv(t, locker)
		_, err := e.worker.RunOnce(context.Background())
		assert.Error(t, err)
	})
}

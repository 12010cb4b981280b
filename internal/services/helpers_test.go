package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commission_backend/internal/models"
	"commission_backend/internal/repositories/repotest"
	"commission_backend/internal/storage"
	"commission_backend/pkg/apperrors"
)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var (
	clientID   = uuid.NewString()
	engineerID = uuid.NewString()
	adminID    = uuid.NewString()

	asClient   = Caller{UserID: clientID, Role: models.UserRoleClient}
	asEngineer = Caller{UserID: engineerID, Role: models.UserRoleEngineer}
	asAdmin    = Caller{UserID: adminID, Role: models.UserRoleAdmin}
)

// ============================================
// Fakes
// ============================================

type notifyCall struct {
	UserID string
	Type   string
	Data   map[string]interface{}
}

type recordingNotifier struct {
	mu        sync.Mutex
	notified  []notifyCall
	announced []models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, notifyCall{UserID: userID, Type: notificationType, Data: data})
}

func (n *recordingNotifier) Announce(ctx context.Context, notifications ...models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announced = append(n.announced, notifications...)
}

func (n *recordingNotifier) announcedTo(userID, notificationType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, a := range n.announced {
		if a.UserID == userID && a.Type == notificationType {
			count++
		}
	}
	return count
}

// recordingBlobs wraps a real local blob store and remembers what it did.
type recordingBlobs struct {
	storage.BlobStore

	mu       sync.Mutex
	stored   []string
	deleted  []string
	onStored func()
}

func (b *recordingBlobs) Store(ctx context.Context, dir string, file storage.FileInput) (*storage.StoredFile, error) {
	f, err := b.BlobStore.Store(ctx, dir, file)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.stored = append(b.stored, f.URL)
	hook := b.onStored
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f, nil
}

func (b *recordingBlobs) Delete(ctx context.Context, url string) error {
	b.mu.Lock()
	b.deleted = append(b.deleted, url)
	b.mu.Unlock()
	return b.BlobStore.Delete(ctx, url)
}

// ============================================
// Environment
// ============================================

type testEnv struct {
	t        *testing.T
	ctx      context.Context
	store    *repotest.Store
	notifier *recordingNotifier
	blobs    *recordingBlobs
	services *ServiceContainer

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	local, err := storage.NewLocalStorage(storage.Config{BasePath: t.TempDir(), BaseURL: "/files"})
	require.NoError(t, err)

	e := &testEnv{
		t:        t,
		ctx:      context.Background(),
		store:    repotest.NewStore(),
		notifier: &recordingNotifier{},
		blobs:    &recordingBlobs{BlobStore: storage.NewBlobStore(local, 1<<20, []string{"application/pdf"})},
		now:      baseTime,
	}
	e.store.Now = e.clock

	defaults := CommerceDefaults{
		PricePerRevision:        decimal.NewFromInt(100),
		PinPackPrice:            decimal.NewFromInt(50),
		MaxRevisionsPerPurchase: 20,
		IdempotencyTTL:          24 * time.Hour,
	}
	e.services = NewServiceContainer(e.store.Container(), e.blobs, e.notifier, defaults)

	ledger := e.services.LedgerService.(*ledgerService)
	ledger.now = e.clock
	ledger.guard.now = e.clock
	e.services.OrderService.(*orderService).now = e.clock
	e.services.PlanService.(*planService).now = e.clock
	e.services.SettingsService.(*settingsService).now = e.clock
	return e
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) seedPackage(revisions, days int, price int64) *models.Package {
	e.t.Helper()
	pkg := &models.Package{
		NameAr:       "الباقة الأساسية",
		Price:        decimal.NewFromInt(price),
		Revisions:    revisions,
		DurationDays: days,
		IsActive:     true,
	}
	require.NoError(e.t, e.store.CreatePackage(nil, pkg))
	return pkg
}

func (e *testEnv) seedOrder(status models.OrderStatus, mutate ...func(o *models.Order)) *models.Order {
	e.t.Helper()
	engineer := engineerID
	order := &models.Order{
		OrderNumber:        "ORD-" + strings.ToUpper(uuid.NewString()[:8]),
		Status:             status,
		ClientID:           clientID,
		EngineerID:         &engineer,
		PackageID:          uuid.NewString(),
		PackageNameAr:      "الباقة الأساسية",
		PackagePrice:       decimal.NewFromInt(1000),
		RemainingRevisions: 2,
		Deadline:           baseTime.Add(14 * 24 * time.Hour),
	}
	for _, m := range mutate {
		m(order)
	}
	require.NoError(e.t, e.store.CreateOrder(nil, order))
	return order
}

// seedPaidOrder creates an order whose initial payment already completed.
func (e *testEnv) seedPaidOrder(status models.OrderStatus, mutate ...func(o *models.Order)) *models.Order {
	order := e.seedOrder(status, mutate...)
	paidAt := baseTime
	e.store.PutPayment(models.Payment{
		OrderID:       order.ID,
		Kind:          models.PaymentKindInitial,
		Amount:        order.PackagePrice,
		Method:        models.PaymentMethodCard,
		Status:        models.PaymentStatusCompleted,
		TransactionID: "PAY-seed-" + order.ID,
		PaidAt:        &paidAt,
	})
	return order
}

func (e *testEnv) seedPlan(orderID string, active bool) *models.Plan {
	e.t.Helper()
	plan := &models.Plan{
		OrderID:    orderID,
		UploadedBy: engineerID,
		FileURL:    "/files/orders/" + orderID + "/" + uuid.NewString() + ".pdf",
		FileName:   "plan.pdf",
		SizeBytes:  2048,
		IsActive:   active,
	}
	require.NoError(e.t, e.store.CreatePlan(nil, plan))
	return plan
}

func (e *testEnv) saveSettings(settings models.CommerceSettings) {
	e.t.Helper()
	require.NoError(e.t, e.store.SaveSettings(nil, &settings))
}

func makePins(n int) []models.Pin {
	pins := make([]models.Pin, n)
	for i := range pins {
		pins[i] = models.Pin{X: float64(i * 10 % 100), Y: 50, Color: "#FF5500", Note: "widen the corridor"}
	}
	return pins
}

func intPtr(i int) *int { return &i }

func nullDecimal(i int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(i))
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

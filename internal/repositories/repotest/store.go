// Package repotest provides an in-memory implementation of every repository
// interface for service and worker tests. Transactions are serialized and
// rolled back by restoring a snapshot.
package repotest

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
)

type data struct {
	orders        map[string]models.Order
	payments      []models.Payment
	idempotency   map[string]models.PaymentIdempotency
	pinPacks      []models.PinPackPurchase
	plans         []models.Plan
	revisions     []models.RevisionRequest
	packages      map[string]models.Package
	settings      *models.CommerceSettings
	notifications []models.Notification
}

func (d *data) clone() *data {
	cp := &data{
		orders:        make(map[string]models.Order, len(d.orders)),
		payments:      append([]models.Payment(nil), d.payments...),
		idempotency:   make(map[string]models.PaymentIdempotency, len(d.idempotency)),
		pinPacks:      append([]models.PinPackPurchase(nil), d.pinPacks...),
		plans:         append([]models.Plan(nil), d.plans...),
		revisions:     append([]models.RevisionRequest(nil), d.revisions...),
		packages:      make(map[string]models.Package, len(d.packages)),
		notifications: append([]models.Notification(nil), d.notifications...),
	}
	for k, v := range d.orders {
		cp.orders[k] = v
	}
	for k, v := range d.idempotency {
		cp.idempotency[k] = v
	}
	for k, v := range d.packages {
		cp.packages[k] = v
	}
	if d.settings != nil {
		s := *d.settings
		cp.settings = &s
	}
	return cp
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	d    *data

	// Now stamps CreatedAt on inserted rows.
	Now func() time.Time

	// OnCreateIdempotencyKey runs before a key is inserted; an error aborts the insert.
	OnCreateIdempotencyKey func(record *models.PaymentIdempotency) error

	// OnUpdateOrder runs before an order is saved; an error aborts the update.
	OnUpdateOrder func(order *models.Order) error

	afterTx []func()
}

func NewStore() *Store {
	return &Store{
		d: &data{
			orders:      map[string]models.Order{},
			idempotency: map[string]models.PaymentIdempotency{},
			packages:    map[string]models.Package{},
		},
		Now: time.Now,
	}
}

// WithinTransaction serializes fn against other transactions and discards its
// writes when it fails.
func (s *Store) WithinTransaction(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	err := fn(db)
	if err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
	}

	pending := s.afterTx
	s.afterTx = nil
	for _, f := range pending {
		f()
	}
	return err
}

// AfterTx queues f to run once the current transaction has finished, as if
// another request committed in between. Call only from inside a transaction.
func (s *Store) AfterTx(f func()) {
	s.afterTx = append(s.afterTx, f)
}

func (s *Store) stamp(base *models.BaseModel) {
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = s.Now()
	}
	base.UpdatedAt = s.Now()
}

// ============================================
// Orders
// ============================================

func (s *Store) CreateOrder(db *gorm.DB, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.d.orders {
		if o.OrderNumber == order.OrderNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	s.stamp(&order.BaseModel)
	s.d.orders[order.ID] = *order
	return nil
}

func (s *Store) FindOrderByID(db *gorm.DB, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return nil, repositories.ErrOrderNotFound
	}
	return &o, nil
}

func (s *Store) FindOrderByIDForUpdate(db *gorm.DB, id string) (*models.Order, error) {
	return s.FindOrderByID(db, id)
}

func (s *Store) UpdateOrder(db *gorm.DB, order *models.Order) error {
	if hook := s.OnUpdateOrder; hook != nil {
		if err := hook(order); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.orders[order.ID]; !ok {
		return repositories.ErrOrderNotFound
	}
	order.UpdatedAt = s.Now()
	s.d.orders[order.ID] = *order
	return nil
}

func (s *Store) FindOrders(db *gorm.DB, criteria repositories.OrderCriteria) ([]models.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Order
	for _, o := range s.d.orders {
		if criteria.ClientID != "" && o.ClientID != criteria.ClientID {
			continue
		}
		if criteria.EngineerID != "" && !o.IsAssignedEngineer(criteria.EngineerID) {
			continue
		}
		if criteria.Status != "" && o.Status != criteria.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := int64(len(out))
	page, size := criteria.Page, criteria.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + size
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (s *Store) selectOrders(after *repositories.OrderCursor, limit int, match func(o models.Order) bool) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.d.orders {
		if match(o) && after.Follows(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) FindExpiredOpenOrders(db *gorm.DB, now time.Time, after *repositories.OrderCursor, limit int) ([]models.Order, error) {
	return s.selectOrders(after, limit, func(o models.Order) bool {
		return (o.Status == models.OrderStatusReview || o.Status == models.OrderStatusCompleted) &&
			o.Expired(now)
	}), nil
}

func (s *Store) FindArchiveWarningCandidates(db *gorm.DB, from, to time.Time, after *repositories.OrderCursor, limit int) ([]models.Order, error) {
	return s.selectOrders(after, limit, func(o models.Order) bool {
		return o.Status.IsTerminal() &&
			o.PlansPurgedAt == nil &&
			o.ArchivedWarningSentAt == nil &&
			!o.Deadline.Before(from) && !o.Deadline.After(to)
	}), nil
}

func (s *Store) FindPurgeCandidates(db *gorm.DB, cutoff time.Time, after *repositories.OrderCursor, limit int) ([]models.Order, error) {
	return s.selectOrders(after, limit, func(o models.Order) bool {
		return o.Status.IsTerminal() && o.PlansPurgedAt == nil && !o.Deadline.After(cutoff)
	}), nil
}

// ============================================
// Payments
// ============================================

func (s *Store) CreatePayment(db *gorm.DB, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.payments {
		if p.TransactionID == payment.TransactionID {
			return repositories.ErrDuplicateTransaction
		}
	}
	s.stamp(&payment.BaseModel)
	s.d.payments = append(s.d.payments, *payment)
	return nil
}

func (s *Store) UpdatePayment(db *gorm.DB, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.payments {
		if p.ID != payment.ID && p.TransactionID == payment.TransactionID {
			return repositories.ErrDuplicateTransaction
		}
	}
	for i, p := range s.d.payments {
		if p.ID == payment.ID {
			payment.UpdatedAt = s.Now()
			s.d.payments[i] = *payment
			return nil
		}
	}
	return repositories.ErrPaymentNotFound
}

func (s *Store) FindPaymentByID(db *gorm.DB, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, repositories.ErrPaymentNotFound
}

func (s *Store) FindFirstPayment(db *gorm.DB, orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, repositories.ErrPaymentNotFound
}

func (s *Store) FindPaymentsByOrder(db *gorm.DB, orderID string) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.d.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) FindIdempotencyKey(db *gorm.DB, key string) (*models.PaymentIdempotency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.d.idempotency[key]
	if !ok {
		return nil, repositories.ErrIdempotencyKeyNotFound
	}
	return &rec, nil
}

func (s *Store) CreateIdempotencyKey(db *gorm.DB, record *models.PaymentIdempotency) error {
	if hook := s.OnCreateIdempotencyKey; hook != nil {
		if err := hook(record); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.idempotency[record.Key]; ok {
		return repositories.ErrDuplicateIdempotencyKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.Now()
	}
	s.d.idempotency[record.Key] = *record
	return nil
}

func (s *Store) UpdateIdempotencyKey(db *gorm.DB, record *models.PaymentIdempotency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.idempotency[record.Key] = *record
	return nil
}

// ============================================
// Pin packs
// ============================================

func (s *Store) CreatePinPackPurchase(db *gorm.DB, purchase *models.PinPackPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.pinPacks {
		if p.TransactionID == purchase.TransactionID {
			return repositories.ErrDuplicateTransaction
		}
	}
	s.stamp(&purchase.BaseModel)
	s.d.pinPacks = append(s.d.pinPacks, *purchase)
	return nil
}

func (s *Store) CountCompletedPinPacks(db *gorm.DB, orderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.d.pinPacks {
		if p.OrderID == orderID && p.Status == models.PaymentStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindPinPacksByOrder(db *gorm.DB, orderID string) ([]models.PinPackPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PinPackPurchase
	for _, p := range s.d.pinPacks {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ============================================
// Plans
// ============================================

func (s *Store) CreatePlan(db *gorm.DB, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&plan.BaseModel)
	s.d.plans = append(s.d.plans, *plan)
	return nil
}

func (s *Store) FindPlanByID(db *gorm.DB, id string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.plans {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, repositories.ErrPlanNotFound
}

func (s *Store) FindPlansByOrder(db *gorm.DB, orderID string) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Plan
	for _, p := range s.d.plans {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) FindActivePlans(db *gorm.DB, orderID string) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Plan
	for _, p := range s.d.plans {
		if p.OrderID == orderID && p.IsActive && p.PurgedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) CountActivePlans(db *gorm.DB, orderID string) (int64, error) {
	plans, _ := s.FindActivePlans(db, orderID)
	return int64(len(plans)), nil
}

func (s *Store) UpdatePlan(db *gorm.DB, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.d.plans {
		if p.ID == plan.ID {
			plan.UpdatedAt = s.Now()
			s.d.plans[i] = *plan
			return nil
		}
	}
	return repositories.ErrPlanNotFound
}

func (s *Store) TombstonePlans(db *gorm.DB, orderID string, purgedAt time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var urls []string
	for i, p := range s.d.plans {
		if p.OrderID != orderID || p.PurgedAt != nil {
			continue
		}
		if p.FileURL != "" {
			urls = append(urls, p.FileURL)
		}
		at := purgedAt
		p.PurgedAt = &at
		p.FileURL = ""
		s.d.plans[i] = p
	}
	return urls, nil
}

// ============================================
// Revision requests
// ============================================

func (s *Store) CreateRevisionRequest(db *gorm.DB, request *models.RevisionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&request.BaseModel)
	s.d.revisions = append(s.d.revisions, *request)
	return nil
}

func (s *Store) FindRevisionRequestsByOrder(db *gorm.DB, orderID string) ([]models.RevisionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RevisionRequest
	for _, r := range s.d.revisions {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ============================================
// Packages and settings
// ============================================

func (s *Store) CreatePackage(db *gorm.DB, pkg *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&pkg.BaseModel)
	s.d.packages[pkg.ID] = *pkg
	return nil
}

func (s *Store) FindPackageByID(db *gorm.DB, id string) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.d.packages[id]
	if !ok {
		return nil, repositories.ErrPackageNotFound
	}
	return &p, nil
}

func (s *Store) FindActivePackages(db *gorm.DB) ([]models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Package
	for _, p := range s.d.packages {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

func (s *Store) GetSettings(db *gorm.DB) (*models.CommerceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d.settings == nil {
		return nil, repositories.ErrSettingsNotFound
	}
	cp := *s.d.settings
	return &cp, nil
}

func (s *Store) SaveSettings(db *gorm.DB, settings *models.CommerceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.ID = models.CommerceSettingsID
	settings.UpdatedAt = s.Now()
	cp := *settings
	s.d.settings = &cp
	return nil
}

// ============================================
// Notifications
// ============================================

func (s *Store) CreateNotification(db *gorm.DB, n *models.Notification) error {
	if err := repositories.ValidateNotification(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&n.BaseModel)
	s.d.notifications = append(s.d.notifications, *n)
	return nil
}

func (s *Store) FindUserNotifications(db *gorm.DB, userID string, criteria repositories.NotificationCriteria) ([]models.Notification, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for i := len(s.d.notifications) - 1; i >= 0; i-- {
		n := s.d.notifications[i]
		if n.UserID != userID || (criteria.UnreadOnly && n.IsRead) || (criteria.Type != "" && n.Type != criteria.Type) {
			continue
		}
		out = append(out, n)
	}
	return out, int64(len(out)), nil
}

func (s *Store) MarkAsRead(db *gorm.DB, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.d.notifications {
		if n.ID == notificationID && n.UserID == userID {
			now := s.Now()
			n.IsRead = true
			n.ReadAt = &now
			s.d.notifications[i] = n
			return nil
		}
	}
	return repositories.ErrNotificationNotFound
}

func (s *Store) MarkAllAsRead(db *gorm.DB, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for i, n := range s.d.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
			s.d.notifications[i] = n
		}
	}
	return nil
}

func (s *Store) GetUnreadCount(db *gorm.DB, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, x := range s.d.notifications {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateOrderArchivedNotification(db *gorm.DB, order *models.Order) (*models.Notification, error) {
	n, err := repositories.OrderArchivedNotification(order)
	if err != nil {
		return nil, err
	}
	return n, s.CreateNotification(db, n)
}

func (s *Store) CreateArchiveWarningNotification(db *gorm.DB, order *models.Order, purgeDate time.Time) (*models.Notification, error) {
	n, err := repositories.ArchiveWarningNotification(order, purgeDate)
	if err != nil {
		return nil, err
	}
	return n, s.CreateNotification(db, n)
}

func (s *Store) CreateFilesPurgedNotification(db *gorm.DB, order *models.Order) (*models.Notification, error) {
	n, err := repositories.FilesPurgedNotification(order)
	if err != nil {
		return nil, err
	}
	return n, s.CreateNotification(db, n)
}

// ============================================
// Test accessors
// ============================================

// Notifications returns a copy of every stored notification in insertion order.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.d.notifications...)
}

func (s *Store) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Payment(nil), s.d.payments...)
}

func (s *Store) PinPacks() []models.PinPackPurchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PinPackPurchase(nil), s.d.pinPacks...)
}

func (s *Store) Revisions() []models.RevisionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RevisionRequest(nil), s.d.revisions...)
}

// Order returns the stored order or fails loudly in tests that expect it to exist.
func (s *Store) Order(id string) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		panic("repotest: order " + id + " not found")
	}
	return o
}

// PutIdempotencyKey stores a mapping directly, bypassing the hook.
func (s *Store) PutIdempotencyKey(record models.PaymentIdempotency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.idempotency[record.Key] = record
}

// PutPayment stores a payment directly.
func (s *Store) PutPayment(p models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&p.BaseModel)
	s.d.payments = append(s.d.payments, p)
}

var (
	_ repositories.OrderRepository           = (*Store)(nil)
	_ repositories.PaymentRepository         = (*Store)(nil)
	_ repositories.PinPackRepository         = (*Store)(nil)
	_ repositories.PlanRepository            = (*Store)(nil)
	_ repositories.RevisionRequestRepository = (*Store)(nil)
	_ repositories.PackageRepository         = (*Store)(nil)
	_ repositories.SettingsRepository        = (*Store)(nil)
	_ repositories.NotificationRepository    = (*Store)(nil)
	_ repositories.Transactor                = (*Store)(nil)
)

// Container exposes the store through every repository slot.
func (s *Store) Container() *repositories.RepositoryContainer {
	return &repositories.RepositoryContainer{
		Transactor:       s,
		OrderRepo:        s,
		PaymentRepo:      s,
		PinPackRepo:      s,
		PlanRepo:         s,
		RevisionRepo:     s,
		PackageRepo:      s,
		SettingsRepo:     s,
		NotificationRepo: s,
	}
}

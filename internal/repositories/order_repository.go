package repositories

import (
	"time"

	"commission_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderCriteria struct {
	ClientID   string
	EngineerID string
	Status     models.OrderStatus
	Page       int
	PageSize   int
}

type OrderRepository interface {
	CreateOrder(db *gorm.DB, order *models.Order) error
	FindOrderByID(db *gorm.DB, id string) (*models.Order, error)
	// FindOrderByIDForUpdate locks the row until the surrounding transaction ends.
	FindOrderByIDForUpdate(db *gorm.DB, id string) (*models.Order, error)
	UpdateOrder(db *gorm.DB, order *models.Order) error
	FindOrders(db *gorm.DB, criteria OrderCriteria) ([]models.Order, int64, error)

	// Scheduler selections, ordered by (deadline, id) and resumed after the cursor.
	FindExpiredOpenOrders(db *gorm.DB, now time.Time, after *OrderCursor, limit int) ([]models.Order, error)
	FindArchiveWarningCandidates(db *gorm.DB, from, to time.Time, after *OrderCursor, limit int) ([]models.Order, error)
	FindPurgeCandidates(db *gorm.DB, cutoff time.Time, after *OrderCursor, limit int) ([]models.Order, error)
}

// OrderCursor marks the last order of a scheduler batch.
type OrderCursor struct {
	Deadline time.Time
	ID       string
}

func CursorAt(order models.Order) *OrderCursor {
	return &OrderCursor{Deadline: order.Deadline, ID: order.ID}
}

// Follows reports whether order sorts strictly after the cursor.
func (c *OrderCursor) Follows(order models.Order) bool {
	if c == nil {
		return true
	}
	if !order.Deadline.Equal(c.Deadline) {
		return order.Deadline.After(c.Deadline)
	}
	return order.ID > c.ID
}

type OrderRepositoryImpl struct{}

func NewOrderRepository() OrderRepository {
	return &OrderRepositoryImpl{}
}

var terminalStatuses = []models.OrderStatus{models.OrderStatusClosed, models.OrderStatusArchived}

// expirableStatuses are moved to ARCHIVED once their deadline passes.
var expirableStatuses = []models.OrderStatus{models.OrderStatusReview, models.OrderStatusCompleted}

func (r *OrderRepositoryImpl) CreateOrder(db *gorm.DB, order *models.Order) error {
	return db.Create(order).Error
}

func (r *OrderRepositoryImpl) FindOrderByID(db *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	if err := db.First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &order, nil
}

func (r *OrderRepositoryImpl) FindOrderByIDForUpdate(db *gorm.DB, id string) (*models.Order, error) {
	var order models.Order
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &order, nil
}

func (r *OrderRepositoryImpl) UpdateOrder(db *gorm.DB, order *models.Order) error {
	return db.Save(order).Error
}

func (r *OrderRepositoryImpl) FindOrders(db *gorm.DB, criteria OrderCriteria) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := db.Model(&models.Order{})
	if criteria.ClientID != "" {
		query = query.Where("client_id = ?", criteria.ClientID)
	}
	if criteria.EngineerID != "" {
		query = query.Where("engineer_id = ?", criteria.EngineerID)
	}
	if criteria.Status != "" {
		query = query.Where("status = ?", criteria.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(criteria.Page, criteria.PageSize)
	err := query.Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&orders).Error
	return orders, total, err
}

func (r *OrderRepositoryImpl) FindExpiredOpenOrders(db *gorm.DB, now time.Time, after *OrderCursor, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := candidates(db, after, limit).
		Where("status IN ? AND deadline < ?", expirableStatuses, now).
		// An order reactivated after its deadline stays open until a later deadline passes.
		Where("reactivated_at IS NULL OR reactivated_at < deadline").
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepositoryImpl) FindArchiveWarningCandidates(db *gorm.DB, from, to time.Time, after *OrderCursor, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := candidates(db, after, limit).
		Where("status IN ?", terminalStatuses).
		Where("plans_purged_at IS NULL AND archived_warning_sent_at IS NULL").
		Where("deadline >= ? AND deadline <= ?", from, to).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepositoryImpl) FindPurgeCandidates(db *gorm.DB, cutoff time.Time, after *OrderCursor, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := candidates(db, after, limit).
		Where("status IN ?", terminalStatuses).
		Where("plans_purged_at IS NULL").
		Where("deadline <= ?", cutoff).
		Find(&orders).Error
	return orders, err
}

func candidates(db *gorm.DB, after *OrderCursor, limit int) *gorm.DB {
	q := db.Model(&models.Order{}).Order("deadline ASC, id ASC").Limit(limit)
	if after != nil {
		q = q.Where("(deadline, id) > (?, ?)", after.Deadline, after.ID)
	}
	return q
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/orderstate"
	"commission_backend/internal/repositories"
	"commission_backend/pkg/apperrors"
)

type OrderListCriteria struct {
	Status   models.OrderStatus `form:"status" validate:"omitempty,is-order-status"`
	Page     int                `form:"page"`
	PageSize int                `form:"page_size"`
}

type OrderList struct {
	Orders   []models.Order `json:"orders"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// PinAllowance describes how many pins one revision request may carry.
type PinAllowance struct {
	Groups       int `json:"groups"`
	MaxGroups    int `json:"maxGroups"`
	MaxPins      int `json:"maxPins"`
	PacksBought  int `json:"packsBought"`
	PacksAllowed int `json:"packsAllowed"`
}

type OrderDetails struct {
	Order              *models.Order            `json:"order"`
	Plans              []models.Plan            `json:"plans"`
	Payments           []models.Payment         `json:"payments"`
	RevisionRequests   []models.RevisionRequest `json:"revisionRequests"`
	PinPacks           []models.PinPackPurchase `json:"pinPacks"`
	Pins               PinAllowance             `json:"pins"`
	Paid               bool                     `json:"paid"`
	AllowedTransitions []models.OrderStatus     `json:"allowedTransitions"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, db *gorm.DB, caller Caller, packageID string) (*models.Order, error)
	GetOrder(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*OrderDetails, error)
	ListOrders(ctx context.Context, db *gorm.DB, caller Caller, criteria OrderListCriteria) (*OrderList, error)
	ListPackages(ctx context.Context, db *gorm.DB) ([]models.Package, error)

	SetOrderStatus(ctx context.Context, db *gorm.DB, caller Caller, orderID string, status models.OrderStatus) (*models.Order, error)
	CloseOrder(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*models.Order, error)
	ChangePackage(ctx context.Context, db *gorm.DB, caller Caller, orderID, packageID string) (*models.Order, error)
	AssignEngineer(ctx context.Context, db *gorm.DB, caller Caller, orderID, engineerID string) (*models.Order, error)
}

type orderService struct {
	transactor       repositories.Transactor
	orderRepo        repositories.OrderRepository
	paymentRepo      repositories.PaymentRepository
	pinPackRepo      repositories.PinPackRepository
	planRepo         repositories.PlanRepository
	revisionRepo     repositories.RevisionRequestRepository
	packageRepo      repositories.PackageRepository
	notificationRepo repositories.NotificationRepository
	notifier         Notifier
	now              func() time.Time
}

func NewOrderService(
	transactor repositories.Transactor,
	orderRepo repositories.OrderRepository,
	paymentRepo repositories.PaymentRepository,
	pinPackRepo repositories.PinPackRepository,
	planRepo repositories.PlanRepository,
	revisionRepo repositories.RevisionRequestRepository,
	packageRepo repositories.PackageRepository,
	notificationRepo repositories.NotificationRepository,
	notifier Notifier,
) OrderService {
	return &orderService{
		transactor:       transactor,
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		pinPackRepo:      pinPackRepo,
		planRepo:         planRepo,
		revisionRepo:     revisionRepo,
		packageRepo:      packageRepo,
		notificationRepo: notificationRepo,
		notifier:         notifier,
		now:              time.Now,
	}
}

// ============================================
// Creation and reads
// ============================================

func (s *orderService) CreateOrder(ctx context.Context, db *gorm.DB, caller Caller, packageID string) (*models.Order, error) {
	if caller.Role != models.UserRoleClient {
		return nil, apperrors.NewForbiddenError("Only clients can place orders")
	}

	pkg, err := s.activePackage(db, packageID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		OrderNumber: newOrderNumber(now),
		Status:      models.OrderStatusPending,
		ClientID:    caller.UserID,
	}
	order.ApplyPackage(pkg, now)

	if err := s.orderRepo.CreateOrder(db, order); err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(logger.WithOrderID(ctx, order.ID), "order created",
		"order_number", order.OrderNumber, "package_id", pkg.ID)
	return order, nil
}

func (s *orderService) activePackage(db *gorm.DB, packageID string) (*models.Package, error) {
	pkg, err := s.packageRepo.FindPackageByID(db, packageID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if !pkg.IsActive {
		return nil, apperrors.ErrPackageNotFound
	}
	return pkg, nil
}

func (s *orderService) ListPackages(ctx context.Context, db *gorm.DB) ([]models.Package, error) {
	packages, err := s.packageRepo.FindActivePackages(db)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if packages == nil {
		packages = []models.Package{}
	}
	return packages, nil
}

func (s *orderService) GetOrder(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*OrderDetails, error) {
	order, err := s.orderRepo.FindOrderByID(db, orderID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if err := requireParticipant(caller, order); err != nil {
		return nil, err
	}

	details := &OrderDetails{Order: order}

	if details.Plans, err = s.planRepo.FindPlansByOrder(db, order.ID); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if details.Payments, err = s.paymentRepo.FindPaymentsByOrder(db, order.ID); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if details.RevisionRequests, err = s.revisionRepo.FindRevisionRequestsByOrder(db, order.ID); err != nil {
		return nil, apperrors.InternalError(err)
	}
	if details.PinPacks, err = s.pinPackRepo.FindPinPacksByOrder(db, order.ID); err != nil {
		return nil, apperrors.InternalError(err)
	}
	packs, err := s.pinPackRepo.CountCompletedPinPacks(db, order.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	details.Pins = pinAllowance(int(packs))

	for _, p := range details.Payments {
		if p.Kind == models.PaymentKindInitial && p.IsCompleted() {
			details.Paid = true
		}
	}
	details.AllowedTransitions = orderstate.AllowedTargets(order.Status, caller.Role)
	return details, nil
}

func pinAllowance(packs int) PinAllowance {
	groups := 1 + packs
	return PinAllowance{
		Groups:       groups,
		MaxGroups:    MaxPinGroups,
		MaxPins:      groups * PinsPerGroup,
		PacksBought:  packs,
		PacksAllowed: MaxPinGroups - groups,
	}
}

func (s *orderService) ListOrders(ctx context.Context, db *gorm.DB, caller Caller, criteria OrderListCriteria) (*OrderList, error) {
	if criteria.Status != "" && !criteria.Status.IsValid() {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("unknown order status %q", criteria.Status))
	}

	repoCriteria := repositories.OrderCriteria{
		Status:   criteria.Status,
		Page:     criteria.Page,
		PageSize: criteria.PageSize,
	}
	switch caller.Role {
	case models.UserRoleClient:
		repoCriteria.ClientID = caller.UserID
	case models.UserRoleEngineer:
		repoCriteria.EngineerID = caller.UserID
	case models.UserRoleAdmin:
	default:
		return nil, apperrors.ErrInsufficientPermissions
	}

	orders, total, err := s.orderRepo.FindOrders(db, repoCriteria)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if orders == nil {
		orders = []models.Order{}
	}

	page, pageSize := criteria.Page, criteria.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return &OrderList{Orders: orders, Total: total, Page: page, PageSize: pageSize}, nil
}

// ============================================
// Status changes
// ============================================

func (s *orderService) SetOrderStatus(ctx context.Context, db *gorm.DB, caller Caller, orderID string, status models.OrderStatus) (*models.Order, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	if !status.IsValid() {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("unknown order status %q", status))
	}

	var (
		order *models.Order
		from  models.OrderStatus
		box   = &notificationOutbox{repo: s.notificationRepo, notifier: s.notifier}
	)
	err := s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		var err error
		order, err = s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := requireParticipant(caller, order); err != nil {
			return err
		}

		from = order.Status
		if from == status {
			return nil
		}

		// Work cannot start before the initial payment.
		if from == models.OrderStatusPending && status != models.OrderStatusArchived {
			paid, err := isPaid(s.paymentRepo, tx, order.ID)
			if err != nil {
				return err
			}
			if !paid {
				return apperrors.ErrOrderNotPaid
			}
		}

		if err := transition(order, status, caller.Role); err != nil {
			return err
		}
		switch {
		case status == models.OrderStatusCompleted:
			now := s.now()
			order.CompletedAt = &now
		case from == models.OrderStatusArchived:
			order.Reactivate(s.now())
		}
		if err := s.orderRepo.UpdateOrder(tx, order); err != nil {
			return err
		}

		return s.announceStatus(tx, box, caller, order, from)
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	if from != status {
		logger.CtxInfo(ctx, "order status changed", "from", from, "to", status, "actor", caller.Role)
	}
	box.flush(ctx)
	return order, nil
}

// announceStatus tells the other participants about a status change.
func (s *orderService) announceStatus(tx *gorm.DB, box *notificationOutbox, caller Caller, order *models.Order, from models.OrderStatus) error {
	var recipients []string
	if order.ClientID != caller.UserID {
		recipients = append(recipients, order.ClientID)
	}
	if order.EngineerID != nil && *order.EngineerID != caller.UserID {
		recipients = append(recipients, *order.EngineerID)
	}

	for _, userID := range recipients {
		if err := box.add(tx, userID, order, repositories.NotificationTypeStatusChanged,
			"Order status changed",
			fmt.Sprintf("Order %s moved from %s to %s.", order.OrderNumber, from, order.Status),
			map[string]interface{}{"from": from, "to": order.Status}); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderService) CloseOrder(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*models.Order, error) {
	return s.SetOrderStatus(ctx, db, caller, orderID, models.OrderStatusClosed)
}

// ============================================
// Package and assignment
// ============================================

// ChangePackage resets the order to a new package. Only possible before the initial payment.
func (s *orderService) ChangePackage(ctx context.Context, db *gorm.DB, caller Caller, orderID, packageID string) (*models.Order, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	var order *models.Order
	err := s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		var err error
		order, err = s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() {
			if err := requireOwner(caller, order); err != nil {
				return err
			}
		}
		if order.Status != models.OrderStatusPending {
			return apperrors.ErrPackageLocked
		}

		first, err := s.paymentRepo.FindFirstPayment(tx, order.ID)
		if err != nil && !errors.Is(err, repositories.ErrPaymentNotFound) {
			return err
		}
		if first != nil && first.IsCompleted() {
			return apperrors.ErrPackageLocked
		}

		pkg, err := s.activePackage(tx, packageID)
		if err != nil {
			return err
		}
		order.ApplyPackage(pkg, s.now())
		if err := s.orderRepo.UpdateOrder(tx, order); err != nil {
			return err
		}

		// A pending first payment follows the new price.
		if first != nil {
			first.Amount = pkg.Price
			if err := s.paymentRepo.UpdatePayment(tx, first); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "order package changed", "package_id", packageID)
	return order, nil
}

func (s *orderService) AssignEngineer(ctx context.Context, db *gorm.DB, caller Caller, orderID, engineerID string) (*models.Order, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	if !caller.IsAdmin() {
		return nil, apperrors.ErrInsufficientPermissions
	}
	if engineerID == "" {
		return nil, apperrors.NewBadRequestError("engineerId is required")
	}

	var order *models.Order
	err := s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		var err error
		order, err = s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusClosed {
			return apperrors.ErrOrderClosed
		}
		order.EngineerID = &engineerID
		return s.orderRepo.UpdateOrder(tx, order)
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "engineer assigned", "engineer_id", engineerID)
	s.notifier.Notify(ctx, engineerID, repositories.NotificationTypeEngineerAssigned,
		"New order assigned",
		fmt.Sprintf("You were assigned to order %s.", order.OrderNumber),
		orderData(order, nil))
	return order, nil
}

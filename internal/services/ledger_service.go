package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/orderstate"
	"commission_backend/internal/repositories"
	"commission_backend/internal/validator"
	"commission_backend/pkg/apperrors"
)

type PayInitialInput struct {
	Method         models.PaymentMethod `json:"method" validate:"required,is-payment-method"`
	IdempotencyKey string               `json:"idempotencyKey" validate:"omitempty,max=128"`
}

type RevisionRequestInput struct {
	PlanID string       `json:"planId" validate:"omitempty,uuid"`
	Pins   []models.Pin `json:"pins" validate:"required,min=1,dive"`
}

// PaymentResult is returned by the purchase operations. Replayed is set when
// an idempotency key matched an earlier payment.
type PaymentResult struct {
	Payment  *models.Payment `json:"payment"`
	Order    *models.Order   `json:"order"`
	Replayed bool            `json:"replayed"`
}

type PinPackResult struct {
	Purchase  *models.PinPackPurchase `json:"purchase"`
	PinGroups int                     `json:"pinGroups"`
	MaxPins   int                     `json:"maxPins"`
}

type RevisionRequestResult struct {
	Request *models.RevisionRequest `json:"request"`
	Order   *models.Order           `json:"order"`
}

// LedgerService runs the money and allowance operations. Each one locks the
// order row, mutates in a single transaction and notifies after commit.
type LedgerService interface {
	PayInitial(ctx context.Context, db *gorm.DB, caller Caller, orderID string, input PayInitialInput) (*PaymentResult, error)
	BuyRevisions(ctx context.Context, db *gorm.DB, caller Caller, orderID string, count int) (*PaymentResult, error)
	BuyExtension(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*PaymentResult, error)
	BuyPinPack(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*PinPackResult, error)
	RequestRevision(ctx context.Context, db *gorm.DB, caller Caller, orderID string, input RevisionRequestInput) (*RevisionRequestResult, error)
}

type ledgerService struct {
	transactor       repositories.Transactor
	orderRepo        repositories.OrderRepository
	paymentRepo      repositories.PaymentRepository
	pinPackRepo      repositories.PinPackRepository
	planRepo         repositories.PlanRepository
	revisionRepo     repositories.RevisionRequestRepository
	notificationRepo repositories.NotificationRepository
	settings         SettingsService
	guard            *IdempotencyGuard
	notifier         Notifier
	validator        *validator.Validator
	now              func() time.Time
}

func NewLedgerService(
	transactor repositories.Transactor,
	orderRepo repositories.OrderRepository,
	paymentRepo repositories.PaymentRepository,
	pinPackRepo repositories.PinPackRepository,
	planRepo repositories.PlanRepository,
	revisionRepo repositories.RevisionRequestRepository,
	notificationRepo repositories.NotificationRepository,
	settings SettingsService,
	guard *IdempotencyGuard,
	notifier Notifier,
) LedgerService {
	return &ledgerService{
		transactor:       transactor,
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		pinPackRepo:      pinPackRepo,
		planRepo:         planRepo,
		revisionRepo:     revisionRepo,
		notificationRepo: notificationRepo,
		settings:         settings,
		guard:            guard,
		notifier:         notifier,
		validator:        validator.New(),
		now:              time.Now,
	}
}

// ============================================
// Initial payment
// ============================================

func (s *ledgerService) PayInitial(ctx context.Context, db *gorm.DB, caller Caller, orderID string, input PayInitialInput) (*PaymentResult, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if err := s.validator.Validate(&input); err != nil {
		return nil, validationFailure(err)
	}
	key := input.IdempotencyKey

	if key != "" {
		replay, err := s.replay(db, caller, key, orderID)
		if err != nil || replay != nil {
			return replay, err
		}
	}

	var (
		result *PaymentResult
		box    = s.outbox()
	)
	err := s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, order); err != nil {
			return err
		}

		// A concurrent request may have committed while we waited for the lock.
		if key != "" {
			payment, err := s.guard.Lookup(tx, key, orderID)
			if err != nil {
				return err
			}
			if payment != nil {
				result = &PaymentResult{Payment: payment, Order: order, Replayed: true}
				return nil
			}
		}

		first, err := s.paymentRepo.FindFirstPayment(tx, orderID)
		if err != nil && !errors.Is(err, repositories.ErrPaymentNotFound) {
			return err
		}
		if first != nil && first.IsCompleted() {
			return apperrors.ErrAlreadyPaid
		}

		// Paid orders stay PENDING until an engineer starts work.
		if err := transition(order, models.OrderStatusPending, caller.Role); err != nil {
			return err
		}

		now := s.now()
		isNew := first == nil
		if isNew {
			first = &models.Payment{OrderID: order.ID, Kind: models.PaymentKindInitial}
		}
		first.Amount = order.PackagePrice
		first.Method = input.Method
		first.Status = models.PaymentStatusCompleted
		first.TransactionID = newTransactionID("PAY")
		first.PaidAt = &now

		if isNew {
			err = s.paymentRepo.CreatePayment(tx, first)
		} else {
			err = s.paymentRepo.UpdatePayment(tx, first)
		}
		if err != nil {
			return err
		}
		if err := s.orderRepo.UpdateOrder(tx, order); err != nil {
			return err
		}
		if key != "" {
			if err := s.guard.Record(tx, key, orderID, first.ID); err != nil {
				return err
			}
		}

		if err := box.add(tx, order.ClientID, order, repositories.NotificationTypeOrderPaid,
			"Payment received",
			fmt.Sprintf("Payment for order %s was received.", order.OrderNumber),
			map[string]interface{}{"amount": first.Amount.StringFixed(2), "payment_id": first.ID}); err != nil {
			return err
		}

		result = &PaymentResult{Payment: first, Order: order}
		return nil
	})

	if errors.Is(err, repositories.ErrDuplicateIdempotencyKey) {
		// Lost the insert race; the winner's payment is the answer.
		payment, rerr := s.guard.Resolve(db, key, orderID)
		if rerr != nil {
			return nil, handleRepositoryError(rerr)
		}
		order, rerr := s.orderRepo.FindOrderByID(db, orderID)
		if rerr != nil {
			return nil, handleRepositoryError(rerr)
		}
		logger.CtxInfo(ctx, "initial payment replayed after key conflict", "payment_id", payment.ID)
		return &PaymentResult{Payment: payment, Order: order, Replayed: true}, nil
	}
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	if !result.Replayed {
		logger.CtxInfo(ctx, "initial payment completed",
			"payment_id", result.Payment.ID, "amount", result.Payment.Amount.StringFixed(2))
	}
	box.flush(ctx)
	return result, nil
}

// replay answers a repeated request from a fresh idempotency mapping without locking.
func (s *ledgerService) replay(db *gorm.DB, caller Caller, key, orderID string) (*PaymentResult, error) {
	payment, err := s.guard.Lookup(db, key, orderID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if payment == nil {
		return nil, nil
	}

	order, err := s.orderRepo.FindOrderByID(db, orderID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if err := requireOwner(caller, order); err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: payment, Order: order, Replayed: true}, nil
}

// ============================================
// Revision and extension purchases
// ============================================

func (s *ledgerService) BuyRevisions(ctx context.Context, db *gorm.DB, caller Caller, orderID string, count int) (*PaymentResult, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	cfg, err := s.settings.Resolve(db)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if count < 1 || count > cfg.MaxRevisionsPerPurchase {
		return nil, apperrors.ErrInvalidRevisionCount.WithDetails(map[string]int{
			"min": 1,
			"max": cfg.MaxRevisionsPerPurchase,
		})
	}

	var (
		result *PaymentResult
		box    = s.outbox()
	)
	err = s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		// Revisions extend an archived order's deadline without reactivating it.
		order, err := s.lockPurchasable(tx, caller, orderID)
		if err != nil {
			return err
		}
		if !cfg.PricePerRevision.IsPositive() {
			return apperrors.ErrPricingNotConfigured
		}

		amount := cfg.PricePerRevision.Mul(decimal.NewFromInt(int64(count)))
		payment, err := s.completedPayment(tx, order, models.PaymentKindRevisions, amount, count)
		if err != nil {
			return err
		}

		order.RemainingRevisions += count
		order.ExtendDeadline(count)
		if err := s.orderRepo.UpdateOrder(tx, order); err != nil {
			return err
		}

		if err := box.add(tx, order.ClientID, order, repositories.NotificationTypeRevisionsPurchased,
			"Revisions purchased",
			fmt.Sprintf("%d revision(s) were added to order %s.", count, order.OrderNumber),
			map[string]interface{}{
				"count":               count,
				"remaining_revisions": order.RemainingRevisions,
				"deadline":            order.Deadline.Format(time.RFC3339),
			}); err != nil {
			return err
		}

		result = &PaymentResult{Payment: payment, Order: order}
		return nil
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "revisions purchased", "count", count, "amount", result.Payment.Amount.StringFixed(2))
	box.flush(ctx)
	return result, nil
}

func (s *ledgerService) BuyExtension(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*PaymentResult, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	cfg, err := s.settings.Resolve(db)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	var (
		result *PaymentResult
		box    = s.outbox()
	)
	err = s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		order, err := s.lockPurchasable(tx, caller, orderID)
		if err != nil {
			return err
		}
		if !cfg.ExtensionPrice.IsPositive() {
			return apperrors.ErrPricingNotConfigured
		}

		payment, err := s.completedPayment(tx, order, models.PaymentKindExtension, cfg.ExtensionPrice, 1)
		if err != nil {
			return err
		}

		order.RemainingRevisions++
		order.ExtendDeadline(1)
		reactivated := order.Status == models.OrderStatusArchived
		if reactivated {
			if err := transition(order, models.OrderStatusInProgress, models.UserRoleSystem); err != nil {
				return err
			}
			order.Reactivate(s.now())
		}
		if err := s.orderRepo.UpdateOrder(tx, order); err != nil {
			return err
		}

		data := map[string]interface{}{
			"remaining_revisions": order.RemainingRevisions,
			"deadline":            order.Deadline.Format(time.RFC3339),
			"reactivated":         reactivated,
		}
		if err := box.add(tx, order.ClientID, order, repositories.NotificationTypeExtensionPurchased,
			"Extension purchased",
			fmt.Sprintf("Order %s was extended by one day with one extra revision.", order.OrderNumber),
			data); err != nil {
			return err
		}
		if order.EngineerID != nil {
			if err := box.add(tx, *order.EngineerID, order, repositories.NotificationTypeExtensionPurchased,
				"Order extended",
				fmt.Sprintf("The client extended order %s.", order.OrderNumber),
				data); err != nil {
				return err
			}
		}

		result = &PaymentResult{Payment: payment, Order: order}
		return nil
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "extension purchased", "status", result.Order.Status)
	box.flush(ctx)
	return result, nil
}

// lockPurchasable locks the order and checks it can take a paid add-on.
// Archived orders are accepted while their plans are kept.
func (s *ledgerService) lockPurchasable(tx *gorm.DB, caller Caller, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(caller, order); err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusClosed {
		return nil, apperrors.ErrOrderClosed
	}
	// Nothing can be delivered once the plans are gone.
	if order.PlansPurgedAt != nil {
		return nil, apperrors.ErrPlansPurged
	}

	paid, err := s.isPaid(tx, order.ID)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, apperrors.ErrOrderNotPaid
	}
	return order, nil
}

func (s *ledgerService) isPaid(tx *gorm.DB, orderID string) (bool, error) {
	return isPaid(s.paymentRepo, tx, orderID)
}

func isPaid(paymentRepo repositories.PaymentRepository, tx *gorm.DB, orderID string) (bool, error) {
	first, err := paymentRepo.FindFirstPayment(tx, orderID)
	if errors.Is(err, repositories.ErrPaymentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return first.IsCompleted(), nil
}

func (s *ledgerService) completedPayment(tx *gorm.DB, order *models.Order, kind models.PaymentKind, amount decimal.Decimal, revisions int) (*models.Payment, error) {
	now := s.now()
	payment := &models.Payment{
		OrderID:       order.ID,
		Kind:          kind,
		Amount:        amount,
		Status:        models.PaymentStatusCompleted,
		TransactionID: newTransactionID(strings.ToUpper(string(kind[:3]))),
		RevisionCount: revisions,
		PaidAt:        &now,
	}
	if err := s.paymentRepo.CreatePayment(tx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// ============================================
// Pin packs
// ============================================

func (s *ledgerService) BuyPinPack(ctx context.Context, db *gorm.DB, caller Caller, orderID string) (*PinPackResult, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	cfg, err := s.settings.Resolve(db)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	var (
		result *PinPackResult
		box    = s.outbox()
	)
	err = s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, order); err != nil {
			return err
		}
		if order.Status == models.OrderStatusClosed {
			return apperrors.ErrOrderClosed
		}
		if order.PlansPurgedAt != nil {
			return apperrors.ErrPlansPurged
		}

		purchased, err := s.pinPackRepo.CountCompletedPinPacks(tx, order.ID)
		if err != nil {
			return err
		}
		if 1+int(purchased) >= MaxPinGroups {
			return apperrors.ErrPinPackLimitReached
		}
		if !cfg.PinPackPrice.IsPositive() {
			return apperrors.ErrPricingNotConfigured
		}

		purchase := &models.PinPackPurchase{
			OrderID:       order.ID,
			ClientID:      order.ClientID,
			Price:         cfg.PinPackPrice,
			Status:        models.PaymentStatusCompleted,
			TransactionID: newTransactionID("PIN"),
		}
		if err := s.pinPackRepo.CreatePinPackPurchase(tx, purchase); err != nil {
			return err
		}

		groups := 2 + int(purchased)
		if err := box.add(tx, order.ClientID, order, repositories.NotificationTypePinPackPurchased,
			"Pin pack purchased",
			fmt.Sprintf("Revision requests on order %s can now carry up to %d pins.", order.OrderNumber, groups*PinsPerGroup),
			map[string]interface{}{"pin_groups": groups}); err != nil {
			return err
		}

		result = &PinPackResult{Purchase: purchase, PinGroups: groups, MaxPins: groups * PinsPerGroup}
		return nil
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "pin pack purchased", "pin_groups", result.PinGroups)
	box.flush(ctx)
	return result, nil
}

// ============================================
// Revision requests
// ============================================

func (s *ledgerService) RequestRevision(ctx context.Context, db *gorm.DB, caller Caller, orderID string, input RevisionRequestInput) (*RevisionRequestResult, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	if err := s.validator.Validate(&input); err != nil {
		return nil, validationFailure(err)
	}

	var (
		result *RevisionRequestResult
		box    = s.outbox()
	)
	err := s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwner(caller, order); err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusClosed:
			return apperrors.ErrOrderClosed
		case models.OrderStatusArchived:
			return apperrors.ErrOrderArchived
		}
		if order.RemainingRevisions <= 0 {
			return apperrors.ErrNoRemainingRevisions
		}

		plan, err := s.targetPlan(tx, order.ID, input.PlanID)
		if err != nil {
			return err
		}

		purchased, err := s.pinPackRepo.CountCompletedPinPacks(tx, order.ID)
		if err != nil {
			return err
		}
		if maxPins := PinsPerGroup * (1 + int(purchased)); len(input.Pins) > maxPins {
			return apperrors.ErrTooManyPins.WithDetails(map[string]int{"max": maxPins, "got": len(input.Pins)})
		}

		if order.Status == models.OrderStatusPending {
			paid, err := s.isPaid(tx, order.ID)
			if err != nil {
				return err
			}
			if !paid {
				return apperrors.ErrOrderNotPaid
			}
		}

		request := &models.RevisionRequest{
			OrderID:  order.ID,
			PlanID:   plan.ID,
			ClientID: caller.UserID,
			Pins:     input.Pins,
		}
		if err := s.revisionRepo.CreateRevisionRequest(tx, request); err != nil {
			return err
		}

		order.RemainingRevisions--
		if err := reopen(order); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateOrder(tx, order); err != nil {
			return err
		}

		if order.EngineerID != nil {
			if err := box.add(tx, *order.EngineerID, order, repositories.NotificationTypeRevisionRequested,
				"Revision requested",
				fmt.Sprintf("The client requested a revision on order %s with %d pin(s).", order.OrderNumber, len(input.Pins)),
				map[string]interface{}{
					"revision_request_id": request.ID,
					"plan_id":             plan.ID,
					"pins":                len(input.Pins),
				}); err != nil {
				return err
			}
		}

		result = &RevisionRequestResult{Request: request, Order: order}
		return nil
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "revision requested",
		"revision_request_id", result.Request.ID, "remaining_revisions", result.Order.RemainingRevisions)
	box.flush(ctx)
	return result, nil
}

// targetPlan returns the referenced plan, or the oldest active one when planID is empty.
func (s *ledgerService) targetPlan(tx *gorm.DB, orderID, planID string) (*models.Plan, error) {
	active, err := s.planRepo.FindActivePlans(tx, orderID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, apperrors.ErrNoActivePlan
	}
	if planID == "" {
		return &active[0], nil
	}

	for i := range active {
		if active[i].ID == planID {
			return &active[i], nil
		}
	}

	plan, err := s.planRepo.FindPlanByID(tx, planID)
	if err != nil {
		return nil, err
	}
	if plan.OrderID != orderID {
		return nil, apperrors.ErrPlanNotFound
	}
	return nil, apperrors.ErrPlanNotActive
}

// reopen walks the order back to IN_PROGRESS on behalf of the engineer who will do the work.
func reopen(order *models.Order) error {
	path, err := orderstate.ReopenPath(order.Status)
	if err != nil {
		return apperrors.ErrIllegalTransition(err)
	}
	for _, next := range path {
		if err := transition(order, next, models.UserRoleEngineer); err != nil {
			return err
		}
	}
	return nil
}

// ============================================
// Notification outbox
// ============================================

// notificationOutbox stores notifications with the transaction and announces
// them once it has committed.
type notificationOutbox struct {
	repo     repositories.NotificationRepository
	notifier Notifier
	items    []models.Notification
}

func (s *ledgerService) outbox() *notificationOutbox {
	return &notificationOutbox{repo: s.notificationRepo, notifier: s.notifier}
}

func (o *notificationOutbox) add(tx *gorm.DB, userID string, order *models.Order, notificationType, title, message string, data map[string]interface{}) error {
	n, err := repositories.NewOrderNotification(userID, order, notificationType, title, message, data)
	if err != nil {
		return err
	}
	if err := o.repo.CreateNotification(tx, n); err != nil {
		return err
	}
	o.items = append(o.items, *n)
	return nil
}

func (o *notificationOutbox) flush(ctx context.Context) {
	if o.notifier != nil && len(o.items) > 0 {
		o.notifier.Announce(ctx, o.items...)
	}
	o.items = nil
}

func validationFailure(err error) error {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return apperrors.ValidationError(ve.Errors)
	}
	return apperrors.NewBadRequestError(err.Error())
}

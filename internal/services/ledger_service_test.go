package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/pkg/apperrors"
)

const day = 24 * time.Hour

// ============================================
// Initial payment
// ============================================

func TestPayInitial_CompletesAndRejectsSecondCall(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	ledger := e.services.LedgerService

	res, err := ledger.PayInitial(e.ctx, nil, asClient, order.ID, PayInitialInput{Method: models.PaymentMethodCard})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, models.PaymentStatusCompleted, res.Payment.Status)
	assert.Equal(t, models.PaymentKindInitial, res.Payment.Kind)
	assertDecimal(t, 1000, res.Payment.Amount)
	assert.NotEmpty(t, res.Payment.TransactionID)
	assert.Equal(t, models.OrderStatusPending, e.store.Order(order.ID).Status)
	assert.Len(t, e.store.Payments(), 1)
	assert.Equal(t, 1, e.notifier.announcedTo(clientID, repositories.NotificationTypeOrderPaid))

	_, err = ledger.PayInitial(e.ctx, nil, asClient, order.ID, PayInitialInput{Method: models.PaymentMethodCard})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
	assert.Len(t, e.store.Payments(), 1)
}

func TestPayInitial_CompletesPendingFirstPayment(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	e.store.PutPayment(models.Payment{
		OrderID:       order.ID,
		Kind:          models.PaymentKindInitial,
		Amount:        order.PackagePrice,
		Status:        models.PaymentStatusPending,
		TransactionID: "PAY-draft",
	})
	draftID := e.store.Payments()[0].ID

	res, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID, PayInitialInput{Method: models.PaymentMethodWallet})
	require.NoError(t, err)

	payments := e.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, draftID, res.Payment.ID)
	assert.Equal(t, models.PaymentStatusCompleted, payments[0].Status)
	assert.Equal(t, models.PaymentMethodWallet, payments[0].Method)
	assert.NotEqual(t, "PAY-draft", payments[0].TransactionID)
}

func TestPayInitial_Authorization(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	stranger := Caller{UserID: "someone-else", Role: models.UserRoleClient}

	for _, caller := range []Caller{stranger, asEngineer, asAdmin} {
		_, err := e.services.LedgerService.PayInitial(e.ctx, nil, caller, order.ID, PayInitialInput{Method: models.PaymentMethodCard})
		assert.ErrorIs(t, err, apperrors.ErrNotOrderOwner)
	}
	assert.Empty(t, e.store.Payments())
}

func TestPayInitial_RejectsUnknownMethod(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)

	_, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID, PayInitialInput{Method: "cash"})
	assertCode(t, err, apperrors.CodeValidationFailed)
	assert.Empty(t, e.store.Payments())
}

func TestPayInitial_UnknownOrder(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, "missing", PayInitialInput{Method: models.PaymentMethodCard})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestPayInitial_SameKeyReturnsSamePayment(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	input := PayInitialInput{Method: models.PaymentMethodCard, IdempotencyKey: "checkout-1"}

	first, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID, input)
	require.NoError(t, err)
	e.advance(time.Hour)
	second, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID, input)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Payment.TransactionID, second.Payment.TransactionID)
	assert.Len(t, e.store.Payments(), 1)
	assert.Equal(t, 1, e.notifier.announcedTo(clientID, repositories.NotificationTypeOrderPaid))
}

func TestPayInitial_ConcurrentSameKey(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	input := PayInitialInput{Method: models.PaymentMethodCard, IdempotencyKey: "double-click"}

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID, input)
			errs[i] = err
			if err == nil {
				ids[i] = res.Payment.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Len(t, e.store.Payments(), 1)
}

func TestPayInitial_LosingKeyRaceReturnsWinner(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	const key = "race-key"

	// Another request commits the same key while this one is mid-transaction.
	e.store.OnCreateIdempotencyKey = func(record *models.PaymentIdempotency) error {
		e.store.AfterTx(func() {
			paidAt := baseTime
			e.store.PutPayment(models.Payment{
				BaseModel:     models.BaseModel{ID: "winner-payment"},
				OrderID:       order.ID,
				Kind:          models.PaymentKindInitial,
				Amount:        order.PackagePrice,
				Method:        models.PaymentMethodCard,
				Status:        models.PaymentStatusCompleted,
				TransactionID: "PAY-winner",
				PaidAt:        &paidAt,
			})
			e.store.PutIdempotencyKey(models.PaymentIdempotency{
				Key: key, OrderID: order.ID, PaymentID: "winner-payment", CreatedAt: baseTime,
			})
		})
		return repositories.ErrDuplicateIdempotencyKey
	}

	res, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID,
		PayInitialInput{Method: models.PaymentMethodCard, IdempotencyKey: key})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "winner-payment", res.Payment.ID)

	payments := e.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "PAY-winner", payments[0].TransactionID)
	assert.Equal(t, 0, e.notifier.announcedTo(clientID, repositories.NotificationTypeOrderPaid))
}

func TestPayInitial_KeyBoundToAnotherOrder(t *testing.T) {
	e := newTestEnv(t)
	first := e.seedOrder(models.OrderStatusPending)
	second := e.seedOrder(models.OrderStatusPending)
	input := PayInitialInput{Method: models.PaymentMethodCard, IdempotencyKey: "shared"}

	_, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, first.ID, input)
	require.NoError(t, err)

	_, err = e.services.LedgerService.PayInitial(e.ctx, nil, asClient, second.ID, input)
	assert.ErrorIs(t, err, apperrors.ErrIdempotencyKeyReused)
	assert.Len(t, e.store.Payments(), 1)
}

func TestPayInitial_StaleKeyIsNotHonoured(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusPending)
	e.store.PutIdempotencyKey(models.PaymentIdempotency{
		Key:       "old",
		OrderID:   order.ID,
		PaymentID: "forgotten",
		CreatedAt: baseTime.Add(-25 * time.Hour),
	})

	res, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID,
		PayInitialInput{Method: models.PaymentMethodCard, IdempotencyKey: "old"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	record, err := e.store.FindIdempotencyKey(nil, "old")
	require.NoError(t, err)
	assert.Equal(t, res.Payment.ID, record.PaymentID)
	assert.Equal(t, baseTime, record.CreatedAt)
}

func TestPayInitial_ArchivedUnpaidOrderCannotBePaid(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedOrder(models.OrderStatusArchived)

	_, err := e.services.LedgerService.PayInitial(e.ctx, nil, asClient, order.ID, PayInitialInput{Method: models.PaymentMethodCard})
	assertCode(t, err, apperrors.CodeIllegalTransition)
	assert.Empty(t, e.store.Payments())
}

// ============================================
// Revision purchase
// ============================================

func TestBuyRevisions_ChargesAndExtends(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusReview, func(o *models.Order) { o.RemainingRevisions = 0 })

	res, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 3)
	require.NoError(t, err)

	assertDecimal(t, 300, res.Payment.Amount)
	assert.Equal(t, models.PaymentKindRevisions, res.Payment.Kind)
	assert.Equal(t, 3, res.Payment.RevisionCount)

	stored := e.store.Order(order.ID)
	assert.Equal(t, 3, stored.RemainingRevisions)
	assert.Equal(t, order.Deadline.Add(3*day), stored.Deadline)
	assert.Equal(t, models.OrderStatusReview, stored.Status)
	assert.Equal(t, 1, e.notifier.announcedTo(clientID, repositories.NotificationTypeRevisionsPurchased))
}

func TestBuyRevisions_CountBounds(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusInProgress)

	for _, count := range []int{0, -1, 21} {
		_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, count)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRevisionCount, "count %d", count)
	}

	e.saveSettings(models.CommerceSettings{MaxRevisionsPerPurchase: intPtr(5)})
	_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 6)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRevisionCount)
	_, err = e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 5)
	assert.NoError(t, err)

	assert.Len(t, e.store.Payments(), 2)
}

func TestBuyRevisions_Preconditions(t *testing.T) {
	e := newTestEnv(t)

	unpaid := e.seedOrder(models.OrderStatusPending)
	_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, unpaid.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrOrderNotPaid)

	closed := e.seedPaidOrder(models.OrderStatusClosed)
	_, err = e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, closed.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrOrderClosed)

	open := e.seedPaidOrder(models.OrderStatusInProgress)
	_, err = e.services.LedgerService.BuyRevisions(e.ctx, nil, asEngineer, open.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotOrderOwner)

	assert.Equal(t, open.RemainingRevisions, e.store.Order(open.ID).RemainingRevisions)
}

func TestBuyRevisions_ArchivedOrderGainsTimeButStaysArchived(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusArchived, func(o *models.Order) {
		o.Deadline = baseTime.Add(-day)
	})

	_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 3)
	require.NoError(t, err)

	stored := e.store.Order(order.ID)
	assert.Equal(t, models.OrderStatusArchived, stored.Status)
	assert.Equal(t, order.RemainingRevisions+3, stored.RemainingRevisions)
	assert.Equal(t, baseTime.Add(2*day), stored.Deadline)
	assert.Nil(t, stored.ReactivatedAt)
}

func TestPaidAddOns_RejectedOncePlansArePurged(t *testing.T) {
	e := newTestEnv(t)
	purgedAt := baseTime.Add(-5 * day)
	order := e.seedPaidOrder(models.OrderStatusArchived, func(o *models.Order) {
		o.Deadline = baseTime.Add(-50 * day)
		o.PlansPurgedAt = &purgedAt
	})
	before := e.store.Order(order.ID)

	_, err := e.services.LedgerService.BuyExtension(e.ctx, nil, asClient, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrPlansPurged)
	_, err = e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 2)
	assert.ErrorIs(t, err, apperrors.ErrPlansPurged)
	_, err = e.services.LedgerService.BuyPinPack(e.ctx, nil, asClient, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrPlansPurged)

	// Only the seeded initial payment exists and the order is untouched.
	assert.Len(t, e.store.Payments(), 1)
	assert.Empty(t, e.store.PinPacks())
	after := e.store.Order(order.ID)
	assert.Equal(t, models.OrderStatusArchived, after.Status)
	assert.Equal(t, before.Deadline, after.Deadline)
	assert.Equal(t, before.RemainingRevisions, after.RemainingRevisions)
}

func TestBuyRevisions_UnpricedIsMisconfiguration(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusInProgress)
	e.saveSettings(models.CommerceSettings{PricePerRevision: nullDecimal(0)})

	_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 2)
	assert.ErrorIs(t, err, apperrors.ErrPricingNotConfigured)

	// Authorization is still checked first.
	_, err = e.services.LedgerService.BuyRevisions(e.ctx, nil, asEngineer, order.ID, 2)
	assert.ErrorIs(t, err, apperrors.ErrNotOrderOwner)

	assert.Len(t, e.store.Payments(), 1)
	assert.Equal(t, order.Deadline, e.store.Order(order.ID).Deadline)
}

func TestBuyRevisions_SplitPurchasesMatchSinglePurchase(t *testing.T) {
	for _, n := range []int{1, 2, 5, 20} {
		e := newTestEnv(t)
		split := e.seedPaidOrder(models.OrderStatusInProgress)
		single := e.seedPaidOrder(models.OrderStatusInProgress)

		for i := 0; i < n; i++ {
			_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, split.ID, 1)
			require.NoError(t, err)
		}
		_, err := e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, single.ID, n)
		require.NoError(t, err)

		a, b := e.store.Order(split.ID), e.store.Order(single.ID)
		assert.Equal(t, b.Deadline, a.Deadline, "n=%d", n)
		assert.Equal(t, b.RemainingRevisions, a.RemainingRevisions, "n=%d", n)
	}
}

// ============================================
// Extension purchase
// ============================================

func TestBuyExtension_ReactivatesArchivedOrder(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusArchived)

	res, err := e.services.LedgerService.BuyExtension(e.ctx, nil, asClient, order.ID)
	require.NoError(t, err)

	stored := e.store.Order(order.ID)
	assert.Equal(t, models.OrderStatusInProgress, stored.Status)
	assert.Equal(t, order.RemainingRevisions+1, stored.RemainingRevisions)
	assert.Equal(t, order.Deadline.Add(day), stored.Deadline)
	require.NotNil(t, stored.ReactivatedAt)
	assert.Equal(t, baseTime, *stored.ReactivatedAt)

	// Falls back to the price of one revision.
	assertDecimal(t, 100, res.Payment.Amount)
	assert.Equal(t, models.PaymentKindExtension, res.Payment.Kind)

	assert.Equal(t, 1, e.notifier.announcedTo(clientID, repositories.NotificationTypeExtensionPurchased))
	assert.Equal(t, 1, e.notifier.announcedTo(engineerID, repositories.NotificationTypeExtensionPurchased))
}

func TestBuyExtension_KeepsActiveStatus(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusReview, func(o *models.Order) { o.EngineerID = nil })
	e.saveSettings(models.CommerceSettings{ExtensionPrice: nullDecimal(70)})

	res, err := e.services.LedgerService.BuyExtension(e.ctx, nil, asClient, order.ID)
	require.NoError(t, err)

	assertDecimal(t, 70, res.Payment.Amount)
	assert.Equal(t, models.OrderStatusReview, e.store.Order(order.ID).Status)
	assert.Equal(t, 1, e.notifier.announcedTo(clientID, repositories.NotificationTypeExtensionPurchased))
}

func TestBuyExtension_ClosedOrder(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusClosed)

	_, err := e.services.LedgerService.BuyExtension(e.ctx, nil, asClient, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrOrderClosed)
	assert.Equal(t, order.Deadline, e.store.Order(order.ID).Deadline)
}

func TestConcurrentPurchases_DeadlineIsCommutative(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusInProgress)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = e.services.LedgerService.BuyRevisions(e.ctx, nil, asClient, order.ID, 1)
			} else {
				_, err = e.services.LedgerService.BuyExtension(e.ctx, nil, asClient, order.ID)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored := e.store.Order(order.ID)
	assert.Equal(t, order.Deadline.Add(n*day), stored.Deadline)
	assert.Equal(t, order.RemainingRevisions+n, stored.RemainingRevisions)
	assert.Len(t, e.store.Payments(), n+1)
}

// ============================================
// Pin packs
// ============================================

func TestBuyPinPack_Ceiling(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusInProgress)

	var last *PinPackResult
	for i := 0; i < MaxPinGroups-1; i++ {
		res, err := e.services.LedgerService.BuyPinPack(e.ctx, nil, asClient, order.ID)
		require.NoError(t, err)
		last = res
	}
	assert.Equal(t, MaxPinGroups, last.PinGroups)
	assert.Equal(t, MaxPinGroups*PinsPerGroup, last.MaxPins)
	assertDecimal(t, 50, last.Purchase.Price)

	_, err := e.services.LedgerService.BuyPinPack(e.ctx, nil, asClient, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrPinPackLimitReached)
	assert.Len(t, e.store.PinPacks(), MaxPinGroups-1)

	seen := map[string]bool{}
	for _, p := range e.store.PinPacks() {
		assert.False(t, seen[p.TransactionID])
		seen[p.TransactionID] = true
	}
}

func TestBuyPinPack_UnpricedIsMisconfiguration(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusInProgress)
	e.saveSettings(models.CommerceSettings{PinPackPrice: nullDecimal(0)})

	_, err := e.services.LedgerService.BuyPinPack(e.ctx, nil, asClient, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrPricingNotConfigured)
	appErr, _ := apperrors.AsAppError(err)
	assert.Equal(t, 503, appErr.HTTPCode)
	assert.Empty(t, e.store.PinPacks())
}

// ============================================
// Revision requests
// ============================================

func TestRequestRevision_ClosedOrder(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusClosed)
	e.seedPlan(order.ID, true)

	_, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: makePins(1)})
	require.ErrorIs(t, err, apperrors.ErrOrderClosed)
	assert.Equal(t, "order is closed", apperrors.ErrOrderClosed.Message)

	assert.Equal(t, order.RemainingRevisions, e.store.Order(order.ID).RemainingRevisions)
	assert.Empty(t, e.store.Revisions())
}

func TestRequestRevision_ArchivedOrder(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusArchived)
	e.seedPlan(order.ID, true)

	_, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: makePins(1)})
	assert.ErrorIs(t, err, apperrors.ErrOrderArchived)
}

func TestRequestRevision_ReopensCompletedOrder(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusCompleted)
	plan := e.seedPlan(order.ID, true)

	res, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID,
		RevisionRequestInput{PlanID: plan.ID, Pins: makePins(3)})
	require.NoError(t, err)

	stored := e.store.Order(order.ID)
	assert.Equal(t, models.OrderStatusInProgress, stored.Status)
	assert.Equal(t, order.RemainingRevisions-1, stored.RemainingRevisions)
	assert.Equal(t, plan.ID, res.Request.PlanID)
	assert.Len(t, res.Request.Pins, 3)
	assert.Len(t, e.store.Revisions(), 1)
	assert.Equal(t, 1, e.notifier.announcedTo(engineerID, repositories.NotificationTypeRevisionRequested))
}

func TestRequestRevision_DefaultsToOldestActivePlan(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusReview)
	e.seedPlan(order.ID, false)
	oldest := e.seedPlan(order.ID, true)
	e.seedPlan(order.ID, true)

	res, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: makePins(1)})
	require.NoError(t, err)
	assert.Equal(t, oldest.ID, res.Request.PlanID)
	assert.Equal(t, models.OrderStatusInProgress, e.store.Order(order.ID).Status)
}

func TestRequestRevision_Preconditions(t *testing.T) {
	e := newTestEnv(t)

	exhausted := e.seedPaidOrder(models.OrderStatusReview, func(o *models.Order) { o.RemainingRevisions = 0 })
	e.seedPlan(exhausted.ID, true)
	_, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, exhausted.ID, RevisionRequestInput{Pins: makePins(1)})
	assert.ErrorIs(t, err, apperrors.ErrNoRemainingRevisions)

	noPlans := e.seedPaidOrder(models.OrderStatusReview)
	e.seedPlan(noPlans.ID, false)
	_, err = e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, noPlans.ID, RevisionRequestInput{Pins: makePins(1)})
	assert.ErrorIs(t, err, apperrors.ErrNoActivePlan)

	mixed := e.seedPaidOrder(models.OrderStatusReview)
	inactive := e.seedPlan(mixed.ID, false)
	e.seedPlan(mixed.ID, true)
	_, err = e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, mixed.ID,
		RevisionRequestInput{PlanID: inactive.ID, Pins: makePins(1)})
	assert.ErrorIs(t, err, apperrors.ErrPlanNotActive)

	foreign := e.seedPlan(noPlans.ID, true)
	_, err = e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, mixed.ID,
		RevisionRequestInput{PlanID: foreign.ID, Pins: makePins(1)})
	assert.ErrorIs(t, err, apperrors.ErrPlanNotFound)

	_, err = e.services.LedgerService.RequestRevision(e.ctx, nil, asEngineer, mixed.ID, RevisionRequestInput{Pins: makePins(1)})
	assert.ErrorIs(t, err, apperrors.ErrNotOrderOwner)

	assert.Empty(t, e.store.Revisions())
}

func TestRequestRevision_PinAllowanceGrowsWithPacks(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusReview)
	e.seedPlan(order.ID, true)

	_, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: makePins(PinsPerGroup + 1)})
	assert.ErrorIs(t, err, apperrors.ErrTooManyPins)

	_, err = e.services.LedgerService.BuyPinPack(e.ctx, nil, asClient, order.ID)
	require.NoError(t, err)

	_, err = e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: makePins(PinsPerGroup + 1)})
	assert.NoError(t, err)
}

func TestRequestRevision_InvalidPins(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusReview)
	e.seedPlan(order.ID, true)

	bad := makePins(1)
	bad[0].Color = "orange"
	_, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: bad})
	assertCode(t, err, apperrors.CodeValidationFailed)

	_, err = e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{})
	assertCode(t, err, apperrors.CodeValidationFailed)

	assert.Equal(t, order.RemainingRevisions, e.store.Order(order.ID).RemainingRevisions)
}

func TestRequestRevision_CounterNeverNegative(t *testing.T) {
	e := newTestEnv(t)
	order := e.seedPaidOrder(models.OrderStatusReview, func(o *models.Order) { o.RemainingRevisions = 2 })
	e.seedPlan(order.ID, true)

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.services.LedgerService.RequestRevision(e.ctx, nil, asClient, order.ID, RevisionRequestInput{Pins: makePins(1)})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrNoRemainingRevisions)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 0, e.store.Order(order.ID).RemainingRevisions)
	assert.Len(t, e.store.Revisions(), 2)
}

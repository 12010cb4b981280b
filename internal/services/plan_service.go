package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/internal/storage"
	"commission_backend/pkg/apperrors"
)

type PlanService interface {
	UploadPlan(ctx context.Context, db *gorm.DB, caller Caller, orderID string, file storage.FileInput) (*models.Plan, error)
	DeactivatePlan(ctx context.Context, db *gorm.DB, caller Caller, orderID, planID string) (*models.Plan, error)
}

type planService struct {
	transactor       repositories.Transactor
	orderRepo        repositories.OrderRepository
	planRepo         repositories.PlanRepository
	notificationRepo repositories.NotificationRepository
	blobs            storage.BlobStore
	notifier         Notifier
	now              func() time.Time
}

func NewPlanService(
	transactor repositories.Transactor,
	orderRepo repositories.OrderRepository,
	planRepo repositories.PlanRepository,
	notificationRepo repositories.NotificationRepository,
	blobs storage.BlobStore,
	notifier Notifier,
) PlanService {
	return &planService{
		transactor:       transactor,
		orderRepo:        orderRepo,
		planRepo:         planRepo,
		notificationRepo: notificationRepo,
		blobs:            blobs,
		notifier:         notifier,
		now:              time.Now,
	}
}

// UploadPlan stores the file first and records the plan afterwards, so no
// transaction stays open during the upload. The blob is removed again when
// the order changed in between.
func (s *planService) UploadPlan(ctx context.Context, db *gorm.DB, caller Caller, orderID string, file storage.FileInput) (*models.Plan, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	order, err := s.orderRepo.FindOrderByID(db, orderID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	if err := requireStaff(caller, order); err != nil {
		return nil, err
	}
	if err := s.checkUploadable(db, order); err != nil {
		return nil, handleRepositoryError(err)
	}

	stored, err := s.blobs.Store(ctx, "orders/"+order.ID, file)
	if err != nil {
		return nil, storageError(err)
	}

	var (
		plan *models.Plan
		box  = &notificationOutbox{repo: s.notificationRepo, notifier: s.notifier}
	)
	err = s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		locked, err := s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkUploadable(tx, locked); err != nil {
			return err
		}

		plan = &models.Plan{
			OrderID:    locked.ID,
			UploadedBy: caller.UserID,
			FileURL:    stored.URL,
			FileName:   stored.FileName,
			MimeType:   stored.MimeType,
			SizeBytes:  stored.SizeBytes,
			IsActive:   true,
		}
		if err := s.planRepo.CreatePlan(tx, plan); err != nil {
			return err
		}

		return box.add(tx, locked.ClientID, locked, repositories.NotificationTypePlanUploaded,
			"New plan uploaded",
			fmt.Sprintf("A new plan (%s) was uploaded to order %s.", plan.FileName, locked.OrderNumber),
			map[string]interface{}{"plan_id": plan.ID, "file_name": plan.FileName})
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, stored.URL); derr != nil {
			logger.CtxWithError(ctx, "failed to remove orphaned plan file", derr, "url", stored.URL)
		}
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "plan uploaded", "plan_id", plan.ID, "size_bytes", plan.SizeBytes)
	box.flush(ctx)
	return plan, nil
}

func (s *planService) checkUploadable(db *gorm.DB, order *models.Order) error {
	switch order.Status {
	case models.OrderStatusClosed:
		return apperrors.ErrOrderClosed
	case models.OrderStatusArchived:
		return apperrors.ErrOrderArchived
	}
	if order.PlansPurgedAt != nil {
		return apperrors.ErrPlansPurged
	}

	active, err := s.planRepo.CountActivePlans(db, order.ID)
	if err != nil {
		return err
	}
	if active >= MaxActivePlans {
		return apperrors.ErrActivePlanLimit
	}
	return nil
}

func (s *planService) DeactivatePlan(ctx context.Context, db *gorm.DB, caller Caller, orderID, planID string) (*models.Plan, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	var plan *models.Plan
	err := s.transactor.WithinTransaction(db, func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if err := requireStaff(caller, order); err != nil {
			return err
		}

		plan, err = s.planRepo.FindPlanByID(tx, planID)
		if err != nil {
			return err
		}
		if plan.OrderID != order.ID {
			return apperrors.ErrPlanNotFound
		}
		if !plan.IsActive {
			return nil
		}
		plan.IsActive = false
		return s.planRepo.UpdatePlan(tx, plan)
	})
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	logger.CtxInfo(ctx, "plan deactivated", "plan_id", planID)
	return plan, nil
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return apperrors.ErrStorageUnavailable.WithError(err)
	case errors.Is(err, storage.ErrFileTooLarge):
		return apperrors.ErrFileTooLarge.WithError(err)
	case errors.Is(err, storage.ErrUnsupportedMediaType):
		return apperrors.New(apperrors.CodeValidationFailed, "plan", err.Error(), http.StatusUnsupportedMediaType)
	default:
		return apperrors.Wrap(err, apperrors.CodeExternalServiceError, "storage",
			"File storage failed, please try again", http.StatusServiceUnavailable)
	}
}

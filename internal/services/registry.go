package services

import (
	"commission_backend/internal/repositories"
	"commission_backend/internal/storage"
)

// ServiceContainer wires every service used by the handlers.
type ServiceContainer struct {
	SettingsService     SettingsService
	LedgerService       LedgerService
	OrderService        OrderService
	PlanService         PlanService
	NotificationService NotificationService
}

func NewServiceContainer(
	repos *repositories.RepositoryContainer,
	blobs storage.BlobStore,
	notifier Notifier,
	defaults CommerceDefaults,
) *ServiceContainer {
	settingsService := NewSettingsService(repos.SettingsRepo, defaults)
	guard := NewIdempotencyGuard(repos.PaymentRepo, defaults.IdempotencyTTL)

	return &ServiceContainer{
		SettingsService: settingsService,
		LedgerService: NewLedgerService(
			repos.Transactor,
			repos.OrderRepo,
			repos.PaymentRepo,
			repos.PinPackRepo,
			repos.PlanRepo,
			repos.RevisionRepo,
			repos.NotificationRepo,
			settingsService,
			guard,
			notifier,
		),
		OrderService: NewOrderService(
			repos.Transactor,
			repos.OrderRepo,
			repos.PaymentRepo,
			repos.PinPackRepo,
			repos.PlanRepo,
			repos.RevisionRepo,
			repos.PackageRepo,
			repos.NotificationRepo,
			notifier,
		),
		PlanService: NewPlanService(
			repos.Transactor,
			repos.OrderRepo,
			repos.PlanRepo,
			repos.NotificationRepo,
			blobs,
			notifier,
		),
		NotificationService: NewNotificationService(repos.NotificationRepo),
	}
}

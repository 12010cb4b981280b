package repositories

// RepositoryContainer groups the stateless repositories and the transactor.
type RepositoryContainer struct {
	Transactor       Transactor
	OrderRepo        OrderRepository
	PaymentRepo      PaymentRepository
	PinPackRepo      PinPackRepository
	PlanRepo         PlanRepository
	RevisionRepo     RevisionRequestRepository
	PackageRepo      PackageRepository
	SettingsRepo     SettingsRepository
	NotificationRepo NotificationRepository
}

func NewRepositoryContainer() *RepositoryContainer {
	return &RepositoryContainer{
		Transactor:       NewTransactor(),
		OrderRepo:        NewOrderRepository(),
		PaymentRepo:      NewPaymentRepository(),
		PinPackRepo:      NewPinPackRepository(),
		PlanRepo:         NewPlanRepository(),
		RevisionRepo:     NewRevisionRequestRepository(),
		PackageRepo:      NewPackageRepository(),
		SettingsRepo:     NewSettingsRepository(),
		NotificationRepo: NewNotificationRepository(),
	}
}

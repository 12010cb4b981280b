package handlers

// AppHandlers holds every HTTP handler of the application.
type AppHandlers struct {
	OrderHandler        *OrderHandler
	LedgerHandler       *LedgerHandler
	PlanHandler         *PlanHandler
	AdminHandler        *AdminHandler
	NotificationHandler *NotificationHandler
	HealthHandler       *HealthHandler
}

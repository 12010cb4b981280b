package models

type OrderStatus string
type PaymentStatus string
type PaymentMethod string
type PaymentKind string
type UserRole string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusReview     OrderStatus = "REVIEW"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusClosed     OrderStatus = "CLOSED"
	OrderStatusArchived   OrderStatus = "ARCHIVED"

	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"

	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodWallet       PaymentMethod = "wallet"

	PaymentKindInitial   PaymentKind = "initial"
	PaymentKindRevisions PaymentKind = "revisions"
	PaymentKindExtension PaymentKind = "extension"

	UserRoleClient   UserRole = "client"
	UserRoleEngineer UserRole = "engineer"
	UserRoleAdmin    UserRole = "admin"
	// UserRoleSystem is never carried by a token; the scheduler and ledger act with it.
	UserRoleSystem UserRole = "system"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusInProgress,
	OrderStatusReview,
	OrderStatusCompleted,
	OrderStatusClosed,
	OrderStatusArchived,
}

func (s OrderStatus) IsValid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses the archive scheduler works on.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusClosed || s == OrderStatusArchived
}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodWallet:
		return true
	}
	return false
}

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleClient, UserRoleEngineer, UserRoleAdmin:
		return true
	}
	return false
}

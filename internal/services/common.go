package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"commission_backend/internal/models"
	"commission_backend/internal/orderstate"
	"commission_backend/internal/repositories"
	"commission_backend/pkg/apperrors"
)

const (
	// PinsPerGroup is the number of pins one pin group allows.
	PinsPerGroup = 6
	// MaxPinGroups caps the free group plus purchased packs.
	MaxPinGroups = 6
	// MaxActivePlans caps concurrently active deliverables of an order.
	MaxActivePlans = 6
)

// Caller is the pre-authenticated identity an operation runs as.
type Caller struct {
	UserID string
	Role   models.UserRole
}

// SystemCaller is used by background jobs.
var SystemCaller = Caller{Role: models.UserRoleSystem}

func (c Caller) IsAdmin() bool {
	return c.Role == models.UserRoleAdmin
}

// requireOwner allows only the client who placed the order.
func requireOwner(caller Caller, order *models.Order) error {
	if caller.Role != models.UserRoleClient || order.ClientID != caller.UserID {
		return apperrors.ErrNotOrderOwner
	}
	return nil
}

// requireStaff allows admins and the assigned engineer.
func requireStaff(caller Caller, order *models.Order) error {
	switch caller.Role {
	case models.UserRoleAdmin:
		return nil
	case models.UserRoleEngineer:
		if order.IsAssignedEngineer(caller.UserID) {
			return nil
		}
		return apperrors.ErrEngineerNotAssigned
	default:
		return apperrors.ErrInsufficientPermissions
	}
}

// requireParticipant allows admins, the owning client and the assigned engineer.
func requireParticipant(caller Caller, order *models.Order) error {
	switch caller.Role {
	case models.UserRoleAdmin:
		return nil
	case models.UserRoleClient:
		return requireOwner(caller, order)
	case models.UserRoleEngineer:
		return requireStaff(caller, order)
	default:
		return apperrors.ErrInsufficientPermissions
	}
}

// transition moves order to next through the allow-list.
func transition(order *models.Order, next models.OrderStatus, actor models.UserRole) error {
	if err := orderstate.ValidateTransition(order.Status, next, actor); err != nil {
		return apperrors.ErrIllegalTransition(err)
	}
	order.Status = next
	return nil
}

func newTransactionID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// handleRepositoryError maps repository and state machine errors onto AppErrors.
func handleRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, repositories.ErrOrderNotFound):
		return apperrors.ErrOrderNotFound
	case errors.Is(err, repositories.ErrPlanNotFound):
		return apperrors.ErrPlanNotFound
	case errors.Is(err, repositories.ErrPackageNotFound):
		return apperrors.ErrPackageNotFound
	case errors.Is(err, orderstate.ErrIllegalTransition):
		return apperrors.ErrIllegalTransition(err)
	default:
		return apperrors.InternalError(err)
	}
}

func orderData(order *models.Order, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

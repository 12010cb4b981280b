// Package orderstate holds the order status allow-list. Every status change in
// the services goes through ValidateTransition.
package orderstate

import (
	"errors"
	"fmt"

	"commission_backend/internal/models"
)

type edge struct {
	from models.OrderStatus
	to   models.OrderStatus
}

var (
	staff  = []models.UserRole{models.UserRoleEngineer, models.UserRoleAdmin}
	system = []models.UserRole{models.UserRoleSystem, models.UserRoleAdmin}
)

// allowList maps a status pair to the roles that may perform it.
var allowList = map[edge][]models.UserRole{
	{models.OrderStatusPending, models.OrderStatusInProgress}:   staff,
	{models.OrderStatusInProgress, models.OrderStatusReview}:    staff,
	{models.OrderStatusReview, models.OrderStatusCompleted}:     staff,
	{models.OrderStatusInProgress, models.OrderStatusCompleted}: staff,
	{models.OrderStatusCompleted, models.OrderStatusClosed}:     {models.UserRoleClient},
	{models.OrderStatusPending, models.OrderStatusArchived}:     system,
	{models.OrderStatusInProgress, models.OrderStatusArchived}:  system,
	{models.OrderStatusReview, models.OrderStatusArchived}:      system,
	{models.OrderStatusCompleted, models.OrderStatusArchived}:   system,
	{models.OrderStatusArchived, models.OrderStatusInProgress}:  system,
	{models.OrderStatusArchived, models.OrderStatusClosed}:      system,
	{models.OrderStatusCompleted, models.OrderStatusReview}:     staff,
	{models.OrderStatusReview, models.OrderStatusInProgress}:    staff,
}

// ErrIllegalTransition is matched by every *TransitionError.
var ErrIllegalTransition = errors.New("illegal status transition")

type TransitionError struct {
	From   models.OrderStatus
	To     models.OrderStatus
	Actor  models.UserRole
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s as %s: %s", e.From, e.To, e.Actor, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// CanTransition reports whether actor may move an order from current to next.
func CanTransition(current, next models.OrderStatus, actor models.UserRole) bool {
	return ValidateTransition(current, next, actor) == nil
}

// ValidateTransition returns nil for a legal move and a *TransitionError otherwise.
// Staying in the same status is always legal.
func ValidateTransition(current, next models.OrderStatus, actor models.UserRole) error {
	if !current.IsValid() {
		return &TransitionError{From: current, To: next, Actor: actor, Reason: "unknown current status"}
	}
	if !next.IsValid() {
		return &TransitionError{From: current, To: next, Actor: actor, Reason: "unknown target status"}
	}
	if current == next {
		return nil
	}

	roles, ok := allowList[edge{current, next}]
	if !ok {
		return &TransitionError{From: current, To: next, Actor: actor, Reason: "transition is not allowed"}
	}
	for _, role := range roles {
		if role == actor {
			return nil
		}
	}
	return &TransitionError{From: current, To: next, Actor: actor, Reason: "role may not perform this transition"}
}

// AllowedTargets lists statuses actor can move current to, in declaration order of models.OrderStatuses.
func AllowedTargets(current models.OrderStatus, actor models.UserRole) []models.OrderStatus {
	var targets []models.OrderStatus
	for _, next := range models.OrderStatuses {
		if next == current {
			continue
		}
		if CanTransition(current, next, actor) {
			targets = append(targets, next)
		}
	}
	return targets
}

// ReopenPath returns the hops that bring current back to IN_PROGRESS using
// engineer-level transitions, e.g. COMPLETED -> REVIEW -> IN_PROGRESS.
// An order already in progress yields an empty path.
func ReopenPath(current models.OrderStatus) ([]models.OrderStatus, error) {
	const target = models.OrderStatusInProgress
	if current == target {
		return nil, nil
	}

	prev := map[models.OrderStatus]models.OrderStatus{current: current}
	queue := []models.OrderStatus{current}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, next := range models.OrderStatuses {
			if _, seen := prev[next]; seen {
				continue
			}
			if !CanTransition(s, next, models.UserRoleEngineer) {
				continue
			}
			prev[next] = s
			if next == target {
				var path []models.OrderStatus
				for at := next; at != current; at = prev[at] {
					path = append([]models.OrderStatus{at}, path...)
				}
				return path, nil
			}
			queue = append(queue, next)
		}
	}
	return nil, &TransitionError{From: current, To: target, Actor: models.UserRoleEngineer, Reason: "order cannot be reopened"}
}

package auth

import (
	"fmt"

	"commission_backend/internal/models"
)

// ValidateRole accepts only roles a token may carry. The system role is internal.
func ValidateRole(role models.UserRole) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid role %q", role)
	}
	return nil
}

// HasAnyRole reports whether role is one of allowed.
func HasAnyRole(role models.UserRole, allowed ...models.UserRole) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func IsAdmin(claims *Claims) bool {
	return claims.Role == models.UserRoleAdmin
}

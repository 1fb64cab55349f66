package service

import (
	"github.com/dukerupert/cakery/internal/domain"
)

// AuthorizeCheckout admits only authenticated customers. It runs before any
// catalog read so a denied checkout has no side effects at all.
func AuthorizeCheckout(caller *domain.Caller) error {
	if caller == nil {
		return &domain.CheckoutError{
			Kind:    domain.KindUnauthorized,
			Op:      "checkout.authorize",
			Message: "Authentication required",
		}
	}
	if !caller.Is(domain.RoleCustomer) {
		return &domain.CheckoutError{
			Kind:    domain.KindUnauthorized,
			Op:      "checkout.authorize",
			Message: "Access denied. Only customers can create orders.",
		}
	}
	return nil
}

// requireRole is the non-checkout gate used by order lifecycle operations.
func requireRole(caller *domain.Caller, role domain.Role) error {
	if caller == nil {
		return ErrAuthRequired
	}
	if caller.Is(role) {
		return nil
	}
	switch role {
	case domain.RoleCustomer:
		return ErrCustomerOnly
	case domain.RoleShopOwner:
		return ErrShopOwnerOnly
	default:
		return ErrAdminOnly
	}
}

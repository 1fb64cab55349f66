package service

import (
	"github.com/dukerupert/cakery/internal/domain"
)

// Authentication and role errors - EUNAUTHORIZED / EFORBIDDEN
var (
	ErrAuthRequired  = domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required")
	ErrCustomerOnly  = domain.Errorf(domain.EFORBIDDEN, "", "Only customers can do this")
	ErrShopOwnerOnly = domain.Errorf(domain.EFORBIDDEN, "", "Only shop owners can do this")
	ErrAdminOnly     = domain.Errorf(domain.EFORBIDDEN, "", "Only admins can do this")
	ErrNotOrderShop  = domain.Errorf(domain.EFORBIDDEN, "", "Order belongs to another shop")
	ErrNotOrderOwner = domain.Errorf(domain.EFORBIDDEN, "", "Order belongs to another customer")
)

// Order lifecycle errors
var (
	ErrOrderNotFound       = domain.ErrOrderNotFound
	ErrIllegalTransition   = domain.ErrIllegalTransition
	ErrOrderNotCancellable = domain.ErrOrderNotCancellable
	ErrMissingDeliveryDate = domain.Errorf(domain.EINVALID, "", "Delivery date is required")
)

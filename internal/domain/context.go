// Package domain provides the core marketplace types (products, carts, orders,
// callers) and the application error model shared by every layer.
//
// Context helpers centralize request-scoped data access. The caller identity is
// resolved once by the identity layer and then passed explicitly into services;
// the context copy exists only so middleware and handlers can reach it.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	callerContextKey contextKey = iota
	requestIDContextKey
)

// Role is the marketplace role of an authenticated caller.
type Role string

const (
	RoleCustomer  Role = "Customer"
	RoleShopOwner Role = "ShopOwner"
	RoleAdmin     Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleShopOwner, RoleAdmin:
		return true
	}
	return false
}

// Caller is the verified identity behind a request.
// For shop owners ID is also the shop identifier that owns products and orders.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

// Authenticated reports whether the caller carries a verified identity.
func (c *Caller) Authenticated() bool {
	return c != nil && c.ID != uuid.Nil && c.Role.Valid()
}

// Is reports whether the caller is present and holds the given role.
func (c *Caller) Is(role Role) bool {
	return c != nil && c.ID != uuid.Nil && c.Role == role
}

// --- Caller Context Helpers ---

// NewContextWithCaller returns a new context with the caller attached.
func NewContextWithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext retrieves the caller from context.
// Returns nil if no caller is present (anonymous request).
func CallerFromContext(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerContextKey).(*Caller)
	return caller
}

// IsAuthenticated returns true if there is a caller in context.
func IsAuthenticated(ctx context.Context) bool {
	return CallerFromContext(ctx) != nil
}

// --- Request ID Context Helpers ---

// NewContextWithRequestID returns a new context with the request ID attached.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}

package domain

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestCallerContext(t *testing.T) {
	t.Run("CallerFromContext returns nil when anonymous", func(t *testing.T) {
		if caller := CallerFromContext(context.Background()); caller != nil {
			t.Errorf("expected nil caller, got %+v", caller)
		}
		if IsAuthenticated(context.Background()) {
			t.Error("IsAuthenticated should be false without a caller")
		}
	})

	t.Run("CallerFromContext returns caller when set", func(t *testing.T) {
		expected := &Caller{ID: uuid.New(), Role: RoleCustomer}
		ctx := NewContextWithCaller(context.Background(), expected)

		caller := CallerFromContext(ctx)
		if caller == nil {
			t.Fatal("expected caller, got nil")
		}
		if caller.ID != expected.ID {
			t.Errorf("expected ID %v, got %v", expected.ID, caller.ID)
		}
		if !IsAuthenticated(ctx) {
			t.Error("IsAuthenticated should be true with a caller")
		}
	})
}

func TestCaller_Is(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		caller   *Caller
		role     Role
		expected bool
	}{
		{"nil caller", nil, RoleCustomer, false},
		{"nil id", &Caller{Role: RoleCustomer}, RoleCustomer, false},
		{"matching role", &Caller{ID: id, Role: RoleCustomer}, RoleCustomer, true},
		{"other role", &Caller{ID: id, Role: RoleShopOwner}, RoleCustomer, false},
		{"admin is not customer", &Caller{ID: id, Role: RoleAdmin}, RoleCustomer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.caller.Is(tt.role); got != tt.expected {
				t.Errorf("Is(%q) = %v, want %v", tt.role, got, tt.expected)
			}
		})
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleCustomer, RoleShopOwner, RoleAdmin} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("customer").Valid() {
		t.Error("roles are case sensitive")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if id := RequestIDFromContext(ctx); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}

	ctx = NewContextWithRequestID(ctx, "req-123")
	if id := RequestIDFromContext(ctx); id != "req-123" {
		t.Errorf("expected %q, got %q", "req-123", id)
	}
}

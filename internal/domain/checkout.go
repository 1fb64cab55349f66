package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CheckoutErrorKind classifies why a checkout failed.
type CheckoutErrorKind string

const (
	KindUnauthorized           CheckoutErrorKind = "unauthorized"
	KindEmptyCart              CheckoutErrorKind = "empty_cart"
	KindProductNotFound        CheckoutErrorKind = "product_not_found"
	KindInvalidQuantity        CheckoutErrorKind = "invalid_quantity"
	KindPartialCommit          CheckoutErrorKind = "partial_commit_failure"
	KindPersistenceUnavailable CheckoutErrorKind = "persistence_unavailable"
)

// code maps a kind to the application error code used for HTTP responses.
func (k CheckoutErrorKind) code() string {
	switch k {
	case KindUnauthorized:
		return EUNAUTHORIZED
	case KindEmptyCart, KindInvalidQuantity:
		return EINVALID
	case KindProductNotFound:
		return ENOTFOUND
	case KindPartialCommit:
		return ECONFLICT
	case KindPersistenceUnavailable:
		return EUNAVAILABLE
	}
	return EINTERNAL
}

// CheckoutError is returned by checkout for every failure.
//
// Validation kinds (unauthorized, empty cart, product not found, invalid
// quantity) are raised before any write and Committed is always empty.
// KindPartialCommit means Committed holds the orders that were persisted before
// the order for ShopID failed; those orders are real and must be reconciled,
// not retried.
type CheckoutError struct {
	Kind       CheckoutErrorKind
	Op         string
	Message    string
	CheckoutID uuid.UUID
	ProductID  uuid.UUID
	ShopID     uuid.UUID
	Line       int
	Committed  []Order
	Err        error
}

// Error implements the error interface.
func (e *CheckoutError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Committed) > 0 {
		fmt.Fprintf(&b, " (%d orders committed)", len(e.Committed))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying store or catalog error, if any.
func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the application error code for the kind.
func (e *CheckoutError) ErrorCode() string {
	return e.Kind.code()
}

// UserMessage returns the message safe to show to the customer.
func (e *CheckoutError) UserMessage() string {
	return e.Message
}

// CommittedIDs lists the identifiers of orders persisted before the failure.
func (e *CheckoutError) CommittedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(e.Committed))
	for i, o := range e.Committed {
		ids[i] = o.ID
	}
	return ids
}

// IsCheckoutKind reports whether err is a CheckoutError of the given kind.
func IsCheckoutKind(err error, kind CheckoutErrorKind) bool {
	ce, ok := AsCheckoutError(err)
	return ok && ce.Kind == kind
}

// AsCheckoutError unwraps err to a *CheckoutError.
func AsCheckoutError(err error) (*CheckoutError, bool) {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

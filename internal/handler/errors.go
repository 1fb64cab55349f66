// Package handler holds the shared HTTP response helpers used by the API
// handlers: JSON encoding, the domain error to status mapping, and the order
// response shape.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/middleware"
	"github.com/dukerupert/cakery/internal/telemetry"
	"github.com/google/uuid"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`

	// Checkout failures only.
	Kind            string          `json:"kind,omitempty"`
	CheckoutID      string          `json:"checkout_id,omitempty"`
	ProductID       string          `json:"product_id,omitempty"`
	ShopID          string          `json:"shop_id,omitempty"`
	Line            *int            `json:"line,omitempty"`
	CommittedOrders []OrderResponse `json:"committed_orders,omitempty"`
}

// ErrorResponse logs err and writes it as an error response.
// JSON clients get the error envelope; anything else gets plain text.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	body := errorBody{Code: code, Message: domain.ErrorMessage(err)}

	if ce, ok := domain.AsCheckoutError(err); ok {
		describeCheckoutError(&body, ce)
	}

	logError(r, err, code, status)

	if !acceptsJSON(r) {
		http.Error(w, body.Message, status)
		return
	}
	WriteJSON(w, status, map[string]errorBody{"error": body})
}

// ValidationErrorResponse writes field errors as a 400. Errors that are not
// validation errors fall back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context()).Info("validation failed",
		"fields", fields,
		"op", domain.ErrorOp(err),
	)

	WriteJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
		Code:    domain.EINVALID,
		Message: "Validation failed",
		Fields:  fields,
	}})
}

// NotFoundResponse writes a 404.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// UnauthorizedResponse writes a 401.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required"))
}

// ForbiddenResponse writes a 403.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource"))
}

// InternalErrorResponse writes a generic 500. err is logged, never shown.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, domain.Internal(err, "", "An unexpected error occurred"))
}

// BadRequestResponse writes a 400 with message.
func BadRequestResponse(w http.ResponseWriter, r *http.Request, message string) {
	ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "%s", message))
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func describeCheckoutError(body *errorBody, ce *domain.CheckoutError) {
	body.Kind = string(ce.Kind)
	if ce.CheckoutID != uuid.Nil {
		body.CheckoutID = ce.CheckoutID.String()
	}
	if ce.Kind == domain.KindProductNotFound || ce.Kind == domain.KindInvalidQuantity {
		line := ce.Line
		body.Line = &line
	}
	if ce.ProductID != uuid.Nil {
		body.ProductID = ce.ProductID.String()
	}
	if ce.ShopID != uuid.Nil {
		body.ShopID = ce.ShopID.String()
	}
	if len(ce.Committed) > 0 {
		body.CommittedOrders = NewOrderResponses(ce.Committed)
	}
}

func logError(r *http.Request, err error, code string, status int) {
	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"op", domain.ErrorOp(err),
		"status", status,
	}

	switch {
	case status >= 500:
		logger.Error("request failed", attrs...)
		if code == domain.EINTERNAL {
			telemetry.CaptureError(r.Context(), err, map[string]any{
				"path":       r.URL.Path,
				"request_id": middleware.GetRequestID(r.Context()),
			})
		}
	case status == http.StatusConflict:
		logger.Warn("request failed", attrs...)
	default:
		logger.Info("request failed", attrs...)
	}
}

// acceptsJSON checks if the client prefers JSON responses.
func acceptsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	if strings.HasSuffix(r.URL.Path, ".json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
